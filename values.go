package fdbsql

import (
	"database/sql/driver"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"

	"github.com/cockroachdb/apd"
	"github.com/gofrs/uuid"
	"github.com/jackc/pgtype"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Wire format codes
const (
	TextFormatCode   = 0
	BinaryFormatCode = 1
)

// SerializationError occurs on failure to encode an argument for the server.
type SerializationError string

func (e SerializationError) Error() string {
	return string(e)
}

// encodeArgs casts args into parameter values and format codes. []byte is sent in binary format so it survives the
// round trip unchanged. Everything else is sent as text.
func encodeArgs(ci *pgtype.ConnInfo, args []interface{}) ([][]byte, []int16, error) {
	values := make([][]byte, len(args))
	formats := make([]int16, len(args))

	for i, arg := range args {
		value, format, err := encodeArg(ci, arg)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "argument $%d", i+1)
		}
		values[i] = value
		formats[i] = format
	}

	return values, formats, nil
}

func encodeArg(ci *pgtype.ConnInfo, arg interface{}) ([]byte, int16, error) {
	switch v := arg.(type) {
	case nil:
		return nil, TextFormatCode, nil
	case []byte:
		if v == nil {
			return nil, BinaryFormatCode, nil
		}
		return v, BinaryFormatCode, nil
	case string:
		return []byte(v), TextFormatCode, nil
	case bool:
		return []byte(strconv.FormatBool(v)), TextFormatCode, nil
	case int:
		return []byte(strconv.FormatInt(int64(v), 10)), TextFormatCode, nil
	case int8:
		return []byte(strconv.FormatInt(int64(v), 10)), TextFormatCode, nil
	case int16:
		return []byte(strconv.FormatInt(int64(v), 10)), TextFormatCode, nil
	case int32:
		return []byte(strconv.FormatInt(int64(v), 10)), TextFormatCode, nil
	case int64:
		return []byte(strconv.FormatInt(v, 10)), TextFormatCode, nil
	case uint:
		return []byte(strconv.FormatUint(uint64(v), 10)), TextFormatCode, nil
	case uint8:
		return []byte(strconv.FormatUint(uint64(v), 10)), TextFormatCode, nil
	case uint16:
		return []byte(strconv.FormatUint(uint64(v), 10)), TextFormatCode, nil
	case uint32:
		return []byte(strconv.FormatUint(uint64(v), 10)), TextFormatCode, nil
	case uint64:
		return []byte(strconv.FormatUint(v, 10)), TextFormatCode, nil
	case float32:
		return encodeFloat(float64(v), 32)
	case float64:
		return encodeFloat(v, 64)
	case time.Time:
		ts := pgtype.Timestamp{Time: v.UTC(), Status: pgtype.Present}
		buf, err := ts.EncodeText(ci, nil)
		return buf, TextFormatCode, err
	case decimal.Decimal:
		return []byte(v.String()), TextFormatCode, nil
	case *apd.Decimal:
		if v == nil {
			return nil, TextFormatCode, nil
		}
		return []byte(v.String()), TextFormatCode, nil
	case uuid.UUID:
		return []byte(v.String()), TextFormatCode, nil
	case driver.Valuer:
		if rv := reflect.ValueOf(v); rv.Kind() == reflect.Ptr && rv.IsNil() {
			return nil, TextFormatCode, nil
		}
		dv, err := v.Value()
		if err != nil {
			return nil, TextFormatCode, err
		}
		return encodeArg(ci, dv)
	case fmt.Stringer:
		return []byte(v.String()), TextFormatCode, nil
	}

	if strippedArg, ok := stripNamedType(reflect.ValueOf(arg)); ok {
		return encodeArg(ci, strippedArg)
	}

	return nil, TextFormatCode, SerializationError(fmt.Sprintf("cannot encode %T", arg))
}

func encodeFloat(f float64, bitSize int) ([]byte, int16, error) {
	switch {
	case math.IsNaN(f):
		return []byte("NaN"), TextFormatCode, nil
	case math.IsInf(f, 1):
		return []byte("Infinity"), TextFormatCode, nil
	case math.IsInf(f, -1):
		return []byte("-Infinity"), TextFormatCode, nil
	}
	return []byte(strconv.FormatFloat(f, 'g', -1, bitSize)), TextFormatCode, nil
}

// stripNamedType converts a value of a named type such as `type Status int32` or a non-nil pointer into the
// underlying builtin value.
func stripNamedType(val reflect.Value) (interface{}, bool) {
	switch val.Kind() {
	case reflect.Ptr:
		if val.IsNil() {
			return nil, true
		}
		return val.Elem().Interface(), true
	case reflect.Int:
		return int(val.Int()), true
	case reflect.Int8:
		return int8(val.Int()), true
	case reflect.Int16:
		return int16(val.Int()), true
	case reflect.Int32:
		return int32(val.Int()), true
	case reflect.Int64:
		return val.Int(), true
	case reflect.Uint:
		return uint(val.Uint()), true
	case reflect.Uint8:
		return uint8(val.Uint()), true
	case reflect.Uint16:
		return uint16(val.Uint()), true
	case reflect.Uint32:
		return uint32(val.Uint()), true
	case reflect.Uint64:
		return val.Uint(), true
	case reflect.Float32:
		return float32(val.Float()), true
	case reflect.Float64:
		return val.Float(), true
	case reflect.Bool:
		return val.Bool(), true
	case reflect.String:
		return val.String(), true
	case reflect.Slice:
		if val.Type().Elem().Kind() == reflect.Uint8 {
			return val.Bytes(), true
		}
	}

	return nil, false
}

package fdbsql

import (
	"bytes"
	"context"
	"strconv"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgproto3/v2"
	"github.com/jackc/pgtype"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Type OIDs reported by the SQL Layer
const (
	BoolOID        = 16
	BlobOID        = 17
	BigintOID      = 20
	SmallintOID    = 21
	IntegerOID     = 23
	ClobOID        = 25
	FloatOID       = 700
	DoubleOID      = 701
	UnknownOID     = 705
	VarcharOID     = 1043
	DateOID        = 1082
	TimeOID        = 1083
	DatetimeOID    = 1114
	TimestamptzOID = 1184
	DecimalOID     = 1700
	GUIDOID        = 2950
)

type decodeFunc func(ci *pgtype.ConnInfo, src []byte) (interface{}, error)

type dataType struct {
	name   string
	decode decodeFunc
}

var unknownType = dataType{name: "unknown", decode: decodeString}

// dataTypes maps result column OIDs to SQL Layer type names and text decoders.
var dataTypes = map[uint32]dataType{
	BoolOID:        {name: "boolean", decode: decodeBool},
	BlobOID:        {name: "blob", decode: decodeBlob},
	BigintOID:      {name: "bigint", decode: decodeBigint},
	SmallintOID:    {name: "smallint", decode: decodeBigint},
	IntegerOID:     {name: "integer", decode: decodeBigint},
	ClobOID:        {name: "clob", decode: decodeString},
	FloatOID:       {name: "float", decode: decodeDouble},
	DoubleOID:      {name: "double", decode: decodeDouble},
	VarcharOID:     {name: "varchar", decode: decodeString},
	DateOID:        {name: "date", decode: decodeDate},
	TimeOID:        {name: "time", decode: decodeString},
	DatetimeOID:    {name: "datetime", decode: decodeDatetime},
	TimestamptzOID: {name: "timestamp", decode: decodeTimestamptz},
	DecimalOID:     {name: "decimal", decode: decodeDecimal},
	GUIDOID:        {name: "guid", decode: decodeGUID},
}

// lookupDataType returns the type of a result column. Zero scale DECIMAL columns are integers.
func (c *Conn) lookupDataType(ctx context.Context, fd pgproto3.FieldDescription) dataType {
	oid := fd.DataTypeOID
	if oid == DecimalOID && ((fd.TypeModifier-4)&0xffff) == 0 {
		oid = IntegerOID
	}

	dt, ok := dataTypes[oid]
	if !ok {
		if c.shouldLog(LogLevelWarn) {
			c.log(ctx, LogLevelWarn, "unknown field type", map[string]interface{}{"field": string(fd.Name), "oid": fd.DataTypeOID})
		}
		return unknownType
	}
	return dt
}

func decodeString(ci *pgtype.ConnInfo, src []byte) (interface{}, error) {
	return string(src), nil
}

func decodeBool(ci *pgtype.ConnInfo, src []byte) (interface{}, error) {
	var dst pgtype.Bool
	if err := dst.DecodeText(ci, src); err != nil {
		return nil, err
	}
	return dst.Bool, nil
}

// decodeBlob accepts both the hex (\x00ff) and the escape (\000\377) bytea text formats.
func decodeBlob(ci *pgtype.ConnInfo, src []byte) (interface{}, error) {
	if !bytes.HasPrefix(src, []byte(`\x`)) {
		return unescapeBytea(src)
	}

	var dst pgtype.Bytea
	if err := dst.DecodeText(ci, src); err != nil {
		return nil, err
	}
	return dst.Bytes, nil
}

func unescapeBytea(src []byte) ([]byte, error) {
	buf := make([]byte, 0, len(src))
	for i := 0; i < len(src); i++ {
		if src[i] != '\\' {
			buf = append(buf, src[i])
			continue
		}

		switch {
		case i+1 < len(src) && src[i+1] == '\\':
			buf = append(buf, '\\')
			i++
		case i+3 < len(src) && isOctal(src[i+1]) && isOctal(src[i+2]) && isOctal(src[i+3]) && src[i+1] <= '3':
			buf = append(buf, (src[i+1]-'0')<<6|(src[i+2]-'0')<<3|(src[i+3]-'0'))
			i += 3
		default:
			return nil, errors.Errorf("invalid escape sequence in bytea at offset %d", i)
		}
	}
	return buf, nil
}

func isOctal(b byte) bool {
	return b >= '0' && b <= '7'
}

func decodeBigint(ci *pgtype.ConnInfo, src []byte) (interface{}, error) {
	var dst pgtype.Int8
	if err := dst.DecodeText(ci, src); err != nil {
		// Integral DECIMAL values can exceed int64.
		return decodeDecimal(ci, src)
	}
	return dst.Int, nil
}

func decodeDouble(ci *pgtype.ConnInfo, src []byte) (interface{}, error) {
	return strconv.ParseFloat(string(src), 64)
}

func decodeDate(ci *pgtype.ConnInfo, src []byte) (interface{}, error) {
	var dst pgtype.Date
	if err := dst.DecodeText(ci, src); err != nil {
		return nil, err
	}
	if dst.InfinityModifier != pgtype.None {
		return dst.InfinityModifier.String(), nil
	}
	return dst.Time, nil
}

func decodeDatetime(ci *pgtype.ConnInfo, src []byte) (interface{}, error) {
	var dst pgtype.Timestamp
	if err := dst.DecodeText(ci, src); err != nil {
		return nil, err
	}
	if dst.InfinityModifier != pgtype.None {
		return dst.InfinityModifier.String(), nil
	}
	return dst.Time, nil
}

func decodeTimestamptz(ci *pgtype.ConnInfo, src []byte) (interface{}, error) {
	var dst pgtype.Timestamptz
	if err := dst.DecodeText(ci, src); err != nil {
		return nil, err
	}
	if dst.InfinityModifier != pgtype.None {
		return dst.InfinityModifier.String(), nil
	}
	return dst.Time, nil
}

func decodeDecimal(ci *pgtype.ConnInfo, src []byte) (interface{}, error) {
	return decimal.NewFromString(string(src))
}

func decodeGUID(ci *pgtype.ConnInfo, src []byte) (interface{}, error) {
	return uuid.FromString(string(src))
}

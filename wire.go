package fdbsql

import (
	"context"

	"github.com/jackc/pgconn"
)

// wireConn is the server connection a Conn drives. It is the boundary between the statement cache protocol and the
// wire protocol.
type wireConn interface {
	// Exec runs sql through the simple protocol and returns the last result.
	Exec(ctx context.Context, sql string) (*pgconn.Result, error)

	// ExecParams runs sql through the unnamed statement.
	ExecParams(ctx context.Context, sql string, values [][]byte, formats []int16) (*pgconn.Result, error)

	// Prepare registers sql on the server under name.
	Prepare(ctx context.Context, name, sql string) error

	// ExecPrepared binds values to the statement name and runs it.
	ExecPrepared(ctx context.Context, name string, values [][]byte, formats []int16) (*pgconn.Result, error)

	// Deallocate releases the statement name.
	Deallocate(ctx context.Context, name string) error

	// IsLive reports whether the server can still be reached.
	IsLive() bool

	ParameterStatus(key string) string
	PID() uint32
	TxStatus() byte
	Close(ctx context.Context) error
}

type pgWire struct {
	pgConn *pgconn.PgConn
}

func (w *pgWire) Exec(ctx context.Context, sql string) (*pgconn.Result, error) {
	results, err := w.pgConn.Exec(ctx, sql).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return &pgconn.Result{}, nil
	}
	return results[len(results)-1], nil
}

func (w *pgWire) ExecParams(ctx context.Context, sql string, values [][]byte, formats []int16) (*pgconn.Result, error) {
	result := w.pgConn.ExecParams(ctx, sql, values, nil, formats, nil).Read()
	return result, result.Err
}

func (w *pgWire) Prepare(ctx context.Context, name, sql string) error {
	_, err := w.pgConn.Prepare(ctx, name, sql, nil)
	return err
}

func (w *pgWire) ExecPrepared(ctx context.Context, name string, values [][]byte, formats []int16) (*pgconn.Result, error) {
	result := w.pgConn.ExecPrepared(ctx, name, values, formats, nil).Read()
	return result, result.Err
}

func (w *pgWire) Deallocate(ctx context.Context, name string) error {
	return w.pgConn.Exec(ctx, "DEALLOCATE "+name).Close()
}

func (w *pgWire) IsLive() bool {
	return !w.pgConn.IsClosed()
}

func (w *pgWire) ParameterStatus(key string) string {
	return w.pgConn.ParameterStatus(key)
}

func (w *pgWire) PID() uint32 {
	return w.pgConn.PID()
}

func (w *pgWire) TxStatus() byte {
	return w.pgConn.TxStatus()
}

func (w *pgWire) Close(ctx context.Context) error {
	return w.pgConn.Close(ctx)
}

package fdbsqlpool

import (
	"context"
	"time"

	"github.com/foundationdb/fdbsql"
	"github.com/jackc/pgconn"
	"github.com/jackc/puddle"
)

// Conn is an acquired *fdbsql.Conn from a Pool.
type Conn struct {
	res *puddle.Resource
	p   *Pool
}

// Release returns c to the pool it was acquired from. Once Release has been called, other methods must not be called.
// However, it is safe to call Release multiple times. Subsequent calls after the first will be ignored.
func (c *Conn) Release() {
	if c.res == nil {
		return
	}

	conn := c.Conn()
	res := c.res
	c.res = nil

	now := time.Now()
	if conn.IsClosed() || now.Sub(res.CreationTime()) > c.p.maxConnLifetime {
		res.Destroy()
		return
	}

	if conn.TxStatus() != 'I' {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := conn.Rollback(ctx)
			cancel()
			if err != nil || conn.IsClosed() {
				res.Destroy()
				return
			}
			c.p.release(res, conn)
		}()
		return
	}

	c.p.release(res, conn)
}

func (p *Pool) release(res *puddle.Resource, conn *fdbsql.Conn) {
	if p.afterRelease == nil || p.afterRelease(conn) {
		res.Release()
	} else {
		res.Destroy()
	}
}

func (c *Conn) Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error) {
	return c.Conn().Exec(ctx, sql, arguments...)
}

func (c *Conn) ExecQuery(ctx context.Context, sql string, arguments ...interface{}) (*fdbsql.Result, error) {
	return c.Conn().ExecQuery(ctx, sql, arguments...)
}

// Conn returns the underlying *fdbsql.Conn.
func (c *Conn) Conn() *fdbsql.Conn {
	return c.res.Value().(*fdbsql.Conn)
}

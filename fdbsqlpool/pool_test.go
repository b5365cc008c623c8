package fdbsqlpool_test

import (
	"context"
	"fmt"
	"net"
	"os"
	"testing"
	"time"

	"github.com/foundationdb/fdbsql"
	"github.com/foundationdb/fdbsql/fdbsqlpool"
	"github.com/foundationdb/fdbsql/log/zapadapter"
	"github.com/jackc/pgmock"
	"github.com/jackc/pgproto3/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// Conn.Release may finish its work in the background. There is no signal when it is done, so tests that depend on
// it must wait.
func waitForReleaseToComplete() {
	time.Sleep(5 * time.Millisecond)
}

func serveScript(t *testing.T, script *pgmock.Script) (string, <-chan error) {
	ln, err := net.Listen("tcp", "127.0.0.1:")
	require.NoError(t, err)

	serverErrChan := make(chan error, 1)
	go func() {
		defer close(serverErrChan)
		defer ln.Close()

		conn, err := ln.Accept()
		if err != nil {
			serverErrChan <- err
			return
		}
		defer conn.Close()

		err = conn.SetDeadline(time.Now().Add(5 * time.Second))
		if err != nil {
			serverErrChan <- err
			return
		}

		serverErrChan <- script.Run(pgproto3.NewBackend(pgproto3.NewChunkReader(conn), conn))
	}()

	host, port, _ := net.SplitHostPort(ln.Addr().String())
	return fmt.Sprintf("sslmode=disable host=%s port=%s user=app pool_max_conns=1", host, port), serverErrChan
}

func TestParseConfigExtractsPoolArguments(t *testing.T) {
	t.Parallel()

	config, err := fdbsqlpool.ParseConfig("host=localhost pool_max_conns=42 pool_max_conn_lifetime=30s pool_health_check_period=5s")
	require.NoError(t, err)
	assert.EqualValues(t, 42, config.MaxConns)
	assert.Equal(t, 30*time.Second, config.MaxConnLifetime)
	assert.Equal(t, 5*time.Second, config.HealthCheckPeriod)
	assert.NotContains(t, config.ConnConfig.Config.RuntimeParams, "pool_max_conns")
	assert.NotContains(t, config.ConnConfig.Config.RuntimeParams, "pool_max_conn_lifetime")
	assert.NotContains(t, config.ConnConfig.Config.RuntimeParams, "pool_health_check_period")
}

func TestParseConfigDefaults(t *testing.T) {
	t.Parallel()

	config, err := fdbsqlpool.ParseConfig("host=localhost user=app")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, config.MaxConns, int32(4))
	assert.Equal(t, time.Hour, config.MaxConnLifetime)
	assert.Equal(t, time.Minute, config.HealthCheckPeriod)
	assert.Equal(t, 1000, config.ConnConfig.StatementCacheCapacity)

	copied := config.Copy()
	copied.ConnConfig.StatementCacheCapacity = 3
	assert.Equal(t, 1000, config.ConnConfig.StatementCacheCapacity)
}

func TestParseConfigErrors(t *testing.T) {
	t.Parallel()

	for _, connString := range []string{
		"host=localhost pool_max_conns=0",
		"host=localhost pool_max_conns=x",
		"host=localhost pool_max_conn_lifetime=forever",
		"host=localhost pool_health_check_period=often",
		"host=localhost statement_cache_capacity=-5",
	} {
		_, err := fdbsqlpool.ParseConfig(connString)
		assert.Error(t, err, connString)
	}
}

func TestConnectConfigRequiresConfigFromParseConfig(t *testing.T) {
	t.Parallel()

	config := &fdbsqlpool.Config{}
	require.PanicsWithValue(t, "config must be created by ParseConfig", func() {
		fdbsqlpool.ConnectConfig(context.Background(), config)
	})
}

func TestPoolConnKeepsStatementCacheAcrossAcquires(t *testing.T) {
	t.Parallel()

	intField := []pgproto3.FieldDescription{{Name: []byte("n"), DataTypeOID: fdbsql.IntegerOID, DataTypeSize: 4, TypeModifier: -1}}
	execSteps := func(value string) []pgmock.Step {
		return []pgmock.Step{
			pgmock.ExpectAnyMessage(&pgproto3.Bind{}),
			pgmock.ExpectAnyMessage(&pgproto3.Describe{}),
			pgmock.ExpectAnyMessage(&pgproto3.Execute{}),
			pgmock.ExpectAnyMessage(&pgproto3.Sync{}),
			pgmock.SendMessage(&pgproto3.BindComplete{}),
			pgmock.SendMessage(&pgproto3.RowDescription{Fields: intField}),
			pgmock.SendMessage(&pgproto3.DataRow{Values: [][]byte{[]byte(value)}}),
			pgmock.SendMessage(&pgproto3.CommandComplete{CommandTag: []byte("SELECT 1")}),
			pgmock.SendMessage(&pgproto3.ReadyForQuery{TxStatus: 'I'}),
		}
	}

	script := &pgmock.Script{Steps: pgmock.AcceptUnauthenticatedConnRequestSteps()}
	script.Steps = append(script.Steps,
		pgmock.ExpectAnyMessage(&pgproto3.Parse{}),
		pgmock.ExpectAnyMessage(&pgproto3.Describe{}),
		pgmock.ExpectAnyMessage(&pgproto3.Sync{}),
		pgmock.SendMessage(&pgproto3.ParseComplete{}),
		pgmock.SendMessage(&pgproto3.ParameterDescription{ParameterOIDs: []uint32{fdbsql.IntegerOID}}),
		pgmock.SendMessage(&pgproto3.RowDescription{Fields: intField}),
		pgmock.SendMessage(&pgproto3.ReadyForQuery{TxStatus: 'I'}),
	)
	script.Steps = append(script.Steps, execSteps("1")...)
	script.Steps = append(script.Steps, execSteps("2")...)
	script.Steps = append(script.Steps,
		pgmock.ExpectMessage(&pgproto3.Query{String: "DEALLOCATE stmt_1"}),
		pgmock.SendMessage(&pgproto3.CommandComplete{CommandTag: []byte("DEALLOCATE")}),
		pgmock.SendMessage(&pgproto3.ReadyForQuery{TxStatus: 'I'}),
		pgmock.ExpectMessage(&pgproto3.Terminate{}),
	)

	connString, serverErrChan := serveScript(t, script)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := fdbsqlpool.Connect(ctx, connString)
	require.NoError(t, err)

	n, err := pool.SelectValue(ctx, "select $1::integer as n", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	waitForReleaseToComplete()

	c, err := pool.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Conn().StatementCache().Len())

	n, err = c.Conn().SelectValue(ctx, "select $1::integer as n", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	stat := pool.Stat()
	assert.EqualValues(t, 1, stat.AcquiredConns())
	assert.EqualValues(t, 1, stat.MaxConns())

	c.Release()
	c.Release()
	waitForReleaseToComplete()
	assert.EqualValues(t, 1, pool.Stat().IdleConns())

	pool.Close()
	require.NoError(t, <-serverErrChan)
}

func TestLivePoolAcquireAndRelease(t *testing.T) {
	connString := os.Getenv("FDBSQL_TEST_DATABASE")
	if connString == "" {
		t.Skip("Skipping due to missing FDBSQL_TEST_DATABASE")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	config, err := fdbsqlpool.ParseConfig(connString)
	require.NoError(t, err)
	config.ConnConfig.Logger = zapadapter.NewLogger(zaptest.NewLogger(t))
	config.ConnConfig.LogLevel = fdbsql.LogLevelDebug

	released := 0
	config.AfterRelease = func(*fdbsql.Conn) bool {
		released++
		return true
	}

	pool, err := fdbsqlpool.ConnectConfig(ctx, config)
	require.NoError(t, err)
	defer pool.Close()

	c, err := pool.Acquire(ctx)
	require.NoError(t, err)
	require.NoError(t, c.Conn().Begin(ctx))
	c.Release()
	waitForReleaseToComplete()
	assert.Equal(t, 1, released)

	c, err = pool.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, byte('I'), c.Conn().TxStatus())
	c.Release()

	_, err = pool.Exec(ctx, "select 1")
	require.NoError(t, err)
}

func TestLivePoolBeforeAcquireRejectsConn(t *testing.T) {
	connString := os.Getenv("FDBSQL_TEST_DATABASE")
	if connString == "" {
		t.Skip("Skipping due to missing FDBSQL_TEST_DATABASE")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	config, err := fdbsqlpool.ParseConfig(connString)
	require.NoError(t, err)
	config.ConnConfig.Logger = zapadapter.NewLogger(zaptest.NewLogger(t))
	config.ConnConfig.LogLevel = fdbsql.LogLevelDebug

	rejected := 0
	config.BeforeAcquire = func(ctx context.Context, c *fdbsql.Conn) bool {
		if rejected == 0 {
			rejected++
			return false
		}
		return true
	}

	pool, err := fdbsqlpool.ConnectConfig(ctx, config)
	require.NoError(t, err)
	defer pool.Close()

	c, err := pool.Acquire(ctx)
	require.NoError(t, err)
	c.Release()
	waitForReleaseToComplete()

	assert.Equal(t, 1, rejected)
	assert.GreaterOrEqual(t, pool.Stat().AcquireCount(), int64(2))
}

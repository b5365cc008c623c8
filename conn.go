package fdbsql

import (
	"context"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/foundationdb/fdbsql/stmtcache"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgproto3/v2"
	"github.com/jackc/pgtype"
	"github.com/pkg/errors"
)

// maxStaleRetries is how many times a statement reported stale is prepared again before the error is returned.
const maxStaleRetries = 1

// Conn is a FoundationDB SQL Layer connection handle. It is not safe for concurrent usage. Use a connection pool to
// manage access to multiple database connections from multiple goroutines.
type Conn struct {
	wire       wireConn
	config     *ConnConfig // config used when establishing this connection
	connInfo   *pgtype.ConnInfo
	statements *stmtcache.Cache

	logger   Logger
	logLevel LogLevel

	closed bool
}

// Result is the fully read and decoded response to a statement.
type Result struct {
	Fields      []pgproto3.FieldDescription
	Columns     []string
	ColumnTypes map[string]string // column name to SQL Layer type name
	Rows        [][]interface{}
	CommandTag  pgconn.CommandTag
}

// RowsAffected returns the number of rows affected by the statement.
func (r *Result) RowsAffected() int64 {
	return r.CommandTag.RowsAffected()
}

// Connect establishes a connection with a FoundationDB SQL Layer server with a connection string. See
// pgconn.Connect for details.
func Connect(ctx context.Context, connString string) (*Conn, error) {
	connConfig, err := ParseConfig(connString)
	if err != nil {
		return nil, err
	}
	return connect(ctx, connConfig)
}

// ConnectConfig establishes a connection with a FoundationDB SQL Layer server with a configuration struct.
// connConfig must have been created by ParseConfig.
func ConnectConfig(ctx context.Context, connConfig *ConnConfig) (*Conn, error) {
	// Copy so later mutations by the caller do not leak into this connection.
	connConfig = connConfig.Copy()

	return connect(ctx, connConfig)
}

func connect(ctx context.Context, config *ConnConfig) (*Conn, error) {
	// Default values are set in ParseConfig. Enforce initial creation by ParseConfig rather than setting defaults from
	// zero values.
	if !config.createdByParseConfig {
		panic("config must be created by ParseConfig")
	}

	pgConn, err := pgconn.ConnectConfig(ctx, &config.Config)
	if err != nil {
		if config.Logger != nil && config.LogLevel >= LogLevelError {
			config.Logger.Log(ctx, LogLevelError, "connect failed", map[string]interface{}{"err": err})
		}
		return nil, err
	}

	return newConn(&pgWire{pgConn: pgConn}, config), nil
}

func newConn(wire wireConn, config *ConnConfig) *Conn {
	c := &Conn{
		wire:     wire,
		config:   config,
		connInfo: pgtype.NewConnInfo(),
		logger:   config.Logger,
		logLevel: config.LogLevel,
	}

	if config.PreparedStatements && config.StatementCacheCapacity > 0 {
		c.statements = stmtcache.New(cacheConn{c: c}, config.StatementCacheCapacity)
	}

	return c
}

// Close closes a connection. Cached prepared statements are deallocated first. It is safe to call Close on an already
// closed connection.
func (c *Conn) Close(ctx context.Context) error {
	if c.closed {
		return nil
	}
	c.closed = true

	if c.statements != nil {
		c.statements.Clear(ctx)
	}

	err := c.wire.Close(ctx)
	if c.shouldLog(LogLevelInfo) {
		c.log(ctx, LogLevelInfo, "closed connection", nil)
	}
	return err
}

// IsClosed reports if the connection has been closed.
func (c *Conn) IsClosed() bool {
	return c.closed || !c.wire.IsLive()
}

// PID returns the backend PID.
func (c *Conn) PID() uint32 {
	return c.wire.PID()
}

// TxStatus returns the current TxStatus as reported by the server in the ReadyForQuery message.
func (c *Conn) TxStatus() byte {
	return c.wire.TxStatus()
}

// Config returns a copy of config that was used to establish this connection.
func (c *Conn) Config() *ConnConfig { return c.config.Copy() }

// ConnInfo returns the type registry used to decode results.
func (c *Conn) ConnInfo() *pgtype.ConnInfo { return c.connInfo }

// StatementCache returns the prepared statement cache. It is nil when prepared statements are disabled.
func (c *Conn) StatementCache() *stmtcache.Cache { return c.statements }

// ClearStatementCache deallocates every cached prepared statement.
func (c *Conn) ClearStatementCache(ctx context.Context) {
	if c.statements != nil {
		c.statements.Clear(ctx)
	}
}

// ServerVersion returns the version the server reports in the server_version parameter.
func (c *Conn) ServerVersion() (*semver.Version, error) {
	s := strings.TrimSpace(c.wire.ParameterStatus("server_version"))
	if s == "" {
		return nil, errors.New("server did not report server_version")
	}

	v, err := semver.NewVersion(strings.Fields(s)[0])
	if err != nil {
		return nil, errors.Wrapf(err, "cannot parse server_version %q", s)
	}
	return v, nil
}

// Exec executes sql. sql can be either a prepared statement name or an SQL string. arguments should be referenced
// positionally from the sql string as $1, $2, etc. Statements with arguments go through the statement cache.
func (c *Conn) Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error) {
	result, err := c.run(ctx, "Exec", sql, arguments)
	if err != nil {
		return nil, err
	}
	return result.CommandTag, nil
}

// ExecQuery executes sql with arguments and returns the decoded result.
func (c *Conn) ExecQuery(ctx context.Context, sql string, arguments ...interface{}) (*Result, error) {
	return c.run(ctx, "Query", sql, arguments)
}

// ExecUpdate executes an UPDATE and returns the number of rows affected.
func (c *Conn) ExecUpdate(ctx context.Context, sql string, arguments ...interface{}) (int64, error) {
	commandTag, err := c.Exec(ctx, sql, arguments...)
	if err != nil {
		return 0, err
	}
	return commandTag.RowsAffected(), nil
}

// ExecDelete executes a DELETE and returns the number of rows affected.
func (c *Conn) ExecDelete(ctx context.Context, sql string, arguments ...interface{}) (int64, error) {
	return c.ExecUpdate(ctx, sql, arguments...)
}

// SelectRows returns the rows of sql as slices of column values.
func (c *Conn) SelectRows(ctx context.Context, sql string, arguments ...interface{}) ([][]interface{}, error) {
	result, err := c.ExecQuery(ctx, sql, arguments...)
	if err != nil {
		return nil, err
	}
	return result.Rows, nil
}

// SelectValue returns the first column of the first row of sql, or nil when there are no rows.
func (c *Conn) SelectValue(ctx context.Context, sql string, arguments ...interface{}) (interface{}, error) {
	rows, err := c.SelectRows(ctx, sql, arguments...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, nil
	}
	return rows[0][0], nil
}

// Insert executes an INSERT. When pk is not empty the statement returns the value generated for the pk column.
func (c *Conn) Insert(ctx context.Context, sql string, pk string, arguments ...interface{}) (interface{}, error) {
	if pk == "" {
		_, err := c.Exec(ctx, sql, arguments...)
		return nil, err
	}
	return c.SelectValue(ctx, sql+" RETURNING "+Identifier{pk}.Sanitize(), arguments...)
}

// Explain returns the plan of sql.
func (c *Conn) Explain(ctx context.Context, sql string, arguments ...interface{}) (*Result, error) {
	return c.ExecQuery(ctx, "EXPLAIN "+sql, arguments...)
}

// Begin starts a transaction.
func (c *Conn) Begin(ctx context.Context) error {
	_, err := c.Exec(ctx, "BEGIN")
	return err
}

// Commit commits the current transaction.
func (c *Conn) Commit(ctx context.Context) error {
	_, err := c.Exec(ctx, "COMMIT")
	return err
}

// Rollback rolls back the current transaction.
func (c *Conn) Rollback(ctx context.Context) error {
	_, err := c.Exec(ctx, "ROLLBACK")
	return err
}

func (c *Conn) run(ctx context.Context, msg string, sql string, arguments []interface{}) (*Result, error) {
	if c.closed {
		return nil, ErrConnClosed
	}

	startTime := time.Now()

	result, err := c.exec(ctx, sql, arguments)
	if err == nil {
		result, err = c.decodeResult(ctx, result)
	}
	if err != nil {
		if c.shouldLog(LogLevelError) {
			c.log(ctx, LogLevelError, msg, map[string]interface{}{"sql": sql, "args": logQueryArgs(arguments), "err": err})
		}
		return nil, err
	}

	if c.shouldLog(LogLevelInfo) {
		endTime := time.Now()
		c.log(ctx, LogLevelInfo, msg, map[string]interface{}{
			"sql":        sql,
			"args":       logQueryArgs(arguments),
			"time":       endTime.Sub(startTime),
			"rowCount":   len(result.Rows),
			"commandTag": string(result.CommandTag),
		})
	}

	return result, nil
}

// exec runs sql and returns the raw server result wrapped in a Result with undecoded rows.
func (c *Conn) exec(ctx context.Context, sql string, arguments []interface{}) (*Result, error) {
	var res *pgconn.Result
	var err error

	if len(arguments) == 0 {
		res, err = c.wire.Exec(ctx, sql)
		if err != nil {
			return nil, translateError(err, sql)
		}
		return &Result{Fields: res.FieldDescriptions, CommandTag: res.CommandTag, Rows: rawRows(res)}, nil
	}

	values, formats, err := encodeArgs(c.connInfo, arguments)
	if err != nil {
		return nil, err
	}

	if c.statements == nil {
		res, err = c.wire.ExecParams(ctx, sql, values, formats)
		if err != nil {
			return nil, translateError(err, sql)
		}
	} else {
		res, err = c.execCache(ctx, sql, values, formats)
		if err != nil {
			return nil, err
		}
	}

	return &Result{Fields: res.FieldDescriptions, CommandTag: res.CommandTag, Rows: rawRows(res)}, nil
}

// preparedResult is the outcome of executing a cached statement. stale is set when the server reported that the
// statement no longer matches the schema it was prepared against.
type preparedResult struct {
	result *pgconn.Result
	stale  bool
	err    error
}

func (c *Conn) execPrepared(ctx context.Context, name string, values [][]byte, formats []int16) preparedResult {
	res, err := c.wire.ExecPrepared(ctx, name, values, formats)
	if err != nil {
		return preparedResult{stale: isStaleStatement(err), err: err}
	}
	return preparedResult{result: res}
}

// execCache prepares sql unless a statement for it is cached and executes that statement. A stale statement is
// dropped from the cache and prepared again at most maxStaleRetries times.
func (c *Conn) execCache(ctx context.Context, sql string, values [][]byte, formats []int16) (*pgconn.Result, error) {
	key := c.sqlCacheKey(sql)

	for attempt := 0; ; attempt++ {
		name, err := c.prepareStatement(ctx, key, sql)
		if err != nil {
			return nil, err
		}

		pr := c.execPrepared(ctx, name, values, formats)
		if pr.err == nil {
			return pr.result, nil
		}
		if !pr.stale || attempt >= maxStaleRetries {
			return nil, translateError(pr.err, sql)
		}

		c.statements.Delete(ctx, key)
		if c.shouldLog(LogLevelDebug) {
			c.log(ctx, LogLevelDebug, "retrying stale prepared statement", map[string]interface{}{"sql": sql, "name": name})
		}
	}
}

// prepareStatement returns the name of the cached statement for key, preparing sql on the server on a miss.
func (c *Conn) prepareStatement(ctx context.Context, key, sql string) (string, error) {
	if name, ok := c.statements.Lookup(key); ok {
		return name, nil
	}

	name := c.statements.NextHandleName()
	if err := c.wire.Prepare(ctx, name, sql); err != nil {
		return "", &PrepareError{SQL: sql, Err: err}
	}
	c.statements.Insert(ctx, key, name)

	return name, nil
}

func (c *Conn) sqlCacheKey(sql string) string {
	return c.config.StatementCachePrefix + "-" + sql
}

func (c *Conn) decodeResult(ctx context.Context, result *Result) (*Result, error) {
	types := make([]dataType, len(result.Fields))
	result.Columns = make([]string, len(result.Fields))
	result.ColumnTypes = make(map[string]string, len(result.Fields))
	for i, fd := range result.Fields {
		types[i] = c.lookupDataType(ctx, fd)
		result.Columns[i] = string(fd.Name)
		result.ColumnTypes[result.Columns[i]] = types[i].name
	}

	for _, row := range result.Rows {
		for i, v := range row {
			src, ok := v.([]byte)
			if !ok || src == nil {
				row[i] = nil
				continue
			}
			value, err := types[i].decode(c.connInfo, src)
			if err != nil {
				return nil, errors.Wrapf(err, "cannot decode column %q", result.Columns[i])
			}
			row[i] = value
		}
	}

	return result, nil
}

func rawRows(res *pgconn.Result) [][]interface{} {
	rows := make([][]interface{}, len(res.Rows))
	for i, row := range res.Rows {
		values := make([]interface{}, len(row))
		for j, v := range row {
			if v != nil {
				values[j] = v
			}
		}
		rows[i] = values
	}
	return rows
}

func (c *Conn) shouldLog(lvl LogLevel) bool {
	return c.logger != nil && c.logLevel >= lvl
}

func (c *Conn) log(ctx context.Context, lvl LogLevel, msg string, data map[string]interface{}) {
	if data == nil {
		data = map[string]interface{}{}
	}
	if pid := c.wire.PID(); pid != 0 {
		data["pid"] = pid
	}

	c.logger.Log(ctx, lvl, msg, data)
}

// cacheConn lets the statement cache deallocate through the connection.
type cacheConn struct {
	c *Conn
}

func (cc cacheConn) Deallocate(ctx context.Context, name string) error {
	err := cc.c.wire.Deallocate(ctx, name)
	if cc.c.shouldLog(LogLevelDebug) {
		data := map[string]interface{}{"name": name}
		if err != nil {
			data["err"] = err
		}
		cc.c.log(ctx, LogLevelDebug, "deallocate", data)
	}
	return err
}

func (cc cacheConn) IsLive() bool {
	return cc.c.wire.IsLive()
}

// Package fdbsql is a client for the FoundationDB SQL Layer.
/*
The SQL Layer speaks the PostgreSQL wire protocol. fdbsql connects through
github.com/jackc/pgconn and adds what the SQL Layer needs on top of it: a per
connection cache of server side prepared statements, decoding of result values
by type OID, and translation of server errors.

Establishing a Connection

The primary way of establishing a connection is with Connect.

    conn, err := fdbsql.Connect(context.Background(), os.Getenv("DATABASE_URL"))

The database connection string can be in URL or DSN format. Both the standard
PostgreSQL environment variables and the options below are supported. See
ParseConfig for details.

    statement_cache_capacity=1000 prepared_statements=true statement_cache_prefix=test

Prepared Statement Cache

Statements executed with arguments are prepared once per connection under a
generated name (stmt_1, stmt_2, ...) and reused for identical SQL. The cache is
bounded; when it is full the oldest statement is deallocated on the server.

When the schema changes underneath a prepared plan the server reports the
statement as stale (SQLSTATE 0A50A). The statement is dropped from the cache,
prepared again, and the call is retried once. A second stale report is
returned as an error matching ErrStaleStatement.

Cache state belongs to the process that created it. A forked child sees an
empty cache and never deallocates statements of its parent.

Arguments

[]byte arguments are sent in binary format. All other arguments are sent as
text, including time.Time, decimal.Decimal, *apd.Decimal and uuid.UUID.

Logging

fdbsql defines a simple logger interface. Connections optionally accept a
logger that satisfies this interface. Set LogLevel to control logging
verbosity. Adapters for common logging packages are provided in the log
directory.
*/
package fdbsql

package fdbsql

import (
	"strconv"

	"github.com/jackc/pgconn"
	"github.com/pkg/errors"
)

const defaultStatementCacheCapacity = 1000

// ConnConfig contains all the options used to establish a connection. It must be created by ParseConfig and
// then it can be modified. A manually initialized ConnConfig will cause ConnectConfig to panic.
type ConnConfig struct {
	pgconn.Config
	Logger   Logger
	LogLevel LogLevel

	// StatementCacheCapacity is the maximum number of prepared statements kept per connection. 0 disables the
	// statement cache.
	StatementCacheCapacity int

	// PreparedStatements enables the prepared statement path for queries with arguments. When false, queries with
	// arguments use the unnamed statement and nothing is cached.
	PreparedStatements bool

	// StatementCachePrefix namespaces cache keys. It defaults to the connection user, which is also the default
	// schema of the SQL Layer, so that identical SQL resolved against different schemas is not shared.
	StatementCachePrefix string

	createdByParseConfig bool // Used to enforce created by ParseConfig rule.
	connString           string
}

// Copy returns a deep copy of the config that is safe to use and modify.
// The only exception is the tls.Config:
// according to the tls.Config docs it must not be modified after creation.
func (cc *ConnConfig) Copy() *ConnConfig {
	newConfig := new(ConnConfig)
	*newConfig = *cc
	newConfig.Config = *newConfig.Config.Copy()
	return newConfig
}

// ConnString returns the connection string as parsed by fdbsql.ParseConfig into fdbsql.ConnConfig.
func (cc *ConnConfig) ConnString() string { return cc.connString }

// ParseConfig creates a ConnConfig from a connection string. ParseConfig handles all options that pgconn.ParseConfig
// does. In addition, it accepts the following options:
//
//	statement_cache_capacity
//		The maximum size of the prepared statement cache. Set to 0 to disable caching. Default: 1000.
//
//	prepared_statements
//		Set to false to run every query through the unnamed statement. Default: true.
//
//	statement_cache_prefix
//		Namespace for statement cache keys. Default: the connection user.
func ParseConfig(connString string) (*ConnConfig, error) {
	config, err := pgconn.ParseConfig(connString)
	if err != nil {
		return nil, err
	}

	statementCacheCapacity := defaultStatementCacheCapacity
	if s, ok := config.RuntimeParams["statement_cache_capacity"]; ok {
		delete(config.RuntimeParams, "statement_cache_capacity")
		n, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return nil, errors.Wrap(err, "cannot parse statement_cache_capacity")
		}
		if n < 0 {
			return nil, errors.Errorf("statement_cache_capacity must not be negative: %d", n)
		}
		statementCacheCapacity = int(n)
	}

	preparedStatements := true
	if s, ok := config.RuntimeParams["prepared_statements"]; ok {
		delete(config.RuntimeParams, "prepared_statements")
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, errors.Wrap(err, "cannot parse prepared_statements")
		}
		preparedStatements = b
	}

	statementCachePrefix := config.User
	if s, ok := config.RuntimeParams["statement_cache_prefix"]; ok {
		delete(config.RuntimeParams, "statement_cache_prefix")
		statementCachePrefix = s
	}

	connConfig := &ConnConfig{
		Config:                 *config,
		LogLevel:               LogLevelInfo,
		StatementCacheCapacity: statementCacheCapacity,
		PreparedStatements:     preparedStatements,
		StatementCachePrefix:   statementCachePrefix,
		createdByParseConfig:   true,
		connString:             connString,
	}

	return connConfig, nil
}

package fdbsql

import (
	"encoding/hex"
	"strings"
)

// Identifier a SQL identifier or name. Identifiers can be composed of
// multiple parts such as ["schema", "table"] or ["table", "column"].
type Identifier []string

// Sanitize returns a sanitized string safe for SQL interpolation.
func (ident Identifier) Sanitize() string {
	parts := make([]string, len(ident))
	for i := range ident {
		s := strings.ReplaceAll(ident[i], string([]byte{0}), "")
		parts[i] = `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	}
	return strings.Join(parts, ".")
}

// QuoteTableName quotes an optionally schema qualified table name. "test.t" becomes "test"."t".
func QuoteTableName(name string) string {
	return Identifier(strings.SplitN(name, ".", 2)).Sanitize()
}

// QuoteString returns s as a SQL string literal. The SQL Layer does not treat backslash as an escape character, so
// only single quotes are doubled.
func QuoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// QuoteBinary returns b as a hex blob literal.
func QuoteBinary(b []byte) string {
	return "x'" + hex.EncodeToString(b) + "'"
}

// Package validate enforces the table/column identifier rules of §4.3:
// a whitelist pattern and a small reserved-name set. Grounded on the
// teacher's storage_engine/schema name-validation helper, generalized
// to cover both table and column names with one shared pattern.
package validate

import (
	"regexp"

	"sawitdb/dberr"
)

var namePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,31}$`)

var reserved = map[string]bool{
	"_indexes": true,
	"_system":  true,
	"_schema":  true,
	"null":     true,
	"true":     true,
	"false":    true,
}

// TableName rejects names that don't match the identifier whitelist or
// that collide with a reserved system name. The catalog does not call it
// for internal ("_"-prefixed) names and applies no other check to them.
func TableName(name string) error {
	if !namePattern.MatchString(name) {
		return dberr.ErrNameInvalid
	}
	if reserved[name] {
		return dberr.ErrNameTaken
	}
	return nil
}

// ColumnName applies the same identifier whitelist as TableName, without
// the reserved-name check (column names don't collide with system tables).
func ColumnName(name string) error {
	if !namePattern.MatchString(name) {
		return dberr.ErrNameInvalid
	}
	return nil
}

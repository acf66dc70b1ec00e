package sqlite

import (
	"database/sql/driver"
	"fmt"

	"golang.org/x/text/cases"
	sqlitedrv "modernc.org/sqlite"
)

// SQLite's LOWER() and LIKE only fold ASCII, so "Домашняя" never matches
// "дом". Searches instead compare fold(column) against a pattern folded the
// same way in Go, which keeps both sides on identical Unicode rules.
func init() {
	sqlitedrv.MustRegisterDeterministicScalarFunction("fold", 1, foldFunc)
}

func foldFunc(_ *sqlitedrv.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case nil:
		return nil, nil
	case string:
		return fold(v), nil
	case []byte:
		return fold(string(v)), nil
	default:
		return nil, fmt.Errorf("fold: unsupported argument type %T", v)
	}
}

// fold applies Unicode case folding. A Caser keeps state between calls, so
// each call gets its own.
func fold(s string) string {
	return cases.Fold().String(s)
}

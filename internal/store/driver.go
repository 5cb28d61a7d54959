package store

import (
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	"github.com/go-sql-driver/mysql"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/roach88/storekit/internal/backend"
	"github.com/roach88/storekit/internal/errs"
)

// sqliteDriver is the database/sql name of the SQLite driver with the
// connection hook installed.
const sqliteDriver = "sqlite3_storekit"

var sqlitePragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA busy_timeout = 5000",
	"PRAGMA foreign_keys = ON",
}

// patterns caches compiled REGEXP patterns across connections.
var patterns, _ = lru.New[string, *regexp.Regexp](256)

func init() {
	sql.Register(sqliteDriver, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			for _, p := range sqlitePragmas {
				if _, err := conn.Exec(p, nil); err != nil {
					return fmt.Errorf("failed to execute %q: %w", p, err)
				}
			}
			return conn.RegisterFunc("regexp", regexpMatch, true)
		},
	})
}

// regexpMatch backs "value REGEXP pattern". NULL never matches.
func regexpMatch(pattern string, value any) (bool, error) {
	var s string
	switch v := value.(type) {
	case nil:
		return false, nil
	case []byte:
		if v == nil {
			return false, nil
		}
		s = string(v)
	case string:
		s = v
	default:
		s = fmt.Sprint(v)
	}

	re, ok := patterns.Get(pattern)
	if !ok {
		var err error
		re, err = regexp.Compile(pattern)
		if err != nil {
			return false, err
		}
		patterns.Add(pattern, re)
	}
	return re.MatchString(s), nil
}

// driverName maps a configured driver to its database/sql name.
func driverName(name string) (string, error) {
	switch name {
	case "sqlite", "sqlite3":
		return sqliteDriver, nil
	case "postgres", "postgresql":
		return "postgres", nil
	case "mysql":
		return "mysql", nil
	}
	return "", fmt.Errorf("unsupported SQL driver %q", name)
}

const (
	pqUniqueViolation    = "23505"
	mysqlDuplicateEntry  = 1062
	mysqlDuplicateKeyOld = 1586
)

// mapError normalizes driver errors: no rows becomes backend.ErrNoRecord,
// unique violations become CONFLICT, everything else BACKEND.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return backend.ErrNoRecord
	}
	var e *errs.Error
	if errors.As(err, &e) {
		return err
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintPrimaryKey, sqlite3.ErrConstraintUnique:
			return errs.Conflict(err)
		}
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
		return errs.Conflict(err)
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlDuplicateEntry, mysqlDuplicateKeyOld:
			return errs.Conflict(err)
		}
	}

	return errs.Backend(err)
}

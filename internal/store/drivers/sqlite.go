// Package drivers registers the database/sql drivers the store can open.
//
// sqlite (modernc, pure Go) and pgx are always linked. DuckDB needs CGO and
// is linked only with -tags duckdb.
package drivers

import (
	_ "modernc.org/sqlite"
)

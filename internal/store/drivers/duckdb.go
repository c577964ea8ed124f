//go:build cgo && duckdb

// Build with: CGO_ENABLED=1 go build -tags duckdb

package drivers

import (
	_ "github.com/marcboeker/go-duckdb"
)

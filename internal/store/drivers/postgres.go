package drivers

import (
	// Registers the "pgx" driver name.
	_ "github.com/jackc/pgx/v5/stdlib"
)

package assets

import "embed"

// Migrations holds the SQL schema applied at startup.
//
//go:embed migrations/*.sql
var Migrations embed.FS

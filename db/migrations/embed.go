package migrations

import "embed"

// UpFiles embeds all upward migrations, one directory per SQL dialect.
//
//go:embed postgres/*.up.sql sqlite/*.up.sql
var UpFiles embed.FS

package appfs

import "embed"

// FS holds the SQL migrations and e-mail templates shipped with every binary.
//
//go:embed migrations/*.sql assets/templates/email/*
var FS embed.FS

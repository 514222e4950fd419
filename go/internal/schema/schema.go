// Package schema carries the Postgres DDL applied by the migrate command.
package schema

import _ "embed"

//go:embed schema.sql
var SQL string

// SettingsChannel is the NOTIFY channel fired whenever a rooms row changes.
const SettingsChannel = "room_settings_changed"

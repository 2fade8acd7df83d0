// Package migrations embeds the SQL schema of each service. cmd/api applies
// clinic/, cmd/patient-service applies patient/.
package migrations

import "embed"

//go:embed clinic/*.sql patient/*.sql
var FS embed.FS

const (
	Clinic  = "clinic"
	Patient = "patient"
)

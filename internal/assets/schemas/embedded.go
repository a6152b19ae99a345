// Package schemasassets provides embedded data tables and JSON schemas for
// standalone binary behavior.
//
// Assets are embedded at compile time so the bridge works correctly
// regardless of the working directory or installation location.
package schemasassets

import _ "embed"

// JobSchemasYAML is the embedded job-schema data table.
//
// It is the single source for the job_schemas resource and for the
// dispatcher's shortcut-operation bounds, so the two cannot drift.
//
//go:embed job-schemas.yaml
var JobSchemasYAML []byte

// Per-tool JSON Schemas. Each is validated against tools/call arguments at
// the transport boundary and served verbatim in tools/list, so the schema a
// client sees is exactly the one the bridge enforces.
var (
	//go:embed tool-start-job.schema.json
	StartJobToolSchema []byte

	//go:embed tool-stop-job.schema.json
	StopJobToolSchema []byte

	//go:embed tool-update-job-settings.schema.json
	UpdateJobSettingsToolSchema []byte

	//go:embed tool-set-led-intensity.schema.json
	SetLEDIntensityToolSchema []byte

	//go:embed tool-set-stirring-speed.schema.json
	SetStirringSpeedToolSchema []byte
)

// Package schemasassets provides embedded JSON schemas for standalone binary behavior.
//
// Schemas are embedded at compile time so event validation works in the
// Lambda runtime and installed binaries without schema files on disk.
package schemasassets

import _ "embed"

// SNSEnvelopeSchema is the embedded schema for SNS-wrapped storage
// notifications.
//
//go:embed sns-envelope.schema.json
var SNSEnvelopeSchema []byte

// BatchJobStateChangeSchema is the embedded schema for EventBridge Batch
// "Job State Change" events.
//
//go:embed batch-job-state-change.schema.json
var BatchJobStateChangeSchema []byte

// StageTableSchema is the embedded schema for the stage table emitted by
// `genoroute stages --format json`.
//
//go:embed stage-table.schema.json
var StageTableSchema []byte

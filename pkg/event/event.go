// Package event decodes the notifications genoroute reacts to: SNS-wrapped
// object-created notifications and Batch job state-change events.
//
// Every decoder validates the raw payload against an embedded JSON schema
// before it is trusted.
package event

import "errors"

var (
	// ErrUnsupportedEventSource indicates an envelope from a source genoroute
	// does not handle.
	ErrUnsupportedEventSource = errors.New("unsupported event source")

	// ErrBatchSize indicates an envelope carrying zero or more than one record.
	ErrBatchSize = errors.New("envelope must carry exactly one record")

	// ErrMalformedEvent indicates a payload that is not valid JSON or does not
	// have the expected shape.
	ErrMalformedEvent = errors.New("malformed event")
)

// Event sources.
const (
	SourceSNS   = "aws:sns"
	SourceBatch = "aws.batch"
)

package event

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	schemasassets "github.com/3leaps/genoroute/internal/assets/schemas"
	"github.com/fulmenhq/gofulmen/schema"
)

// ErrSchemaNotFound indicates an embedded schema is missing.
var ErrSchemaNotFound = errors.New("event schema not found")

// ValidationError is a single schema violation.
type ValidationError struct {
	// Path is the JSON pointer to the offending field (e.g. "/detail/jobId").
	Path string

	Message string
}

// Error implements error interface.
func (e ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationErrors collects every violation found in one payload.
//
// It unwraps to ErrMalformedEvent.
type ValidationErrors []ValidationError

// Error implements error interface.
func (e ValidationErrors) Error() string {
	switch len(e) {
	case 0:
		return "event validation failed"
	case 1:
		return e[0].Error()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "event validation failed with %d errors:", len(e))
	for _, err := range e {
		b.WriteString("\n  - ")
		b.WriteString(err.Error())
	}
	return b.String()
}

// Unwrap returns ErrMalformedEvent.
func (e ValidationErrors) Unwrap() error {
	return ErrMalformedEvent
}

// embeddedValidator compiles an embedded schema once on first use.
type embeddedValidator struct {
	name string
	src  []byte

	once sync.Once
	v    *schema.Validator
	err  error
}

var (
	snsValidator   = &embeddedValidator{name: "sns-envelope", src: schemasassets.SNSEnvelopeSchema}
	batchValidator = &embeddedValidator{name: "batch-job-state-change", src: schemasassets.BatchJobStateChangeSchema}
)

func (ev *embeddedValidator) get() (*schema.Validator, error) {
	ev.once.Do(func() {
		if len(ev.src) == 0 {
			ev.err = fmt.Errorf("%w: embedded %s schema is empty", ErrSchemaNotFound, ev.name)
			return
		}
		ev.v, ev.err = schema.NewValidator(ev.src)
		if ev.err != nil {
			ev.err = fmt.Errorf("failed to compile %s schema: %w", ev.name, ev.err)
		}
	})
	return ev.v, ev.err
}

func (ev *embeddedValidator) validate(data []byte) error {
	v, err := ev.get()
	if err != nil {
		return err
	}

	diags, err := v.ValidateJSON(data)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedEvent, ev.name, err)
	}

	var errs ValidationErrors
	for _, d := range diags {
		if d.Severity == schema.SeverityError {
			errs = append(errs, ValidationError{Path: d.Pointer, Message: d.Message})
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// ValidateSNSEnvelope checks raw against the SNS envelope schema.
func ValidateSNSEnvelope(raw []byte) error {
	return snsValidator.validate(raw)
}

// ValidateJobStateChange checks raw against the Batch state-change schema.
func ValidateJobStateChange(raw []byte) error {
	return batchValidator.validate(raw)
}

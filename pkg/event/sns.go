package event

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-lambda-go/events"

	"github.com/3leaps/genoroute/pkg/artifact"
)

// snsEnvelope mirrors the SNS-to-Lambda envelope. Message is kept raw
// because test events embed the notification as an object instead of a
// JSON string.
type snsEnvelope struct {
	Records []snsRecord `json:"Records"`
}

type snsRecord struct {
	EventSource string `json:"EventSource"`
	Sns         struct {
		MessageID string          `json:"MessageId"`
		TopicArn  string          `json:"TopicArn"`
		Message   json.RawMessage `json:"Message"`
	} `json:"Sns"`
}

// Notification is one decoded object-created notification.
type Notification struct {
	artifact.Location

	// EventName is the storage event type (e.g. "ObjectCreated:Put").
	EventName string

	// MessageID is the SNS message id, when present.
	MessageID string
}

// UnwrapS3 decodes an SNS-wrapped object notification and returns its
// single bucket/key.
//
// The key is returned exactly as delivered; it is not URL-decoded.
func UnwrapS3(raw []byte) (*Notification, error) {
	var env snsEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: sns envelope: %v", ErrMalformedEvent, err)
	}
	if n := len(env.Records); n != 1 {
		return nil, fmt.Errorf("%w: sns envelope has %d records", ErrBatchSize, n)
	}
	rec := env.Records[0]
	if rec.EventSource != SourceSNS {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEventSource, rec.EventSource)
	}
	if err := ValidateSNSEnvelope(raw); err != nil {
		return nil, err
	}

	inner, err := messageBody(rec.Sns.Message)
	if err != nil {
		return nil, err
	}

	var s3evt events.S3Event
	if err := json.Unmarshal(inner, &s3evt); err != nil {
		return nil, fmt.Errorf("%w: s3 notification: %v", ErrMalformedEvent, err)
	}
	if n := len(s3evt.Records); n != 1 {
		return nil, fmt.Errorf("%w: s3 notification has %d records", ErrBatchSize, n)
	}

	s3rec := s3evt.Records[0]
	bucket := s3rec.S3.Bucket.Name
	key := s3rec.S3.Object.Key
	if bucket == "" || key == "" {
		return nil, fmt.Errorf("%w: s3 notification missing bucket or key", ErrMalformedEvent)
	}

	return &Notification{
		Location:  artifact.Location{Bucket: bucket, Key: artifact.Key(key)},
		EventName: s3rec.EventName,
		MessageID: rec.Sns.MessageID,
	}, nil
}

// messageBody returns the notification JSON carried in an SNS Message,
// which is either a JSON string holding the document or the document itself.
func messageBody(msg json.RawMessage) ([]byte, error) {
	trimmed := bytes.TrimSpace(msg)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty sns message", ErrMalformedEvent)
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, fmt.Errorf("%w: sns message: %v", ErrMalformedEvent, err)
		}
		return []byte(s), nil
	case '{':
		return trimmed, nil
	default:
		return nil, fmt.Errorf("%w: sns message must be a string or object", ErrMalformedEvent)
	}
}

// WrapS3 builds an SNS envelope around a single object-created notification.
// The Message is encoded as a JSON string, as SNS delivers it.
func WrapS3(bucket, key string) ([]byte, error) {
	inner, err := json.Marshal(events.S3Event{
		Records: []events.S3EventRecord{{
			EventSource: "aws:s3",
			EventName:   "ObjectCreated:Put",
			S3: events.S3Entity{
				Bucket: events.S3Bucket{Name: bucket},
				Object: events.S3Object{Key: key},
			},
		}},
	})
	if err != nil {
		return nil, err
	}
	msg, err := json.Marshal(string(inner))
	if err != nil {
		return nil, err
	}

	var env snsEnvelope
	env.Records = []snsRecord{{EventSource: SourceSNS}}
	env.Records[0].Sns.Message = msg
	return json.Marshal(env)
}

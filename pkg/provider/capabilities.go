package provider

import "context"

// Optional provider capability interfaces.
//
// These interfaces are used for feature detection (type assertions). The core
// Lister interface remains intentionally small.

// Tag is a single object tag.
type Tag struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

// ObjectTagger replaces the full tag set of an object.
//
// The tag set is written in order. Existing tags not present in tags are
// removed, matching S3 PutObjectTagging semantics.
type ObjectTagger interface {
	PutObjectTagging(ctx context.Context, bucket, key string, tags []Tag) error
}

// ListFunc adapts a function to the Lister interface.
type ListFunc func(ctx context.Context, opts ListOptions) (*ListResult, error)

// List calls f(ctx, opts).
func (f ListFunc) List(ctx context.Context, opts ListOptions) (*ListResult, error) {
	return f(ctx, opts)
}

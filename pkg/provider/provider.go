// Package provider defines abstractions for the object storage operations
// genoroute needs: paginated listing for sibling discovery and object tagging
// for lifecycle policies.
//
// Authentication uses SDK default credential chains. Providers do not
// implement custom auth logic.
package provider

import (
	"context"
	"time"
)

// Lister lists objects under a prefix, one page at a time.
//
// Pagination is part of the contract: callers decide how many pages to read
// by following ContinuationToken while IsTruncated is true. Implementations
// must not silently read ahead.
//
// Implementations must be safe for concurrent use.
type Lister interface {
	List(ctx context.Context, opts ListOptions) (*ListResult, error)
}

// ListOptions configures a List operation.
type ListOptions struct {
	// Bucket is the bucket to list. Required.
	Bucket string

	// Prefix filters results to keys starting with this value.
	// Empty string lists all objects.
	Prefix string

	// ContinuationToken resumes listing from a previous ListResult.
	// Empty string starts from the beginning.
	ContinuationToken string

	// MaxKeys limits the number of objects returned per page.
	// Zero uses provider default (typically 1000).
	MaxKeys int
}

// ListResult contains a page of objects from a List operation.
type ListResult struct {
	// Objects contains the object summaries for this page.
	Objects []ObjectSummary

	// ContinuationToken is used to retrieve the next page.
	// Empty string indicates no more pages.
	ContinuationToken string

	// IsTruncated indicates whether more results are available.
	IsTruncated bool
}

// ObjectSummary contains basic metadata returned from List operations.
type ObjectSummary struct {
	// Key is the full object key (path) in the bucket.
	Key string

	// Size is the object size in bytes.
	Size int64

	// ETag is the entity tag, typically an MD5 hash of the object.
	ETag string

	// LastModified is when the object was last modified.
	LastModified time.Time
}

// ProviderType identifies a storage or compute provider.
type ProviderType string

const (
	// ProviderS3 represents AWS S3 or S3-compatible storage.
	ProviderS3 ProviderType = "s3"

	// ProviderFile represents a local filesystem mirror of one or more buckets.
	ProviderFile ProviderType = "file"

	// ProviderBatch represents AWS Batch.
	ProviderBatch ProviderType = "batch"
)

// String returns the string representation of the provider type.
func (p ProviderType) String() string {
	return string(p)
}

package provider

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProviderError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *ProviderError
		expected string
	}{
		{
			name:     "with key",
			err:      &ProviderError{Op: "List", Provider: ProviderS3, Bucket: "b", Key: "p/s", Err: ErrAccessDenied},
			expected: "s3 List: b/p/s: access denied",
		},
		{
			name:     "bucket only",
			err:      &ProviderError{Op: "List", Provider: ProviderS3, Bucket: "b", Err: ErrBucketNotFound},
			expected: "s3 List: b: bucket not found",
		},
		{
			name:     "no bucket",
			err:      &ProviderError{Op: "New", Provider: ProviderFile, Err: errors.New("boom")},
			expected: "file New: boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestCode(t *testing.T) {
	wrap := func(e error) error {
		return fmt.Errorf("outer: %w", &ProviderError{Op: "List", Provider: ProviderS3, Err: e})
	}

	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{wrap(ErrNotFound), CodeNotFound},
		{wrap(ErrAccessDenied), CodeAccessDenied},
		{wrap(ErrBucketNotFound), CodeBucketNotFound},
		{wrap(ErrInvalidCredentials), CodeCredentials},
		{wrap(ErrThrottled), CodeThrottled},
		{wrap(ErrProviderUnavailable), CodeUnavailable},
		{wrap(ErrInvalidRequest), CodeInvalidRequest},
		{errors.New("other"), CodeInternal},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Code(tt.err))
	}
}

func TestErrorHelpers(t *testing.T) {
	assert.True(t, IsNotFound(&ProviderError{Err: ErrNotFound}))
	assert.True(t, IsAccessDenied(&ProviderError{Err: ErrAccessDenied}))
	assert.True(t, IsThrottled(&ProviderError{Err: ErrThrottled}))
	assert.False(t, IsNotFound(errors.New("x")))
}

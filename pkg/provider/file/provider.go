// Package file implements the listing and tagging contracts over a local
// directory that mirrors one or more buckets.
//
// Layout: <BaseDir>/<bucket>/<key>. Object tags are stored as JSON sidecars
// under <BaseDir>/.tags/<bucket>/<key>.json so they never appear in listings.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/3leaps/genoroute/pkg/provider"
)

const tagsDir = ".tags"

// Provider serves a local bucket mirror for offline replay and tests.
type Provider struct {
	baseDir string
}

var (
	_ provider.Lister       = (*Provider)(nil)
	_ provider.ObjectTagger = (*Provider)(nil)
)

type Config struct {
	BaseDir string
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.BaseDir) == "" {
		return fmt.Errorf("base dir is required")
	}
	return nil
}

func New(cfg Config) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Provider{baseDir: filepath.Clean(cfg.BaseDir)}, nil
}

func (p *Provider) Close() error { return nil }

// List returns keys in opts.Bucket that start with opts.Prefix, in
// lexicographic order. Continuation tokens are the last key returned.
func (p *Provider) List(ctx context.Context, opts provider.ListOptions) (*provider.ListResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	maxKeys := opts.MaxKeys
	if maxKeys <= 0 {
		maxKeys = 1000
	}

	keys, err := p.collectKeys(opts.Bucket, opts.Prefix)
	if err != nil {
		return nil, p.wrapError("List", opts.Bucket, opts.Prefix, err)
	}
	sort.Strings(keys)

	start := 0
	if opts.ContinuationToken != "" {
		start = sort.SearchStrings(keys, opts.ContinuationToken)
		for start < len(keys) && keys[start] <= opts.ContinuationToken {
			start++
		}
	}

	end := min(start+maxKeys, len(keys))

	objects := make([]provider.ObjectSummary, 0, end-start)
	for _, k := range keys[start:end] {
		full, err := p.objectPath(opts.Bucket, k)
		if err != nil {
			continue
		}
		st, err := os.Stat(full)
		if err != nil || st.IsDir() {
			continue
		}
		objects = append(objects, provider.ObjectSummary{Key: k, Size: st.Size(), LastModified: st.ModTime()})
	}

	res := &provider.ListResult{Objects: objects}
	if end < len(keys) {
		res.IsTruncated = true
		res.ContinuationToken = keys[end-1]
	}
	return res, nil
}

// PutObjectTagging replaces the sidecar tag set for an existing object.
func (p *Provider) PutObjectTagging(ctx context.Context, bucket, key string, tags []provider.Tag) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := p.objectPath(bucket, key)
	if err != nil {
		return p.wrapError("PutObjectTagging", bucket, key, err)
	}
	if _, err := os.Stat(full); err != nil {
		return p.wrapError("PutObjectTagging", bucket, key, err)
	}

	sidecar, err := p.tagPath(bucket, key)
	if err != nil {
		return p.wrapError("PutObjectTagging", bucket, key, err)
	}
	if err := os.MkdirAll(filepath.Dir(sidecar), 0o755); err != nil {
		return p.wrapError("PutObjectTagging", bucket, key, err)
	}

	data, err := json.Marshal(tags)
	if err != nil {
		return p.wrapError("PutObjectTagging", bucket, key, err)
	}
	if err := os.WriteFile(sidecar, data, 0o644); err != nil {
		return p.wrapError("PutObjectTagging", bucket, key, err)
	}
	return nil
}

// ObjectTags reads back the sidecar tag set written by PutObjectTagging.
func (p *Provider) ObjectTags(bucket, key string) ([]provider.Tag, error) {
	sidecar, err := p.tagPath(bucket, key)
	if err != nil {
		return nil, p.wrapError("ObjectTags", bucket, key, err)
	}
	data, err := os.ReadFile(sidecar)
	if err != nil {
		return nil, p.wrapError("ObjectTags", bucket, key, err)
	}
	var tags []provider.Tag
	if err := json.Unmarshal(data, &tags); err != nil {
		return nil, p.wrapError("ObjectTags", bucket, key, err)
	}
	return tags, nil
}

func cleanRel(s string) (string, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "/")
	clean := strings.TrimPrefix(filepath.Clean("/"+s), "/")
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("invalid path %q", s)
	}
	return clean, nil
}

func (p *Provider) bucketDir(bucket string) (string, error) {
	if bucket == "" || strings.ContainsAny(bucket, `/\`) || bucket == tagsDir || bucket == ".." {
		return "", fmt.Errorf("%w: bucket %q", provider.ErrInvalidRequest, bucket)
	}
	return filepath.Join(p.baseDir, bucket), nil
}

func (p *Provider) objectPath(bucket, key string) (string, error) {
	dir, err := p.bucketDir(bucket)
	if err != nil {
		return "", err
	}
	clean, err := cleanRel(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, filepath.FromSlash(clean)), nil
}

func (p *Provider) tagPath(bucket, key string) (string, error) {
	if _, err := p.bucketDir(bucket); err != nil {
		return "", err
	}
	clean, err := cleanRel(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(p.baseDir, tagsDir, bucket, filepath.FromSlash(clean)+".json"), nil
}

// collectKeys walks the deepest directory implied by prefix and filters
// the results by plain string prefix, matching object store semantics.
func (p *Provider) collectKeys(bucket, prefix string) ([]string, error) {
	dir, err := p.bucketDir(bucket)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return nil, provider.ErrBucketNotFound
		}
		return nil, err
	}

	walkRoot := dir
	if i := strings.LastIndexByte(prefix, '/'); i >= 0 {
		sub, err := cleanRel(prefix[:i])
		if err != nil {
			return nil, err
		}
		walkRoot = filepath.Join(dir, filepath.FromSlash(sub))
	}
	if _, err := os.Stat(walkRoot); err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}

	var keys []string
	_ = filepath.WalkDir(walkRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if strings.HasPrefix(rel, prefix) {
			keys = append(keys, rel)
		}
		return nil
	})
	return keys, nil
}

func (p *Provider) wrapError(op, bucket, key string, err error) error {
	wrapped := &provider.ProviderError{Op: op, Provider: provider.ProviderFile, Bucket: bucket, Key: key, Err: err}
	switch {
	case err == nil:
		wrapped.Err = fmt.Errorf("unknown error")
	case os.IsNotExist(err):
		wrapped.Err = provider.ErrNotFound
	case os.IsPermission(err):
		wrapped.Err = provider.ErrAccessDenied
	}
	return wrapped
}

// Package artifact models pipeline artifact keys in object storage.
//
// Keys are opaque provider strings decomposed on '/'. Every routing decision
// in genoroute is a pure function of a Key, so the helpers here never touch
// the network and never normalize the key text.
package artifact

import (
	"errors"
	"fmt"
	"strings"
)

// ErrShallowKey indicates a key has fewer directory levels than a stage needs
// to compute its output location.
var ErrShallowKey = errors.New("key has too few directory levels")

// Key is a single object key in a bucket, e.g. "proj/sample1/dragen/x.bam".
type Key string

// String returns the raw key text.
func (k Key) String() string {
	return string(k)
}

// Name returns the final path segment.
func (k Key) Name() string {
	s := string(k)
	if i := strings.LastIndexByte(s, '/'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// Dir returns everything before the final '/', or "" for a top-level key.
func (k Key) Dir() string {
	s := string(k)
	if i := strings.LastIndexByte(s, '/'); i >= 0 {
		return s[:i]
	}
	return ""
}

// Stem returns the name without its final suffix.
//
// A leading dot does not start a suffix and a trailing dot is kept, so
// ".bashrc" and "x." are returned unchanged.
func (k Key) Stem() string {
	name := k.Name()
	i := strings.LastIndexByte(name, '.')
	if i > 0 && i < len(name)-1 {
		return name[:i]
	}
	return name
}

// SplitExt splits the name into root and extension, where the extension
// starts at the last dot that is not part of a leading run of dots.
func (k Key) SplitExt() (root, ext string) {
	name := k.Name()
	i := strings.LastIndexByte(name, '.')
	if i <= 0 {
		return name, ""
	}
	if strings.Trim(name[:i], ".") == "" {
		return name, ""
	}
	return name[:i], name[i:]
}

// Segments returns the directory segments above the name.
func (k Key) Segments() []string {
	dir := k.Dir()
	if dir == "" {
		return nil
	}
	return strings.Split(dir, "/")
}

// Ancestor returns the directory n levels above the file.
//
// Ancestor(1) is the directory holding the file and Ancestor(2) is its parent.
// Keys without enough directory segments return ErrShallowKey.
func (k Key) Ancestor(n int) (string, error) {
	if n < 1 {
		return "", fmt.Errorf("ancestor level must be >= 1, got %d", n)
	}
	segs := k.Segments()
	if len(segs) < n {
		return "", fmt.Errorf("%w: %q needs %d, has %d", ErrShallowKey, string(k), n, len(segs))
	}
	return strings.Join(segs[:len(segs)-n+1], "/"), nil
}

// HasSegment reports whether the key contains "/seg/" anywhere.
func (k Key) HasSegment(seg string) bool {
	return strings.Contains(string(k), "/"+seg+"/")
}

// URI renders an s3:// URI for a key in bucket.
func URI(bucket, key string) string {
	return "s3://" + bucket + "/" + key
}

// Location is a parsed object notification target.
type Location struct {
	Bucket string
	Key    Key
}

// URI renders the location as an s3:// URI.
func (l Location) URI() string {
	return URI(l.Bucket, string(l.Key))
}

// Package match scopes which artifact keys a router acts on.
//
// A Scope is built from include and exclude doublestar globs plus an
// optional key regex. Keys are opaque: they are matched exactly as
// delivered, never normalized.
package match

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Errors returned when building a Scope.
var (
	// ErrInvalidPattern is returned when a glob cannot be compiled.
	ErrInvalidPattern = errors.New("invalid glob pattern")

	// ErrInvalidRegex is returned when the key regex cannot be compiled.
	ErrInvalidRegex = errors.New("invalid regex pattern")
)

// Skip reasons reported by Scope.Check.
const (
	ReasonHidden      = "hidden"
	ReasonNotIncluded = "not_included"
	ReasonExcluded    = "excluded"
	ReasonRegex       = "key_regex"
)

// PatternError wraps pattern-related errors with context.
type PatternError struct {
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return "pattern " + e.Pattern + ": " + e.Err.Error()
}

func (e *PatternError) Unwrap() error {
	return e.Err
}

// Config configures a Scope.
type Config struct {
	// Includes are globs a key must match (at least one). Empty means every key.
	Includes []string `mapstructure:"includes" json:"includes,omitempty" yaml:"includes,omitempty"`

	// Excludes are globs a key must not match.
	Excludes []string `mapstructure:"excludes" json:"excludes,omitempty" yaml:"excludes,omitempty"`

	// KeyRegex, when set, is applied after the globs.
	KeyRegex string `mapstructure:"key_regex" json:"key_regex,omitempty" yaml:"key_regex,omitempty"`

	// IncludeHidden admits keys with a segment starting with '.'.
	IncludeHidden bool `mapstructure:"include_hidden" json:"include_hidden,omitempty" yaml:"include_hidden,omitempty"`
}

// Scope decides whether a key is in scope. Safe for concurrent use.
type Scope struct {
	includes      []string
	excludes      []string
	re            *regexp.Regexp
	includeHidden bool
}

// All returns a Scope that admits every non-hidden key.
func All() *Scope {
	return &Scope{includes: []string{"**"}}
}

// New compiles cfg into a Scope.
func New(cfg Config) (*Scope, error) {
	s := &Scope{includeHidden: cfg.IncludeHidden}

	includes := cfg.Includes
	if len(includes) == 0 {
		includes = []string{"**"}
	}
	for _, p := range includes {
		if !doublestar.ValidatePattern(p) {
			return nil, &PatternError{Pattern: p, Err: ErrInvalidPattern}
		}
		s.includes = append(s.includes, p)
	}
	for _, p := range cfg.Excludes {
		if !doublestar.ValidatePattern(p) {
			return nil, &PatternError{Pattern: p, Err: ErrInvalidPattern}
		}
		s.excludes = append(s.excludes, p)
	}

	if cfg.KeyRegex != "" {
		re, err := regexp.Compile(cfg.KeyRegex)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidRegex, cfg.KeyRegex, err)
		}
		s.re = re
	}
	return s, nil
}

// Check reports whether key is in scope and, if not, why.
func (s *Scope) Check(key string) (bool, string) {
	if !s.includeHidden && IsHidden(key) {
		return false, ReasonHidden
	}

	included := false
	for _, p := range s.includes {
		if match(p, key) {
			included = true
			break
		}
	}
	if !included {
		return false, ReasonNotIncluded
	}

	for _, p := range s.excludes {
		if match(p, key) {
			return false, ReasonExcluded
		}
	}

	if s.re != nil && !s.re.MatchString(key) {
		return false, ReasonRegex
	}
	return true, ""
}

// Match reports whether key is in scope.
func (s *Scope) Match(key string) bool {
	ok, _ := s.Check(key)
	return ok
}

// IncludePatterns returns the effective include globs.
func (s *Scope) IncludePatterns() []string {
	return append([]string(nil), s.includes...)
}

// ExcludePatterns returns the exclude globs.
func (s *Scope) ExcludePatterns() []string {
	return append([]string(nil), s.excludes...)
}

// IsHidden reports whether any segment of key starts with '.'.
func IsHidden(key string) bool {
	for _, seg := range strings.Split(key, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}

func match(pattern, key string) bool {
	ok, err := doublestar.Match(pattern, key)
	return err == nil && ok
}

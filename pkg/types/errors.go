// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure while looking up or persisting a record.
type ErrorKind string

const (
	KindTimeout     ErrorKind = "timeout"
	KindRateLimited ErrorKind = "rate_limited"
	KindUnreachable ErrorKind = "unreachable"
	KindMalformed   ErrorKind = "malformed"
	KindNotFound    ErrorKind = "not_found"
	KindCacheIO     ErrorKind = "cache_io"
	KindRunTimeout  ErrorKind = "run_timeout"
)

// Transient reports whether a failure of this kind is worth retrying with
// plain exponential backoff.
func (k ErrorKind) Transient() bool {
	return k == KindTimeout || k == KindUnreachable
}

// Sentinel errors, one per kind, for errors.Is checks.
var (
	ErrSourceTimeout     = errors.New("source timeout")
	ErrSourceRateLimited = errors.New("source rate limited")
	ErrSourceUnreachable = errors.New("source unreachable")
	ErrSourceMalformed   = errors.New("malformed source response")
	ErrSourceNotFound    = errors.New("source has no matching record")
	ErrCacheIO           = errors.New("cache I/O error")
	ErrRunTimeout        = errors.New("run timeout")
)

var kindSentinels = map[ErrorKind]error{
	KindTimeout:     ErrSourceTimeout,
	KindRateLimited: ErrSourceRateLimited,
	KindUnreachable: ErrSourceUnreachable,
	KindMalformed:   ErrSourceMalformed,
	KindNotFound:    ErrSourceNotFound,
	KindCacheIO:     ErrCacheIO,
	KindRunTimeout:  ErrRunTimeout,
}

// SourceError is a classified failure from a source, the cache, or the run.
type SourceError struct {
	Source SourceID
	Kind   ErrorKind
	Err    error
}

// NewSourceError wraps err with a source and kind.
func NewSourceError(source SourceID, kind ErrorKind, err error) *SourceError {
	return &SourceError{Source: source, Kind: kind, Err: err}
}

func (e *SourceError) Error() string {
	prefix := string(e.Kind)
	if e.Source != "" {
		prefix = string(e.Source) + ": " + prefix
	}
	if e.Err == nil {
		return prefix
	}
	return fmt.Sprintf("%s: %v", prefix, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// Is matches the sentinel error for the kind.
func (e *SourceError) Is(target error) bool {
	s, ok := kindSentinels[e.Kind]
	return ok && s == target
}

// KindOf returns the kind of a classified error, or "" when err carries none.
func KindOf(err error) ErrorKind {
	var se *SourceError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// Record converts the error into an error marker record.
func (e *SourceError) Record() SourceRecord {
	msg := ""
	if e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Kind == KindNotFound {
		return NotFoundRecord(e.Source)
	}
	return ErrorRecord(e.Source, e.Kind, msg)
}

package model

import (
	"errors"
	"fmt"
)

// ErrUnknownColumn is returned when a coordinate column override names a
// column the table does not have.
var ErrUnknownColumn = errors.New("unknown column")

type UnsupportedFormatError struct {
	Source string
	Ext    string
}

func (e *UnsupportedFormatError) Error() string {
	if e.Ext == "" {
		return fmt.Sprintf("unsupported format: %q has no extension", e.Source)
	}
	return fmt.Sprintf("unsupported format %q for %q", e.Ext, e.Source)
}

type ParseError struct {
	Format string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Format, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// FetchError reports a failed remote request. Status is zero when no
// response was received.
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

type GeometryDecodeError struct {
	Feature int
	Err     error
}

func (e *GeometryDecodeError) Error() string {
	return fmt.Sprintf("feature %d: decode geometry: %v", e.Feature, e.Err)
}

func (e *GeometryDecodeError) Unwrap() error { return e.Err }

type CrsMismatchError struct {
	Want string
	Got  string
}

func (e *CrsMismatchError) Error() string {
	return fmt.Sprintf("crs mismatch: cannot merge %q extent into %q", e.Got, e.Want)
}

// ErrorKind labels a per-source failure for status reporting and metrics.
func ErrorKind(err error) string {
	var (
		unsupported *UnsupportedFormatError
		parse       *ParseError
		fetch       *FetchError
		geom        *GeometryDecodeError
		crs         *CrsMismatchError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &unsupported):
		return "unsupported_format"
	case errors.As(err, &fetch):
		return "fetch"
	case errors.As(err, &geom):
		return "geometry_decode"
	case errors.As(err, &parse):
		return "parse"
	case errors.As(err, &crs):
		return "crs_mismatch"
	case errors.Is(err, ErrUnknownColumn):
		return "unknown_column"
	default:
		return "internal"
	}
}

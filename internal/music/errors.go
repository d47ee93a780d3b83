package music

import (
	"errors"
	"fmt"

	"github.com/youruser/musiccard/internal/util"
)

var (
	ErrMissingParameter    = errors.New("missing required parameter")
	ErrUnsupportedPlatform = errors.New("unsupported music platform")
	ErrUpstreamTimeout     = errors.New("upstream request timed out")
	ErrUpstreamError       = errors.New("upstream request failed")
	ErrNoURL               = errors.New("no url found in text")
	ErrUnrecognizedURL     = errors.New("unrecognized track url")
)

// UpstreamError reports a non-2xx or malformed answer from a platform.
// It matches ErrUpstreamError under errors.Is.
type UpstreamError struct {
	Platform Platform
	Status   int
	Err      error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.Status != 0 && e.Err != nil:
		return fmt.Sprintf("%s: status %d: %v", e.Platform, e.Status, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("%s: status %d", e.Platform, e.Status)
	default:
		return fmt.Sprintf("%s: %v", e.Platform, e.Err)
	}
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func (e *UpstreamError) Is(target error) bool { return target == ErrUpstreamError }

// classify maps a provider failure onto the metadata error taxonomy.
func classify(p Platform, err error) error {
	if err == nil {
		return nil
	}
	if util.IsTimeout(err) {
		return fmt.Errorf("%w: %s: %w", ErrUpstreamTimeout, p, err)
	}
	if errors.Is(err, ErrUpstreamError) {
		return err
	}
	return &UpstreamError{Platform: p, Err: err}
}

package fetch

import (
	"errors"
	"fmt"
)

// RetryExhaustedError is returned by Retry once every attempt has failed.
type RetryExhaustedError struct {
	Attempts int
	Err      error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Err }

// ImageLoadKind classifies why an image could not be loaded.
type ImageLoadKind string

const (
	ImageLoadTimeout ImageLoadKind = "timeout"
	ImageLoadNetwork ImageLoadKind = "network"
	ImageLoadDecode  ImageLoadKind = "decode"
)

// ImageLoadError reports a failed image load for URL.
type ImageLoadError struct {
	URL  string
	Kind ImageLoadKind
	Err  error
}

func (e *ImageLoadError) Error() string {
	return fmt.Sprintf("load image %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *ImageLoadError) Unwrap() error { return e.Err }

// IsImageLoadKind reports whether err carries an ImageLoadError of kind k.
func IsImageLoadKind(err error, k ImageLoadKind) bool {
	var le *ImageLoadError
	return errors.As(err, &le) && le.Kind == k
}

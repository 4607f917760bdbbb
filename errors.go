package liveserver

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrForbiddenPath is returned for request paths that escape the root
	ErrForbiddenPath = errors.New("liveserver: forbidden path")
	// ErrNotFound is returned for paths that don't exist under the root
	ErrNotFound = errors.New("liveserver: not found")
	// ErrInternal is returned when a file exists but can't be read
	ErrInternal = errors.New("liveserver: internal error")
)

// ConfigError is returned by Config.Validate and New. It's the only error
// that should stop the process.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("liveserver: invalid %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// WatchSubtreeError reports a directory that couldn't be watched. The
// subtree is skipped.
type WatchSubtreeError struct {
	Dir string
	Err error
}

func (e *WatchSubtreeError) Error() string {
	return fmt.Sprintf("liveserver: unable to watch %s: %v", e.Dir, e.Err)
}

func (e *WatchSubtreeError) Unwrap() error {
	return e.Err
}

// ChannelError reports a failed write to a single reload channel. Only that
// channel is closed.
type ChannelError struct {
	ClientID string
	Err      error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("liveserver: reload channel %s: %v", e.ClientID, e.Err)
}

func (e *ChannelError) Unwrap() error {
	return e.Err
}

// StatusCode maps a file server error to its HTTP status
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrForbiddenPath):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

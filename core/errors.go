package core

import (
	"errors"
	"fmt"
)

var (
	// ErrNotRunning means no live engine instance exists.
	ErrNotRunning = errors.New("appraise: not running")
	// ErrPlatform wraps failures of the host dialog, event, connectivity or deep-link services.
	ErrPlatform = errors.New("appraise: platform failure")
	// ErrStorage wraps unreadable, unwritable or unresolvable state and unknown format versions.
	ErrStorage = errors.New("appraise: storage failure")

	// ErrNotFound is returned by storage when no state was persisted yet.
	ErrNotFound = errors.New("not found")
	// ErrUnknownVersion is returned when a state layout carries an unrecognised version tag.
	ErrUnknownVersion = errors.New("unknown state format version")
)

// Err joins a typed sentinel, the underlying cause and an optional message.
func Err(typedError error, innerErr error, msgTemplate string, args ...any) error {
	if msgTemplate == "" {
		return errors.Join(typedError, innerErr)
	}
	return errors.Join(typedError, innerErr, fmt.Errorf(msgTemplate, args...))
}

// Code is the numeric error state reported to hosts.
type Code int

const (
	CodeNone Code = iota
	CodeNotRunning
	CodePlatform
	CodeStorage
)

func (c Code) String() string {
	switch c {
	case CodeNone:
		return "none"
	case CodeNotRunning:
		return "not_running"
	case CodePlatform:
		return "platform_error"
	case CodeStorage:
		return "storage_error"
	default:
		return fmt.Sprintf("code(%d)", int(c))
	}
}

// CodeOf classifies err. Unclassified errors count as storage errors since
// they can only originate from a storage adapter.
func CodeOf(err error) Code {
	switch {
	case err == nil:
		return CodeNone
	case errors.Is(err, ErrNotRunning):
		return CodeNotRunning
	case errors.Is(err, ErrPlatform):
		return CodePlatform
	default:
		return CodeStorage
	}
}

package errors

import (
	"context"
	"errors"
	"strings"
)

// ErrorClass tells callers how to react to an error.
type ErrorClass int

const (
	// ErrorTransient errors may succeed when retried.
	ErrorTransient ErrorClass = iota
	// ErrorInvalid errors come from bad input or configuration values.
	ErrorInvalid
	// ErrorFatal errors stop the component that hit them.
	ErrorFatal
)

func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// ClassifiedError attaches a class and the failing component and operation
// to an error.
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

func newClassified(class ErrorClass, err error, component, operation, message string) *ClassifiedError {
	return &ClassifiedError{
		Class:     class,
		Err:       err,
		Message:   message,
		Component: component,
		Operation: operation,
	}
}

func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// sentinelClasses is consulted in order when no ClassifiedError is present.
var sentinelClasses = []struct {
	err   error
	class ErrorClass
}{
	{ErrConnectionTimeout, ErrorTransient},
	{ErrConnectionLost, ErrorTransient},
	{ErrNoConnection, ErrorTransient},
	{ErrPublishFailed, ErrorTransient},
	{ErrRateLimited, ErrorTransient},
	{ErrQueueFull, ErrorTransient},
	{context.DeadlineExceeded, ErrorTransient},
	{context.Canceled, ErrorTransient},

	{ErrInvalidData, ErrorInvalid},
	{ErrParsingFailed, ErrorInvalid},
	{ErrUnknownEntryType, ErrorInvalid},
	{ErrMarkNotFound, ErrorInvalid},
	{ErrInvalidTiming, ErrorInvalid},

	{ErrInvalidConfig, ErrorFatal},
	{ErrMissingConfig, ErrorFatal},
	{ErrResourceExhausted, ErrorFatal},
	{ErrSinkClosed, ErrorFatal},
}

// messageHints classify errors from other packages by their text.
var messageHints = []struct {
	class    ErrorClass
	patterns []string
}{
	{ErrorTransient, []string{"timeout", "connection", "network", "temporary", "unavailable"}},
	{ErrorFatal, []string{"fatal", "invalid config", "missing config", "out of memory", "disk full"}},
}

// classOf reports the class of err and whether anything identified it.
func classOf(err error) (ErrorClass, bool) {
	if err == nil {
		return ErrorTransient, false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class, true
	}

	for _, s := range sentinelClasses {
		if errors.Is(err, s.err) {
			return s.class, true
		}
	}

	msg := strings.ToLower(err.Error())
	for _, h := range messageHints {
		for _, p := range h.patterns {
			if strings.Contains(msg, p) {
				return h.class, true
			}
		}
	}
	return ErrorTransient, false
}

func isClass(err error, class ErrorClass) bool {
	c, ok := classOf(err)
	return ok && c == class
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool { return isClass(err, ErrorTransient) }

// IsInvalid reports whether err was caused by bad input.
func IsInvalid(err error) bool { return isClass(err, ErrorInvalid) }

// IsFatal reports whether err should stop the component.
func IsFatal(err error) bool { return isClass(err, ErrorFatal) }

// Classify returns the class of err. Nil and unrecognized errors are
// transient so that callers retry them.
func Classify(err error) ErrorClass {
	c, _ := classOf(err)
	return c
}

package cmn

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind identifies the class of failure the engine surfaces to its
// caller. The CLI wrapper maps every non-nil Kind to a non-zero exit code.
type ErrorKind int

const (
	ErrNone ErrorKind = iota
	ErrSourceNotFound
	ErrEmptySource
	ErrDestinationHeadFailed
	ErrTagFetchFailed
	ErrUploadLifecycleFailed
	ErrVerificationFailed
	ErrLimitExceeded
)

func (k ErrorKind) String() string {
	switch k {
	case ErrSourceNotFound:
		return "SourceNotFound"
	case ErrEmptySource:
		return "EmptySource"
	case ErrDestinationHeadFailed:
		return "DestinationHeadFailed"
	case ErrTagFetchFailed:
		return "TagFetchFailed"
	case ErrUploadLifecycleFailed:
		return "UploadLifecycleFailed"
	case ErrVerificationFailed:
		return "VerificationFailed"
	case ErrLimitExceeded:
		return "LimitExceeded"
	default:
		return "Unknown"
	}
}

// EngineError is the typed error the engine-side packages (engine,
// strategy, lifecycle, verify) return; the store package reports its own
// *store.StoreError, which EngineError wraps as its cause. Stage carries extra context for UploadLifecycleFailed
// (e.g. "initiate", "part", "complete", "abort").
type EngineError struct {
	Kind  ErrorKind
	Stage string
	cause error
}

func (e *EngineError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("%s[%s]: %v", e.Kind, e.Stage, e.cause)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.cause)
	}
	return e.Kind.String()
}

func (e *EngineError) Unwrap() error { return e.cause }

func NewError(kind ErrorKind, cause error) *EngineError {
	return &EngineError{Kind: kind, cause: cause}
}

func NewStageError(kind ErrorKind, stage string, cause error) *EngineError {
	return &EngineError{Kind: kind, Stage: stage, cause: cause}
}

func Wrap(kind ErrorKind, cause error, format string, args ...interface{}) *EngineError {
	if cause == nil {
		return &EngineError{Kind: kind, cause: errors.Errorf(format, args...)}
	}
	return &EngineError{Kind: kind, cause: errors.Wrapf(cause, format, args...)}
}

// KindOf extracts the ErrorKind from err, or ErrNone if err is not (and does
// not wrap) an *EngineError.
func KindOf(err error) ErrorKind {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return ErrNone
}

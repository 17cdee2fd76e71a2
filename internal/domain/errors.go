package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrInvalidPayload   = errors.New("invalid payload")
	ErrTemplateNotFound = errors.New("template not found")
	ErrBrandNotFound    = errors.New("brand not found")
	ErrProviderFailure  = errors.New("provider failure")
	ErrCaptureFailed    = errors.New("capture failed")
	ErrStorageFailure   = errors.New("storage failure")
	ErrJobNotClaimable  = errors.New("job not claimable")
	ErrJobTerminal      = errors.New("job is terminal")
)

// fatalError marks an error that retrying cannot fix.
type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

// Fatal wraps err so the orchestrator fails the job without further attempts.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{err: err}
}

// IsFatal reports whether err must abort a job regardless of remaining attempts.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var fe *fatalError
	if errors.As(err, &fe) {
		return true
	}
	return errors.Is(err, ErrTemplateNotFound) ||
		errors.Is(err, ErrBrandNotFound) ||
		errors.Is(err, ErrInvalidPayload)
}

package domain

import "errors"

// Domain errors.
var (
	ErrMissingConfig         = errors.New("missing required configuration")
	ErrInvalidConfig         = errors.New("invalid configuration")
	ErrInvalidToken          = errors.New("invalid auth token")
	ErrBackendUnavailable    = errors.New("backend unavailable")
	ErrClaimRejected         = errors.New("claim rejected by backend")
	ErrNotFound              = errors.New("not found")
	ErrTaskNotFound          = errors.New("task not found")
	ErrInvalidTransition     = errors.New("invalid status transition")
	ErrPathOutsideWorkspace  = errors.New("path escapes workspace root")
	ErrNoSecretKey           = errors.New("enveloped secret but no secret key configured")
	ErrSecretDecryptFailed   = errors.New("secret decryption failed")
	ErrPlannerPanic          = errors.New("planner cycle panicked")
	ErrContainerAlreadyFinal = errors.New("container status already reported")
)

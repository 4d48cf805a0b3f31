package captivault

import "errors"

var (
	// ErrAuthRequired is an exported constant or variable used by the session engine.
	ErrAuthRequired = errors.New("authentication required")
	// ErrInvalidCredentials is an exported constant or variable used by the session engine.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrValidationFailed is an exported constant or variable used by the session engine.
	ErrValidationFailed = errors.New("credential validation failed")
	// ErrSessionExpired is an exported constant or variable used by the session engine.
	ErrSessionExpired = errors.New("session expired")
	// ErrSessionRotationFailed is an exported constant or variable used by the session engine.
	ErrSessionRotationFailed = errors.New("session rotation failed")
	// ErrAdmissionDenied is an exported constant or variable used by the session engine.
	ErrAdmissionDenied = errors.New("concurrent session limit reached")
	// ErrSessionNotFound is an exported constant or variable used by the session engine.
	ErrSessionNotFound = errors.New("session not found")
	// ErrRecordNotFound is an exported constant or variable used by the session engine.
	ErrRecordNotFound = errors.New("capture record not found")
	// ErrIntegrityFailure is an exported constant or variable used by the session engine.
	ErrIntegrityFailure = errors.New("stored data failed integrity check")
	// ErrStorageUnavailable is an exported constant or variable used by the session engine.
	ErrStorageUnavailable = errors.New("storage backend unavailable")
	// ErrSessionCreationFailed is an exported constant or variable used by the session engine.
	ErrSessionCreationFailed = errors.New("session creation failed")
	// ErrSessionInvalidationFailed is an exported constant or variable used by the session engine.
	ErrSessionInvalidationFailed = errors.New("session invalidation failed")
	// ErrTokenInvalid is an exported constant or variable used by the session engine.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrEngineNotReady is an exported constant or variable used by the session engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

package captivault

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventLoginSuccess     = "LOGIN_SUCCESS"
	auditEventLoginFailed      = "LOGIN_FAILED"
	auditEventAdmissionDenied  = "ADMISSION_DENIED"
	auditEventSessionExpired   = "SESSION_EXPIRED"
	auditEventSessionRotated   = "SESSION_ROTATED"
	auditEventSessionEnded     = "SESSION_ENDED"
	auditEventDataCaptured     = "DATA_CAPTURED"
	auditEventMessageSent      = "MESSAGE_SENT"
	auditEventIntegrityFailure = "INTEGRITY_FAILURE"
	auditEventSweepCompleted   = "SWEEP_COMPLETED"
)

// AuditErrorCode defines a public type used by captivault APIs.
//
// AuditErrorCode instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditErrorCode string

const (
	auditErrAuthRequired        AuditErrorCode = "auth_required"
	auditErrInvalidCredentials  AuditErrorCode = "invalid_credentials"
	auditErrValidation          AuditErrorCode = "validation_failed"
	auditErrSessionExpired      AuditErrorCode = "session_expired"
	auditErrRotationFailed      AuditErrorCode = "rotation_failed"
	auditErrAdmissionDenied     AuditErrorCode = "admission_denied"
	auditErrSessionNotFound     AuditErrorCode = "session_not_found"
	auditErrRecordNotFound      AuditErrorCode = "record_not_found"
	auditErrIntegrity           AuditErrorCode = "integrity_failure"
	auditErrUnavailable         AuditErrorCode = "backend_unavailable"
	auditErrSessionCreation     AuditErrorCode = "session_creation_failed"
	auditErrSessionInvalidation AuditErrorCode = "session_invalidation_failed"
	auditErrInvalidToken        AuditErrorCode = "invalid_token"
	auditErrInternal            AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	operatorID string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp:  time.Now().UTC(),
		EventType:  eventType,
		OperatorID: operatorID,
		SessionID:  sessionID,
		IP:         clientIPFromContext(ctx),
		Success:    success,
		Metadata:   metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrAuthRequired):
		return auditErrAuthRequired
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrValidationFailed):
		return auditErrValidation
	case errors.Is(err, ErrSessionExpired):
		return auditErrSessionExpired
	case errors.Is(err, ErrSessionRotationFailed):
		return auditErrRotationFailed
	case errors.Is(err, ErrAdmissionDenied):
		return auditErrAdmissionDenied
	case errors.Is(err, ErrSessionNotFound):
		return auditErrSessionNotFound
	case errors.Is(err, ErrRecordNotFound):
		return auditErrRecordNotFound
	case errors.Is(err, ErrIntegrityFailure):
		return auditErrIntegrity
	case errors.Is(err, ErrStorageUnavailable):
		return auditErrUnavailable
	case errors.Is(err, ErrSessionCreationFailed):
		return auditErrSessionCreation
	case errors.Is(err, ErrSessionInvalidationFailed):
		return auditErrSessionInvalidation
	case errors.Is(err, ErrTokenInvalid):
		return auditErrInvalidToken
	default:
		return auditErrInternal
	}
}

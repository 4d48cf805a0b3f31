package captivault

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/captivault/captivault/admission"
	"github.com/captivault/captivault/capture"
	"github.com/captivault/captivault/delivery"
	"github.com/captivault/captivault/internal"
	"github.com/captivault/captivault/password"
	"github.com/captivault/captivault/session"
	"github.com/captivault/captivault/token"
)

// Engine defines a public type used by captivault APIs.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config       Config
	sessionStore *session.Store
	admission    *admission.Controller
	captureStore *capture.Store
	deliveryLog  *delivery.Log
	sender       delivery.Sender
	audit        *auditDispatcher
	metrics      *Metrics
	secretHash   *password.Hasher
	decoyHash    string
	tokens       *token.Manager
	credentials  CredentialProvider
	sweeper      *sweeper
}

// Close describes the close operation and its observable behavior.
//
// Close may return an error when input validation, dependency calls, or security checks fail.
// Close does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.sweeper != nil {
		e.sweeper.Stop()
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped describes the auditdropped operation and its observable behavior.
//
// AuditDropped may return an error when input validation, dependency calls, or security checks fail.
// AuditDropped does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot may return an error when input validation, dependency calls, or security checks fail.
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricAdd(id MetricID, delta uint64) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Add(id, delta)
}

// sessionTTL is the Redis expiry on session keys. It is a garbage-collection
// backstop, strictly longer than the idle timeout: idle expiry must be
// observed by Guard (which reports ErrSessionExpired and tears the session
// down, admission slot included), not by the key silently vanishing first.
func (e *Engine) sessionTTL() time.Duration {
	ttl := e.config.Session.IdleTimeout + e.config.Capture.SweepInterval
	if ttl <= e.config.Session.IdleTimeout {
		ttl = e.config.Session.IdleTimeout + time.Minute
	}
	return ttl
}

// Login describes the login operation and its observable behavior.
//
// Login may return an error when input validation, dependency calls, or security checks fail.
// Login does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Login(ctx context.Context, identifier, secret string) (*LoginResult, error) {
	if e == nil || e.sessionStore == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}

	operator, err := e.validateCredentials(ctx, identifier, secret)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailed, false, "", "", err, func() map[string]string {
			return map[string]string{
				"identifier": identifier,
			}
		})
		return nil, err
	}
	secret = ""

	sid, err := internal.NewSessionID()
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailed, false, operator.OperatorID, "", err, func() map[string]string {
			return map[string]string{
				"identifier": identifier,
				"reason":     "session_id_generation",
			}
		})
		return nil, err
	}
	sessionID := sid.String()

	now := time.Now()
	admitted, err := e.admission.Admit(ctx, operator.OperatorID, sessionID, operator.AllowedSessions, now, clientIPFromContext(ctx))
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailed, false, operator.OperatorID, sessionID, ErrStorageUnavailable, func() map[string]string {
			return map[string]string{
				"identifier": identifier,
				"reason":     "admission_check_failed",
			}
		})
		return nil, errors.Join(ErrSessionCreationFailed, err)
	}
	if !admitted {
		e.metricInc(MetricAdmissionDenied)
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventAdmissionDenied, false, operator.OperatorID, "", ErrAdmissionDenied, func() map[string]string {
			return map[string]string{
				"identifier": identifier,
			}
		})
		return nil, ErrAdmissionDenied
	}

	sess := &session.Session{
		SessionID:     sessionID,
		OperatorID:    operator.OperatorID,
		Role:          operator.Role,
		CreatedAt:     now.Unix(),
		LastActivity:  now.Unix(),
		LastRotatedAt: now.Unix(),
	}

	if err := e.sessionStore.Save(ctx, sess, e.sessionTTL()); err != nil {
		e.releaseAdmission(ctx, operator.OperatorID, sessionID)
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailed, false, operator.OperatorID, sessionID, ErrStorageUnavailable, func() map[string]string {
			return map[string]string{
				"identifier": identifier,
				"reason":     "session_save_failed",
			}
		})
		return nil, errors.Join(ErrSessionCreationFailed, err)
	}

	if err := e.captureStore.CreateSession(ctx, sessionID, operator.OperatorID, now, e.config.Capture.SessionTTL); err != nil {
		if delErr := e.sessionStore.Delete(ctx, sessionID, operator.OperatorID); delErr != nil {
			log.Print("captivault: session rollback failed after capture session error")
		}
		e.releaseAdmission(ctx, operator.OperatorID, sessionID)
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailed, false, operator.OperatorID, sessionID, ErrStorageUnavailable, func() map[string]string {
			return map[string]string{
				"identifier": identifier,
				"reason":     "capture_session_failed",
			}
		})
		return nil, errors.Join(ErrSessionCreationFailed, err)
	}

	access, err := e.tokens.CreateAccess(operator.OperatorID, sessionID)
	if err != nil {
		e.destroySession(ctx, operator.OperatorID, sessionID)
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailed, false, operator.OperatorID, sessionID, err, func() map[string]string {
			return map[string]string{
				"identifier": identifier,
				"reason":     "issue_access_failed",
			}
		})
		return nil, errors.Join(ErrSessionCreationFailed, err)
	}

	e.metricInc(MetricSessionCreated)
	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, operator.OperatorID, sessionID, nil, func() map[string]string {
		return map[string]string{
			"identifier": identifier,
		}
	})

	return &LoginResult{
		OperatorID:  operator.OperatorID,
		SessionID:   sessionID,
		Role:        operator.Role,
		AccessToken: access,
	}, nil
}

// Guard describes the guard operation and its observable behavior.
//
// Guard may return an error when input validation, dependency calls, or security checks fail.
// Guard does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Guard(ctx context.Context, tokenStr string) (*GuardResult, error) {
	if e == nil || e.sessionStore == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}
	if e.metrics != nil && e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() {
			e.metrics.Observe(MetricGuardLatency, time.Since(start))
		}()
	}

	claims, err := e.tokens.ParseAccess(tokenStr)
	if err != nil {
		return nil, ErrAuthRequired
	}

	sess, err := e.sessionStore.Get(ctx, claims.SID)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// The key was already reaped; the admission slot must not
			// outlive it. The token's own claims carry the attribution.
			e.releaseAdmission(ctx, claims.UID, claims.SID)
			return nil, ErrAuthRequired
		}
		if errors.Is(err, session.ErrRedisUnavailable) {
			// Fail closed, but keep the transient storage class visible so
			// callers can retry instead of forcing a re-login.
			return nil, errors.Join(ErrAuthRequired, ErrStorageUnavailable, err)
		}
		// Corrupt blob: never validates.
		return nil, ErrAuthRequired
	}
	if sess.OperatorID != claims.UID {
		return nil, ErrAuthRequired
	}

	now := time.Now()

	if now.Unix()-sess.LastActivity >= int64(e.config.Session.IdleTimeout.Seconds()) {
		e.destroySession(ctx, sess.OperatorID, sess.SessionID)
		e.metricInc(MetricSessionExpired)
		e.metricInc(MetricSessionInvalidated)
		e.emitAudit(ctx, auditEventSessionExpired, false, sess.OperatorID, sess.SessionID, ErrSessionExpired, nil)
		return nil, ErrSessionExpired
	}

	if now.Unix()-sess.LastRotatedAt >= int64(e.config.Session.RotationInterval.Seconds()) {
		return e.rotateSession(ctx, sess, now)
	}

	if err := e.sessionStore.Touch(ctx, claims.SID, now, e.sessionTTL()); err != nil {
		if errors.Is(err, redis.Nil) {
			e.releaseAdmission(ctx, sess.OperatorID, sess.SessionID)
			return nil, ErrAuthRequired
		}
		if errors.Is(err, session.ErrRedisUnavailable) {
			return nil, errors.Join(ErrAuthRequired, ErrStorageUnavailable, err)
		}
		return nil, ErrAuthRequired
	}

	return &GuardResult{
		OperatorID: sess.OperatorID,
		SessionID:  sess.SessionID,
		Role:       sess.Role,
	}, nil
}

// rotateSession re-keys the session identifier across every store that keys
// by it. Any failure is terminal for the session: a half-rotated session is
// never allowed to keep working.
func (e *Engine) rotateSession(ctx context.Context, sess *session.Session, now time.Time) (*GuardResult, error) {
	newID, err := internal.NewSessionID()
	if err != nil {
		return nil, e.failRotation(ctx, sess.OperatorID, sess.SessionID, "", err)
	}
	newSessionID := newID.String()

	rotated, err := e.sessionStore.Rotate(ctx, sess.SessionID, newSessionID, sess.OperatorID, now, e.sessionTTL())
	if err != nil {
		if errors.Is(err, session.ErrRotateSessionNotFound) || errors.Is(err, session.ErrRotateSessionExpired) {
			e.releaseAdmission(ctx, sess.OperatorID, sess.SessionID)
			return nil, ErrAuthRequired
		}
		return nil, e.failRotation(ctx, sess.OperatorID, sess.SessionID, newSessionID, err)
	}

	if _, err := e.admission.Rename(ctx, sess.OperatorID, sess.SessionID, newSessionID); err != nil {
		return nil, e.failRotation(ctx, sess.OperatorID, sess.SessionID, newSessionID, err)
	}

	if _, err := e.captureStore.Rename(ctx, sess.SessionID, newSessionID); err != nil {
		return nil, e.failRotation(ctx, sess.OperatorID, sess.SessionID, newSessionID, err)
	}

	if e.deliveryLog != nil {
		if err := e.deliveryLog.Rename(ctx, sess.SessionID, newSessionID); err != nil {
			return nil, e.failRotation(ctx, sess.OperatorID, sess.SessionID, newSessionID, err)
		}
	}

	access, err := e.tokens.CreateAccess(sess.OperatorID, newSessionID)
	if err != nil {
		return nil, e.failRotation(ctx, sess.OperatorID, sess.SessionID, newSessionID, err)
	}

	e.metricInc(MetricSessionRotated)
	e.emitAudit(ctx, auditEventSessionRotated, true, rotated.OperatorID, newSessionID, nil, func() map[string]string {
		return map[string]string{
			"previous_session_id": sess.SessionID,
		}
	})

	return &GuardResult{
		OperatorID:  rotated.OperatorID,
		SessionID:   newSessionID,
		Role:        rotated.Role,
		AccessToken: access,
		Rotated:     true,
	}, nil
}

// failRotation tears the session down under both identifiers and reports the
// rotation as failed.
func (e *Engine) failRotation(ctx context.Context, operatorID, oldSessionID, newSessionID string, cause error) error {
	e.destroySession(ctx, operatorID, oldSessionID)
	if newSessionID != "" {
		e.destroySession(ctx, operatorID, newSessionID)
	}
	e.metricInc(MetricRotationFailed)
	e.metricInc(MetricSessionInvalidated)
	e.emitAudit(ctx, auditEventSessionRotated, false, operatorID, oldSessionID, ErrSessionRotationFailed, nil)
	if cause != nil {
		return errors.Join(ErrSessionRotationFailed, cause)
	}
	return ErrSessionRotationFailed
}

// Logout describes the logout operation and its observable behavior.
//
// Logout may return an error when input validation, dependency calls, or security checks fail.
// Logout does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Logout(ctx context.Context, tokenStr string) error {
	if e == nil || e.sessionStore == nil || e.tokens == nil {
		return ErrEngineNotReady
	}

	claims, err := e.tokens.ParseAccess(tokenStr)
	if err != nil {
		e.emitAudit(ctx, auditEventSessionEnded, false, "", "", ErrTokenInvalid, func() map[string]string {
			return map[string]string{
				"reason": "invalid_access_token",
			}
		})
		return ErrTokenInvalid
	}

	// Captured data is purged before the session stops resolving, so a
	// failed purge leaves the session intact and retryable.
	if _, err := e.captureStore.EndSession(ctx, claims.SID); err != nil {
		e.emitAudit(ctx, auditEventSessionEnded, false, claims.UID, claims.SID, ErrSessionInvalidationFailed, func() map[string]string {
			return map[string]string{
				"reason": "capture_purge_failed",
			}
		})
		return errors.Join(ErrSessionInvalidationFailed, err)
	}

	if e.deliveryLog != nil {
		if err := e.deliveryLog.Purge(ctx, claims.SID); err != nil {
			log.Print("captivault: delivery log purge failed during logout")
		}
	}
	e.releaseAdmission(ctx, claims.UID, claims.SID)

	if err := e.sessionStore.Delete(ctx, claims.SID, claims.UID); err != nil {
		e.emitAudit(ctx, auditEventSessionEnded, false, claims.UID, claims.SID, ErrSessionInvalidationFailed, nil)
		return errors.Join(ErrSessionInvalidationFailed, err)
	}

	e.metricInc(MetricLogout)
	e.metricInc(MetricSessionInvalidated)
	e.emitAudit(ctx, auditEventSessionEnded, true, claims.UID, claims.SID, nil, nil)

	return nil
}

// destroySession removes every trace of a session: captured records, the
// delivery log, the admission slot, and the session itself. Best-effort on
// each step; used by the expiry and fail-closed paths where the session must
// not survive regardless of partial backend failures.
func (e *Engine) destroySession(ctx context.Context, operatorID, sessionID string) {
	if _, err := e.captureStore.EndSession(ctx, sessionID); err != nil {
		log.Print("captivault: capture purge failed during session teardown")
	}
	if e.deliveryLog != nil {
		if err := e.deliveryLog.Purge(ctx, sessionID); err != nil {
			log.Print("captivault: delivery log purge failed during session teardown")
		}
	}
	e.releaseAdmission(ctx, operatorID, sessionID)
	if err := e.sessionStore.Delete(ctx, sessionID, operatorID); err != nil {
		log.Print("captivault: session delete failed during session teardown")
	}
}

func (e *Engine) releaseAdmission(ctx context.Context, operatorID, sessionID string) {
	if e.admission == nil {
		return
	}
	if err := e.admission.Release(ctx, operatorID, sessionID); err != nil {
		log.Print("captivault: admission release failed")
	}
}

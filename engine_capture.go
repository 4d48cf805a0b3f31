package captivault

import (
	"context"
	"errors"
	"time"

	"github.com/captivault/captivault/capture"
	"github.com/captivault/captivault/delivery"
)

// Capture describes the capture operation and its observable behavior.
//
// Capture may return an error when input validation, dependency calls, or security checks fail.
// Capture does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Capture(ctx context.Context, tokenStr, phone, code string) (*CaptureResult, error) {
	guard, err := e.Guard(ctx, tokenStr)
	if err != nil {
		return nil, err
	}
	if phone == "" || code == "" {
		return nil, ErrValidationFailed
	}

	recordID, err := e.captureStore.Capture(ctx, guard.SessionID, phone, code, time.Now())
	if err != nil {
		mapped := e.mapCaptureErr(ctx, guard.OperatorID, guard.SessionID, err)
		e.emitAudit(ctx, auditEventDataCaptured, false, guard.OperatorID, guard.SessionID, mapped, nil)
		return nil, mapped
	}

	e.metricInc(MetricCapture)
	e.emitAudit(ctx, auditEventDataCaptured, true, guard.OperatorID, guard.SessionID, nil, func() map[string]string {
		return map[string]string{
			"record_id": recordID,
		}
	})

	return &CaptureResult{
		Guard:    *guard,
		RecordID: recordID,
	}, nil
}

// ReadActive describes the readactive operation and its observable behavior.
//
// ReadActive may return an error when input validation, dependency calls, or security checks fail.
// ReadActive does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ReadActive(ctx context.Context, tokenStr string) (*SessionRecords, error) {
	guard, err := e.Guard(ctx, tokenStr)
	if err != nil {
		return nil, err
	}

	meta, entries, err := e.captureStore.ReadActive(ctx, guard.SessionID, time.Now())
	if err != nil {
		return nil, e.mapCaptureErr(ctx, guard.OperatorID, guard.SessionID, err)
	}

	e.metricInc(MetricCaptureRead)

	return &SessionRecords{
		Guard:   *guard,
		Meta:    *meta,
		Entries: entries,
	}, nil
}

// SendMessage describes the sendmessage operation and its observable behavior.
//
// SendMessage may return an error when input validation, dependency calls, or security checks fail.
// SendMessage does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) SendMessage(ctx context.Context, tokenStr, phone, body string) (*SendResult, error) {
	guard, err := e.Guard(ctx, tokenStr)
	if err != nil {
		return nil, err
	}
	if phone == "" || body == "" {
		return nil, ErrValidationFailed
	}

	now := time.Now()

	recordID, err := e.captureStore.MarkSent(ctx, guard.SessionID, phone, now)
	if err != nil {
		mapped := e.mapCaptureErr(ctx, guard.OperatorID, guard.SessionID, err)
		e.emitAudit(ctx, auditEventMessageSent, false, guard.OperatorID, guard.SessionID, mapped, nil)
		return nil, mapped
	}
	e.metricInc(MetricMarkSent)

	if err := e.sender.Send(ctx, phone, body); err != nil {
		e.emitAudit(ctx, auditEventMessageSent, false, guard.OperatorID, guard.SessionID, err, func() map[string]string {
			return map[string]string{
				"record_id": recordID,
			}
		})
		return nil, err
	}

	var deliveryID string
	if e.deliveryLog != nil {
		deliveryID, err = e.deliveryLog.Record(ctx, guard.SessionID, phone, len(body), now)
		if err != nil {
			// The message already left; the log entry is best-effort.
			deliveryID = ""
		}
	}

	e.metricInc(MetricMessageSent)
	e.emitAudit(ctx, auditEventMessageSent, true, guard.OperatorID, guard.SessionID, nil, func() map[string]string {
		return map[string]string{
			"record_id": recordID,
		}
	})

	return &SendResult{
		Guard:      *guard,
		RecordID:   recordID,
		DeliveryID: deliveryID,
	}, nil
}

// DeliveryEntries describes the deliveryentries operation and its observable behavior.
//
// DeliveryEntries may return an error when input validation, dependency calls, or security checks fail.
// DeliveryEntries does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) DeliveryEntries(ctx context.Context, tokenStr string) ([]delivery.Entry, error) {
	guard, err := e.Guard(ctx, tokenStr)
	if err != nil {
		return nil, err
	}
	if e.deliveryLog == nil {
		return []delivery.Entry{}, nil
	}
	return e.deliveryLog.Entries(ctx, guard.SessionID)
}

// mapCaptureErr translates capture store sentinels to engine error codes and
// emits the integrity audit trail when tampering is detected. An expired
// capture session also tears down the authenticated session, since the two
// share one lifetime.
func (e *Engine) mapCaptureErr(ctx context.Context, operatorID, sessionID string, err error) error {
	switch {
	case errors.Is(err, capture.ErrSessionNotFound):
		return ErrSessionNotFound
	case errors.Is(err, capture.ErrSessionExpired):
		e.destroySession(ctx, operatorID, sessionID)
		e.metricInc(MetricSessionExpired)
		e.metricInc(MetricSessionInvalidated)
		e.emitAudit(ctx, auditEventSessionExpired, false, operatorID, sessionID, ErrSessionExpired, nil)
		return ErrSessionExpired
	case errors.Is(err, capture.ErrRecordNotFound):
		return ErrRecordNotFound
	case errors.Is(err, capture.ErrIntegrity), errors.Is(err, capture.ErrRecordCorrupt):
		e.metricInc(MetricIntegrityFailure)
		e.emitAudit(ctx, auditEventIntegrityFailure, false, operatorID, sessionID, ErrIntegrityFailure, nil)
		return ErrIntegrityFailure
	case errors.Is(err, capture.ErrRedisUnavailable):
		return errors.Join(ErrStorageUnavailable, err)
	default:
		return err
	}
}

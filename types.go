package captivault

import (
	"context"

	"github.com/captivault/captivault/capture"
)

// CredentialProvider is the primary interface that callers must implement to
// integrate captivault with their operator database. It covers credential
// lookup only; the engine never writes operator records.
type CredentialProvider interface {
	GetOperatorByIdentifier(ctx context.Context, identifier string) (OperatorRecord, error)
}

// OperatorRecord is the account record returned by [CredentialProvider].
// SecretHash is an argon2id PHC string; the plaintext secret is never stored.
type OperatorRecord struct {
	OperatorID string
	Identifier string
	SecretHash string
	Role       string

	// AllowedSessions caps this operator's concurrent sessions. Zero means
	// the engine-wide Admission.MaxSessionsPerOperator applies.
	AllowedSessions int
}

// LoginResult is returned by [Engine.Login]. AccessToken embeds the session
// identifier; the token is the only handle callers hold on the session.
type LoginResult struct {
	OperatorID  string
	SessionID   string
	Role        string
	AccessToken string
}

// GuardResult is returned by [Engine.Guard]. When the session identifier was
// rotated during the check, Rotated is true and AccessToken carries the
// replacement token; callers must discard the old token.
type GuardResult struct {
	OperatorID  string
	SessionID   string
	Role        string
	AccessToken string
	Rotated     bool
}

// CaptureResult is returned by [Engine.Capture].
type CaptureResult struct {
	Guard    GuardResult
	RecordID string
}

// SessionRecords is returned by [Engine.ReadActive]. Entries hold the
// pending records' decrypted field values and must not be persisted by
// callers; records already marked sent are not included.
type SessionRecords struct {
	Guard   GuardResult
	Meta    capture.Meta
	Entries []capture.Entry
}

// SendResult is returned by [Engine.SendMessage].
type SendResult struct {
	Guard      GuardResult
	RecordID   string
	DeliveryID string
}

// SweepReport is returned by [Engine.SweepNow] and carried on
// SWEEP_COMPLETED audit events.
type SweepReport struct {
	Removed []string
}

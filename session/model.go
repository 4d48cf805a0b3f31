package session

// Session defines a public type used by captivault APIs.
//
// Session instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
//
// All timestamps are unix seconds. LastActivity drives idle expiry;
// LastRotatedAt drives identifier rotation. Both are mutated server-side
// only, through Store.Touch and Store.Rotate.
type Session struct {
	SessionID  string
	OperatorID string
	Role       string

	CreatedAt     int64
	LastActivity  int64
	LastRotatedAt int64
}

package capture

const (
	// StatusPending marks a record that has not yet been delivered.
	StatusPending uint8 = 0
	// StatusSent marks a record that has been delivered.
	StatusSent uint8 = 1
)

// Meta defines a public type used by captivault APIs.
//
// Meta instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
//
// ExpiresAt is the absolute deadline in unix seconds. It is fixed at
// creation and never extended; activity on the session does not move it.
type Meta struct {
	SessionID  string
	OperatorID string
	CreatedAt  int64
	ExpiresAt  int64
}

// Entry is a decrypted capture record as returned by read paths.
type Entry struct {
	RecordID  string
	Phone     string
	Code      string
	Status    uint8
	CreatedAt int64
}

package internaldefs

import (
	captivault "github.com/captivault/captivault"
)

// CounterDef defines a public type used by captivault APIs.
//
// CounterDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CounterDef struct {
	ID   captivault.MetricID
	Name string
	Help string
}

// HistogramDef defines a public type used by captivault APIs.
//
// HistogramDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type HistogramDef struct {
	ID   captivault.MetricID
	Name string
	Help string
}

// CounterDefs is an exported constant or variable used by the session engine.
var CounterDefs = []CounterDef{
	{ID: captivault.MetricLoginSuccess, Name: "captivault_login_success_total", Help: "Successful login attempts."},
	{ID: captivault.MetricLoginFailure, Name: "captivault_login_failure_total", Help: "Failed login attempts."},
	{ID: captivault.MetricAdmissionDenied, Name: "captivault_admission_denied_total", Help: "Logins denied by the concurrent session limit."},
	{ID: captivault.MetricSessionCreated, Name: "captivault_session_created_total", Help: "Created sessions."},
	{ID: captivault.MetricSessionExpired, Name: "captivault_session_expired_total", Help: "Sessions removed after idle or absolute expiry."},
	{ID: captivault.MetricSessionRotated, Name: "captivault_session_rotated_total", Help: "Successful session identifier rotations."},
	{ID: captivault.MetricRotationFailed, Name: "captivault_rotation_failed_total", Help: "Rotations that failed and terminated the session."},
	{ID: captivault.MetricSessionInvalidated, Name: "captivault_session_invalidated_total", Help: "Invalidated sessions."},
	{ID: captivault.MetricLogout, Name: "captivault_logout_total", Help: "Logout operations."},
	{ID: captivault.MetricCapture, Name: "captivault_capture_total", Help: "Captured records."},
	{ID: captivault.MetricCaptureRead, Name: "captivault_capture_read_total", Help: "Capture session reads."},
	{ID: captivault.MetricMarkSent, Name: "captivault_mark_sent_total", Help: "Records flipped from pending to sent."},
	{ID: captivault.MetricMessageSent, Name: "captivault_message_sent_total", Help: "Messages handed to the delivery sender."},
	{ID: captivault.MetricIntegrityFailure, Name: "captivault_integrity_failure_total", Help: "Stored records that failed authenticated decryption."},
	{ID: captivault.MetricSweepRemoved, Name: "captivault_sweep_removed_total", Help: "Capture sessions removed by the background sweep."},
}

// HistogramDefs is an exported constant or variable used by the session engine.
var HistogramDefs = []HistogramDef{
	{ID: captivault.MetricGuardLatency, Name: "captivault_guard_latency_seconds", Help: "Guard latency histogram."},
}

// HistogramBounds is an exported constant or variable used by the session engine.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix is an exported constant or variable used by the session engine.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets describes the normalizebuckets operation and its observable behavior.
//
// NormalizeBuckets may return an error when input validation, dependency calls, or security checks fail.
// NormalizeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets describes the cumulativebuckets operation and its observable behavior.
//
// CumulativeBuckets may return an error when input validation, dependency calls, or security checks fail.
// CumulativeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}

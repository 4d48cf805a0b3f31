package captivault

import (
	"errors"
	"time"

	"github.com/captivault/captivault/vault"
)

// Config defines a public type used by captivault APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Token     TokenConfig
	Session   SessionConfig
	Admission AdmissionConfig
	Capture   CaptureConfig
	Vault     VaultConfig
	Secret    SecretConfig
	Delivery  DeliveryConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig defines a public type used by captivault APIs.
//
// TokenConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type TokenConfig struct {
	AccessTTL     time.Duration
	SigningMethod string // "ed25519" (default), "hs256" optional
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig defines a public type used by captivault APIs.
//
// SessionConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SessionConfig struct {
	RedisPrefix      string
	IdleTimeout      time.Duration
	RotationInterval time.Duration
}

/*
====================================
ADMISSION CONFIG
====================================
*/

// AdmissionConfig defines a public type used by captivault APIs.
//
// AdmissionConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AdmissionConfig struct {
	RedisPrefix            string
	MaxSessionsPerOperator int
}

/*
====================================
CAPTURE CONFIG
====================================
*/

// CaptureConfig defines a public type used by captivault APIs.
//
// CaptureConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CaptureConfig struct {
	RedisPrefix   string
	SessionTTL    time.Duration
	SweepInterval time.Duration
	SweepEnabled  bool
}

/*
====================================
VAULT CONFIG
====================================
*/

// VaultConfig defines a public type used by captivault APIs.
//
// VaultConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type VaultConfig struct {
	// Key is the 32-byte AES-256-GCM key protecting captured fields at rest.
	Key []byte
	// AllowEphemeralKey generates a process-lifetime key when Key is empty.
	// Data sealed under an ephemeral key is unreadable after restart.
	AllowEphemeralKey bool
}

/*
====================================
SECRET CONFIG
====================================
*/

// SecretConfig defines a public type used by captivault APIs.
//
// SecretConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SecretConfig struct {
	Memory         uint32 // in KB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	MaxSecretBytes int
}

/*
====================================
DELIVERY CONFIG
====================================
*/

// DeliveryConfig defines a public type used by captivault APIs.
//
// DeliveryConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type DeliveryConfig struct {
	RedisPrefix string
	LogTTL      time.Duration
}

// AuditConfig defines a public type used by captivault APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig defines a public type used by captivault APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the baseline configuration used by [New].
//
// The returned value validates except for the vault key, which callers must
// supply (or explicitly opt into an ephemeral key) before Build.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Token: TokenConfig{
			AccessTTL:     30 * time.Minute,
			SigningMethod: "ed25519",
			Issuer:        "captivault",
		},
		Session: SessionConfig{
			RedisPrefix:      "cvs",
			IdleTimeout:      30 * time.Minute,
			RotationInterval: 15 * time.Minute,
		},
		Admission: AdmissionConfig{
			RedisPrefix:            "adm",
			MaxSessionsPerOperator: 3,
		},
		Capture: CaptureConfig{
			RedisPrefix:   "cv",
			SessionTTL:    30 * time.Minute,
			SweepInterval: 5 * time.Minute,
			SweepEnabled:  true,
		},
		Vault: VaultConfig{
			AllowEphemeralKey: false,
		},
		Secret: SecretConfig{
			Memory:         65536,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			MaxSecretBytes: 1024,
		},
		Delivery: DeliveryConfig{
			RedisPrefix: "dlv",
			LogTTL:      30 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.PrivateKey = cloneBytes(cfg.Token.PrivateKey)
	out.Token.PublicKey = cloneBytes(cfg.Token.PublicKey)
	out.Vault.Key = cloneBytes(cfg.Vault.Key)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Config) Validate() error {
	// Token
	if c.Token.AccessTTL <= 0 {
		return errors.New("Token AccessTTL must be > 0")
	}

	if c.Token.SigningMethod != "ed25519" && c.Token.SigningMethod != "hs256" {
		return errors.New("unsupported token signing method")
	}

	if c.Token.SigningMethod == "ed25519" && len(c.Token.PrivateKey) == 0 {
		return errors.New("ed25519 requires PrivateKey")
	}
	if c.Token.SigningMethod == "ed25519" && len(c.Token.PublicKey) == 0 {
		return errors.New("ed25519 requires PublicKey")
	}
	if c.Token.SigningMethod == "hs256" && len(c.Token.PrivateKey) < 32 {
		return errors.New("hs256 requires PrivateKey length >= 256 bits")
	}

	// Session
	if c.Session.RedisPrefix == "" {
		return errors.New("Session RedisPrefix must not be empty")
	}
	if c.Session.IdleTimeout <= 0 {
		return errors.New("Session IdleTimeout must be > 0")
	}
	if c.Session.RotationInterval <= 0 {
		return errors.New("Session RotationInterval must be > 0")
	}
	if c.Session.RotationInterval > c.Session.IdleTimeout {
		return errors.New("Session RotationInterval must be <= IdleTimeout")
	}

	// Admission
	if c.Admission.RedisPrefix == "" {
		return errors.New("Admission RedisPrefix must not be empty")
	}
	if c.Admission.MaxSessionsPerOperator <= 0 {
		return errors.New("Admission MaxSessionsPerOperator must be > 0")
	}

	// Capture
	if c.Capture.RedisPrefix == "" {
		return errors.New("Capture RedisPrefix must not be empty")
	}
	if c.Capture.SessionTTL <= 0 {
		return errors.New("Capture SessionTTL must be > 0")
	}
	if c.Capture.SweepEnabled && c.Capture.SweepInterval <= 0 {
		return errors.New("Capture SweepInterval must be > 0 when sweeping is enabled")
	}

	// Vault
	if len(c.Vault.Key) == 0 {
		if !c.Vault.AllowEphemeralKey {
			return errors.New("Vault Key is required unless AllowEphemeralKey is true")
		}
	} else if len(c.Vault.Key) != vault.KeySize {
		return errors.New("Vault Key must be exactly 32 bytes")
	}

	// Secret
	if c.Secret.Memory < 8*1024 {
		return errors.New("Secret Memory must be >= 8192 KB")
	}
	if c.Secret.Time < 1 {
		return errors.New("Secret Time must be >= 1")
	}
	if c.Secret.Parallelism < 1 {
		return errors.New("Secret Parallelism must be >= 1")
	}
	if c.Secret.SaltLength < 16 {
		return errors.New("Secret SaltLength must be >= 16")
	}
	if c.Secret.KeyLength < 16 {
		return errors.New("Secret KeyLength must be >= 16")
	}
	if c.Secret.MaxSecretBytes < 0 {
		return errors.New("Secret MaxSecretBytes must be >= 0")
	}

	// Delivery
	if c.Delivery.RedisPrefix == "" {
		return errors.New("Delivery RedisPrefix must not be empty")
	}
	if c.Delivery.LogTTL <= 0 {
		return errors.New("Delivery LogTTL must be > 0")
	}

	// Audit
	if c.Audit.Enabled {
		if c.Audit.BufferSize <= 0 {
			return errors.New("Audit BufferSize must be > 0 when audit is enabled")
		}
	}

	return nil
}

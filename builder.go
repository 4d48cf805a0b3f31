package captivault

import (
	"crypto/rand"
	"encoding/base64"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/captivault/captivault/admission"
	"github.com/captivault/captivault/capture"
	"github.com/captivault/captivault/delivery"
	"github.com/captivault/captivault/password"
	"github.com/captivault/captivault/session"
	"github.com/captivault/captivault/token"
	"github.com/captivault/captivault/vault"
)

// Builder defines a public type used by captivault APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	credentials CredentialProvider
	sender      delivery.Sender
	auditSink   AuditSink

	built bool
}

// New describes the new operation and its observable behavior.
//
// New may return an error when input validation, dependency calls, or security checks fail.
// New does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig may return an error when input validation, dependency calls, or security checks fail.
// WithConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis describes the withredis operation and its observable behavior.
//
// WithRedis may return an error when input validation, dependency calls, or security checks fail.
// WithRedis does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithCredentials describes the withcredentials operation and its observable behavior.
//
// WithCredentials may return an error when input validation, dependency calls, or security checks fail.
// WithCredentials does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithCredentials(provider CredentialProvider) *Builder {
	b.credentials = provider
	return b
}

// WithSender describes the withsender operation and its observable behavior.
//
// WithSender may return an error when input validation, dependency calls, or security checks fail.
// WithSender does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithSender(sender delivery.Sender) *Builder {
	b.sender = sender
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
//
// WithAuditSink may return an error when input validation, dependency calls, or security checks fail.
// WithAuditSink does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled describes the withmetricsenabled operation and its observable behavior.
//
// WithMetricsEnabled may return an error when input validation, dependency calls, or security checks fail.
// WithMetricsEnabled does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms describes the withlatencyhistograms operation and its observable behavior.
//
// WithLatencyHistograms may return an error when input validation, dependency calls, or security checks fail.
// WithLatencyHistograms does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build may return an error when input validation, dependency calls, or security checks fail.
// Build does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.credentials == nil {
		return nil, errors.New("credential provider required")
	}

	// -------- VAULT CIPHER --------
	key := cfg.Vault.Key
	if len(key) == 0 {
		generated, err := vault.GenerateKey()
		if err != nil {
			return nil, err
		}
		key = generated
	}
	cipher, err := vault.New(key)
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:       cloneConfig(cfg),
		credentials:  b.credentials,
		sessionStore: session.NewStore(b.redis, cfg.Session.RedisPrefix),
		admission:    admission.NewController(b.redis, cfg.Admission.RedisPrefix, cfg.Admission.MaxSessionsPerOperator),
		captureStore: capture.NewStore(b.redis, cipher, cfg.Capture.RedisPrefix),
		deliveryLog:  delivery.NewLog(b.redis, cipher, cfg.Delivery.RedisPrefix, cfg.Delivery.LogTTL),
	}

	engine.sender = b.sender
	if engine.sender == nil {
		engine.sender = delivery.LogSender{}
	}
	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	sh, err := password.NewHasher(password.Config{
		Memory:         cfg.Secret.Memory,
		Time:           cfg.Secret.Time,
		Parallelism:    cfg.Secret.Parallelism,
		SaltLength:     cfg.Secret.SaltLength,
		KeyLength:      cfg.Secret.KeyLength,
		MaxSecretBytes: cfg.Secret.MaxSecretBytes,
	})
	if err != nil {
		return nil, err
	}
	engine.secretHash = sh

	decoy, err := newDecoyHash(sh)
	if err != nil {
		return nil, err
	}
	engine.decoyHash = decoy

	tm, err := token.NewManager(token.Config{
		AccessTTL:     cfg.Token.AccessTTL,
		SigningMethod: token.SigningMethod(cfg.Token.SigningMethod),
		PrivateKey:    cloneBytes(cfg.Token.PrivateKey),
		PublicKey:     cloneBytes(cfg.Token.PublicKey),
		Issuer:        cfg.Token.Issuer,
		Audience:      cfg.Token.Audience,
	})
	if err != nil {
		return nil, err
	}
	engine.tokens = tm

	if cfg.Capture.SweepEnabled {
		engine.sweeper = newSweeper(engine, cfg.Capture.SweepInterval)
	}

	b.built = true

	return engine, nil
}

// newDecoyHash hashes a random secret once at construction. The resulting
// hash is what unknown-identifier logins verify against, so lookup misses
// and secret mismatches cost the same.
func newDecoyHash(h *password.Hasher) (string, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return h.Hash(base64.RawStdEncoding.EncodeToString(raw))
}

package captivault

import "context"

// validateCredentials resolves identifier against the credential provider and
// verifies secret against the stored argon2id hash. When the identifier is
// unknown, the secret is verified against a decoy hash generated at engine
// construction so the unknown-identifier path costs the same as a mismatch.
func (e *Engine) validateCredentials(ctx context.Context, identifier, secret string) (OperatorRecord, error) {
	if e.secretHash == nil || e.credentials == nil {
		return OperatorRecord{}, ErrEngineNotReady
	}
	if identifier == "" || secret == "" {
		return OperatorRecord{}, ErrValidationFailed
	}

	operator, lookupErr := e.credentials.GetOperatorByIdentifier(ctx, identifier)
	if lookupErr != nil {
		_, _ = e.secretHash.Verify(secret, e.decoyHash)
		return OperatorRecord{}, ErrInvalidCredentials
	}

	ok, err := e.secretHash.Verify(secret, operator.SecretHash)
	if err != nil || !ok {
		return OperatorRecord{}, ErrInvalidCredentials
	}

	return operator, nil
}

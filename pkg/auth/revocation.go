package auth

import (
	"context"
	"time"
)

// Credential types recorded in the revocation table.
const (
	CredentialAPIKey       = "api_key"
	CredentialSession      = "session"
	CredentialRefreshToken = "refresh_token"
)

// liveNamespaceFor maps a credential type to the namespace holding its live
// records.
func liveNamespaceFor(credType string) string {
	switch credType {
	case CredentialAPIKey:
		return nsAPIKeys
	case CredentialSession:
		return nsSessions
	case CredentialRefreshToken:
		return nsRefreshTokens
	}
	return ""
}

// Revoke writes a revocation record keyed by the SHA-256 of the credential
// and best-effort deletes the credential from its live table. All credential
// types share one revocation namespace.
func (a *Authenticator) Revoke(ctx context.Context, credential, credType string) error {
	record := map[string]any{
		"revoked_at": time.Now().UTC().Format(time.RFC3339),
		"type":       credType,
	}
	if err := a.backend.Set(ctx, nsRevoked, sha256Hex(credential), record); err != nil {
		return err
	}
	if ns := liveNamespaceFor(credType); ns != "" {
		// Best-effort: the revocation record alone is authoritative.
		_ = a.backend.Delete(ctx, ns, credential)
	}
	a.audit(ctx, "credential.revoked", credential, true, map[string]any{"type": credType})
	return nil
}

// IsRevoked checks the revocation record for a credential of the given type.
// Storage errors are treated as not revoked; validation will fail later on
// the live-record lookup if storage is truly down.
func (a *Authenticator) IsRevoked(ctx context.Context, credential, credType string) bool {
	record, ok, err := a.backend.Get(ctx, nsRevoked, sha256Hex(credential))
	if err != nil || !ok {
		return false
	}
	return stringField(record["type"]) == credType
}

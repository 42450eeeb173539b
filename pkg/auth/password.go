package auth

import (
	"context"
	"fmt"
	"time"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	"github.com/hearthd/hearthd/pkg/kernel/errs"
)

// Password policy bounds.
const (
	minPasswordLength = 8
	maxPasswordLength = 128
)

// ValidatePasswordPolicy enforces length 8..128 with at least one uppercase
// letter, one lowercase letter, and one digit. Special characters are
// allowed but not required.
func ValidatePasswordPolicy(password string) error {
	if len(password) < minPasswordLength || len(password) > maxPasswordLength {
		return fmt.Errorf("%w: password must be %d to %d characters", errs.ErrInvalidInput, minPasswordLength, maxPasswordLength)
	}
	var upper, lower, digit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !upper || !lower || !digit {
		return fmt.Errorf("%w: password needs an uppercase letter, a lowercase letter, and a digit", errs.ErrInvalidInput)
	}
	return nil
}

// HashPassword hashes with bcrypt; the salt is random per password, so two
// hashes of the same input differ.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword reports whether password matches hash.
func VerifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// SetPassword validates policy, hashes, and stores the hash on the user
// record.
func (a *Authenticator) SetPassword(ctx context.Context, userID, password string) error {
	if err := ValidatePasswordPolicy(password); err != nil {
		return err
	}

	user, ok, err := a.backend.Get(ctx, nsUsers, userID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: user %q", errs.ErrNotFound, TruncateID(userID))
	}

	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	user["password_hash"] = hash
	user["password_set_at"] = time.Now().UTC().Format(time.RFC3339)
	if err := a.backend.Set(ctx, nsUsers, userID, user); err != nil {
		return err
	}
	a.audit(ctx, "password.set", userID, true, nil)
	return nil
}

// ChangePassword verifies the old password, requires the new one to differ,
// stores the new hash, then revokes every session of the user.
func (a *Authenticator) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	user, ok, err := a.backend.Get(ctx, nsUsers, userID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: user %q", errs.ErrNotFound, TruncateID(userID))
	}

	hash := stringField(user["password_hash"])
	if hash == "" || !VerifyPassword(oldPassword, hash) {
		a.audit(ctx, "password.change", userID, false, map[string]any{"reason": "old password mismatch"})
		return fmt.Errorf("%w: old password does not match", errs.ErrUnauthenticated)
	}
	if oldPassword == newPassword {
		return fmt.Errorf("%w: new password must differ from the old one", errs.ErrInvalidInput)
	}
	if err := ValidatePasswordPolicy(newPassword); err != nil {
		return err
	}

	newHash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	user["password_hash"] = newHash
	user["password_set_at"] = time.Now().UTC().Format(time.RFC3339)
	if err := a.backend.Set(ctx, nsUsers, userID, user); err != nil {
		return err
	}

	a.RevokeUserSessions(ctx, userID)
	a.audit(ctx, "password.change", userID, true, nil)
	return nil
}

// RevokeUserSessions revokes every session belonging to a user. Best-effort:
// sessions that cannot be read are skipped.
func (a *Authenticator) RevokeUserSessions(ctx context.Context, userID string) {
	sessionIDs, err := a.backend.ListKeys(ctx, nsSessions)
	if err != nil {
		a.logger.Warn("failed to list sessions for revocation", "error", err)
		return
	}
	for _, sid := range sessionIDs {
		session, ok, err := a.backend.Get(ctx, nsSessions, sid)
		if err != nil || !ok {
			continue
		}
		if stringField(session["user_id"]) == userID {
			if err := a.Revoke(ctx, sid, CredentialSession); err != nil {
				a.logger.Warn("failed to revoke session", "session", TruncateID(sid), "error", err)
			}
		}
	}
}

package service

import "context"

// IdentityCheck is the outcome reported by the external facial-identity
// system: a gating boolean plus a similarity score. The algorithm itself is
// out of scope; the session pipeline only consumes this contract when a
// student starts a session.
type IdentityCheck struct {
	Verified   bool    `json:"verified"`
	Similarity float64 `json:"similarity"`
}

// IdentityVerifier gates session start.
type IdentityVerifier interface {
	Verify(ctx context.Context, userID int) (IdentityCheck, error)
}

// PassVerifier approves everyone. Used when no identity-verification
// backend is configured.
type PassVerifier struct{}

func (PassVerifier) Verify(ctx context.Context, userID int) (IdentityCheck, error) {
	return IdentityCheck{Verified: true, Similarity: 1}, nil
}

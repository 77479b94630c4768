package gate

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// capabilityClaims is the claim set carried by a capability token: §4.4
// names "scopes" and expiry as the two things CapabilityCheck enforces.
type capabilityClaims struct {
	Scopes []string `json:"scopes"`
	jwt.RegisteredClaims
}

// CapabilityCheck fails if the proposal's capability token is missing,
// expired, or does not grant every scope in RequestedCapabilities. The
// "capability token" named in §4.4 is realized as a signed JWT.
type CapabilityCheck struct {
	Key []byte // HMAC verification key; a real deployment would use an asymmetric key
}

func (CapabilityCheck) Name() string { return "CapabilityCheck" }

func (c CapabilityCheck) Evaluate(_ context.Context, p *Proposal, _ RuleContext) (RuleOutcome, string, error) {
	if len(p.RequestedCapabilities) == 0 {
		return Skip, "", nil
	}
	if p.CapabilityToken == "" {
		return Fail, "capability token missing", nil
	}

	claims := &capabilityClaims{}
	_, err := jwt.ParseWithClaims(p.CapabilityToken, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return c.Key, nil
	})
	if err != nil {
		return Fail, fmt.Sprintf("capability token invalid: %v", err), nil
	}

	granted := make(map[string]bool, len(claims.Scopes))
	for _, s := range claims.Scopes {
		granted[s] = true
	}
	for _, want := range p.RequestedCapabilities {
		if !granted[want] {
			return Fail, fmt.Sprintf("capability token missing scope %q", want), nil
		}
	}
	return Pass, "", nil
}

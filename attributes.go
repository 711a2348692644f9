package magiclink

import (
	"errors"
	"strings"
)

// User attribute names as held by the identity provider.
const (
	AttrEmail         = "email"
	AttrEmailVerified = "email_verified"
	AttrTenantID      = "custom:tenantId"
	AttrRoles         = "custom:roles"
	AttrIsSocial      = "custom:isSocial"
)

var ErrEmailNotVerified = errors.New("email address is not verified")

// CheckPreAuthentication refuses sign-in for users whose email address has
// not been verified.
func CheckPreAuthentication(attrs map[string]string) error {
	if attrs[AttrEmailVerified] != "true" {
		return ErrEmailNotVerified
	}
	return nil
}

// TokenClaims copies custom user attributes onto ID token claims. Empty or
// missing attributes produce no claim.
func TokenClaims(attrs map[string]string) map[string]string {
	claims := make(map[string]string, len(claimAttrs))
	for claim, attr := range claimAttrs {
		if v := attrs[attr]; v != "" {
			claims[claim] = v
		}
	}
	return claims
}

var claimAttrs = map[string]string{
	"tenantId": AttrTenantID,
	"roles":    AttrRoles,
	"isSocial": AttrIsSocial,
}

// RecipientFor returns the delivery address for a user, falling back to the
// username.
func RecipientFor(username string, attrs map[string]string) string {
	if v := strings.TrimSpace(attrs[AttrEmail]); v != "" {
		return v
	}
	return username
}

package models

import "strings"

// CredentialRecord is one entry of a credential store document (spec
// §3, §6). A secret is usable iff present, non-empty after trim, and
// not revoked.
type CredentialRecord struct {
	Secret  *string `json:"secret,omitempty"`
	Revoked bool    `json:"revoked,omitempty"`
}

// Usable reports whether the record carries a live, non-empty secret.
func (c CredentialRecord) Usable() bool {
	if c.Revoked || c.Secret == nil {
		return false
	}
	return strings.TrimSpace(*c.Secret) != ""
}

// Package credentials implements ordered credential resolution (CLI
// flag -> environment variable; resolution does not read the on-disk
// store) and the on-disk
// credential store itself: a JSON document of provider/integration
// secrets, optionally encrypted with a passphrase.
package credentials

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/haasonsaas/tau/internal/timeutil"
	"github.com/haasonsaas/tau/pkg/models"
)

// EncryptionMode selects how the credential store's JSON document is
// protected at rest.
type EncryptionMode string

const (
	EncryptionNone  EncryptionMode = "none"
	EncryptionKeyed EncryptionMode = "keyed"
)

const storeVersion = 1

// document is the on-disk (or decrypted in-memory) shape of the
// credential store: two maps, providers and integrations, of
// CredentialRecord.
type document struct {
	Version      int                                 `json:"version"`
	Providers    map[string]models.CredentialRecord `json:"providers"`
	Integrations map[string]models.CredentialRecord `json:"integrations"`
}

// Store is a loaded credential document bound to a path and
// encryption mode. Reads take a shared read lock; writes are expected to be
// single-threaded (driven from CLI admin commands) and go through
// write-temp-then-rename.
type Store struct {
	mu         sync.RWMutex
	path       string
	mode       EncryptionMode
	passphrase string
	doc        document
}

// Load opens the credential store at path, decrypting it if mode is
// EncryptionKeyed. A missing file yields an empty, initialized store.
func Load(path string, mode EncryptionMode, passphrase string) (*Store, error) {
	s := &Store{path: path, mode: mode, passphrase: passphrase, doc: document{
		Version:      storeVersion,
		Providers:    map[string]models.CredentialRecord{},
		Integrations: map[string]models.CredentialRecord{},
	}}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("credentials: read %s: %w", path, err)
	}

	plain := raw
	if mode == EncryptionKeyed {
		plain, err = decrypt(raw, passphrase)
		if err != nil {
			return nil, fmt.Errorf("credentials: decrypt %s: %w", path, err)
		}
	}

	var doc document
	if err := json.Unmarshal(plain, &doc); err != nil {
		return nil, fmt.Errorf("credentials: parse %s: %w", path, err)
	}
	if doc.Providers == nil {
		doc.Providers = map[string]models.CredentialRecord{}
	}
	if doc.Integrations == nil {
		doc.Integrations = map[string]models.CredentialRecord{}
	}
	s.doc = doc
	return s, nil
}

// Save writes the store back to disk via write-temp-then-rename,
// encrypting first if the store's mode is EncryptionKeyed.
func (s *Store) Save() error {
	s.mu.RLock()
	doc := s.doc
	s.mu.RUnlock()

	plain, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("credentials: marshal: %w", err)
	}

	out := plain
	if s.mode == EncryptionKeyed {
		out, err = encrypt(plain, s.passphrase)
		if err != nil {
			return fmt.Errorf("credentials: encrypt: %w", err)
		}
	}
	return timeutil.WriteFileAtomic(s.path, out, 0o600)
}

// ProviderCredential returns the stored credential for a provider, if
// any entry exists (present or not does not imply usable; call
// CredentialRecord.Usable on the result).
func (s *Store) ProviderCredential(provider string) (models.CredentialRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.doc.Providers[provider]
	return rec, ok
}

// IntegrationCredential returns the stored credential for an
// integration (e.g. a transport bridge), if any entry exists.
func (s *Store) IntegrationCredential(integration string) (models.CredentialRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.doc.Integrations[integration]
	return rec, ok
}

// SetProviderCredential sets or replaces a provider credential entry.
func (s *Store) SetProviderCredential(provider string, rec models.CredentialRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Providers[provider] = rec
}

// SetIntegrationCredential sets or replaces an integration credential entry.
func (s *Store) SetIntegrationCredential(integration string, rec models.CredentialRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Integrations[integration] = rec
}

// RevokeProviderCredential marks a provider credential revoked without
// deleting the secret, so Usable() reports false while history is
// retained for audit.
func (s *Store) RevokeProviderCredential(provider string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.doc.Providers[provider]; ok {
		rec.Revoked = true
		s.doc.Providers[provider] = rec
	}
}

// trimmedOrEmpty normalizes candidate resolution: candidates compete by
// their trimmed value, so a whitespace-only candidate never wins and an
// untrimmed one wins in trimmed form.
func trimmedOrEmpty(v string) string {
	return strings.TrimSpace(v)
}

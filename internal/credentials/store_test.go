package credentials

import (
	"path/filepath"
	"testing"

	"github.com/haasonsaas/tau/pkg/models"
)

func TestStoreRoundTripPlaintext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.json")
	store, err := Load(path, EncryptionNone, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	secret := "sk-test-123"
	store.SetProviderCredential("openai", models.CredentialRecord{Secret: &secret})
	if err := store.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded, err := Load(path, EncryptionNone, "")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	rec, ok := reloaded.ProviderCredential("openai")
	if !ok || rec.Secret == nil || *rec.Secret != secret {
		t.Fatalf("ProviderCredential = %+v, ok=%v", rec, ok)
	}
}

func TestStoreRoundTripKeyed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.enc")
	store, err := Load(path, EncryptionKeyed, "correct horse battery staple")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	secret := "top-secret"
	store.SetIntegrationCredential("slack", models.CredentialRecord{Secret: &secret})
	if err := store.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded, err := Load(path, EncryptionKeyed, "correct horse battery staple")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	rec, ok := reloaded.IntegrationCredential("slack")
	if !ok || rec.Secret == nil || *rec.Secret != secret {
		t.Fatalf("IntegrationCredential = %+v, ok=%v", rec, ok)
	}

	if _, err := Load(path, EncryptionKeyed, "wrong passphrase"); err == nil {
		t.Fatal("expected decrypt error with wrong passphrase")
	}
}

func TestRevokeProviderCredentialMakesItUnusable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.json")
	store, err := Load(path, EncryptionNone, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	secret := "sk-test"
	store.SetProviderCredential("anthropic", models.CredentialRecord{Secret: &secret})
	store.RevokeProviderCredential("anthropic")

	rec, ok := store.ProviderCredential("anthropic")
	if !ok {
		t.Fatal("expected credential entry to still exist after revoke")
	}
	if rec.Usable() {
		t.Fatal("expected revoked credential to be unusable")
	}
}

func TestCredentialRecordUsable(t *testing.T) {
	empty := ""
	blank := "   "
	secret := "abc"
	cases := []struct {
		name string
		rec  models.CredentialRecord
		want bool
	}{
		{"nil secret", models.CredentialRecord{}, false},
		{"empty secret", models.CredentialRecord{Secret: &empty}, false},
		{"whitespace secret", models.CredentialRecord{Secret: &blank}, false},
		{"revoked", models.CredentialRecord{Secret: &secret, Revoked: true}, false},
		{"usable", models.CredentialRecord{Secret: &secret}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.rec.Usable(); got != tc.want {
				t.Fatalf("Usable() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestResolveOrderedCandidates(t *testing.T) {
	candidates := CandidateList("", "", []Candidate{
		{Source: "env:OPENAI_API_KEY", Value: ""},
		{Source: "env:OPENAI_KEY", Value: "  from-provider-env  "},
	}, Candidate{Source: "env:TAU_API_KEY", Value: "from-generic-env"})

	resolution, err := Resolve("openai", candidates)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolution.Secret != "from-provider-env" {
		t.Fatalf("Secret = %q, want %q", resolution.Secret, "from-provider-env")
	}
	if resolution.Source != "env:OPENAI_KEY" {
		t.Fatalf("Source = %q, want %q", resolution.Source, "env:OPENAI_KEY")
	}
}

func TestResolveNoneUsable(t *testing.T) {
	_, err := Resolve("openai", []Candidate{{Source: "cli:flag", Value: "  "}})
	if err == nil {
		t.Fatal("expected ErrNoUsableCredential")
	}
	var notUsable *ErrNoUsableCredential
	if !asErrNoUsableCredential(err, &notUsable) {
		t.Fatalf("err = %v, want *ErrNoUsableCredential", err)
	}
}

func asErrNoUsableCredential(err error, target **ErrNoUsableCredential) bool {
	e, ok := err.(*ErrNoUsableCredential)
	if ok {
		*target = e
	}
	return ok
}

package credentials

import "fmt"

// Candidate is one entry in a provider's ordered credential search
// path: a human-readable source label plus the raw (untrimmed) value
// found there, if any.
type Candidate struct {
	Source string
	Value  string
}

// Resolution is the outcome of resolving a provider's credential
// candidate list: the winning trimmed secret and the source it came
// from, for logging.
type Resolution struct {
	Secret string
	Source string
}

// ErrNoUsableCredential is returned when no candidate in the ordered
// list yields a non-empty, trimmed value.
type ErrNoUsableCredential struct {
	Provider string
}

func (e *ErrNoUsableCredential) Error() string {
	return fmt.Sprintf("credentials: no usable credential for provider %q", e.Provider)
}

// Resolve walks candidates in order (per-provider CLI flag -> generic
// CLI flag -> provider-specific env vars -> generic env var, as built
// by the caller) and returns the first non-empty, trimmed value.
func Resolve(provider string, candidates []Candidate) (Resolution, error) {
	for _, c := range candidates {
		v := trimmedOrEmpty(c.Value)
		if v != "" {
			return Resolution{Secret: v, Source: c.Source}, nil
		}
	}
	return Resolution{}, &ErrNoUsableCredential{Provider: provider}
}

// CandidateList builds the standard ordered candidate list for a
// provider: a per-provider CLI flag value, a generic CLI flag value,
// one or more provider-specific env var values, and a generic env var
// value, in that precedence order. Empty entries are still included
// (with an empty Value) so the source label survives for logging even
// when nothing won.
func CandidateList(perProviderFlag, genericFlag string, providerEnvVars []Candidate, genericEnvVar Candidate) []Candidate {
	candidates := make([]Candidate, 0, 3+len(providerEnvVars))
	candidates = append(candidates, Candidate{Source: "cli:provider-flag", Value: perProviderFlag})
	candidates = append(candidates, Candidate{Source: "cli:generic-flag", Value: genericFlag})
	candidates = append(candidates, providerEnvVars...)
	candidates = append(candidates, genericEnvVar)
	return candidates
}

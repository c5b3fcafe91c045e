package rdapclient

import "strings"

// RedactionPolicy controls which vCard fields the redactor scrubs (§4.6,
// §6.4 privacy section).
type RedactionPolicy struct {
	Enabled     bool
	Fields      []string
	Replacement string
}

// DefaultRedactionPolicy matches §4.6's stated defaults.
func DefaultRedactionPolicy() RedactionPolicy {
	return RedactionPolicy{
		Enabled:     true,
		Fields:      []string{"email", "tel", "phone", "fax", "adr"},
		Replacement: "[REDACTED]",
	}
}

// Redact returns a structurally fresh CanonicalResponse with every vCard
// field (recursively, across nested entities) whose name contains a policy
// field name (case-insensitive) replaced in its value slot. The input is
// never mutated; redact is idempotent and, with an empty field list or a
// disabled policy, the identity up to structural equivalence (§4.6, §8).
func Redact(resp CanonicalResponse, policy RedactionPolicy) CanonicalResponse {
	out := resp.deepCopy()
	if !policy.Enabled || len(policy.Fields) == 0 {
		return out
	}
	for i := range out.Entities {
		out.Entities[i] = redactEntity(out.Entities[i], policy)
	}
	return out
}

func redactEntity(e CanonicalEntity, policy RedactionPolicy) CanonicalEntity {
	for i := range e.VCard {
		if matchesAnyField(e.VCard[i].Name, policy.Fields) {
			e.VCard[i].Value = policy.Replacement
		}
	}
	for i := range e.Entities {
		e.Entities[i] = redactEntity(e.Entities[i], policy)
	}
	return e
}

func matchesAnyField(name string, fields []string) bool {
	n := strings.ToLower(name)
	for _, f := range fields {
		if strings.Contains(n, strings.ToLower(f)) {
			return true
		}
	}
	return false
}

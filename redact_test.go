package rdapclient

import "testing"

func sampleEntityWithContact() CanonicalEntity {
	return CanonicalEntity{
		Handle: "REG-1",
		Roles:  []string{"registrant"},
		VCard: []VCardField{
			{Name: "fn", Type: "text", Value: "Jane Doe"},
			{Name: "email", Type: "text", Value: "jane@example.com"},
			{Name: "tel", Type: "text", Value: "+1.5551234567"},
		},
		Entities: []CanonicalEntity{
			{
				Handle: "ABUSE-1",
				Roles:  []string{"abuse"},
				VCard: []VCardField{
					{Name: "email", Type: "text", Value: "abuse@example.com"},
				},
			},
		},
	}
}

func TestRedact_ScrubsMatchingFieldsRecursively(t *testing.T) {
	resp := CanonicalResponse{Entities: []CanonicalEntity{sampleEntityWithContact()}}
	out := Redact(resp, DefaultRedactionPolicy())

	top := out.Entities[0]
	for _, f := range top.VCard {
		if f.Name == "email" || f.Name == "tel" {
			if f.Value != "[REDACTED]" {
				t.Fatalf("field %q not redacted: %v", f.Name, f.Value)
			}
		}
		if f.Name == "fn" && f.Value != "Jane Doe" {
			t.Fatalf("fn should not be redacted: %v", f.Value)
		}
	}

	nested := top.Entities[0]
	if nested.VCard[0].Value != "[REDACTED]" {
		t.Fatalf("nested entity email not redacted: %v", nested.VCard[0].Value)
	}
}

func TestRedact_DoesNotMutateInput(t *testing.T) {
	resp := CanonicalResponse{Entities: []CanonicalEntity{sampleEntityWithContact()}}
	before := resp.Entities[0].VCard[1].Value

	Redact(resp, DefaultRedactionPolicy())

	if resp.Entities[0].VCard[1].Value != before {
		t.Fatalf("redact mutated its input: %v != %v", resp.Entities[0].VCard[1].Value, before)
	}
}

func TestRedact_Idempotent(t *testing.T) {
	resp := CanonicalResponse{Entities: []CanonicalEntity{sampleEntityWithContact()}}
	once := Redact(resp, DefaultRedactionPolicy())
	twice := Redact(once, DefaultRedactionPolicy())

	for i := range once.Entities[0].VCard {
		if once.Entities[0].VCard[i].Value != twice.Entities[0].VCard[i].Value {
			t.Fatalf("redact not idempotent at field %d", i)
		}
	}
}

func TestRedact_NoMatchIsIdentity(t *testing.T) {
	resp := CanonicalResponse{Entities: []CanonicalEntity{{
		Handle: "X",
		VCard:  []VCardField{{Name: "fn", Value: "Jane Doe"}},
	}}}
	out := Redact(resp, DefaultRedactionPolicy())
	if out.Entities[0].VCard[0].Value != "Jane Doe" {
		t.Fatalf("identity expected for non-matching fields, got %v", out.Entities[0].VCard[0].Value)
	}
}

func TestRedact_DisabledPolicyIsIdentity(t *testing.T) {
	resp := CanonicalResponse{Entities: []CanonicalEntity{sampleEntityWithContact()}}
	policy := DefaultRedactionPolicy()
	policy.Enabled = false
	out := Redact(resp, policy)
	if out.Entities[0].VCard[1].Value != "jane@example.com" {
		t.Fatalf("disabled policy should not redact, got %v", out.Entities[0].VCard[1].Value)
	}
}

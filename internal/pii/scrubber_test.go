package pii

import "testing"

func TestScrubEmail(t *testing.T) {
	got := Scrub("contact jane.doe@example.com for help", false)
	if got == "contact jane.doe@example.com for help" {
		t.Fatalf("expected email to be redacted, got %q", got)
	}
}

func TestScrubSSN(t *testing.T) {
	got := Scrub("ssn is 123-45-6789", false)
	if got != "ssn is [SSN]" {
		t.Fatalf("unexpected scrub result: %q", got)
	}
}

func TestScrubCreditCard(t *testing.T) {
	got := Scrub("card 4111 1111 1111 1111 on file", false)
	if got != "card [CREDIT_CARD] on file" {
		t.Fatalf("unexpected scrub result: %q", got)
	}
}

func TestScrubKeyOnlyWhenHinted(t *testing.T) {
	long := "abcdefghijklmnopqrstuvwxyz0123456789AB"
	withHint := Scrub("api_key="+long, true)
	if withHint == "api_key="+long {
		t.Fatalf("expected token to be redacted when hinted")
	}
	withoutHint := Scrub(long, false)
	if withoutHint != long {
		t.Fatalf("expected no redaction without hint, got %q", withoutHint)
	}
}

func TestScrubAnyRecursesIntoMaps(t *testing.T) {
	in := map[string]any{
		"email": "user@example.com",
		"nested": map[string]any{
			"token": "zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz",
		},
	}
	out := ScrubAny(in).(map[string]any)
	if out["email"] == in["email"] {
		t.Fatalf("expected top-level email to be scrubbed")
	}
	nested := out["nested"].(map[string]any)
	if nested["token"] == "zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz" {
		t.Fatalf("expected nested token to be scrubbed")
	}
}

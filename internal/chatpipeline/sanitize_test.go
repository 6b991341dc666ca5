package chatpipeline

import "testing"

func TestSanitizeStripsKnownHeadings(t *testing.T) {
	input := "respuesta\n**Resumen:**\nmás texto\n## Fuentes\n- a\n- b"
	out := Sanitize(input)
	if out == input {
		t.Fatalf("expected headings to be stripped")
	}
	if containsAny(out, "**Resumen:**", "## Fuentes") {
		t.Fatalf("expected no heading markers left, got %q", out)
	}
}

func TestSanitizeCollapsesLongBlankRuns(t *testing.T) {
	input := "first\n\n\n\n\nsecond"
	out := Sanitize(input)
	if out != "first\n\nsecond" {
		t.Fatalf("expected blank runs of 3+ to collapse to exactly two, got %q", out)
	}
}

func TestSanitizeLeavesOrdinaryContentUnchanged(t *testing.T) {
	input := "Hola, ¿cómo estás?\n\nTodo bien."
	if out := Sanitize(input); out != input {
		t.Fatalf("expected ordinary content to pass through unchanged, got %q", out)
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		for i := 0; i+len(sub) <= len(s); i++ {
			if s[i:i+len(sub)] == sub {
				return true
			}
		}
	}
	return false
}

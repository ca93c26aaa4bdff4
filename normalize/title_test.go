package normalize

import (
	"strings"
	"testing"
)

func TestTitle(t *testing.T) {
	tests := []struct {
		name  string
		title string
		want  string
	}{
		{"wikipedia dash suffix", "Photosynthese – Wikipedia", "Photosynthese"},
		{"hyphen suffix", "Photosynthese - Wikipedia", "Photosynthese"},
		{"pipe suffix", "Bruchrechnung | Serlo", "Bruchrechnung"},
		{"double colon suffix", "Der Wasserkreislauf :: Planet Schule", "Der Wasserkreislauf"},
		{"parenthesized publisher", "Die Zelle (Klexikon)", "Die Zelle"},
		{"parenthesized domain", "Lineare Funktionen (serlo.org)", "Lineare Funktionen"},
		{"ampersand becomes space", "Säuren & Basen", "Säuren Basen"},
		{"collapses whitespace", "  Addition   und  Subtraktion ", "Addition und Subtraktion"},
		{"no suffix unchanged", "Der Satz des Pythagoras", "Der Satz des Pythagoras"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Title(tt.title)
			if got != tt.want {
				t.Errorf("Title(%q) = %q, want %q", tt.title, got, tt.want)
			}
			if again := Title(got); again != got {
				t.Errorf("Title not idempotent: %q -> %q", got, again)
			}
		})
	}
}

func TestTitleVariants(t *testing.T) {
	t.Run("input comes first", func(t *testing.T) {
		variants := TitleVariants("Römisches Reich")
		if len(variants) == 0 || variants[0] != "Römisches Reich" {
			t.Fatalf("first variant must be the input, got %v", variants)
		}
	})

	t.Run("umlaut folding", func(t *testing.T) {
		variants := TitleVariants("Säuren und Basen")
		if !containsString(variants, "Saeuren und Basen") {
			t.Errorf("missing umlaut-folded variant: %v", variants)
		}
	})

	t.Run("hyphen handling", func(t *testing.T) {
		variants := TitleVariants("Foto-Synthese")
		for _, want := range []string{"FotoSynthese", "Foto Synthese"} {
			if !containsString(variants, want) {
				t.Errorf("missing %q: %v", want, variants)
			}
		}
	})

	t.Run("umlauts survive the alphanumeric variant", func(t *testing.T) {
		variants := TitleVariants("Säuren, Basen!")
		if !containsString(variants, "Säuren Basen") {
			t.Errorf("missing punctuation-stripped variant: %v", variants)
		}
		for _, v := range variants {
			if strings.Contains(v, "S uren") {
				t.Errorf("umlaut shredded in variant %q", v)
			}
		}
	})

	t.Run("adjective ending stripped", func(t *testing.T) {
		variants := TitleVariants("Das kleine Haus")
		if !containsString(variants, "Das klein Haus") {
			t.Errorf("missing adjective-stripped variant: %v", variants)
		}
	})

	t.Run("lowercase variant", func(t *testing.T) {
		variants := TitleVariants("Römisches Reich")
		if !containsString(variants, "römisches reich") {
			t.Errorf("missing lowercase variant: %v", variants)
		}
	})

	t.Run("no duplicate variants", func(t *testing.T) {
		variants := TitleVariants("wasser")
		seen := make(map[string]bool)
		for _, v := range variants {
			if seen[v] {
				t.Errorf("duplicate variant %q", v)
			}
			seen[v] = true
		}
	})

	t.Run("empty", func(t *testing.T) {
		if got := TitleVariants(""); got != nil {
			t.Errorf("expected nil, got %v", got)
		}
	})
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

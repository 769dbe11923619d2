package alias

import (
	"strings"
	"testing"
)

func TestGenerate_LengthAndAlphabet(t *testing.T) {
	iss := NewIssuer(6)
	for n := 0; n < 100; n++ {
		code, err := iss.Generate()
		if err != nil {
			t.Fatalf("Generate() error: %v", err)
		}
		if len(code) != 6 {
			t.Fatalf("expected length 6, got %q", code)
		}
		for _, c := range code {
			if !strings.ContainsRune(alphabet, c) {
				t.Fatalf("code %q contains %q outside the alphabet", code, c)
			}
		}
	}
}

func TestGenerate_DefaultLength(t *testing.T) {
	iss := NewIssuer(0)
	code, err := iss.Generate()
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if len(code) != DefaultLength {
		t.Errorf("expected default length %d, got %d", DefaultLength, len(code))
	}
}

func TestGenerate_Varies(t *testing.T) {
	iss := NewIssuer(8)
	seen := make(map[string]bool)
	for n := 0; n < 50; n++ {
		code, err := iss.Generate()
		if err != nil {
			t.Fatalf("Generate() error: %v", err)
		}
		seen[code] = true
	}
	// 50 draws from a 31^8 space colliding down to a handful would mean a
	// broken generator.
	if len(seen) < 45 {
		t.Errorf("expected near-unique codes, got %d distinct of 50", len(seen))
	}
}

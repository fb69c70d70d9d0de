package phone

import (
	"errors"
	"testing"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"5551234567":        "+15551234567",
		"15551234567":       "+15551234567",
		"+1 (555) 123-4567": "+15551234567",
		"555.123.4567":      "+15551234567",
		" +15551234567 ":    "+15551234567",
		"tel:+15551234567":  "+15551234567",
	}
	for in, want := range cases {
		got, err := Normalize(in)
		if err != nil {
			t.Errorf("Normalize(%q) returned error: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeRejectsShortInput(t *testing.T) {
	for _, in := range []string{"", "   ", "12345", "call me"} {
		if _, err := Normalize(in); !errors.Is(err, ErrInvalid) {
			t.Errorf("Normalize(%q) error = %v, want ErrInvalid", in, err)
		}
	}
}

func TestMask(t *testing.T) {
	if got := Mask("+15551234567"); got != "+1555***4567" {
		t.Errorf("Mask = %q", got)
	}
}

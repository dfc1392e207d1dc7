package units

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"

	"github.com/slimefarm/ledger-engine/internal/fault"
)

func TestParseTokens(t *testing.T) {
	v, err := ParseTokens("100")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Dec() != "100000000000000000000" {
		t.Errorf("expected 100e18, got %s", v.Dec())
	}

	v, err = ParseTokens("0.000000000000000001")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v.Eq(uint256.NewInt(1)) {
		t.Errorf("expected 1 base unit, got %s", v.Dec())
	}
}

func TestParseTokens_Rejects(t *testing.T) {
	for _, in := range []string{"abc", "-1", "0.0000000000000000001"} {
		if _, err := ParseTokens(in); !errors.Is(err, fault.ErrInvalidAmount) {
			t.Errorf("%q: expected ErrInvalidAmount, got %v", in, err)
		}
	}
}

func TestFormatTokens(t *testing.T) {
	if got := FormatTokens(Tokens(2000)); got != "2000" {
		t.Errorf("expected 2000, got %s", got)
	}
	if got := FormatTokens(MustParse("1.25")); got != "1.25" {
		t.Errorf("expected 1.25, got %s", got)
	}
	if got := FormatTokens(uint256.Int{}); got != "0" {
		t.Errorf("expected 0, got %s", got)
	}
}

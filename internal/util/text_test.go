package util

import "testing"

func TestNormalizeName(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{name: "collapse spaces", input: "  CORP-Network   -EMEA ", want: "corp-network -emea"},
		{name: "nbsp", input: "[SR HS PL] Laptop  Prod", want: "[sr hs pl] laptop prod"},
		{name: "tabs and newlines", input: "IM\tDS\nUA", want: "im ds ua"},
		{name: "fullwidth", input: "ＣＯＲＰ", want: "corp"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NormalizeName(tc.input); got != tc.want {
				t.Fatalf("got %q want %q", got, tc.want)
			}
		})
	}
}

func TestTokenize(t *testing.T) {
	got := Tokenize("[SR HS PL IT] Software incident-solving")
	want := []string{"sr", "hs", "pl", "it", "software", "incident", "solving"}
	if len(got) != len(want) {
		t.Fatalf("len=%d tokens=%v", len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("token %d: got %q want %q", i, got[i], want[i])
		}
	}
}

func TestDiceCoefficient(t *testing.T) {
	if DiceCoefficient("network", "network") != 1 {
		t.Fatal("identical strings must score 1")
	}
	if DiceCoefficient("", "network") != 0 {
		t.Fatal("empty string must score 0")
	}
	if s := DiceCoefficient("network emea", "network emia"); s < 0.7 || s >= 1 {
		t.Fatalf("unexpected score %v", s)
	}
}

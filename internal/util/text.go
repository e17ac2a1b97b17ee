package util

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

var (
	reSpaces    = regexp.MustCompile(`\s+`)
	reTokenSep  = regexp.MustCompile(`[^\p{L}\p{N}]+`)
	nbspReplace = strings.NewReplacer("\u00A0", " ", "\u2007", " ", "\u202F", " ")
)

// NormalizeSpaces trims and collapses every whitespace run to one space.
func NormalizeSpaces(input string) string {
	return strings.TrimSpace(reSpaces.ReplaceAllString(nbspReplace.Replace(input), " "))
}

// FoldCase applies Unicode case folding. Casers keep state, so each call
// builds its own.
func FoldCase(input string) string {
	return cases.Fold().String(input)
}

func Lower(input string) string { return cases.Lower(language.Und).String(input) }

func Upper(input string) string { return cases.Upper(language.Und).String(input) }

func Title(input string) string { return cases.Title(language.Und, cases.NoLower).String(input) }

// NormalizeName is the comparison key for offering names: NFKC, case folded,
// control characters dropped, whitespace collapsed.
func NormalizeName(input string) string {
	s := norm.NFKC.String(input)
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	return NormalizeSpaces(FoldCase(s))
}

// Tokenize splits on anything that is not a letter or digit and case folds
// each token.
func Tokenize(input string) []string {
	parts := reTokenSep.Split(FoldCase(norm.NFKC.String(input)), -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func DiceCoefficient(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	pairs := func(s string) []string {
		r := []rune(s)
		if len(r) < 2 {
			return nil
		}
		out := make([]string, 0, len(r)-1)
		for i := 0; i < len(r)-1; i++ {
			out = append(out, string(r[i:i+2]))
		}
		return out
	}

	aPairs := pairs(a)
	bPairs := pairs(b)
	if len(aPairs) == 0 || len(bPairs) == 0 {
		return 0
	}

	bCount := map[string]int{}
	for _, p := range bPairs {
		bCount[p]++
	}
	inter := 0
	for _, p := range aPairs {
		if bCount[p] > 0 {
			inter++
			bCount[p]--
		}
	}

	return float64(2*inter) / float64(len(aPairs)+len(bPairs))
}

func StringPtr(v string) *string { return &v }


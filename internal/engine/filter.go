package engine

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/malgorzata-bondini/offerings-app/internal"
	"github.com/malgorzata-bondini/offerings-app/internal/util"
)

type MatchMode string

const (
	ModeSubstring MatchMode = "substring"
	ModeToken     MatchMode = "token"
	ModeExact     MatchMode = "exact"
)

type Clause struct {
	Field   string
	Keyword string
	Mode    MatchMode
}

type RuleKind uint8

// KindAnd is the zero kind, so Rule{} is an empty AND group and matches
// every record. An empty OR group matches nothing.
const (
	KindAnd RuleKind = iota
	KindOr
	KindNot
	KindLeaf
)

func (k RuleKind) String() string {
	switch k {
	case KindAnd:
		return "and"
	case KindOr:
		return "or"
	case KindNot:
		return "not"
	case KindLeaf:
		return "leaf"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

type Rule struct {
	Kind     RuleKind
	Clause   Clause
	Children []Rule
}

func Leaf(field, keyword string, mode MatchMode) Rule {
	return Rule{Kind: KindLeaf, Clause: Clause{Field: field, Keyword: keyword, Mode: mode}}
}

func And(children ...Rule) Rule { return Rule{Kind: KindAnd, Children: children} }

func Or(children ...Rule) Rule { return Rule{Kind: KindOr, Children: children} }

func Not(child Rule) Rule { return Rule{Kind: KindNot, Children: []Rule{child}} }

// IsEmpty reports whether the rule is an AND group without children.
func (r Rule) IsEmpty() bool {
	return r.Kind == KindAnd && len(r.Children) == 0
}

// Matches evaluates rule against record. It never panics and never fails:
// a clause on a missing field is false, malformed nodes are false.
func Matches(record internal.CandidateRecord, rule Rule) bool {
	switch rule.Kind {
	case KindLeaf:
		return matchClause(record, rule.Clause)
	case KindAnd:
		for _, child := range rule.Children {
			if !Matches(record, child) {
				return false
			}
		}
		return true
	case KindOr:
		for _, child := range rule.Children {
			if Matches(record, child) {
				return true
			}
		}
		return false
	case KindNot:
		if len(rule.Children) != 1 {
			return false
		}
		return !Matches(record, rule.Children[0])
	default:
		return false
	}
}

func matchClause(record internal.CandidateRecord, c Clause) bool {
	value, ok := record.Get(c.Field)
	if !ok {
		return false
	}
	keyword := strings.TrimSpace(c.Keyword)
	if keyword == "" {
		return false
	}

	switch c.Mode {
	case "", ModeSubstring:
		return strings.Contains(util.FoldCase(value), util.FoldCase(keyword))
	case ModeToken:
		return containsTokenRun(util.Tokenize(value), util.Tokenize(keyword))
	case ModeExact:
		return util.NormalizeName(value) == util.NormalizeName(keyword)
	default:
		return false
	}
}

func containsTokenRun(haystack, needle []string) bool {
	if len(needle) == 0 || len(needle) > len(haystack) {
		return false
	}
outer:
	for i := 0; i+len(needle) <= len(haystack); i++ {
		for j := range needle {
			if haystack[i+j] != needle[j] {
				continue outer
			}
		}
		return true
	}
	return false
}

// ValidateRule checks the tree shape once, before a run starts.
func ValidateRule(rule Rule) error {
	return validateRule(rule, "root")
}

func validateRule(rule Rule, path string) error {
	switch rule.Kind {
	case KindLeaf:
		if len(rule.Children) > 0 {
			return configErrorf("filter", path, "leaf must not have children")
		}
		if strings.TrimSpace(rule.Clause.Field) == "" {
			return configErrorf("filter", path, "clause field is empty")
		}
		if strings.TrimSpace(rule.Clause.Keyword) == "" {
			return configErrorf("filter", path, "clause keyword is empty")
		}
		switch rule.Clause.Mode {
		case "", ModeSubstring, ModeToken, ModeExact:
		default:
			return configErrorf("filter", path, "unknown match mode %q", rule.Clause.Mode)
		}
		return nil
	case KindNot:
		if len(rule.Children) != 1 {
			return configErrorf("filter", path, "not group needs exactly one child, got %d", len(rule.Children))
		}
	case KindAnd, KindOr:
		if rule.Clause != (Clause{}) {
			return configErrorf("filter", path, "%s group must not carry a clause", rule.Kind)
		}
	default:
		return configErrorf("filter", path, "unknown rule kind %s", rule.Kind)
	}
	for i, child := range rule.Children {
		if err := validateRule(child, fmt.Sprintf("%s.%s[%d]", path, rule.Kind, i)); err != nil {
			return err
		}
	}
	return nil
}

var (
	reAndSplit     = regexp.MustCompile(`(?i)\s+and\s+`)
	reKeywordSplit = regexp.MustCompile(`[,;\n]+`)
)

// ParseKeywords turns a keyword expression into a rule over fields.
// "a AND b" requires every keyword; "a, b; c" or one keyword per line
// accepts any. Each keyword matches when it appears in any of the fields.
// A blank expression yields the empty AND group.
func ParseKeywords(fields []string, expr string, mode MatchMode) Rule {
	expr = strings.TrimSpace(expr)
	if expr == "" || len(fields) == 0 {
		return And()
	}

	var parts []string
	useAnd := reAndSplit.MatchString(expr)
	if useAnd {
		parts = reAndSplit.Split(expr, -1)
	} else {
		parts = reKeywordSplit.Split(expr, -1)
	}

	children := make([]Rule, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		children = append(children, keywordRule(fields, p, mode))
	}

	switch {
	case len(children) == 0:
		return And()
	case len(children) == 1:
		return children[0]
	case useAnd:
		return And(children...)
	default:
		return Or(children...)
	}
}

func keywordRule(fields []string, keyword string, mode MatchMode) Rule {
	if len(fields) == 1 {
		return Leaf(fields[0], keyword, mode)
	}
	leaves := make([]Rule, 0, len(fields))
	for _, f := range fields {
		leaves = append(leaves, Leaf(f, keyword, mode))
	}
	return Or(leaves...)
}

package engine

import (
	"sort"
	"strings"

	"github.com/malgorzata-bondini/offerings-app/internal/util"
)

type Strictness string

const (
	// StrictExact compares case-folded, whitespace-collapsed names.
	StrictExact Strictness = "exact"
	// StrictTokenSet also treats names with the same set of tokens as equal.
	StrictTokenSet Strictness = "token-set"
	// StrictFuzzy adds token-set equality and treats names whose bigram
	// similarity reaches Threshold as equal.
	StrictFuzzy Strictness = "fuzzy"
)

const DefaultFuzzyThreshold = 0.92

type DedupeOptions struct {
	Strictness Strictness
	Threshold  float64
}

func (o DedupeOptions) normalized() DedupeOptions {
	if o.Strictness == "" {
		o.Strictness = StrictExact
	}
	if o.Strictness == StrictFuzzy && o.Threshold == 0 {
		o.Threshold = DefaultFuzzyThreshold
	}
	return o
}

func ValidateDedupe(o DedupeOptions) error {
	o = o.normalized()
	switch o.Strictness {
	case StrictExact, StrictTokenSet:
	case StrictFuzzy:
		if o.Threshold <= 0 || o.Threshold > 1 {
			return configErrorf("dedupe", string(o.Strictness), "threshold %v outside (0, 1]", o.Threshold)
		}
	default:
		return configErrorf("dedupe", string(o.Strictness), "unknown strictness")
	}
	return nil
}

// Index is a set of known offering names. Lookups always use the exact
// normalized key; the token-set and fuzzy modes add their own probes.
type Index struct {
	opts     DedupeOptions
	exact    map[string]string
	tokenSet map[string]string
	ordered  []string
}

func NewIndex(names []string, opts DedupeOptions) (*Index, error) {
	if err := ValidateDedupe(opts); err != nil {
		return nil, err
	}
	idx := &Index{
		opts:     opts.normalized(),
		exact:    make(map[string]string, len(names)),
		tokenSet: map[string]string{},
	}
	for _, n := range names {
		if util.NormalizeName(n) == "" {
			continue
		}
		idx.add(n)
	}
	return idx, nil
}

func (x *Index) Len() int { return len(x.exact) }

func (x *Index) Strictness() Strictness { return x.opts.Strictness }

// Clone returns an independent copy; registering on the copy leaves the
// original untouched.
func (x *Index) Clone() *Index {
	c := &Index{
		opts:     x.opts,
		exact:    make(map[string]string, len(x.exact)),
		tokenSet: make(map[string]string, len(x.tokenSet)),
		ordered:  append([]string(nil), x.ordered...),
	}
	for k, v := range x.exact {
		c.exact[k] = v
	}
	for k, v := range x.tokenSet {
		c.tokenSet[k] = v
	}
	return c
}

// add stores name under its normalized key. A blank name is kept under the
// empty key so Register and IsDuplicate agree on it too.
func (x *Index) add(name string) {
	key := util.NormalizeName(name)
	if _, ok := x.exact[key]; ok {
		return
	}
	x.exact[key] = name
	x.ordered = append(x.ordered, key)
	if ts := tokenSetKey(name); ts != "" {
		if _, ok := x.tokenSet[ts]; !ok {
			x.tokenSet[ts] = name
		}
	}
}

// Lookup reports whether name collides with an indexed name under the
// index strictness, and which indexed name it collides with.
func (x *Index) Lookup(name string) (string, bool) {
	key := util.NormalizeName(name)
	if hit, ok := x.exact[key]; ok {
		return hit, true
	}
	if key == "" {
		return "", false
	}
	switch x.opts.Strictness {
	case StrictTokenSet:
		if hit, ok := x.tokenSet[tokenSetKey(name)]; ok {
			return hit, true
		}
	case StrictFuzzy:
		if hit, ok := x.tokenSet[tokenSetKey(name)]; ok {
			return hit, true
		}
		for _, other := range x.ordered {
			if util.DiceCoefficient(key, other) >= x.opts.Threshold {
				return x.exact[other], true
			}
		}
	}
	return "", false
}

// IsDuplicate reports whether candidate is already present in idx.
func IsDuplicate(candidate string, idx *Index) bool {
	_, ok := idx.Lookup(candidate)
	return ok
}

// Register adds name to idx and returns it. After Register, IsDuplicate
// for the same name is always true.
func Register(name string, idx *Index) *Index {
	idx.add(name)
	return idx
}

func tokenSetKey(name string) string {
	tokens := util.Tokenize(name)
	if len(tokens) == 0 {
		return ""
	}
	set := make(map[string]struct{}, len(tokens))
	uniq := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, ok := set[t]; ok {
			continue
		}
		set[t] = struct{}{}
		uniq = append(uniq, t)
	}
	sort.Strings(uniq)
	return strings.Join(uniq, " ")
}

package engine

import (
	"sort"
	"strings"

	"github.com/malgorzata-bondini/offerings-app/internal"
	"github.com/malgorzata-bondini/offerings-app/internal/util"
)

const (
	keySep   = "/"
	wildcard = "*"
)

// ProfileTable maps classification keys to commitments. A key is the
// case-folded values of KeyFields joined by "/"; any part may be "*" to
// match any value. Default names the profile used on a lookup miss.
type ProfileTable struct {
	KeyFields []string
	Profiles  map[string]internal.Commitment
	Default   string
}

// ClassificationKey derives the lookup key for a record.
func ClassificationKey(record internal.CandidateRecord, keyFields []string) string {
	return strings.Join(classificationParts(record, keyFields), keySep)
}

func classificationParts(record internal.CandidateRecord, keyFields []string) []string {
	parts := make([]string, len(keyFields))
	for i, f := range keyFields {
		parts[i] = util.NormalizeName(record.Value(f))
	}
	return parts
}

// Assign looks up the commitment for record. Among the profiles whose parts
// all equal the record's values or are "*", the one with the fewest
// wildcards wins; on a tie the one whose first wildcard sits furthest right.
// A record no profile matches gets the default. Assign returns the
// commitment and the profile key that served it.
func Assign(record internal.CandidateRecord, table ProfileTable) (internal.Commitment, string) {
	return assignWith(record, table, indexProfiles(table))
}

func assignWith(record internal.CandidateRecord, table ProfileTable, idx profileIndex) (internal.Commitment, string) {
	if len(table.KeyFields) > 0 {
		values := classificationParts(record, table.KeyFields)
		for _, e := range idx.ranked {
			if e.matches(values) {
				return e.commitment, e.key
			}
		}
	}
	return idx.def.commitment, idx.def.key
}

type profileEntry struct {
	key        string
	parts      []string
	wild       []bool
	commitment internal.Commitment
}

func (e profileEntry) matches(values []string) bool {
	if len(e.parts) != len(values) {
		return false
	}
	for i, p := range e.parts {
		if !e.wild[i] && p != values[i] {
			return false
		}
	}
	return true
}

func (e profileEntry) wildcards() int {
	n := 0
	for _, w := range e.wild {
		if w {
			n++
		}
	}
	return n
}

// moreSpecific orders entries by wildcard count, then by the position of
// the first differing wildcard, then by key.
func (e profileEntry) moreSpecific(o profileEntry) bool {
	if a, b := e.wildcards(), o.wildcards(); a != b {
		return a < b
	}
	for i := range e.wild {
		if i < len(o.wild) && e.wild[i] != o.wild[i] {
			return !e.wild[i]
		}
	}
	return strings.Join(e.parts, keySep) < strings.Join(o.parts, keySep)
}

type profileIndex struct {
	byKey  map[string]profileEntry
	def    profileEntry
	ranked []profileEntry
}

func newProfileEntry(key string, c internal.Commitment) profileEntry {
	parts := strings.Split(key, keySep)
	wild := make([]bool, len(parts))
	for i, p := range parts {
		parts[i] = util.NormalizeName(p)
		wild[i] = parts[i] == wildcard
	}
	return profileEntry{key: key, parts: parts, wild: wild, commitment: c}
}

func indexProfiles(table ProfileTable) profileIndex {
	idx := profileIndex{byKey: make(map[string]profileEntry, len(table.Profiles))}
	for k, v := range table.Profiles {
		e := newProfileEntry(k, v)
		idx.byKey[strings.Join(e.parts, keySep)] = e
	}
	defKey := util.NormalizeName(table.Default)
	idx.def = idx.byKey[defKey]
	for norm, e := range idx.byKey {
		if norm == defKey {
			continue
		}
		idx.ranked = append(idx.ranked, e)
	}
	sort.Slice(idx.ranked, func(i, j int) bool { return idx.ranked[i].moreSpecific(idx.ranked[j]) })
	return idx
}

// ValidateProfiles checks that the default profile exists and that every
// non-default key has one part per key field.
func ValidateProfiles(table ProfileTable) error {
	if strings.TrimSpace(table.Default) == "" {
		return configErrorf("sla", "", "default profile is not set")
	}
	idx := indexProfiles(table)
	if len(idx.byKey) != len(table.Profiles) {
		return configErrorf("sla", "", "profile keys collide after normalization")
	}
	if _, ok := idx.byKey[util.NormalizeName(table.Default)]; !ok {
		return configErrorf("sla", table.Default, "default profile is missing from the table")
	}
	for _, f := range table.KeyFields {
		if strings.TrimSpace(f) == "" {
			return configErrorf("sla", "", "key fields contain an empty name")
		}
	}
	for _, e := range idx.ranked {
		if got := len(e.parts); got != len(table.KeyFields) {
			return configErrorf("sla", e.key, "key has %d parts, want %d", got, len(table.KeyFields))
		}
	}
	return nil
}

package catalog

import (
	"github.com/malgorzata-bondini/offerings-app/internal/util"
)

// Snapshot is the merged list of existing offering names with lookup
// tables keyed by the normalized name and by token.
type Snapshot struct {
	Names        []string
	KeyByPos     []string
	ByKey        map[string]int
	TokenToNames map[string]map[int]struct{}
}

// BuildSnapshot merges name lists in order. Names that normalize to the
// same key are kept once, with the first spelling seen.
func BuildSnapshot(sources ...[]string) *Snapshot {
	s := &Snapshot{
		ByKey:        map[string]int{},
		TokenToNames: map[string]map[int]struct{}{},
	}

	for _, names := range sources {
		for _, name := range names {
			key := util.NormalizeName(name)
			if key == "" {
				continue
			}
			if _, ok := s.ByKey[key]; ok {
				continue
			}
			pos := len(s.Names)
			s.Names = append(s.Names, util.NormalizeSpaces(name))
			s.KeyByPos = append(s.KeyByPos, key)
			s.ByKey[key] = pos

			for _, token := range util.Tokenize(name) {
				if _, ok := s.TokenToNames[token]; !ok {
					s.TokenToNames[token] = map[int]struct{}{}
				}
				s.TokenToNames[token][pos] = struct{}{}
			}
		}
	}

	return s
}

func (s *Snapshot) Len() int { return len(s.Names) }

// Lookup returns the stored spelling for a name that normalizes to an
// existing key.
func (s *Snapshot) Lookup(name string) (string, bool) {
	pos, ok := s.ByKey[util.NormalizeName(name)]
	if !ok {
		return "", false
	}
	return s.Names[pos], true
}

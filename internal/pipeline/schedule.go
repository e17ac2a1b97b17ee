package pipeline

import (
	"regexp"
	"strings"

	"github.com/malgorzata-bondini/offerings-app/internal"
	"github.com/malgorzata-bondini/offerings-app/internal/engine"
)

// Fields the expander and the schedule check add to candidates.
const (
	FieldSupportGroups   = "support_groups"
	FieldManagedByGroups = "managed_by_groups"
	FieldMissingSchedule = "missing_schedule"
)

var reCorpFamily = regexp.MustCompile(`(?i)CORP|DEDICATED|RECP`)

// IsCorpConvention reports whether names rendered by c belong to the CORP
// family (CORP, RecP, CORP IT, Dedicated Services).
func IsCorpConvention(c engine.Convention) bool {
	return reCorpFamily.MatchString(c.ID) || reCorpFamily.MatchString(c.Template)
}

// ScheduleChecker knows which schedules the existing offerings of each
// country already use, split into the CORP family and the rest.
type ScheduleChecker struct {
	corp   bool
	known  map[string]bool
	family map[string][]string
}

// NewScheduleChecker indexes the child offering names of sources by
// country. Only names of the same family as corp are kept.
func NewScheduleChecker(sources []internal.CandidateRecord, corp bool) *ScheduleChecker {
	c := &ScheduleChecker{corp: corp, known: map[string]bool{}, family: map[string][]string{}}
	for _, r := range sources {
		name := r.Value(internal.ColName)
		if name == "" {
			continue
		}
		country := RecordCountry(r)
		c.known[country] = true
		if reCorpFamily.MatchString(name) == corp {
			c.family[country] = append(c.family[country], strings.ToUpper(name))
		}
	}
	return c
}

// Missing reports whether no existing name of the country's family carries
// schedule. A country without any existing names never reports missing.
func (c *ScheduleChecker) Missing(country, schedule string) bool {
	if !c.known[country] {
		return false
	}
	want := strings.ToUpper(strings.TrimSpace(schedule))
	for _, name := range c.family[country] {
		if strings.Contains(name, want) {
			return false
		}
	}
	return true
}

// MarkMissingSchedules sets FieldMissingSchedule to "yes" on every
// candidate whose schedule the checker reports missing, and returns how
// many were marked.
func MarkMissingSchedules(candidates []internal.CandidateRecord, c *ScheduleChecker) int {
	n := 0
	for i := range candidates {
		r := candidates[i]
		if !c.Missing(r.Value("country"), r.Value("schedule")) {
			continue
		}
		if r.Fields == nil {
			r.Fields = map[string]string{}
			candidates[i] = r
		}
		r.Fields[FieldMissingSchedule] = "yes"
		n++
	}
	return n
}

package pipeline

import (
	"fmt"
	"strings"

	"github.com/malgorzata-bondini/offerings-app/internal"
	"github.com/malgorzata-bondini/offerings-app/internal/config"
)

// Receivers returns the receiving organisations for a country. Profile
// entries win; otherwise HS and DS both receive, except in DS-only
// countries and CY.
func Receivers(spec config.ExpandSpec, country string) []string {
	if r, ok := spec.Receivers[country]; ok && len(r) > 0 {
		return r
	}
	if country == "" {
		return []string{""}
	}
	if DSOnlyCountries[country] || country == "CY" {
		return []string{"DS " + country}
	}
	return []string{"HS " + country, "DS " + country}
}

// Schedules returns the schedule suffixes for a receiver, falling back to
// the country and then to the profile default list.
func Schedules(spec config.ExpandSpec, country, receiver string) []string {
	if receiver != "" {
		if s, ok := spec.SchedulesBy[receiver]; ok && len(s) > 0 {
			return s
		}
	}
	if s, ok := spec.SchedulesBy[country]; ok && len(s) > 0 {
		return s
	}
	if len(spec.Schedules) == 0 {
		return []string{""}
	}
	return spec.Schedules
}

// GroupPair is a support group and the group that manages it.
type GroupPair struct {
	Support   string
	ManagedBy string
}

// SupportGroups resolves the groups offerings for receiver are assigned to.
// A receiver entry wins over a country entry, which wins over the
// profile-wide groups. A missing managed-by group falls back to the support
// group; a single one applies to every support group of the entry. When a
// country lists several groups, those starting with the receiver are kept
// if there are any.
func SupportGroups(spec config.ExpandSpec, country, receiver string) []GroupPair {
	support, managed := spec.SupportGroup, spec.ManagedByGroup
	for _, key := range []string{receiver, country} {
		if key == "" {
			continue
		}
		if v := strings.TrimSpace(spec.SupportGroups[key]); v != "" {
			support, managed = v, spec.ManagedByGroups[key]
			break
		}
	}

	supports := splitLines(support)
	if len(supports) == 0 {
		return nil
	}
	manageds := splitLines(managed)
	pairs := make([]GroupPair, len(supports))
	for i, sg := range supports {
		mg := sg
		switch {
		case i < len(manageds):
			mg = manageds[i]
		case len(manageds) == 1:
			mg = manageds[0]
		}
		pairs[i] = GroupPair{Support: sg, ManagedBy: mg}
	}

	if receiver != "" && len(pairs) > 1 {
		var own []GroupPair
		for _, p := range pairs {
			if strings.HasPrefix(p.Support, receiver) {
				own = append(own, p)
			}
		}
		if len(own) > 0 {
			return own
		}
	}
	return pairs
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// Expand fans every source record out into one candidate per kind, app,
// receiver and schedule. Output order follows input order, then the order
// of each list, so repeated runs produce identical candidate sequences.
func Expand(records []internal.CandidateRecord, spec config.ExpandSpec) []internal.CandidateRecord {
	kinds := spec.Kinds
	if len(kinds) == 0 {
		kinds = []string{"SR"}
	}
	apps := spec.Apps
	if len(apps) == 0 {
		apps = []string{""}
	}

	out := make([]internal.CandidateRecord, 0, len(records)*len(kinds)*len(apps))
	for _, r := range records {
		base := Derive(r, spec.DeliveringTag, spec.Dept)
		country := base["country"]
		n := 0
		for _, kind := range kinds {
			kind = strings.ToUpper(strings.TrimSpace(kind))
			for _, app := range apps {
				for _, receiver := range Receivers(spec, country) {
					groups := SupportGroups(spec, country, receiver)
					for _, schedule := range Schedules(spec, country, receiver) {
						n++
						extra := make(map[string]string, len(base)+10)
						for k, v := range base {
							extra[k] = v
						}
						extra["sr_im"] = kind
						extra["app"] = appFor(kind, app)
						extra["app_name"] = strings.TrimSpace(app)
						extra["prod_level2"] = prodLevel2(base["catalog_name"], app)
						extra["service_type"] = strings.TrimSpace(spec.ServiceType)
						extra["receiver"] = receiver
						extra["schedule"] = schedule
						setGroups(extra, groups)
						out = append(out, r.With(fmt.Sprintf("%s#%d", r.ID, n), extra))
					}
				}
			}
		}
	}
	return out
}

// appFor adds the "solving" suffix incident offerings carry after the app.
func appFor(kind, app string) string {
	app = strings.TrimSpace(app)
	if kind != "IM" {
		return app
	}
	if app == "" {
		return "solving"
	}
	return app + " solving"
}

// setGroups stores the resolved pairs as two line-aligned lists. The
// export writes one row per pair.
func setGroups(fields map[string]string, pairs []GroupPair) {
	if len(pairs) == 0 {
		return
	}
	support := make([]string, len(pairs))
	managed := make([]string, len(pairs))
	for i, p := range pairs {
		support[i], managed[i] = p.Support, p.ManagedBy
	}
	fields[FieldSupportGroups] = strings.Join(support, "\n")
	fields[FieldManagedByGroups] = strings.Join(managed, "\n")
}

// groupPairs reads back what setGroups stored.
func groupPairs(r internal.CandidateRecord) []GroupPair {
	support := strings.Split(r.Value(FieldSupportGroups), "\n")
	if len(support) == 1 && support[0] == "" {
		return nil
	}
	managed := strings.Split(r.Value(FieldManagedByGroups), "\n")
	pairs := make([]GroupPair, len(support))
	for i, sg := range support {
		pairs[i] = GroupPair{Support: sg, ManagedBy: sg}
		if i < len(managed) && managed[i] != "" {
			pairs[i].ManagedBy = managed[i]
		}
	}
	return pairs
}

package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/malgorzata-bondini/offerings-app/internal"
	"github.com/malgorzata-bondini/offerings-app/internal/engine"
)

// Profile is a generation run description loaded from a TOML file.
type Profile struct {
	Name          string           `toml:"name"`
	Convention    string           `toml:"convention"`
	CategoryField string           `toml:"category_field"`
	Workers       int              `toml:"workers"`
	Filter        FilterSpec       `toml:"filter"`
	Conventions   []ConventionSpec `toml:"conventions"`
	SLA           SLASpec          `toml:"sla"`
	Dedupe        DedupeSpec       `toml:"dedupe"`
	Expand        ExpandSpec       `toml:"expand"`
}

type FilterSpec struct {
	Fields   []string `toml:"fields"`
	Keywords string   `toml:"keywords"`
	// ChildKeywords is matched against the child offering name only.
	ChildKeywords string `toml:"child_keywords"`
	Exclude       string `toml:"exclude"`
	Mode          string `toml:"mode"`
	// KeepRetired disables the lifecycle and "-" commitment discards.
	KeepRetired bool      `toml:"keep_retired"`
	Rule        *RuleSpec `toml:"rule"`
}

// RuleSpec is the file form of engine.Rule. A node with Op "" and a Field
// is a leaf.
type RuleSpec struct {
	Op       string     `toml:"op"`
	Field    string     `toml:"field"`
	Keyword  string     `toml:"keyword"`
	Mode     string     `toml:"mode"`
	Children []RuleSpec `toml:"children"`
}

type ConventionSpec struct {
	ID              string   `toml:"id"`
	Template        string   `toml:"template"`
	Fields          []string `toml:"fields"`
	Trim            bool     `toml:"trim"`
	CollapseSpace   bool     `toml:"collapse_space"`
	Case            string   `toml:"case"`
	IncidentSolving bool     `toml:"incident_solving"`
}

type CommitmentSpec struct {
	Response     string `toml:"response"`
	Resolution   string `toml:"resolution"`
	Availability string `toml:"availability"`
}

type SLASpec struct {
	KeyFields []string                  `toml:"key_fields"`
	Default   string                    `toml:"default"`
	Profiles  map[string]CommitmentSpec `toml:"profiles"`
}

type DedupeSpec struct {
	Strictness string  `toml:"strictness"`
	Threshold  float64 `toml:"threshold"`
}

// ExpandSpec controls how one source row fans out into candidates.
//
// SupportGroups and ManagedByGroups are keyed by receiver ("HS PL") or
// country ("DE"); a value may list several groups, one per line.
type ExpandSpec struct {
	Kinds           []string            `toml:"kinds"`
	Apps            []string            `toml:"apps"`
	Schedules       []string            `toml:"schedules"`
	SchedulesBy     map[string][]string `toml:"schedules_by"`
	Receivers       map[string][]string `toml:"receivers"`
	DeliveringTag   string              `toml:"delivering_tag"`
	Dept            string              `toml:"dept"`
	IncludeLevel2   bool                `toml:"include_level2"`
	ServiceType     string              `toml:"service_type"`
	SupportGroup    string              `toml:"support_group"`
	ManagedByGroup  string              `toml:"managed_by_group"`
	SupportGroups   map[string]string   `toml:"support_groups"`
	ManagedByGroups map[string]string   `toml:"managed_by_groups"`
}

var discardLifecycle = []string{"retired", "retiring", "end of life", "end of support"}

// DefaultProfile is used when no profile file is configured.
func DefaultProfile() Profile {
	return Profile{
		Name:          "default",
		Convention:    "CORP",
		CategoryField: "catalog_name",
		Filter: FilterSpec{
			Fields: []string{internal.ColParentOffering, internal.ColName},
			Mode:   string(engine.ModeSubstring),
		},
		SLA: SLASpec{
			KeyFields: []string{"sr_im"},
			Default:   "default",
			Profiles: map[string]CommitmentSpec{
				"default": {Response: "1h", Resolution: "8h"},
				"SR":      {Response: "1h", Resolution: "24h"},
				"IM":      {Response: "30m", Resolution: "8h"},
			},
		},
		Dedupe: DedupeSpec{Strictness: string(engine.StrictExact)},
		Expand: ExpandSpec{
			Kinds:     []string{"SR", "IM"},
			Schedules: []string{"Mon-Fri 8-17"},
		},
	}
}

// LoadProfile reads a TOML profile. An empty path yields DefaultProfile.
// Unset sections fall back to the defaults.
func LoadProfile(path string) (Profile, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultProfile(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("read profile: %w", err)
	}
	return ParseProfile(data)
}

func ParseProfile(data []byte) (Profile, error) {
	var p Profile
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return Profile{}, fmt.Errorf("parse profile: %w", err)
	}
	p.fillDefaults()
	return p, nil
}

func (p *Profile) fillDefaults() {
	def := DefaultProfile()
	if p.Name == "" {
		p.Name = def.Name
	}
	if p.Convention == "" {
		p.Convention = def.Convention
	}
	if p.CategoryField == "" {
		p.CategoryField = def.CategoryField
	}
	if len(p.Filter.Fields) == 0 {
		p.Filter.Fields = def.Filter.Fields
	}
	if p.Filter.Mode == "" {
		p.Filter.Mode = def.Filter.Mode
	}
	if p.SLA.Default == "" && len(p.SLA.Profiles) == 0 {
		p.SLA = def.SLA
	}
	if len(p.Expand.Kinds) == 0 {
		p.Expand.Kinds = def.Expand.Kinds
	}
	if len(p.Expand.Schedules) == 0 {
		p.Expand.Schedules = def.Expand.Schedules
	}
}

// ApplyEnv lets the environment choose the dedupe policy and worker count
// when the profile leaves them unset.
func (p *Profile) ApplyEnv(cfg Config) {
	if p.Dedupe.Strictness == "" {
		p.Dedupe.Strictness = cfg.DedupePolicy
		if p.Dedupe.Threshold == 0 && cfg.DedupePolicy == string(engine.StrictFuzzy) {
			p.Dedupe.Threshold = cfg.DedupeThreshold
		}
	}
	if p.Workers == 0 {
		p.Workers = cfg.EngineWorkers
	}
	if cfg.IncludeLevel2 {
		p.Expand.IncludeLevel2 = true
	}
}

// EngineConfig converts the profile to an engine configuration seeded with
// existing offering names. Structural problems come back as
// *engine.ConfigError.
func (p Profile) EngineConfig(existing []string) (engine.Config, error) {
	rule, err := p.Rule()
	if err != nil {
		return engine.Config{}, err
	}
	conv, err := p.ResolveConvention()
	if err != nil {
		return engine.Config{}, err
	}

	profiles := make(map[string]internal.Commitment, len(p.SLA.Profiles))
	for k, v := range p.SLA.Profiles {
		profiles[k] = internal.Commitment{Response: v.Response, Resolution: v.Resolution, Availability: v.Availability}
	}

	var alternates []engine.Alternate
	if p.Expand.IncludeLevel2 {
		lvl2, err := p.lookupConvention(engine.Level2ConventionID)
		if err != nil {
			return engine.Config{}, err
		}
		alternates = append(alternates, engine.Alternate{
			When:       engine.Leaf(internal.FieldLevel, "2", engine.ModeExact),
			Convention: lvl2,
		})
	}

	return engine.Config{
		Rule:       rule,
		Convention: conv,
		Alternates: alternates,
		Profiles: engine.ProfileTable{
			KeyFields: p.SLA.KeyFields,
			Profiles:  profiles,
			Default:   p.SLA.Default,
		},
		CategoryField: p.CategoryField,
		Existing:      existing,
		Dedupe: engine.DedupeOptions{
			Strictness: engine.Strictness(strings.ToLower(strings.TrimSpace(p.Dedupe.Strictness))),
			Threshold:  p.Dedupe.Threshold,
		},
		Workers: p.Workers,
	}, nil
}

// ResolveConvention finds the named convention among the profile's own
// conventions first, then the built-ins.
func (p Profile) ResolveConvention() (engine.Convention, error) {
	return p.lookupConvention(p.Convention)
}

func (p Profile) lookupConvention(id string) (engine.Convention, error) {
	for _, c := range p.Conventions {
		if strings.EqualFold(c.ID, id) {
			return engine.Convention{
				ID:       c.ID,
				Template: c.Template,
				Fields:   c.Fields,
				Rules: engine.NameRules{
					Trim:            c.Trim,
					CollapseSpace:   c.CollapseSpace,
					Case:            engine.CaseRule(strings.ToLower(c.Case)),
					IncidentSolving: c.IncidentSolving,
				},
			}, nil
		}
	}
	if c, ok := engine.LookupConvention(id); ok {
		return c, nil
	}
	return engine.Convention{}, &engine.ConfigError{Component: "profile", Ref: id, Msg: "unknown naming convention"}
}

// Rule builds the filter: the explicit rule tree or the keyword expression,
// minus excluded keywords and retired rows.
func (p Profile) Rule() (engine.Rule, error) {
	mode := engine.MatchMode(strings.ToLower(p.Filter.Mode))

	var parts []engine.Rule
	if p.Filter.Rule != nil {
		r, err := p.Filter.Rule.toRule("filter.rule")
		if err != nil {
			return engine.Rule{}, err
		}
		parts = append(parts, r)
	}
	if kw := engine.ParseKeywords(p.Filter.Fields, p.Filter.Keywords, mode); !kw.IsEmpty() {
		parts = append(parts, kw)
	}
	if kw := engine.ParseKeywords([]string{internal.ColName}, p.Filter.ChildKeywords, mode); !kw.IsEmpty() {
		parts = append(parts, kw)
	}
	if ex := engine.ParseKeywords(p.Filter.Fields, p.Filter.Exclude, mode); !ex.IsEmpty() {
		parts = append(parts, engine.Not(ex))
	}
	if !p.Filter.KeepRetired {
		parts = append(parts, retiredRule())
	}

	if len(parts) == 1 {
		return parts[0], nil
	}
	return engine.And(parts...), nil
}

func retiredRule() engine.Rule {
	var hits []engine.Rule
	for _, lc := range discardLifecycle {
		hits = append(hits,
			engine.Leaf(internal.ColLifecycleStatus, lc, engine.ModeExact),
			engine.Leaf(internal.ColLifecycleStage, lc, engine.ModeExact),
		)
	}
	hits = append(hits, engine.And(
		engine.Leaf(internal.FieldLevel, "1", engine.ModeExact),
		engine.Leaf(internal.ColCommitments, "-", engine.ModeExact),
	))
	return engine.Not(engine.Or(hits...))
}

func (s RuleSpec) toRule(path string) (engine.Rule, error) {
	op := strings.ToLower(strings.TrimSpace(s.Op))
	if op == "" && s.Field != "" {
		op = "leaf"
	}
	if op != "leaf" && (s.Field != "" || s.Keyword != "" || s.Mode != "") {
		return engine.Rule{}, &engine.ConfigError{Component: "profile", Ref: path, Msg: "field, keyword and mode belong on a leaf with a field"}
	}
	children := make([]engine.Rule, 0, len(s.Children))
	for i, c := range s.Children {
		r, err := c.toRule(fmt.Sprintf("%s.children[%d]", path, i))
		if err != nil {
			return engine.Rule{}, err
		}
		children = append(children, r)
	}

	switch op {
	case "leaf":
		if len(children) > 0 {
			return engine.Rule{}, &engine.ConfigError{Component: "profile", Ref: path, Msg: "leaf must not have children"}
		}
		return engine.Leaf(s.Field, s.Keyword, engine.MatchMode(strings.ToLower(s.Mode))), nil
	case "and", "":
		return engine.And(children...), nil
	case "or":
		return engine.Or(children...), nil
	case "not":
		if len(children) != 1 {
			return engine.Rule{}, &engine.ConfigError{Component: "profile", Ref: path, Msg: fmt.Sprintf("not needs exactly one child, got %d", len(children))}
		}
		return engine.Not(children[0]), nil
	default:
		return engine.Rule{}, &engine.ConfigError{Component: "profile", Ref: path, Msg: fmt.Sprintf("unknown op %q", s.Op)}
	}
}

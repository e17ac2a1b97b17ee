package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/malgorzata-bondini/offerings-app/internal"
	"github.com/malgorzata-bondini/offerings-app/internal/engine"
)

const sampleProfile = `
name = "corp-emea"
convention = "regional"
category_field = "category"
workers = 4

[filter]
fields = ["category"]
keywords = "Network"
exclude = "test, legacy"
keep_retired = true

[[conventions]]
id = "regional"
template = "CORP-{category}-{region}"
fields = ["category", "region"]
trim = true

[sla]
key_fields = ["category"]
default = "default"

[sla.profiles.default]
response = "8h"
resolution = "5d"

[sla.profiles.network]
response = "1h"
resolution = "1d"
availability = "24/7"

[dedupe]
strictness = "Token-Set"

[expand]
apps = ["SAP", "Teams"]
schedules = ["Mon-Fri 8-17"]

[expand.receivers]
PL = ["HS PL", "DS PL"]
`

func TestParseProfile(t *testing.T) {
	p, err := ParseProfile([]byte(sampleProfile))
	require.NoError(t, err)

	assert.Equal(t, "corp-emea", p.Name)
	assert.Equal(t, []string{"HS PL", "DS PL"}, p.Expand.Receivers["PL"])
	assert.Equal(t, []string{"SR", "IM"}, p.Expand.Kinds)

	cfg, err := p.EngineConfig([]string{"CORP-Network-EMEA"})
	require.NoError(t, err)
	require.NoError(t, engine.Validate(cfg))
	assert.Equal(t, engine.StrictTokenSet, cfg.Dedupe.Strictness)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, "regional", cfg.Convention.ID)

	summary, err := engine.Generate(cfg, []internal.CandidateRecord{
		{ID: "1", Fields: map[string]string{"category": "Network", "region": "EMEA"}},
		{ID: "2", Fields: map[string]string{"category": "Network", "region": "APAC"}},
		{ID: "3", Fields: map[string]string{"category": "Network test", "region": "APAC"}},
		{ID: "4", Fields: map[string]string{"category": "Software", "region": "APAC"}},
	})
	require.NoError(t, err)
	assert.Equal(t, internal.RunCounts{Input: 4, FilteredOut: 2, DuplicateSuppressed: 1, Emitted: 1}, summary.Counts)
	assert.Equal(t, "24/7", summary.Emitted[0].Commitment.Availability)
}

func TestParseProfile_UnknownKey(t *testing.T) {
	_, err := ParseProfile([]byte("convention = \"CORP\"\nconvnetion = \"IT\"\n"))
	require.Error(t, err)
}

func TestDefaultProfile_IsValid(t *testing.T) {
	p, err := LoadProfile("")
	require.NoError(t, err)

	cfg, err := p.EngineConfig(nil)
	require.NoError(t, err)
	require.NoError(t, engine.Validate(cfg))
	assert.Equal(t, "CORP", cfg.Convention.ID)
}

func TestProfile_ChildKeywords(t *testing.T) {
	p := DefaultProfile()
	p.Filter.KeepRetired = true
	p.Filter.Keywords = "laptop"
	p.Filter.ChildKeywords = "HS PL AND Prod"
	rule, err := p.Rule()
	require.NoError(t, err)

	hit := internal.CandidateRecord{ID: "a", Fields: map[string]string{
		internal.ColParentOffering: "[Parent HS PL] Laptop",
		internal.ColName:           "[SR HS PL] Laptop Prod Mon-Fri 8-17",
	}}
	// the child filter ignores the parent column
	miss := internal.CandidateRecord{ID: "b", Fields: map[string]string{
		internal.ColParentOffering: "[Parent HS PL] Laptop Prod",
		internal.ColName:           "[SR DS PL] Laptop Mon-Fri 8-17",
	}}
	assert.True(t, engine.Matches(hit, rule))
	assert.False(t, engine.Matches(miss, rule))
}

func TestProfile_Level2Alternate(t *testing.T) {
	p := DefaultProfile()
	cfg, err := p.EngineConfig(nil)
	require.NoError(t, err)
	assert.Empty(t, cfg.Alternates)

	p.Expand.IncludeLevel2 = true
	cfg, err = p.EngineConfig(nil)
	require.NoError(t, err)
	require.Len(t, cfg.Alternates, 1)
	assert.Equal(t, engine.Level2ConventionID, cfg.Alternates[0].Convention.ID)
	assert.True(t, engine.Matches(internal.CandidateRecord{Fields: map[string]string{internal.FieldLevel: "2"}}, cfg.Alternates[0].When))
	require.NoError(t, engine.Validate(cfg))

	p.Conventions = []ConventionSpec{{ID: "lvl2", Template: "{catalog_name} L2", Fields: []string{"catalog_name"}}}
	cfg, err = p.EngineConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, "{catalog_name} L2", cfg.Alternates[0].Convention.Template)
}

func TestProfile_DiscardsRetired(t *testing.T) {
	p := DefaultProfile()
	rule, err := p.Rule()
	require.NoError(t, err)

	live := internal.CandidateRecord{ID: "a", Fields: map[string]string{internal.ColLifecycleStatus: "In Use", internal.FieldLevel: "1", internal.ColCommitments: "[PL] SLA SR RSP"}}
	retired := internal.CandidateRecord{ID: "b", Fields: map[string]string{internal.ColLifecycleStatus: "End of Life"}}
	dash := internal.CandidateRecord{ID: "c", Fields: map[string]string{internal.FieldLevel: "1", internal.ColCommitments: " - "}}
	dashLvl2 := internal.CandidateRecord{ID: "d", Fields: map[string]string{internal.FieldLevel: "2", internal.ColCommitments: "-"}}

	assert.True(t, engine.Matches(live, rule))
	assert.False(t, engine.Matches(retired, rule))
	assert.False(t, engine.Matches(dash, rule))
	assert.True(t, engine.Matches(dashLvl2, rule))
}

func TestProfile_RuleTree(t *testing.T) {
	p := DefaultProfile()
	p.Filter.KeepRetired = true
	p.Filter.Rule = &RuleSpec{
		Op: "or",
		Children: []RuleSpec{
			{Field: "region", Keyword: "EMEA", Mode: "exact"},
			{Op: "not", Children: []RuleSpec{{Field: "category", Keyword: "network"}}},
		},
	}
	rule, err := p.Rule()
	require.NoError(t, err)
	require.NoError(t, engine.ValidateRule(rule))

	assert.True(t, engine.Matches(internal.CandidateRecord{Fields: map[string]string{"region": "emea", "category": "Network"}}, rule))
	assert.False(t, engine.Matches(internal.CandidateRecord{Fields: map[string]string{"region": "APAC", "category": "Network"}}, rule))

	p.Filter.Rule = &RuleSpec{Op: "not"}
	_, err = p.Rule()
	assert.ErrorIs(t, err, engine.ErrConfig)

	p.Filter.Rule = &RuleSpec{Op: "xor"}
	_, err = p.Rule()
	assert.ErrorIs(t, err, engine.ErrConfig)
}

func TestProfile_RuleTreeRejectsStrayClause(t *testing.T) {
	bad := []RuleSpec{
		{Keyword: "network"},
		{Mode: "exact"},
		{Op: "and", Field: "category", Keyword: "network"},
		{Op: "or", Keyword: "network", Children: []RuleSpec{{Field: "region", Keyword: "EMEA"}}},
		{Op: "not", Field: "category", Children: []RuleSpec{{Field: "region", Keyword: "EMEA"}}},
		{Op: "or", Children: []RuleSpec{{Keyword: "EMEA"}}},
	}
	for i, spec := range bad {
		p := DefaultProfile()
		p.Filter.KeepRetired = true
		p.Filter.Rule = &spec
		_, err := p.Rule()
		require.Error(t, err, "rule %d", i)

		var cerr *engine.ConfigError
		require.ErrorAs(t, err, &cerr, "rule %d", i)
		assert.Equal(t, "profile", cerr.Component)
	}

	p := DefaultProfile()
	p.Filter.KeepRetired = true
	p.Filter.Rule = &RuleSpec{Op: "LEAF", Field: "category", Keyword: "network", Mode: "token"}
	rule, err := p.Rule()
	require.NoError(t, err)
	assert.Equal(t, engine.KindLeaf, rule.Kind)
}

func TestProfile_UnknownConvention(t *testing.T) {
	p := DefaultProfile()
	p.Convention = "Nope"
	_, err := p.EngineConfig(nil)
	var cerr *engine.ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "profile", cerr.Component)
}

func TestApplyEnv(t *testing.T) {
	p := DefaultProfile()
	p.Dedupe = DedupeSpec{}
	p.ApplyEnv(Config{DedupePolicy: "fuzzy", DedupeThreshold: 0.9, EngineWorkers: 3, IncludeLevel2: true})

	assert.Equal(t, "fuzzy", p.Dedupe.Strictness)
	assert.InDelta(t, 0.9, p.Dedupe.Threshold, 1e-9)
	assert.Equal(t, 3, p.Workers)
	assert.True(t, p.Expand.IncludeLevel2)
}

func TestLoadProfile_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.toml")
	require.NoError(t, os.WriteFile(path, []byte(sampleProfile), 0o644))

	p, err := LoadProfile(path)
	require.NoError(t, err)
	assert.Equal(t, "regional", p.Convention)

	_, err = LoadProfile(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DEDUPE_POLICY", "token-set")
	t.Setenv("ENGINE_WORKERS", "6")
	t.Setenv("SN_PAGE_SIZE", "not-a-number")
	t.Setenv("INCLUDE_LEVEL2", "yes")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "token-set", cfg.DedupePolicy)
	assert.Equal(t, 6, cfg.EngineWorkers)
	assert.Equal(t, 500, cfg.SNPageSize)
	assert.True(t, cfg.IncludeLevel2)
	assert.Error(t, cfg.Require("SN_BASE_URL", " "))
}

package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/malgorzata-bondini/offerings-app/internal"
)

func slaTable() ProfileTable {
	return ProfileTable{
		KeyFields: []string{"category", "priority"},
		Default:   "default",
		Profiles: map[string]internal.Commitment{
			"default":     {Response: "8h", Resolution: "5d", Availability: "Mon-Fri 8-17"},
			"Network/P1":  {Response: "15m", Resolution: "4h", Availability: "24/7"},
			"network/*":   {Response: "1h", Resolution: "1d", Availability: "24/7"},
			"*/P1":        {Response: "30m", Resolution: "8h", Availability: "24/7"},
			"hardware/p3": {Response: "4h", Resolution: "3d", Availability: "Mon-Fri 8-17"},
		},
	}
}

func TestClassificationKey(t *testing.T) {
	r := rec("1", "category", "  Network ", "priority", "P1")
	assert.Equal(t, "network/p1", ClassificationKey(r, []string{"category", "priority"}))
	assert.Equal(t, "network/", ClassificationKey(rec("2", "category", "Network"), []string{"category", "priority"}))
}

func TestAssign(t *testing.T) {
	table := slaTable()
	require.NoError(t, ValidateProfiles(table))

	tests := []struct {
		name    string
		record  internal.CandidateRecord
		wantKey string
		wantRsp string
	}{
		{name: "exact key", record: rec("1", "category", "NETWORK", "priority", "p1"), wantKey: "Network/P1", wantRsp: "15m"},
		{name: "trailing wildcard", record: rec("2", "category", "Network", "priority", "P4"), wantKey: "network/*", wantRsp: "1h"},
		{name: "leading wildcard", record: rec("3", "category", "Software", "priority", "P1"), wantKey: "*/P1", wantRsp: "30m"},
		{name: "miss uses default", record: rec("5", "category", "Software", "priority", "P2"), wantKey: "default", wantRsp: "8h"},
		{name: "missing fields use default", record: rec("4"), wantKey: "default", wantRsp: "8h"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, key := Assign(tt.record, table)
			assert.Equal(t, tt.wantKey, key)
			assert.Equal(t, tt.wantRsp, got.Response)
		})
	}
}

func TestAssign_WildcardPrecedence(t *testing.T) {
	table := ProfileTable{
		KeyFields: []string{"category", "priority"},
		Default:   "default",
		Profiles: map[string]internal.Commitment{
			"default": {Response: "8h"},
			"*/p1":    {Response: "30m"},
			"*/*":     {Response: "4h"},
		},
	}
	require.NoError(t, ValidateProfiles(table))

	_, key := Assign(rec("1", "category", "Network", "priority", "P1"), table)
	assert.Equal(t, "*/p1", key)

	// values containing the key separator are compared whole
	_, key = Assign(rec("2", "category", "Hardware/Software", "priority", "P1"), table)
	assert.Equal(t, "*/p1", key)

	_, key = Assign(rec("3", "category", "Hardware/Software", "priority", "P3"), table)
	assert.Equal(t, "*/*", key)

	delete(table.Profiles, "*/p1")
	_, key = Assign(rec("4", "category", "Hardware/Software", "priority", "P1"), table)
	assert.Equal(t, "*/*", key)

	// with equal wildcard counts the leftmost specific part wins
	table.Profiles["network/*"] = internal.Commitment{Response: "1h"}
	table.Profiles["*/p1"] = internal.Commitment{Response: "30m"}
	_, key = Assign(rec("5", "category", "Network", "priority", "P1"), table)
	assert.Equal(t, "network/*", key)
	_, key = Assign(rec("6", "category", "Mobile", "priority", "P1"), table)
	assert.Equal(t, "*/p1", key)
}

func TestAssign_Deterministic(t *testing.T) {
	table := slaTable()
	r := rec("1", "category", "Hardware", "priority", "P3")
	first, k1 := Assign(r, table)
	for i := 0; i < 10; i++ {
		got, k := Assign(r, table)
		assert.Equal(t, first, got)
		assert.Equal(t, k1, k)
	}
	assert.Equal(t, "hardware/p3", k1)
}

func TestValidateProfiles(t *testing.T) {
	base := slaTable()

	noDefault := base
	noDefault.Default = ""
	assert.ErrorIs(t, ValidateProfiles(noDefault), ErrConfig)

	missingDefault := base
	missingDefault.Default = "gold"
	assert.ErrorIs(t, ValidateProfiles(missingDefault), ErrConfig)

	badArity := ProfileTable{
		KeyFields: []string{"category"},
		Default:   "default",
		Profiles: map[string]internal.Commitment{
			"default":    {},
			"network/p1": {},
		},
	}
	err := ValidateProfiles(badArity)
	require.Error(t, err)
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "network/p1", cerr.Ref)

	collide := ProfileTable{
		KeyFields: []string{"category"},
		Default:   "default",
		Profiles: map[string]internal.Commitment{
			"default": {},
			"Network": {},
			"network": {},
		},
	}
	assert.ErrorIs(t, ValidateProfiles(collide), ErrConfig)

	onlyDefault := ProfileTable{Default: "Default", Profiles: map[string]internal.Commitment{"default": {Response: "x"}}}
	require.NoError(t, ValidateProfiles(onlyDefault))
	got, key := Assign(rec("1", "category", "Network"), onlyDefault)
	assert.Equal(t, "x", got.Response)
	assert.Equal(t, "default", key)
}

package storage

import (
	"path/filepath"
	"testing"

	"github.com/malgorzata-bondini/offerings-app/internal"
	"github.com/malgorzata-bondini/offerings-app/internal/util"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "nested", "test.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestExistingOfferingsUpsert(t *testing.T) {
	db := openTestDB(t)

	n, err := db.UpsertExistingOfferings([]internal.ExistingOffering{
		{Name: "[SR HS PL] Laptop  Prod", Source: "file"},
		{Name: "  ", Source: "file"},
		{Name: "[IM DS UA] Network solving", Source: "file"},
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if n != 2 {
		t.Fatalf("upserted %d, want 2", n)
	}

	if _, err := db.UpsertExistingOfferings([]internal.ExistingOffering{
		{Name: "[sr hs pl] LAPTOP prod", Source: "servicenow", SysID: util.StringPtr("abc")},
	}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	names, err := db.ListExistingOfferingNames()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(names) != 2 || names[0] != "[SR HS PL] Laptop Prod" {
		t.Fatalf("unexpected names: %#v", names)
	}

	sn, err := db.CountExistingOfferings("servicenow")
	if err != nil || sn != 1 {
		t.Fatalf("servicenow count=%d err=%v", sn, err)
	}
	all, err := db.CountExistingOfferings("")
	if err != nil || all != 2 {
		t.Fatalf("total count=%d err=%v", all, err)
	}
}

func TestRunsRoundTrip(t *testing.T) {
	db := openTestDB(t)

	run := internal.RunRow{
		RunID:      "run-1",
		Convention: "CORP",
		Profile:    "default",
		Inputs:     []string{"ALL_Service_Offering_PL.xlsx"},
		Output:     "out/run-1.xlsx",
		Counts:     internal.RunCounts{Input: 3, FilteredOut: 1, DuplicateSuppressed: 1, Emitted: 1},
		TimingsMs:  map[string]float64{"engine": 1.5},
	}
	offerings := []internal.RunOfferingRow{
		{Seq: 1, Name: "CORP-Network-EMEA", Category: "Network", Response: "1h", ProfileKey: "network", SourceID: "f:s:2", Fields: map[string]string{"region": "EMEA"}},
	}
	if err := db.InsertRun(run, offerings); err != nil {
		t.Fatalf("insert run: %v", err)
	}
	if err := db.InsertRun(run, nil); err == nil {
		t.Fatalf("expected duplicate run id to fail")
	}

	runs, err := db.ListRuns(0)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("runs=%d", len(runs))
	}
	got := runs[0]
	if got.Counts != run.Counts || got.Inputs[0] != run.Inputs[0] || got.TimingsMs["engine"] != 1.5 || got.Output != run.Output {
		t.Fatalf("unexpected run: %#v", got)
	}

	rows, err := db.GetRunOfferings("run-1")
	if err != nil {
		t.Fatalf("offerings: %v", err)
	}
	if len(rows) != 1 || rows[0].Name != "CORP-Network-EMEA" || rows[0].Fields["region"] != "EMEA" {
		t.Fatalf("unexpected offerings: %#v", rows)
	}

	if _, err := db.MustRun("missing"); err == nil {
		t.Fatalf("expected missing run error")
	}
}

func TestInputsTrackHashChanges(t *testing.T) {
	db := openTestDB(t)

	row, err := db.UpsertInput("/inbox/a.xlsx", "h1")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if row.Status != "new" || row.RunID != nil {
		t.Fatalf("unexpected row: %#v", row)
	}
	if err := db.UpdateInputStatus(row.ID, "processed", util.StringPtr("run-1")); err != nil {
		t.Fatalf("status: %v", err)
	}

	same, err := db.UpsertInput("/inbox/a.xlsx", "h1")
	if err != nil {
		t.Fatalf("upsert same: %v", err)
	}
	if same.Status != "processed" || same.RunID == nil || *same.RunID != "run-1" {
		t.Fatalf("unchanged file lost its status: %#v", same)
	}

	changed, err := db.UpsertInput("/inbox/a.xlsx", "h2")
	if err != nil {
		t.Fatalf("upsert changed: %v", err)
	}
	if changed.Status != "new" || changed.ID != row.ID {
		t.Fatalf("changed file not reset: %#v", changed)
	}
}

func TestMetadata(t *testing.T) {
	db := openTestDB(t)

	v, err := db.GetMetadata("catalog.lastSyncAt")
	if err != nil || v != nil {
		t.Fatalf("expected empty metadata, got %v %v", v, err)
	}
	if err := db.SetMetadata("catalog.lastSyncAt", "a"); err != nil {
		t.Fatal(err)
	}
	if err := db.SetMetadata("catalog.lastSyncAt", "b"); err != nil {
		t.Fatal(err)
	}
	v, err = db.GetMetadata("catalog.lastSyncAt")
	if err != nil || v == nil || *v != "b" {
		t.Fatalf("got %v %v", v, err)
	}
}

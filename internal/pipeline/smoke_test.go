package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/malgorzata-bondini/offerings-app/internal"
	"github.com/malgorzata-bondini/offerings-app/internal/config"
	"github.com/malgorzata-bondini/offerings-app/internal/storage"
)

func TestSmokeWorkbookToXLSX(t *testing.T) {
	tmp := t.TempDir()
	db, err := storage.Open(filepath.Join(tmp, "app.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	if _, err := db.UpsertExistingOfferings([]internal.ExistingOffering{
		{Name: "[SR HS PL CORP DS PL] Laptop Prod Mon-Fri 8-17", Source: "servicenow"},
	}); err != nil {
		t.Fatal(err)
	}

	header := []any{internal.ColName, internal.ColParentOffering, internal.ColCommitments, internal.ColLifecycleStatus}
	input := filepath.Join(tmp, "ALL_Service_Offering_PL.xlsx")
	blob := mkXLSX(sheetRows{name: SheetLevel1, rows: [][]any{
		header,
		{"[SR HS PL CORP HS PL] Laptop Prod Mon-Fri 8-17", "[Parent HS PL] Laptop", "[PL] SLA SR RSP", "In Use"},
		{"[SR HS PL] Old laptop", "[Parent HS PL] Old laptop", "[PL] SLA SR RSP", "Retired"},
		{"[SR HS PL] Laptop copy", "[Parent HS PL] Laptop", "[PL] SLA SR RSP", "In Use"},
	}})
	if err := os.WriteFile(input, blob, 0o644); err != nil {
		t.Fatal(err)
	}

	profile := config.DefaultProfile()
	profile.Expand.Kinds = []string{"SR"}

	proc := NewProcessingService(db, config.Config{OutputDir: filepath.Join(tmp, "out")})
	res, err := proc.Generate(context.Background(), GenerateRequest{Inputs: []string{input}, Profile: profile})
	if err != nil {
		t.Fatal(err)
	}

	// Rows 2 and 4 expand to HS PL and DS PL each; row 3 is retired.
	// HS PL already exists in the workbook, DS PL is cached from the
	// platform, and row 4 repeats row 2.
	want := internal.RunCounts{Input: 6, FilteredOut: 2, DuplicateSuppressed: 4, Emitted: 0}
	if res.Summary.Counts != want {
		t.Fatalf("counts=%+v", res.Summary.Counts)
	}

	runs, err := db.ListRuns(10)
	if err != nil || len(runs) != 1 || runs[0].RunID != res.RunID {
		t.Fatalf("runs=%#v err=%v", runs, err)
	}

	f, err := excelize.OpenFile(res.Output)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := f.GetRows(SheetSuppressed)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 7 {
		t.Fatalf("suppressed rows=%d", len(rows))
	}
}

func TestSmokeEmitsNewOfferings(t *testing.T) {
	tmp := t.TempDir()
	db, err := storage.Open(filepath.Join(tmp, "app.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	input := filepath.Join(tmp, "ALL_Service_Offering_UA.xlsx")
	blob := mkXLSX(sheetRows{name: SheetLevel1, rows: [][]any{
		{internal.ColName, internal.ColParentOffering},
		{"[SR DS UA] Software", "[Parent DS UA IT] Software installation"},
	}})
	if err := os.WriteFile(input, blob, 0o644); err != nil {
		t.Fatal(err)
	}

	profile := config.DefaultProfile()
	profile.Expand.Apps = []string{"SAP"}
	out := filepath.Join(tmp, "result.xlsx")

	proc := NewProcessingService(db, config.Config{})
	res, err := proc.Generate(context.Background(), GenerateRequest{Inputs: []string{input}, Profile: profile, Output: out})
	if err != nil {
		t.Fatal(err)
	}
	if res.Summary.Counts.Emitted != 2 || res.Output != out {
		t.Fatalf("result=%+v", res.Summary.Counts)
	}

	names := map[string]bool{}
	for _, o := range res.Summary.Emitted {
		names[o.Name] = true
	}
	for _, n := range []string{
		"[SR DS UA CORP DS UA] Software installation SAP Prod Mon-Fri 8-17",
		"[IM DS UA CORP DS UA] Software installation SAP solving Prod Mon-Fri 8-17",
	} {
		if !names[n] {
			t.Fatalf("missing %q in %v", n, names)
		}
	}

	stored, err := db.GetRunOfferings(res.RunID)
	if err != nil || len(stored) != 2 {
		t.Fatalf("stored=%d err=%v", len(stored), err)
	}
	if stored[0].Fields[internal.ColCommitments] != "[UA] SLA SR RSP Mon-Fri 8-17 P1-P4 1h\n[UA] SLA SR RSL Mon-Fri 8-17 P1-P4 24h\n[UA] OLA SR RSL Mon-Fri 8-17 P1-P4 24h" {
		t.Fatalf("commitments=%q", stored[0].Fields[internal.ColCommitments])
	}

	if _, err := proc.Generate(context.Background(), GenerateRequest{Profile: profile}); err == nil {
		t.Fatal("expected error without inputs")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := proc.Generate(ctx, GenerateRequest{Inputs: []string{input}, Profile: profile}); err == nil {
		t.Fatal("expected cancellation error")
	}
}

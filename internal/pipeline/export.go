package pipeline

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/malgorzata-bondini/offerings-app/internal"
)

const (
	SheetOfferings  = "Service Offerings"
	SheetSuppressed = "Suppressed"
	SheetReview     = "Review"
	SheetSummary    = "Summary"
)

type ExportMeta struct {
	RunID      string
	Convention string
	Profile    string
	Inputs     []string
}

// OfferingRows flattens emitted offerings into storable rows. The row
// fields carry the source columns with the name and the rendered Service
// Commitments cell replaced. An offering assigned several support groups
// yields one row per group; without assigned groups the source columns are
// kept.
func OfferingRows(summary internal.RunSummary) []internal.RunOfferingRow {
	out := make([]internal.RunOfferingRow, 0, len(summary.Emitted))
	for _, o := range summary.Emitted {
		base := make(map[string]string, len(o.Source.Fields)+4)
		for k, v := range o.Source.Fields {
			base[k] = v
		}
		base[internal.ColName] = o.Name
		base[internal.ColCommitments] = CommitmentLines(
			o.Source.Value("country"), o.Source.Value("sr_im"), o.Source.Value("schedule"), o.Commitment,
		)

		pairs := groupPairs(o.Source)
		if len(pairs) == 0 {
			pairs = []GroupPair{{Support: base[internal.ColSupportGroup], ManagedBy: base[internal.ColManagedByGroup]}}
		}
		for j, p := range pairs {
			fields := base
			if j > 0 {
				fields = make(map[string]string, len(base))
				for k, v := range base {
					fields[k] = v
				}
			}
			fields[internal.ColSupportGroup] = p.Support
			fields[internal.ColManagedByGroup] = p.ManagedBy
			out = append(out, internal.RunOfferingRow{
				Seq:          len(out) + 1,
				Name:         o.Name,
				Category:     o.Category,
				Response:     o.Commitment.Response,
				Resolution:   o.Commitment.Resolution,
				Availability: o.Commitment.Availability,
				ProfileKey:   o.ProfileKey,
				SourceID:     o.Source.ID,
				Fields:       fields,
			})
		}
	}
	return out
}

func ExportSummaryToXLSX(summary internal.RunSummary, review []internal.ReviewItem, meta ExportMeta, outputPath string) error {
	var suppressed []internal.Outcome
	for _, o := range summary.Outcomes {
		if o.Disposition != internal.DispositionEmitted {
			suppressed = append(suppressed, o)
		}
	}
	return writeWorkbook(OfferingRows(summary), suppressed, review, summary.Counts, meta, outputPath)
}

// ExportRunToXLSX re-exports a stored run. Per-record outcomes and review
// items are not stored, so those sheets only carry their headers.
func ExportRunToXLSX(run internal.RunRow, rows []internal.RunOfferingRow, outputPath string) error {
	meta := ExportMeta{RunID: run.RunID, Convention: run.Convention, Profile: run.Profile, Inputs: run.Inputs}
	return writeWorkbook(rows, nil, nil, run.Counts, meta, outputPath)
}

func writeWorkbook(rows []internal.RunOfferingRow, suppressed []internal.Outcome, review []internal.ReviewItem, counts internal.RunCounts, meta ExportMeta, outputPath string) error {
	f := excelize.NewFile()
	defer f.Close()

	first := f.GetSheetName(0)
	if err := f.SetSheetName(first, SheetOfferings); err != nil {
		return err
	}
	for _, s := range []string{SheetSuppressed, SheetReview, SheetSummary} {
		if _, err := f.NewSheet(s); err != nil {
			return err
		}
	}

	headers := []any{
		internal.ColName, internal.ColParentOffering, "Category", "SR/IM", "Receiver", "Schedule",
		internal.ColCommitments, "Response", "Resolution", "Availability", "Profile Key", "Source",
		internal.ColSupportGroup, internal.ColManagedByGroup, "Missing Schedule",
	}
	if err := setRow(f, SheetOfferings, 1, headers); err != nil {
		return err
	}
	missing := 0
	for i, row := range rows {
		if row.Fields[FieldMissingSchedule] != "" {
			missing++
		}
		values := []any{
			row.Name,
			row.Fields[internal.ColParentOffering],
			row.Category,
			row.Fields["sr_im"],
			row.Fields["receiver"],
			row.Fields["schedule"],
			row.Fields[internal.ColCommitments],
			row.Response,
			row.Resolution,
			row.Availability,
			row.ProfileKey,
			row.SourceID,
			row.Fields[internal.ColSupportGroup],
			row.Fields[internal.ColManagedByGroup],
			row.Fields[FieldMissingSchedule],
		}
		if err := setRow(f, SheetOfferings, i+2, values); err != nil {
			return err
		}
	}
	_ = f.SetColWidth(SheetOfferings, "A", "A", 60)
	_ = f.SetColWidth(SheetOfferings, "G", "G", 50)

	if err := setRow(f, SheetSuppressed, 1, []any{"Record", "Disposition", "Name", "Duplicate Of"}); err != nil {
		return err
	}
	for i, o := range suppressed {
		if err := setRow(f, SheetSuppressed, i+2, []any{o.RecordID, string(o.Disposition), o.Name, o.DuplicateOf}); err != nil {
			return err
		}
	}

	if err := setRow(f, SheetReview, 1, []any{"Record", "Name", "Closest Existing", "Score", "Other Candidates"}); err != nil {
		return err
	}
	for i, item := range review {
		closest := ""
		var others []string
		for j, c := range item.Candidates {
			if j == 0 {
				closest = c.Name
				continue
			}
			others = append(others, fmt.Sprintf("%s (%.2f)", c.Name, c.Score))
		}
		values := []any{item.RecordID, item.Name, closest, math.Round(item.Score*1000) / 1000, strings.Join(others, "\n")}
		if err := setRow(f, SheetReview, i+2, values); err != nil {
			return err
		}
	}
	_ = f.SetColWidth(SheetReview, "B", "C", 60)

	summary := [][]any{
		{"Run", meta.RunID},
		{"Convention", meta.Convention},
		{"Profile", meta.Profile},
		{"Inputs", strings.Join(meta.Inputs, "\n")},
		{"Input", counts.Input},
		{"Filtered out", counts.FilteredOut},
		{"Duplicate suppressed", counts.DuplicateSuppressed},
		{"Emitted", counts.Emitted},
		{"Flagged for review", len(review)},
		{"Missing schedule", missing},
	}
	for i, row := range summary {
		if err := setRow(f, SheetSummary, i+1, row); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

func setRow(f *excelize.File, sheet string, r int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, r)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

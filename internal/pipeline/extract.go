package pipeline

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jhillyerd/enmime"
	"github.com/xuri/excelize/v2"

	"github.com/malgorzata-bondini/offerings-app/internal"
	"github.com/malgorzata-bondini/offerings-app/internal/util"
)

const (
	SheetLevel1 = "Child SO lvl1"
	SheetLevel2 = "Child SO lvl2"
)

var reCountryFile = regexp.MustCompile(`(?i)ALL_Service_Offering_([A-Z]{2})\b`)

type ReadOptions struct {
	IncludeLevel2 bool
}

// Input is what one source file contributes to a run: candidate rows and
// the offering names it already lists.
type Input struct {
	Name     string
	Records  []internal.CandidateRecord
	Existing []string
}

func (in *Input) merge(other Input) {
	in.Records = append(in.Records, other.Records...)
	in.Existing = append(in.Existing, other.Existing...)
}

// CountryFromFileName returns CC for ALL_Service_Offering_CC.xlsx.
func CountryFromFileName(name string) string {
	m := reCountryFile.FindStringSubmatch(name)
	if m == nil {
		return ""
	}
	return strings.ToUpper(m[1])
}

// ReadWorkbook reads the child offering sheets of a catalog workbook. A
// workbook without them is read from its first sheet as level 1.
func ReadWorkbook(name string, blob []byte, opts ReadOptions) (Input, error) {
	f, err := excelize.OpenReader(bytes.NewReader(blob))
	if err != nil {
		return Input{}, fmt.Errorf("open workbook %s: %w", name, err)
	}
	defer f.Close()

	type levelSheet struct{ sheet, level string }
	var sheets []levelSheet
	have := map[string]bool{}
	for _, s := range f.GetSheetList() {
		have[s] = true
	}
	if have[SheetLevel1] {
		sheets = append(sheets, levelSheet{SheetLevel1, "1"})
	}
	if have[SheetLevel2] && opts.IncludeLevel2 {
		sheets = append(sheets, levelSheet{SheetLevel2, "2"})
	}
	if len(sheets) == 0 && !have[SheetLevel2] {
		list := f.GetSheetList()
		if len(list) == 0 {
			return Input{Name: name}, nil
		}
		sheets = append(sheets, levelSheet{list[0], "1"})
	}

	country := CountryFromFileName(name)
	in := Input{Name: name}
	for _, ls := range sheets {
		rows, err := f.GetRows(ls.sheet)
		if err != nil {
			return Input{}, fmt.Errorf("read sheet %s/%s: %w", name, ls.sheet, err)
		}
		in.Records = append(in.Records, rowsToRecords(rows, func(rowNo int) (string, map[string]string) {
			return fmt.Sprintf("%s:%s:%d", name, ls.sheet, rowNo), map[string]string{
				internal.FieldCountry: country,
				internal.FieldLevel:   ls.level,
				internal.FieldSheet:   ls.sheet,
				internal.FieldSource:  name,
			}
		})...)
	}

	in.Existing, err = existingFromFile(f)
	if err != nil {
		return Input{}, err
	}
	return in, nil
}

// ExistingNames lists every offering name found in any sheet of a workbook.
func ExistingNames(blob []byte) ([]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(blob))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return existingFromFile(f)
}

func existingFromFile(f *excelize.File) ([]string, error) {
	var out []string
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			continue
		}
		if len(rows) < 2 {
			continue
		}
		idx := findNameColumn(normalizeCells(rows[0]))
		if idx < 0 {
			continue
		}
		for _, row := range rows[1:] {
			if name := pickCell(row, idx, -1); name != "" {
				out = append(out, name)
			}
		}
	}
	return out, nil
}

// rowsToRecords turns a header row plus data rows into records. Blank rows
// are skipped; row numbers are 1-based as in the sheet.
func rowsToRecords(rows [][]string, meta func(rowNo int) (string, map[string]string)) []internal.CandidateRecord {
	if len(rows) < 2 {
		return nil
	}
	headers := normalizeCells(rows[0])

	out := make([]internal.CandidateRecord, 0, len(rows)-1)
	for i, row := range rows[1:] {
		cells := normalizeCells(row)
		if isBlankRow(cells) {
			continue
		}
		id, extra := meta(i + 2)
		fields := make(map[string]string, len(headers)+len(extra)+len(internal.RequiredColumns))
		for _, col := range internal.RequiredColumns {
			fields[col] = ""
		}
		for c, h := range headers {
			if h == "" {
				continue
			}
			fields[h] = pickCell(cells, c, -1)
		}
		for k, v := range extra {
			fields[k] = v
		}
		out = append(out, internal.CandidateRecord{ID: id, Fields: fields})
	}
	return out
}

// ReadHTMLTable reads the first table that has a header row and at least one
// data row.
func ReadHTMLTable(name, html string) ([]internal.CandidateRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	var out []internal.CandidateRecord
	doc.Find("table").EachWithBreak(func(ti int, table *goquery.Selection) bool {
		trs := table.Find("tr")
		if trs.Length() < 2 {
			return true
		}
		rows := make([][]string, 0, trs.Length())
		trs.Each(func(_ int, tr *goquery.Selection) {
			cells := []string{}
			tr.Find("th,td").Each(func(_ int, cell *goquery.Selection) {
				cells = append(cells, cell.Text())
			})
			rows = append(rows, cells)
		})
		out = rowsToRecords(rows, func(rowNo int) (string, map[string]string) {
			return fmt.Sprintf("%s:table%d:%d", name, ti+1, rowNo), map[string]string{
				internal.FieldLevel:  "1",
				internal.FieldSource: name,
			}
		})
		return len(out) == 0
	})
	return out, nil
}

// ReadEML reads workbooks attached to a message and any table in its HTML
// body.
func ReadEML(name string, raw []byte, opts ReadOptions) (Input, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return Input{}, fmt.Errorf("read message %s: %w", name, err)
	}

	in := Input{Name: name}
	for _, att := range env.Attachments {
		filename := strings.TrimSpace(att.FileName)
		if filename == "" {
			filename = "attachment"
		}
		if !strings.HasSuffix(strings.ToLower(filename), ".xlsx") {
			continue
		}
		wb, err := ReadWorkbook(filename, att.Content, opts)
		if err != nil {
			return Input{}, err
		}
		in.merge(wb)
	}
	if env.HTML != "" {
		records, err := ReadHTMLTable(name, env.HTML)
		if err == nil {
			in.Records = append(in.Records, records...)
		}
	}
	return in, nil
}

func findNameColumn(headers []string) int {
	for i, h := range headers {
		if h == internal.ColName {
			return i
		}
	}
	return findHeaderIndex(lowerCells(headers), []string{"name (child service offering", "service offering name", "name"})
}

func findHeaderIndex(headers []string, probes []string) int {
	for _, probe := range probes {
		for i, h := range headers {
			if strings.Contains(h, probe) {
				return i
			}
		}
	}
	return -1
}

func pickCell(cells []string, idx int, fallback int) string {
	if idx >= 0 && idx < len(cells) {
		return strings.TrimSpace(cells[idx])
	}
	if fallback >= 0 && fallback < len(cells) {
		return strings.TrimSpace(cells[fallback])
	}
	return ""
}

// normalizeCells collapses whitespace but keeps line breaks inside
// multi-line cells such as Service Commitments.
func normalizeCells(row []string) []string {
	out := make([]string, 0, len(row))
	for _, c := range row {
		lines := strings.Split(strings.ReplaceAll(c, "\r\n", "\n"), "\n")
		kept := lines[:0]
		for _, l := range lines {
			if l = util.NormalizeSpaces(l); l != "" {
				kept = append(kept, l)
			}
		}
		out = append(out, strings.Join(kept, "\n"))
	}
	return out
}

func lowerCells(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = strings.ToLower(c)
	}
	return out
}

func isBlankRow(cells []string) bool {
	for _, c := range cells {
		if c != "" {
			return false
		}
	}
	return true
}

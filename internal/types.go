package internal

import "strings"

// Column names of the catalog workbooks.
const (
	ColName             = "Name (Child Service Offering lvl 1)"
	ColParentOffering   = "Parent Offering"
	ColDependsOn        = "Service Offerings | Depend On (Application Service)"
	ColCommitments      = "Service Commitments"
	ColLifecycleStage   = "Life Cycle Stage"
	ColLifecycleStatus  = "Life Cycle Status"
	ColSupportGroup     = "Support group"
	ColManagedByGroup   = "Managed by Group"
	ColSubscribedByLoc  = "Subscribed by Location"
	ColBusinessCritical = "Business Criticality"
)

// Fields added by the readers. They never collide with workbook columns.
const (
	FieldCountry = "_country"
	FieldLevel   = "_level"
	FieldSheet   = "_sheet"
	FieldSource  = "_source"
)

// RequiredColumns are filled with "" when a sheet lacks them.
var RequiredColumns = []string{
	ColName, ColParentOffering, ColDependsOn, ColCommitments,
	"Delivery Manager", ColSubscribedByLoc, "Phase", "Status",
	ColLifecycleStage, ColLifecycleStatus, ColSupportGroup, ColManagedByGroup,
	"Subscribed by Company", "Visibility group", ColBusinessCritical,
	"Record view", "Approval required", "Approval group",
}

// CandidateRecord is one row of a candidate catalog. Fields are keyed by
// column name exactly as they appear in the source.
type CandidateRecord struct {
	ID     string
	Fields map[string]string
}

func (r CandidateRecord) Get(field string) (string, bool) {
	if r.Fields == nil {
		return "", false
	}
	v, ok := r.Fields[field]
	return v, ok
}

// Value returns the trimmed field value or "" when absent.
func (r CandidateRecord) Value(field string) string {
	v, _ := r.Get(field)
	return strings.TrimSpace(v)
}

// With returns a copy of the record with extra fields set. The receiver is
// left untouched.
func (r CandidateRecord) With(id string, extra map[string]string) CandidateRecord {
	fields := make(map[string]string, len(r.Fields)+len(extra))
	for k, v := range r.Fields {
		fields[k] = v
	}
	for k, v := range extra {
		fields[k] = v
	}
	if id == "" {
		id = r.ID
	}
	return CandidateRecord{ID: id, Fields: fields}
}

type Commitment struct {
	Response     string `json:"response"`
	Resolution   string `json:"resolution"`
	Availability string `json:"availability"`
}

type ServiceOffering struct {
	Name       string
	Category   string
	Commitment Commitment
	ProfileKey string
	Source     CandidateRecord
}

type Disposition string

const (
	DispositionFiltered  Disposition = "filtered_out"
	DispositionDuplicate Disposition = "duplicate_suppressed"
	DispositionEmitted   Disposition = "emitted"
)

type Outcome struct {
	RecordID    string
	Disposition Disposition
	Name        string
	DuplicateOf string
}

type RunCounts struct {
	Input               int `json:"input"`
	FilteredOut         int `json:"filtered_out"`
	DuplicateSuppressed int `json:"duplicate_suppressed"`
	Emitted             int `json:"emitted"`
}

type RunSummary struct {
	Counts   RunCounts
	Emitted  []ServiceOffering
	Outcomes []Outcome
}

type ExistingOffering struct {
	Name      string
	Source    string
	SysID     *string
	UpdatedAt *string
}

type RunRow struct {
	ID         int
	RunID      string
	Convention string
	Profile    string
	Inputs     []string
	Output     string
	Counts     RunCounts
	TimingsMs  map[string]float64
	CreatedAt  string
}

// InputRow tracks a workbook picked up by the listener.
type InputRow struct {
	ID     int
	Path   string
	Hash   string
	Status string
	RunID  *string
}

type RunOfferingRow struct {
	Seq          int
	Name         string
	Category     string
	Response     string
	Resolution   string
	Availability string
	ProfileKey   string
	SourceID     string
	Fields       map[string]string
}

type ReviewCandidate struct {
	Name  string
	Score float64
}

// ReviewItem flags an emitted offering whose name is close to, but not a
// duplicate of, an existing name.
type ReviewItem struct {
	RecordID   string
	Name       string
	Score      float64
	Candidates []ReviewCandidate
}

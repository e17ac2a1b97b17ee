package pipeline

import (
	"regexp"
	"strings"

	"github.com/malgorzata-bondini/offerings-app/internal"
)

var (
	reParentTag   = regexp.MustCompile(`(?i)\[\s*Parent\s+(.*?)\]`)
	reBracketTag  = regexp.MustCompile(`\[(.*?)\]`)
	reCountryCode = regexp.MustCompile(`^[A-Z]{2}$`)
)

// DSOnlyCountries are always delivered by the DS division.
var DSOnlyCountries = map[string]bool{"UA": true, "MD": true, "RO": true, "TR": true}

var noProdKeywords = []string{"hardware", "mailbox", "network", "mobile", "security"}

// level 2 names drop Prod for Microsoft offerings only
var noProdKeywordsLevel2 = []string{"microsoft"}

var nonTopicParts = map[string]bool{"HS": true, "DS": true, "SR": true, "IM": true, "PARENT": true, "RECP": true}

var deptParts = map[string]bool{"IT": true, "HR": true, "Medical": true}

// ParentInfo is what a Parent Offering value such as
// "[Parent SR HS PL IT] Software installation" encodes. Topic is the first
// tag word that is neither a division nor a two letter code.
type ParentInfo struct {
	Tag         string
	Division    string
	Country     string
	Dept        string
	Topic       string
	CatalogName string
}

func ParseParentOffering(parent string) ParentInfo {
	parent = strings.TrimSpace(parent)
	var info ParentInfo

	if m := reParentTag.FindStringSubmatch(parent); m != nil {
		info.Tag = strings.TrimSpace(m[1])
	} else if m := reBracketTag.FindStringSubmatch(parent); m != nil {
		info.Tag = strings.TrimSpace(m[1])
	}
	if i := strings.Index(parent, "]"); i >= 0 {
		info.CatalogName = strings.TrimSpace(parent[i+1:])
	} else {
		info.CatalogName = parent
	}

	for _, part := range strings.Fields(info.Tag) {
		upper := strings.ToUpper(part)
		switch {
		case (upper == "HS" || upper == "DS") && info.Division == "":
			info.Division = upper
		case deptParts[part]:
			if info.Dept == "" {
				info.Dept = part
			}
		case nonTopicParts[upper]:
		case reCountryCode.MatchString(part):
			if info.Country == "" {
				info.Country = part
			}
		case info.Topic == "":
			info.Topic = part
		}
	}
	return info
}

// RecordCountry is the country a record belongs to: the parent tag's code,
// else the one its reader attached.
func RecordCountry(record internal.CandidateRecord) string {
	if c := ParseParentOffering(record.Value(internal.ColParentOffering)).Country; c != "" {
		return c
	}
	return record.Value(internal.FieldCountry)
}

func hasAny(s string, keywords []string) bool {
	lower := strings.ToLower(s)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Derive computes the naming fields shared by every candidate expanded from
// record. Kind, receiver, app and schedule are filled by the expander.
//
// delivery is the delivering organisation placed before CORP: the
// configured delivering tag, or division and country. parent_division is
// the division written in the parent tag only.
func Derive(record internal.CandidateRecord, deliveringTag, dept string) map[string]string {
	parent := record.Value(internal.ColParentOffering)
	info := ParseParentOffering(parent)

	country := info.Country
	if country == "" {
		country = record.Value(internal.FieldCountry)
	}
	division := info.Division
	if division == "" {
		if parts := strings.Fields(deliveringTag); len(parts) > 0 && (parts[0] == "HS" || parts[0] == "DS") {
			division = parts[0]
		}
	}
	if division == "" {
		division = "HS"
	}
	parentDivision := info.Division
	delivery := strings.TrimSpace(deliveringTag)
	if delivery == "" {
		delivery = strings.TrimSpace(division + " " + country)
	}
	if DSOnlyCountries[country] {
		division = "DS"
		parentDivision = "DS"
		delivery = "DS " + country
	}

	catalog := info.CatalogName
	if catalog == "" {
		catalog = record.Value(internal.ColName)
	}

	prod := "Prod"
	if hasAny(catalog, noProdKeywords) {
		prod = ""
	}
	if dept == "" {
		dept = info.Dept
	}
	itTopic := info.Topic
	if itTopic == "" {
		itTopic = "Software"
	}

	return map[string]string{
		"division":        division,
		"parent_division": parentDivision,
		"country":         country,
		"delivery":        delivery,
		"topic":           info.Topic,
		"it_topic":        itTopic,
		"catalog_name":    catalog,
		"prod":            prod,
		"dept":            dept,
	}
}

// prodLevel2 is "Prod" unless the catalog name or app names Microsoft.
func prodLevel2(catalog, app string) string {
	if hasAny(catalog+" "+app, noProdKeywordsLevel2) {
		return ""
	}
	return "Prod"
}

package engine

import (
	"regexp"
	"strings"

	"github.com/malgorzata-bondini/offerings-app/internal"
	"github.com/malgorzata-bondini/offerings-app/internal/util"
)

type CaseRule string

const (
	CaseKeep  CaseRule = ""
	CaseLower CaseRule = "lower"
	CaseUpper CaseRule = "upper"
	CaseTitle CaseRule = "title"
)

// NameRules are the per-convention normalization flags applied to a
// rendered name.
type NameRules struct {
	Trim            bool
	CollapseSpace   bool
	Case            CaseRule
	IncidentSolving bool
}

// Convention is a naming scheme. Variants differ only in data: the template,
// the declared field set and the normalization rules.
//
// Template text is literal except for {field} slots. A slot may carry
// filters: {field|lower}, {field|upper}, {field|title}, {field|trim}.
// "{{" and "}}" produce literal braces.
type Convention struct {
	ID       string
	Template string
	Fields   []string
	Rules    NameRules
}

type segment struct {
	literal string
	field   string
	filters []string
}

type CompiledConvention struct {
	Convention
	segments []segment
	declared map[string]struct{}
}

var slotFilters = map[string]func(string) string{
	"lower": util.Lower,
	"upper": util.Upper,
	"title": util.Title,
	"trim":  strings.TrimSpace,
}

// CompileConvention parses the template and checks every slot against the
// declared field set. Misconfiguration is reported here, once, instead of
// per record.
func CompileConvention(c Convention) (*CompiledConvention, error) {
	if strings.TrimSpace(c.ID) == "" {
		return nil, configErrorf("naming", "", "convention id is empty")
	}
	if strings.TrimSpace(c.Template) == "" {
		return nil, configErrorf("naming", c.ID, "template is empty")
	}
	switch c.Rules.Case {
	case CaseKeep, CaseLower, CaseUpper, CaseTitle:
	default:
		return nil, configErrorf("naming", c.ID, "unknown case rule %q", c.Rules.Case)
	}

	declared := make(map[string]struct{}, len(c.Fields))
	for _, f := range c.Fields {
		if strings.TrimSpace(f) == "" {
			return nil, configErrorf("naming", c.ID, "declared field set contains an empty name")
		}
		declared[f] = struct{}{}
	}

	segments, err := parseTemplate(c.ID, c.Template)
	if err != nil {
		return nil, err
	}
	for _, seg := range segments {
		if seg.field == "" {
			continue
		}
		if _, ok := declared[seg.field]; !ok {
			return nil, configErrorf("naming", c.ID, "template references undeclared field %q", seg.field)
		}
		for _, f := range seg.filters {
			if _, ok := slotFilters[f]; !ok {
				return nil, configErrorf("naming", c.ID, "unknown filter %q on field %q", f, seg.field)
			}
		}
	}

	return &CompiledConvention{Convention: c, segments: segments, declared: declared}, nil
}

func parseTemplate(id, tpl string) ([]segment, error) {
	var out []segment
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			out = append(out, segment{literal: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(tpl); i++ {
		ch := tpl[i]
		switch {
		case ch == '{' && i+1 < len(tpl) && tpl[i+1] == '{':
			lit.WriteByte('{')
			i++
		case ch == '}' && i+1 < len(tpl) && tpl[i+1] == '}':
			lit.WriteByte('}')
			i++
		case ch == '{':
			end := strings.IndexByte(tpl[i+1:], '}')
			if end < 0 {
				return nil, configErrorf("naming", id, "unclosed slot at offset %d", i)
			}
			body := tpl[i+1 : i+1+end]
			if strings.ContainsRune(body, '{') {
				return nil, configErrorf("naming", id, "nested slot at offset %d", i)
			}
			parts := strings.Split(body, "|")
			field := strings.TrimSpace(parts[0])
			if field == "" {
				return nil, configErrorf("naming", id, "empty slot at offset %d", i)
			}
			filters := make([]string, 0, len(parts)-1)
			for _, p := range parts[1:] {
				filters = append(filters, strings.ToLower(strings.TrimSpace(p)))
			}
			flush()
			out = append(out, segment{field: field, filters: filters})
			i += end + 1
		case ch == '}':
			return nil, configErrorf("naming", id, "unexpected '}' at offset %d", i)
		default:
			lit.WriteByte(ch)
		}
	}
	flush()
	return out, nil
}

// RequiredFields lists the declared fields in declaration order.
func (c *CompiledConvention) RequiredFields() []string {
	return append([]string(nil), c.Fields...)
}

// Render substitutes record values into the template. A declared field the
// record lacks renders as an empty string. Output depends only on the
// record and the convention.
func (c *CompiledConvention) Render(record internal.CandidateRecord) string {
	var b strings.Builder
	for _, seg := range c.segments {
		if seg.field == "" {
			b.WriteString(seg.literal)
			continue
		}
		v, _ := record.Get(seg.field)
		if c.Rules.Trim {
			v = strings.TrimSpace(v)
		}
		for _, f := range seg.filters {
			v = slotFilters[f](v)
		}
		b.WriteString(v)
	}
	return c.Rules.apply(b.String())
}

var (
	reBracketOpen  = regexp.MustCompile(`\[\s+`)
	reBracketClose = regexp.MustCompile(`\s+\]`)
	reIncidentDone = regexp.MustCompile(`(?i)\bincident\s+solving\b`)
)

func (r NameRules) apply(name string) string {
	switch r.Case {
	case CaseLower:
		name = util.Lower(name)
	case CaseUpper:
		name = util.Upper(name)
	case CaseTitle:
		name = util.Title(name)
	}
	if r.CollapseSpace {
		name = util.NormalizeSpaces(name)
		name = reBracketOpen.ReplaceAllString(name, "[")
		name = reBracketClose.ReplaceAllString(name, "]")
	}
	if r.Trim {
		name = strings.TrimSpace(name)
	}
	if r.IncidentSolving {
		name = incidentSolving(name)
	}
	return name
}

// incidentSolving makes every "incident" read "incident solving", moving a
// stray "solving" from later (or earlier) in the name.
func incidentSolving(name string) string {
	if reIncidentDone.MatchString(name) {
		return name
	}
	words := strings.Fields(name)
	hasIncident := false
	for _, w := range words {
		if strings.EqualFold(w, "incident") {
			hasIncident = true
			break
		}
	}
	if !hasIncident {
		return name
	}

	out := make([]string, 0, len(words)+1)
	for _, w := range words {
		if strings.EqualFold(w, "solving") {
			continue
		}
		out = append(out, w)
		if strings.EqualFold(w, "incident") {
			out = append(out, "solving")
		}
	}
	return strings.Join(out, " ")
}

// DerivedFields is the field set the built-in conventions declare. The
// pipeline fills these on every expanded record.
var DerivedFields = []string{
	"sr_im", "division", "parent_division", "country", "delivery", "receiver",
	"dept", "topic", "service_topic", "catalog_name", "app", "app_name",
	"prod", "prod_level2", "service_type", "schedule",
}

var builtinRules = NameRules{Trim: true, CollapseSpace: true, IncidentSolving: true}

// Level2ConventionID names the convention level 2 rows are rendered with
// when a profile includes them.
const Level2ConventionID = "Lvl2"

// BuiltinConventions returns the stock naming schemes.
func BuiltinConventions() []Convention {
	return []Convention{
		{
			ID:       "Standard",
			Template: "[{sr_im} {division} {country} {topic} {dept}] {catalog_name} {app} {prod} {schedule}",
			Fields:   DerivedFields,
			Rules:    builtinRules,
		},
		{
			ID:       "CORP",
			Template: "[{sr_im} {delivery} CORP {receiver} {topic}] {catalog_name} {app} Prod {schedule}",
			Fields:   DerivedFields,
			Rules:    builtinRules,
		},
		{
			ID:       "IT",
			Template: "[{sr_im} {delivery} CORP {receiver} IT] {service_topic} {catalog_name|lower} {app} {schedule}",
			Fields:   DerivedFields,
			Rules:    builtinRules,
		},
		{
			ID:       "RecP",
			Template: "[{sr_im} {parent_division} {country} CORP {delivery} IT] {topic} {catalog_name|lower} {app} Prod {schedule}",
			Fields:   DerivedFields,
			Rules:    builtinRules,
		},
		{
			ID:       "Medical",
			Template: "[{sr_im} {division} {country} Medical] {service_topic} {catalog_name|lower} {schedule}",
			Fields:   DerivedFields,
			Rules:    builtinRules,
		},
		{
			ID:       "Dedicated",
			Template: "[{sr_im} {delivery} CORP {receiver} Dedicated Services] {catalog_name} {app} Prod {schedule}",
			Fields:   DerivedFields,
			Rules:    builtinRules,
		},
		{
			ID:       Level2ConventionID,
			Template: "[{sr_im} {division} {country} {dept}] {catalog_name} {app_name} {prod_level2} {service_type} {schedule}",
			Fields:   DerivedFields,
			Rules:    builtinRules,
		},
	}
}

// LookupConvention finds a built-in convention by id, ignoring case.
func LookupConvention(id string) (Convention, bool) {
	for _, c := range BuiltinConventions() {
		if strings.EqualFold(c.ID, strings.TrimSpace(id)) {
			return c, true
		}
	}
	return Convention{}, false
}

package pipeline

import (
	"fmt"
	"strings"

	"github.com/malgorzata-bondini/offerings-app/internal"
)

const priorityRange = "P1-P4"

// CommitmentLines renders the Service Commitments cell for an offering:
// an SLA response line, an SLA resolution line and, for requests, the
// matching OLA resolution line. Lines whose duration is empty are left out.
func CommitmentLines(country, kind, schedule string, c internal.Commitment) string {
	cc := strings.TrimSpace(country)
	if cc == "" {
		cc = "GLOBAL"
	}
	kind = strings.ToUpper(strings.TrimSpace(kind))
	if kind == "" {
		kind = "SR"
	}
	if a := strings.TrimSpace(c.Availability); a != "" {
		schedule = a
	}
	schedule = strings.TrimSpace(schedule)

	line := func(agreement, metric, duration string) string {
		parts := []string{fmt.Sprintf("[%s]", cc), agreement, kind, metric}
		if schedule != "" {
			parts = append(parts, schedule)
		}
		parts = append(parts, priorityRange, duration)
		return strings.Join(parts, " ")
	}

	var lines []string
	if rsp := strings.TrimSpace(c.Response); rsp != "" {
		lines = append(lines, line("SLA", "RSP", rsp))
	}
	if rsl := strings.TrimSpace(c.Resolution); rsl != "" {
		lines = append(lines, line("SLA", "RSL", rsl))
		if kind == "SR" {
			lines = append(lines, line("OLA", "RSL", rsl))
		}
	}
	return strings.Join(lines, "\n")
}

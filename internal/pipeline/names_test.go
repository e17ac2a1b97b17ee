package pipeline

import (
	"testing"

	"github.com/malgorzata-bondini/offerings-app/internal"
	"github.com/malgorzata-bondini/offerings-app/internal/config"
	"github.com/malgorzata-bondini/offerings-app/internal/engine"
)

func TestBuiltinNames(t *testing.T) {
	cases := []struct {
		convention string
		parent     string
		kind       string
		app        string
		receiver   string
		delivering string
		service    string
		want       string
	}{
		{
			convention: "CORP", parent: "[Parent HS PL Software] Installation", kind: "SR", app: "SAP", receiver: "DS PL",
			want: "[SR HS PL CORP DS PL Software] Installation SAP Prod Mon-Fri 8-17",
		},
		{
			convention: "CORP", parent: "[Parent DS UA] Mailbox access", kind: "IM", receiver: "DS UA", delivering: "HS PL",
			want: "[IM DS UA CORP DS UA] Mailbox access solving Prod Mon-Fri 8-17",
		},
		{
			convention: "CORP", parent: "[Parent HS PL] Network printer", kind: "SR", receiver: "HS PL", delivering: "DS PL",
			want: "[SR DS PL CORP HS PL] Network printer Prod Mon-Fri 8-17",
		},
		{
			convention: "IT", parent: "[Parent HS PL] Laptop support", kind: "IM", app: "Teams", receiver: "HS PL", delivering: "DS PL",
			want: "[IM DS PL CORP HS PL IT] Software laptop support Teams solving Mon-Fri 8-17",
		},
		{
			convention: "Dedicated", parent: "[Parent HS DE] Workplace", kind: "SR", receiver: "HS DE",
			want: "[SR HS DE CORP HS DE Dedicated Services] Workplace Prod Mon-Fri 8-17",
		},
		{
			convention: "RecP", parent: "[Parent RecP HS PL Software] Access management", kind: "SR", app: "SAP", receiver: "HS PL", delivering: "DS PL",
			want: "[SR HS PL CORP DS PL IT] Software access management SAP Prod Mon-Fri 8-17",
		},
		{
			convention: "RecP", parent: "[Parent RecP MD Hardware] Laptop", kind: "IM", receiver: "DS MD", delivering: "HS PL",
			want: "[IM DS MD CORP DS MD IT] Hardware laptop solving Prod Mon-Fri 8-17",
		},
		{
			convention: "Medical", parent: "[Parent HS DE Imaging] Radiology viewer", kind: "SR", app: "PACS", receiver: "HS DE",
			want: "[SR HS DE Medical] Imaging radiology viewer Mon-Fri 8-17",
		},
		{
			convention: "Standard", parent: "[Parent HS PL IT] Network printer", kind: "SR", receiver: "HS PL",
			want: "[SR HS PL IT] Network printer Mon-Fri 8-17",
		},
		{
			convention: "Standard", parent: "[Parent HS PL] Microsoft Office", kind: "SR", receiver: "HS PL",
			want: "[SR HS PL] Microsoft Office Prod Mon-Fri 8-17",
		},
		{
			convention: "Lvl2", parent: "[Parent HS PL IT] Microsoft Teams", kind: "SR", receiver: "HS PL", service: "Application issue",
			want: "[SR HS PL IT] Microsoft Teams Application issue Mon-Fri 8-17",
		},
		{
			convention: "Lvl2", parent: "[Parent DS RO HR] Payroll incident", kind: "IM", app: "SAP", receiver: "DS RO", service: "Access",
			want: "[IM DS RO HR] Payroll incident solving SAP Prod Access Mon-Fri 8-17",
		},
	}

	for _, tc := range cases {
		c, ok := engine.LookupConvention(tc.convention)
		if !ok {
			t.Fatalf("no convention %s", tc.convention)
		}
		conv, err := engine.CompileConvention(c)
		if err != nil {
			t.Fatal(err)
		}

		src := internal.CandidateRecord{ID: "r", Fields: map[string]string{internal.ColParentOffering: tc.parent}}
		country := ParseParentOffering(tc.parent).Country
		spec := config.ExpandSpec{
			Kinds:         []string{tc.kind},
			Apps:          []string{tc.app},
			Schedules:     []string{"Mon-Fri 8-17"},
			Receivers:     map[string][]string{country: {tc.receiver}},
			DeliveringTag: tc.delivering,
			ServiceType:   tc.service,
		}
		out := Expand([]internal.CandidateRecord{src}, spec)
		if len(out) != 1 {
			t.Fatalf("%s: %d candidates", tc.parent, len(out))
		}
		if got := conv.Render(out[0]); got != tc.want {
			t.Fatalf("%s %s:\n got %q\nwant %q", tc.convention, tc.parent, got, tc.want)
		}
	}
}

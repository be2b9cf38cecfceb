package query_test

import (
	"slices"
	"testing"

	"github.com/JaimeStill/manifest/pkg/query"
)

func ruleProjection() *query.ProjectionMap {
	return query.NewProjectionMap("public", "rules", "r").
		Project("id", "id").
		Project("pattern", "pattern").
		Project("category", "category").
		Project("priority", "priority")
}

func ptr(s string) *string { return &s }

func TestParseSortFields(t *testing.T) {
	tests := []struct {
		in   string
		want []query.SortField
	}{
		{"", nil},
		{"category", []query.SortField{{Field: "category"}}},
		{"-priority, category", []query.SortField{
			{Field: "priority", Descending: true},
			{Field: "category"},
		}},
		{" , ,", nil},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := query.ParseSortFields(tt.in); !slices.Equal(got, tt.want) {
				t.Errorf("ParseSortFields(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestBuilderStatements(t *testing.T) {
	category := "THC"
	var nilCategory *string

	tests := []struct {
		name     string
		build    func(b *query.Builder) (string, []any)
		wantSQL  string
		wantArgs []any
	}{
		{
			name:    "plain select uses default sort",
			build:   func(b *query.Builder) (string, []any) { return b.Build() },
			wantSQL: "SELECT r.id, r.pattern, r.category, r.priority FROM public.rules r ORDER BY r.priority DESC",
		},
		{
			name: "nil values are skipped",
			build: func(b *query.Builder) (string, []any) {
				return b.WhereEquals("category", nilCategory).WhereSearch(nil, "pattern").BuildCount()
			},
			wantSQL: "SELECT COUNT(*) FROM public.rules r",
		},
		{
			name: "conditions number placeholders in order",
			build: func(b *query.Builder) (string, []any) {
				return b.
					WhereEquals("category", &category).
					WhereIn("priority", []any{1, 2}).
					WhereSearch(ptr("handling"), "pattern", "category").
					BuildCount()
			},
			wantSQL:  "SELECT COUNT(*) FROM public.rules r WHERE r.category = $1 AND r.priority IN ($2, $3) AND (r.pattern ILIKE $4 OR r.category ILIKE $5)",
			wantArgs: []any{&category, 1, 2, "%handling%", "%handling%"},
		},
		{
			name: "nullable",
			build: func(b *query.Builder) (string, []any) {
				return b.WhereNullable("category", nil).WhereAtLeast("priority", 5).BuildCount()
			},
			wantSQL:  "SELECT COUNT(*) FROM public.rules r WHERE r.category IS NULL AND r.priority >= $1",
			wantArgs: []any{5},
		},
		{
			name: "page",
			build: func(b *query.Builder) (string, []any) {
				return b.OrderByFields([]query.SortField{{Field: "pattern"}}).BuildPage(3, 10)
			},
			wantSQL: "SELECT r.id, r.pattern, r.category, r.priority FROM public.rules r ORDER BY r.pattern ASC LIMIT 10 OFFSET 20",
		},
		{
			name:     "single",
			build:    func(b *query.Builder) (string, []any) { return b.BuildSingle("id", "abc") },
			wantSQL:  "SELECT r.id, r.pattern, r.category, r.priority FROM public.rules r WHERE r.id = $1",
			wantArgs: []any{"abc"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := query.NewBuilder(ruleProjection(), query.SortField{Field: "priority", Descending: true})
			sql, args := tt.build(b)
			if sql != tt.wantSQL {
				t.Errorf("sql = %q\nwant  %q", sql, tt.wantSQL)
			}
			if !slices.Equal(args, tt.wantArgs) {
				t.Errorf("args = %v, want %v", args, tt.wantArgs)
			}
		})
	}
}

func TestProjectionJoin(t *testing.T) {
	p := query.NewProjectionMap("public", "line_items", "li").
		Project("id", "id").
		LeftJoin("documents", "d", "d.id = li.document_id").
		ProjectFrom("d", "company_id", "companyId")

	want := "public.line_items li LEFT JOIN public.documents d ON d.id = li.document_id"
	if got := p.From(); got != want {
		t.Errorf("From = %q, want %q", got, want)
	}
	if got := p.Column("companyId"); got != "d.company_id" {
		t.Errorf("Column(companyId) = %q", got)
	}
	if got := p.Column("unmapped"); got != "unmapped" {
		t.Errorf("Column(unmapped) = %q", got)
	}
}

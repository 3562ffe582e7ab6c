package summary

import (
	"context"
	"strings"
	"sync"
	"testing"

	"econova/pkg/nova/tenant"
)

type recordingSource struct {
	mu      sync.Mutex
	queries []string
	rows    []map[string]any
}

func (s *recordingSource) Query(_ context.Context, sql string) ([]map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, sql)
	return s.rows, nil
}

func TestSummaryScopesToCompany(t *testing.T) {
	ds := &recordingSource{rows: []map[string]any{{"ventas": int64(12), "total_mxn": 45000.0}}}
	p, err := New(ds, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	company := 2
	got, err := p.Summary(context.Background(), tenant.FocusVentas, &company)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if got["company"] != "ORSEGA" || got["company_id"] != 2 || got["focus"] != "ventas" {
		t.Fatalf("unexpected summary header %+v", got)
	}
	if rows, ok := got["ventas"].([]map[string]any); !ok || len(rows) != 1 {
		t.Fatalf("unexpected ventas rows %#v", got["ventas"])
	}
	if len(ds.queries) != 1 || !strings.Contains(ds.queries[0], "company_id = 2") {
		t.Fatalf("expected company filter, got %v", ds.queries)
	}
}

func TestSummaryWithoutCompany(t *testing.T) {
	ds := &recordingSource{}
	p, _ := New(ds, nil)
	if _, err := p.Summary(context.Background(), tenant.FocusClientes, nil); err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if strings.Contains(ds.queries[0], "company_id") {
		t.Fatalf("unexpected company filter in %q", ds.queries[0])
	}
}

func TestGeneralCombinesParts(t *testing.T) {
	ds := &recordingSource{}
	p, _ := New(ds, nil)
	got, err := p.Summary(context.Background(), tenant.FocusGeneral, nil)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	for _, key := range []string{"ventas", "kpis", "clientes"} {
		if _, ok := got[key]; !ok {
			t.Fatalf("expected %s in general summary, got %+v", key, got)
		}
	}
	if len(ds.queries) != 3 {
		t.Fatalf("expected 3 queries, got %d", len(ds.queries))
	}
}

func TestOverridesAndRemoval(t *testing.T) {
	ds := &recordingSource{}
	p, err := New(ds, map[tenant.SummaryFocus]string{
		tenant.FocusGeneral: "SELECT 1 AS ok",
		tenant.FocusKPIs:    "",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Summary(context.Background(), tenant.FocusGeneral, nil); err != nil {
		t.Fatalf("general: %v", err)
	}
	if ds.queries[0] != "SELECT 1 AS ok" {
		t.Fatalf("expected override query, got %q", ds.queries[0])
	}
	if _, err := p.Summary(context.Background(), tenant.FocusKPIs, nil); err == nil {
		t.Fatal("expected error for removed focus")
	}
}

func TestUnsafeTemplateIsRejectedByGuard(t *testing.T) {
	ds := &recordingSource{}
	p, err := New(ds, map[tenant.SummaryFocus]string{tenant.FocusVentas: "DELETE FROM sales"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Summary(context.Background(), tenant.FocusVentas, nil); err == nil {
		t.Fatal("expected guard rejection")
	}
	if len(ds.queries) != 0 {
		t.Fatal("rejected query must not reach the data source")
	}
}

func TestBadTemplate(t *testing.T) {
	if _, err := New(&recordingSource{}, map[tenant.SummaryFocus]string{tenant.FocusVentas: "SELECT {{ .Nope"}); err == nil {
		t.Fatal("expected parse error")
	}
}

package prompt

import (
	"strings"
	"testing"

	"econova/pkg/nova/tenant"
)

const schema = `TABLE ventas (id serial, company_id int, fecha date, total numeric(12,2))
TABLE clientes (id serial, company_id int, nombre text, activo bool)
-- 1 = DURA, 2 = ORSEGA`

func baseConfig() tenant.Config {
	return tenant.Config{
		TenantID:              "econova",
		TenantName:            "Grupo EcoNova",
		DatabaseSchema:        schema,
		SystemPromptAdditions: "Los montos están en MXN salvo que se indique otra divisa.",
	}
}

func TestBuildSystemPromptContainsSchemaAndName(t *testing.T) {
	for _, build := range []func(tenant.Config, *tenant.Context) string{BuildSystemPrompt, BuildCompactPrompt} {
		out := build(baseConfig(), nil)
		if !strings.Contains(out, schema) {
			t.Fatal("schema not included verbatim")
		}
		if !strings.Contains(out, "Grupo EcoNova") {
			t.Fatal("tenant name missing")
		}
		if !strings.Contains(out, "Los montos están en MXN") {
			t.Fatal("additions missing")
		}
		if !strings.Contains(out, "SELECT") {
			t.Fatal("SELECT-only rule missing")
		}
	}
}

func TestBuildSystemPromptLargeSchemaIsNotTruncated(t *testing.T) {
	cfg := baseConfig()
	cfg.DatabaseSchema = strings.Repeat("TABLE t (c int)\n", 5000)
	if out := BuildSystemPrompt(cfg, nil); !strings.Contains(out, cfg.DatabaseSchema) {
		t.Fatal("large schema was truncated")
	}
}

func TestBuildSystemPromptDeterministic(t *testing.T) {
	company := 1
	actx := &tenant.Context{CompanyID: &company}
	a := BuildSystemPrompt(baseConfig(), actx)
	b := BuildSystemPrompt(baseConfig(), actx)
	if a != b {
		t.Fatal("prompt differs between identical calls")
	}
}

func TestBuildSystemPromptSectionOrder(t *testing.T) {
	company := 2
	out := BuildSystemPrompt(baseConfig(), &tenant.Context{CompanyID: &company})
	markers := []string{
		"Grupo EcoNova",
		"Reglas para consultas SQL",
		"Herramientas disponibles",
		"Esquema de la base de datos",
		"Instrucciones adicionales del tenant",
		"company_id = 2",
		"Estilo de respuesta",
	}
	last := -1
	for _, m := range markers {
		idx := strings.Index(out, m)
		if idx < 0 {
			t.Fatalf("missing section %q", m)
		}
		if idx < last {
			t.Fatalf("section %q out of order", m)
		}
		last = idx
	}
	if !strings.Contains(out, "ORSEGA") {
		t.Fatal("expected company name in scope instruction")
	}
}

func TestCompanyScopeOnlyWhenSet(t *testing.T) {
	for _, actx := range []*tenant.Context{nil, {UserID: "u1"}} {
		if out := BuildSystemPrompt(baseConfig(), actx); strings.Contains(out, "Alcance por empresa") {
			t.Fatal("unexpected company scope without company id")
		}
	}
	company := 7
	out := BuildCompactPrompt(baseConfig(), &tenant.Context{CompanyID: &company})
	if !strings.Contains(out, "company_id = 7") {
		t.Fatal("compact prompt dropped the company scope")
	}
}

func TestPromptListsOnlyEnabledTools(t *testing.T) {
	cfg := baseConfig()
	cfg.EnabledTools = []tenant.Tool{tenant.ToolQueryDatabase}
	for _, out := range []string{BuildSystemPrompt(cfg, nil), BuildCompactPrompt(cfg, nil)} {
		if !strings.Contains(out, "query_database") {
			t.Fatal("enabled tool missing")
		}
		if strings.Contains(out, "get_exchange_rate") || strings.Contains(out, "get_business_summary") {
			t.Fatal("disabled tool listed")
		}
	}
	cfg.EnabledTools = []tenant.Tool{}
	if out := BuildSystemPrompt(cfg, nil); strings.Contains(out, "query_database") {
		t.Fatal("empty tool list should list no tools")
	}
}

func TestCompactIsShorterAndBuildSelectsVariant(t *testing.T) {
	cfg := baseConfig()
	full := BuildSystemPrompt(cfg, nil)
	compact := BuildCompactPrompt(cfg, nil)
	if len(compact) >= len(full) {
		t.Fatalf("compact prompt (%d) not shorter than full (%d)", len(compact), len(full))
	}
	if Build(cfg, nil) != full {
		t.Fatal("expected full prompt by default")
	}
	cfg.CompactPrompt = true
	if Build(cfg, nil) != compact {
		t.Fatal("expected compact prompt when configured")
	}
}

package tenants

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"econova/pkg/auth"
	"econova/pkg/nova/tenant"
)

const registryYAML = `
tenants:
  - id: econova
    name: EcoNova
    database_url: ${NOVA_TEST_DB_URL}
    schema_file: schema.txt
    prompt_additions: "Responde siempre en pesos."
    enabled_tools: [query_database, get_business_summary]
    model: claude-haiku-4-5
    compact_prompt: true
    limits:
      max_iterations: 3
      max_rows: 50
      statement_timeout: 5s
    summaries:
      ventas: "SELECT SUM(total) AS total FROM sales"
    api_keys:
      - name: erp
        hash: "$2a$10$abcdefghijklmnopqrstuv"
        user_id: erp-bot
        company_id: 2
  - id: acme
    name: Acme
    database_url: postgres://acme
    schema: "clients(id, name)"
    api_keys:
      - name: admin
        hash: "$2a$10$zyx"
        role: admin
`

func writeRegistry(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "schema.txt"), []byte("sales(id, total, company_id)"), 0o600); err != nil {
		t.Fatalf("write schema: %v", err)
	}
	path := filepath.Join(dir, "tenants.yaml")
	if err := os.WriteFile(path, []byte(registryYAML), 0o600); err != nil {
		t.Fatalf("write registry: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Setenv("NOVA_TEST_DB_URL", "postgres://econova")
	reg, err := Load(writeRegistry(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if ids := reg.IDs(); len(ids) != 2 || ids[0] != "acme" || ids[1] != "econova" {
		t.Fatalf("unexpected ids %v", ids)
	}

	spec, ok := reg.Get("econova")
	if !ok {
		t.Fatal("expected econova tenant")
	}
	if spec.DatabaseURL != "postgres://econova" {
		t.Fatalf("expected expanded database url, got %q", spec.DatabaseURL)
	}
	if spec.Schema != "sales(id, total, company_id)" {
		t.Fatalf("expected schema from file, got %q", spec.Schema)
	}
	if spec.Limits.StatementTimeout != 5*time.Second || spec.Limits.MaxRows != 50 {
		t.Fatalf("unexpected limits %+v", spec.Limits)
	}
	if len(spec.EnabledTools) != 2 || spec.EnabledTools[1] != tenant.ToolBusinessSummary {
		t.Fatalf("unexpected tools %v", spec.EnabledTools)
	}
	if spec.Summaries[tenant.FocusVentas] == "" {
		t.Fatal("expected ventas summary template")
	}

	acme, _ := reg.Get("acme")
	if acme.EnabledTools != nil {
		t.Fatalf("expected nil tools (all enabled), got %v", acme.EnabledTools)
	}
}

func TestAPIKeys(t *testing.T) {
	t.Setenv("NOVA_TEST_DB_URL", "postgres://econova")
	reg, err := Load(writeRegistry(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	keys := reg.APIKeys()
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %d", len(keys))
	}
	if keys[0].Identity.TenantID != "acme" || keys[0].Identity.Role != auth.RoleAdmin {
		t.Fatalf("unexpected first key %+v", keys[0])
	}
	erp := keys[1].Identity
	if erp.TenantID != "econova" || erp.Role != auth.RoleUser || erp.CompanyID == nil || *erp.CompanyID != 2 {
		t.Fatalf("unexpected erp identity %+v", erp)
	}
}

func TestAgentConfig(t *testing.T) {
	t.Setenv("NOVA_TEST_DB_URL", "postgres://econova")
	reg, err := Load(writeRegistry(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	spec, _ := reg.Get("econova")
	ds := tenant.DataSourceFunc(nil)
	cfg := spec.AgentConfig(Dependencies{DataSource: ds, APIKey: "sk-test"})

	if cfg.TenantID != "econova" || cfg.TenantName != "EcoNova" || cfg.APIKey != "sk-test" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.MaxIterations != 3 || cfg.MaxRows != 50 || !cfg.CompactPrompt || cfg.Model != "claude-haiku-4-5" {
		t.Fatalf("limits not applied: %+v", cfg)
	}
	cfg.EnabledTools[0] = tenant.ToolExchangeRate
	if spec.EnabledTools[0] != tenant.ToolQueryDatabase {
		t.Fatal("agent config must not alias the registry's tool list")
	}
}

func TestParseErrors(t *testing.T) {
	cases := map[string]string{
		"empty":       "tenants: []",
		"missing id":  "tenants: [{name: A, database_url: x}]",
		"missing url": "tenants: [{id: a, name: A}]",
		"duplicate":   "tenants: [{id: a, name: A, database_url: x}, {id: a, name: B, database_url: y}]",
		"bad tool":    "tenants: [{id: a, name: A, database_url: x, enabled_tools: [drop_table]}]",
		"bad focus":   "tenants: [{id: a, name: A, database_url: x, summaries: {mensual: 'SELECT 1'}}]",
		"keyless":     "tenants: [{id: a, name: A, database_url: x, api_keys: [{name: k}]}]",
		"schema file": "tenants: [{id: a, name: A, database_url: x, schema_file: missing.txt}]",
	}
	for name, raw := range cases {
		if _, err := Parse([]byte(raw), t.TempDir()); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}

	_, err := Parse([]byte("tenants: [{name: A, database_url: x}]"), "")
	if !errors.Is(err, tenant.ErrMissingTenantID) {
		t.Fatalf("expected ErrMissingTenantID, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !strings.Contains(err.Error(), "read tenants file") {
		t.Fatalf("expected read error, got %v", err)
	}
}

// Package summary answers get_business_summary with canned per-focus queries.
// Queries are text/template strings rendered with an integer company id
// and then executed through the SQL guard like any model-written query.
package summary

import (
	"context"
	"fmt"
	"strings"
	"text/template"

	"econova/pkg/nova/sqlguard"
	"econova/pkg/nova/tenant"
)

// DefaultTemplates target the dashboard's sales, clients and kpis tables.
// Tenants with a different schema override them in the registry file.
var DefaultTemplates = map[tenant.SummaryFocus]string{
	tenant.FocusVentas: `SELECT COUNT(*) AS ventas, COALESCE(SUM(total), 0) AS total_mxn
FROM sales
WHERE sale_date >= date_trunc('month', CURRENT_DATE){{ if .HasCompany }} AND company_id = {{ .CompanyID }}{{ end }}`,
	tenant.FocusClientes: `SELECT COUNT(*) AS clientes, COUNT(*) FILTER (WHERE active) AS activos
FROM clients{{ if .HasCompany }} WHERE company_id = {{ .CompanyID }}{{ end }}`,
	tenant.FocusKPIs: `SELECT name, value, target, period
FROM kpis{{ if .HasCompany }} WHERE company_id = {{ .CompanyID }}{{ end }}
ORDER BY period DESC, name
LIMIT 50`,
}

// generalParts are combined when no dedicated general template exists.
var generalParts = []tenant.SummaryFocus{tenant.FocusVentas, tenant.FocusKPIs, tenant.FocusClientes}

type templateData struct {
	HasCompany bool
	CompanyID  int
}

// Provider implements tenant.SummaryProvider.
type Provider struct {
	ds        tenant.DataSource
	templates map[tenant.SummaryFocus]*template.Template
}

// New parses DefaultTemplates overlaid with overrides. A blank override
// removes the focus.
func New(ds tenant.DataSource, overrides map[tenant.SummaryFocus]string) (*Provider, error) {
	sources := make(map[tenant.SummaryFocus]string, len(DefaultTemplates)+len(overrides))
	for focus, text := range DefaultTemplates {
		sources[focus] = text
	}
	for focus, text := range overrides {
		if strings.TrimSpace(text) == "" {
			delete(sources, focus)
			continue
		}
		sources[focus] = text
	}

	p := &Provider{ds: ds, templates: make(map[tenant.SummaryFocus]*template.Template, len(sources))}
	for focus, text := range sources {
		tmpl, err := template.New(string(focus)).Option("missingkey=error").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("summary template %s: %w", focus, err)
		}
		p.templates[focus] = tmpl
	}
	return p, nil
}

func (p *Provider) Summary(ctx context.Context, focus tenant.SummaryFocus, companyID *int) (map[string]any, error) {
	result := map[string]any{"focus": string(focus)}
	if companyID != nil {
		result["company_id"] = *companyID
		if name := tenant.CompanyName(*companyID); name != "" {
			result["company"] = name
		}
	}

	if _, ok := p.templates[focus]; ok {
		rows, err := p.run(ctx, focus, companyID)
		if err != nil {
			return nil, err
		}
		result[string(focus)] = rows
		return result, nil
	}
	if focus != tenant.FocusGeneral {
		return nil, fmt.Errorf("no summary configured for %s", focus)
	}

	ran := 0
	for _, part := range generalParts {
		if _, ok := p.templates[part]; !ok {
			continue
		}
		rows, err := p.run(ctx, part, companyID)
		if err != nil {
			return nil, err
		}
		result[string(part)] = rows
		ran++
	}
	if ran == 0 {
		return nil, fmt.Errorf("no summary configured for %s", focus)
	}
	return result, nil
}

func (p *Provider) run(ctx context.Context, focus tenant.SummaryFocus, companyID *int) ([]map[string]any, error) {
	data := templateData{}
	if companyID != nil {
		data.HasCompany = true
		data.CompanyID = *companyID
	}
	var sb strings.Builder
	if err := p.templates[focus].Execute(&sb, data); err != nil {
		return nil, fmt.Errorf("render %s summary: %w", focus, err)
	}

	exec := sqlguard.ExecuteSafeQuery(ctx, sb.String(), p.ds)
	if !exec.Success {
		return nil, fmt.Errorf("%s summary: %s", focus, exec.Error)
	}
	return exec.Data, nil
}

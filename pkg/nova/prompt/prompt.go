// Package prompt renders the system prompt for a tenant's agent. Output is a
// pure function of its inputs.
package prompt

import (
	"fmt"
	"slices"
	"strings"

	"econova/pkg/nova/tenant"
)

var toolSummaries = map[tenant.Tool]string{
	tenant.ToolQueryDatabase:   "ejecuta una consulta SELECT de solo lectura sobre la base de datos del tenant",
	tenant.ToolExchangeRate:    "obtiene el tipo de cambio vigente publicado por Banxico (USD/MXN y otras divisas)",
	tenant.ToolBusinessSummary: "devuelve un resumen del negocio por enfoque: ventas, kpis, clientes o general",
}

const queryRules = `Reglas para consultas SQL
- Usa únicamente sentencias SELECT. Nunca generes INSERT, UPDATE, DELETE, DDL ni múltiples sentencias.
- Una sola sentencia por llamada, sin comentarios y sin punto y coma intermedio.
- Usa solo las tablas y columnas descritas en el esquema; no inventes nombres.
- Agrega LIMIT cuando la consulta pueda devolver muchas filas y prefiere agregaciones (SUM, COUNT, AVG).
- Si una consulta falla, revisa el mensaje de error y corrígela antes de volver a intentarlo.`

const answerStyle = `Estilo de respuesta
- Responde en el idioma de la pregunta (por defecto, español).
- Sé breve y concreto; resume los números clave y formatea montos con separador de miles y dos decimales.
- No muestres el SQL ni errores técnicos al usuario salvo que lo pida explícitamente.
- Si los datos no alcanzan para responder, dilo claramente en lugar de suponer.`

// BuildSystemPrompt renders the full prompt. Sections appear in a fixed
// order: identity, query rules, tools, schema, tenant additions, company
// scope and answer style. The schema and additions are copied verbatim.
func BuildSystemPrompt(cfg tenant.Config, actx *tenant.Context) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Eres Nova, el asistente de análisis de negocio de %s.\n", cfg.TenantName)
	b.WriteString("Respondes preguntas sobre ventas, clientes, logística, tesorería y KPIs usando los datos reales del tenant a través de las herramientas disponibles.\n\n")

	b.WriteString(queryRules)
	b.WriteString("\n\n")

	writeTools(&b, cfg, "Herramientas disponibles", true)

	writeSchema(&b, cfg.DatabaseSchema)

	if add := cfg.SystemPromptAdditions; strings.TrimSpace(add) != "" {
		b.WriteString("Instrucciones adicionales del tenant\n")
		b.WriteString(add)
		b.WriteString("\n\n")
	}

	if scope := companyScope(actx); scope != "" {
		b.WriteString(scope)
		b.WriteString("\n\n")
	}

	b.WriteString(answerStyle)
	b.WriteString("\n")
	return b.String()
}

// BuildCompactPrompt keeps every constraint of BuildSystemPrompt (tools,
// schema, additions, company scope, SELECT-only) without the explanatory
// prose.
func BuildCompactPrompt(cfg tenant.Config, actx *tenant.Context) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Eres Nova, asistente de datos de %s.\n", cfg.TenantName)
	b.WriteString("SQL: solo SELECT, una sentencia, sin comentarios, solo columnas del esquema, usa LIMIT.\n\n")

	writeTools(&b, cfg, "Herramientas", false)

	writeSchema(&b, cfg.DatabaseSchema)

	if add := cfg.SystemPromptAdditions; strings.TrimSpace(add) != "" {
		b.WriteString(add)
		b.WriteString("\n\n")
	}

	if scope := companyScope(actx); scope != "" {
		b.WriteString(scope)
		b.WriteString("\n\n")
	}

	b.WriteString("Responde breve, en el idioma de la pregunta, sin mostrar SQL.\n")
	return b.String()
}

// Build picks the variant selected by cfg.CompactPrompt.
func Build(cfg tenant.Config, actx *tenant.Context) string {
	if cfg.CompactPrompt {
		return BuildCompactPrompt(cfg, actx)
	}
	return BuildSystemPrompt(cfg, actx)
}

func writeTools(b *strings.Builder, cfg tenant.Config, title string, describe bool) {
	var enabled []tenant.Tool
	for _, tool := range tenant.AllTools {
		if cfg.EnabledTools == nil || slices.Contains(cfg.EnabledTools, tool) {
			enabled = append(enabled, tool)
		}
	}
	b.WriteString(title)
	b.WriteString("\n")
	if len(enabled) == 0 {
		b.WriteString("- ninguna: responde solo con la información de la conversación\n\n")
		return
	}
	for _, tool := range enabled {
		if describe {
			fmt.Fprintf(b, "- %s: %s\n", tool, toolSummaries[tool])
			continue
		}
		fmt.Fprintf(b, "- %s\n", tool)
	}
	b.WriteString("\n")
}

func writeSchema(b *strings.Builder, schema string) {
	b.WriteString("Esquema de la base de datos\n")
	if strings.TrimSpace(schema) == "" {
		b.WriteString("(sin esquema configurado)\n\n")
		return
	}
	b.WriteString(schema)
	b.WriteString("\n\n")
}

func companyScope(actx *tenant.Context) string {
	if actx == nil || actx.CompanyID == nil {
		return ""
	}
	id := *actx.CompanyID
	label := fmt.Sprintf("company_id = %d", id)
	if name := tenant.CompanyName(id); name != "" {
		label = fmt.Sprintf("company_id = %d (%s)", id, name)
	}
	return fmt.Sprintf("Alcance por empresa\nEl usuario trabaja con %s. Toda consulta debe filtrar por company_id = %d; no devuelvas datos de otras empresas.", label, id)
}

// Package tools exposes the agent's fixed tool set to the model and runs
// the handler for each call.
package tools

import (
	"slices"

	"econova/pkg/llm"
	"econova/pkg/nova/tenant"
)

// IsEnabled reports whether the named tool is enabled for cfg. A nil
// EnabledTools list enables everything; unknown names are never enabled.
func IsEnabled(name string, cfg tenant.Config) bool {
	tool, ok := tenant.ParseTool(name)
	if !ok {
		return false
	}
	return isEnabled(tool, cfg)
}

func isEnabled(tool tenant.Tool, cfg tenant.Config) bool {
	return cfg.EnabledTools == nil || slices.Contains(cfg.EnabledTools, tool)
}

// Enabled lists cfg's enabled tools in presentation order.
func Enabled(cfg tenant.Config) []tenant.Tool {
	out := make([]tenant.Tool, 0, len(tenant.AllTools))
	for _, tool := range tenant.AllTools {
		if isEnabled(tool, cfg) {
			out = append(out, tool)
		}
	}
	return out
}

// Definitions returns the function-calling schema of every enabled tool.
func Definitions(cfg tenant.Config) []llm.Tool {
	enabled := Enabled(cfg)
	defs := make([]llm.Tool, 0, len(enabled))
	for _, tool := range enabled {
		defs = append(defs, definition(tool))
	}
	return defs
}

func definition(tool tenant.Tool) llm.Tool {
	switch tool {
	case tenant.ToolQueryDatabase:
		return llm.Tool{
			Name:        tool.String(),
			Description: "Ejecuta una consulta SQL SELECT de solo lectura sobre la base de datos del tenant y devuelve las filas resultantes. Solo se permite una sentencia SELECT, sin comentarios.",
			Parameters: toolParams(
				map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "Sentencia SELECT a ejecutar. Usa únicamente tablas y columnas del esquema.",
					},
					"purpose": map[string]any{
						"type":        "string",
						"description": "Qué pregunta del usuario responde esta consulta.",
					},
				},
				[]string{"query", "purpose"},
			),
		}
	case tenant.ToolExchangeRate:
		return llm.Tool{
			Name:        tool.String(),
			Description: "Obtiene el tipo de cambio más reciente publicado por Banco de México (pesos por unidad de divisa).",
			Parameters: toolParams(
				map[string]any{
					"currency": map[string]any{
						"type":        "string",
						"description": "Código ISO de la divisa (USD, EUR, CAD, JPY, GBP). Omítelo para obtener todas.",
					},
				},
				[]string{},
			),
		}
	case tenant.ToolBusinessSummary:
		return llm.Tool{
			Name:        tool.String(),
			Description: "Devuelve un resumen agregado del negocio para responder preguntas generales sin escribir SQL.",
			Parameters: toolParams(
				map[string]any{
					"focus": map[string]any{
						"type":        "string",
						"enum":        []string{"ventas", "kpis", "clientes", "general"},
						"description": "Área del resumen (por defecto general).",
					},
				},
				[]string{},
			),
		}
	default:
		panic("tools: no definition for " + tool.String())
	}
}

func toolParams(properties map[string]any, required []string) map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

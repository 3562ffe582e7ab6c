// Package tenants loads the tenant registry file: one entry per tenant with
// its database, schema description, enabled tools, limits and API keys.
package tenants

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"econova/pkg/auth"
	"econova/pkg/nova/tenant"
)

// Limits are the per-tenant knobs of the agent and its data source.
type Limits struct {
	MaxIterations          int           `yaml:"max_iterations"`
	MaxTokensPerRequest    int           `yaml:"max_tokens_per_request"`
	MaxConversationHistory int           `yaml:"max_conversation_history"`
	MaxRows                int           `yaml:"max_rows"`
	StatementTimeout       time.Duration `yaml:"statement_timeout"`
}

// Spec is one tenant entry of the registry file.
type Spec struct {
	ID              string        `yaml:"id"`
	Name            string        `yaml:"name"`
	DatabaseURL     string        `yaml:"database_url"`
	Schema          string        `yaml:"schema"`
	SchemaFile      string        `yaml:"schema_file"`
	PromptAdditions string        `yaml:"prompt_additions"`
	EnabledTools    []tenant.Tool `yaml:"enabled_tools"`
	Model           string        `yaml:"model"`
	CompactPrompt   bool          `yaml:"compact_prompt"`
	Limits          Limits        `yaml:"limits"`
	// Summaries maps a focus (ventas, kpis, clientes, general) to a query
	// template. Missing focuses fall back to the built-in queries.
	Summaries map[tenant.SummaryFocus]string `yaml:"summaries"`
	APIKeys   []APIKeySpec                   `yaml:"api_keys"`
}

// APIKeySpec is a key entry. The tenant id is implied by the enclosing Spec.
type APIKeySpec struct {
	Name      string `yaml:"name"`
	Hash      string `yaml:"hash"`
	UserID    string `yaml:"user_id"`
	Role      string `yaml:"role"`
	CompanyID *int   `yaml:"company_id"`
}

type file struct {
	Tenants []Spec `yaml:"tenants"`
}

// Registry is the parsed, validated registry. It is read-only after Load.
type Registry struct {
	specs map[string]Spec
}

// Load reads the registry file. database_url values go through environment
// expansion so secrets can stay out of the file; schema_file paths are
// relative to the registry file.
func Load(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tenants file: %w", err)
	}
	reg, err := Parse(raw, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("tenants file %s: %w", path, err)
	}
	return reg, nil
}

// Parse builds a registry from YAML. baseDir resolves relative schema_file paths.
func Parse(raw []byte, baseDir string) (*Registry, error) {
	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if len(f.Tenants) == 0 {
		return nil, errors.New("no tenants defined")
	}

	reg := &Registry{specs: make(map[string]Spec, len(f.Tenants))}
	for i, spec := range f.Tenants {
		spec.ID = strings.TrimSpace(spec.ID)
		if spec.ID == "" {
			return nil, fmt.Errorf("tenant #%d: %w", i+1, tenant.ErrMissingTenantID)
		}
		if _, dup := reg.specs[spec.ID]; dup {
			return nil, fmt.Errorf("tenant %s: duplicate id", spec.ID)
		}
		if strings.TrimSpace(spec.Name) == "" {
			return nil, fmt.Errorf("tenant %s: %w", spec.ID, tenant.ErrMissingTenantName)
		}
		spec.DatabaseURL = os.ExpandEnv(spec.DatabaseURL)
		if spec.DatabaseURL == "" {
			return nil, fmt.Errorf("tenant %s: database_url is required", spec.ID)
		}
		if spec.Schema == "" && spec.SchemaFile != "" {
			schemaPath := spec.SchemaFile
			if !filepath.IsAbs(schemaPath) {
				schemaPath = filepath.Join(baseDir, schemaPath)
			}
			schema, err := os.ReadFile(schemaPath)
			if err != nil {
				return nil, fmt.Errorf("tenant %s: read schema: %w", spec.ID, err)
			}
			spec.Schema = string(schema)
		}
		for focus := range spec.Summaries {
			if _, ok := tenant.ParseFocus(string(focus)); !ok {
				return nil, fmt.Errorf("tenant %s: unknown summary focus %q", spec.ID, focus)
			}
		}
		for _, key := range spec.APIKeys {
			if key.Hash == "" {
				return nil, fmt.Errorf("tenant %s: api key %q has no hash", spec.ID, key.Name)
			}
		}
		reg.specs[spec.ID] = spec
	}
	return reg, nil
}

func (r *Registry) Get(id string) (Spec, bool) {
	spec, ok := r.specs[id]
	return spec, ok
}

// IDs returns the tenant ids in sorted order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.specs))
	for id := range r.specs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// APIKeys flattens every tenant's keys into verifier entries.
func (r *Registry) APIKeys() []auth.APIKey {
	var keys []auth.APIKey
	for _, id := range r.IDs() {
		for _, key := range r.specs[id].APIKeys {
			role := key.Role
			if role == "" {
				role = auth.RoleUser
			}
			keys = append(keys, auth.APIKey{
				Name: key.Name,
				Hash: key.Hash,
				Identity: auth.Identity{
					UserID:    key.UserID,
					TenantID:  id,
					Role:      role,
					CompanyID: key.CompanyID,
				},
			})
		}
	}
	return keys
}

// Dependencies are the runtime collaborators a tenant configuration needs.
type Dependencies struct {
	DataSource    tenant.DataSource
	ExchangeRates tenant.ExchangeRateSource
	Summaries     tenant.SummaryProvider
	OnUsage       tenant.UsageFunc
	APIKey        string
}

// AgentConfig assembles the agent configuration for spec.
func (s Spec) AgentConfig(deps Dependencies) tenant.Config {
	var tools []tenant.Tool
	if s.EnabledTools != nil {
		tools = slices.Clone(s.EnabledTools)
	}
	return tenant.Config{
		TenantID:               s.ID,
		TenantName:             s.Name,
		DataSource:             deps.DataSource,
		ExchangeRates:          deps.ExchangeRates,
		Summaries:              deps.Summaries,
		OnUsage:                deps.OnUsage,
		DatabaseSchema:         s.Schema,
		SystemPromptAdditions:  s.PromptAdditions,
		EnabledTools:           tools,
		Model:                  s.Model,
		APIKey:                 deps.APIKey,
		MaxTokensPerRequest:    s.Limits.MaxTokensPerRequest,
		MaxIterations:          s.Limits.MaxIterations,
		MaxConversationHistory: s.Limits.MaxConversationHistory,
		MaxRows:                s.Limits.MaxRows,
		CompactPrompt:          s.CompactPrompt,
	}
}

// Package handler exposes the tenant agents over HTTP.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"econova/pkg/auth"
	"econova/pkg/logging"
	"econova/pkg/middleware"
	"econova/pkg/nova"
	"econova/pkg/nova/tenant"
	"econova/pkg/nova/usage"
)

// TenantHeader lets service callers pick the tenant they act for.
const TenantHeader = "X-Tenant-ID"

// Agent is the part of *nova.Agent the handler uses.
type Agent interface {
	Chat(ctx context.Context, question string, actx *tenant.Context) (nova.SearchResult, error)
	UsageStats() usage.Stats
	ResetStats()
}

// Agents resolves a tenant id to its agent.
type Agents interface {
	Agent(tenantID string) (Agent, bool)
}

// AgentMap is a static Agents.
type AgentMap map[string]Agent

func (m AgentMap) Agent(tenantID string) (Agent, bool) {
	a, ok := m[tenantID]
	return a, ok
}

type ChatRequest struct {
	Question  string           `json:"question"`
	History   []tenant.Message `json:"history,omitempty"`
	CompanyID *int             `json:"company_id,omitempty"`
}

type NovaHandler struct {
	agents Agents
	logger logging.Logger
}

func NewNovaHandler(agents Agents, logger logging.Logger) *NovaHandler {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &NovaHandler{agents: agents, logger: logger}
}

// RegisterRoutes mounts the Nova API. router must already authenticate.
func RegisterRoutes(router gin.IRouter, h *NovaHandler) {
	router.POST("/chat", h.HandleChat)
	router.GET("/stats", h.HandleStats)
	router.POST("/stats/reset", auth.RequireRole(auth.RoleAdmin, auth.RoleService), h.HandleResetStats)
}

func (h *NovaHandler) HandleChat(c *gin.Context) {
	id, agent, ok := h.resolve(c)
	if !ok {
		return
	}

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "question is required"})
		return
	}

	companyID, status, msg := scopeCompany(id, req.CompanyID)
	if status != 0 {
		c.JSON(status, gin.H{"error": msg})
		return
	}

	actx := &tenant.Context{
		UserID:    id.UserID,
		CompanyID: companyID,
		History:   req.History,
	}
	result, err := agent.Chat(c.Request.Context(), req.Question, actx)
	if err != nil {
		h.chatError(c, id, err)
		return
	}
	for _, call := range result.ToolCalls {
		if call.Failed {
			middleware.GetContextLogger(c, h.logger).WithFields(logging.Fields{
				"tool":       call.Name,
				"tool_error": call.Error,
			}).Warn("Nova tool call failed")
		}
	}
	c.JSON(http.StatusOK, result)
}

// scopeCompany applies the caller's company pin. A pinned caller may omit
// the company or repeat it, never pick another one.
func scopeCompany(id auth.Identity, requested *int) (*int, int, string) {
	if id.CompanyID != nil {
		if requested != nil && *requested != *id.CompanyID {
			return nil, http.StatusForbidden, "company not allowed for this caller"
		}
		company := *id.CompanyID
		return &company, 0, ""
	}
	if requested != nil && tenant.CompanyName(*requested) == "" {
		return nil, http.StatusBadRequest, "unknown company_id"
	}
	return requested, 0, ""
}

func (h *NovaHandler) chatError(c *gin.Context, id auth.Identity, err error) {
	log := middleware.GetContextLogger(c, h.logger).WithError(err)
	switch {
	case errors.Is(err, nova.ErrEmptyQuestion):
		c.JSON(http.StatusBadRequest, gin.H{"error": "question is required"})
	case errors.Is(err, context.DeadlineExceeded):
		log.Warn("Nova chat timed out")
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "the assistant took too long to answer"})
	case errors.Is(err, context.Canceled):
		log.Info("Nova chat cancelled by client")
		c.Status(499) // client closed request
	default:
		log.WithField("tenant_id", id.TenantID).Error("Nova chat failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "the assistant is unavailable, try again later"})
	}
}

func (h *NovaHandler) HandleStats(c *gin.Context) {
	id, agent, ok := h.resolve(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"tenant_id": id.TenantID,
		"stats":     agent.UsageStats(),
	})
}

func (h *NovaHandler) HandleResetStats(c *gin.Context) {
	id, agent, ok := h.resolve(c)
	if !ok {
		return
	}
	agent.ResetStats()
	middleware.GetContextLogger(c, h.logger).WithField("tenant_id", id.TenantID).Info("Nova usage stats reset")
	c.JSON(http.StatusOK, gin.H{"tenant_id": id.TenantID, "reset": true})
}

// resolve finds the caller's identity and tenant agent, writing the error
// response itself when it cannot.
func (h *NovaHandler) resolve(c *gin.Context) (auth.Identity, Agent, bool) {
	id, ok := auth.IdentityFromGin(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "tenant_id missing"})
		return auth.Identity{}, nil, false
	}
	if id.Role == auth.RoleService {
		target := strings.TrimSpace(c.GetHeader(TenantHeader))
		if target == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": TenantHeader + " header is required for service calls"})
			return auth.Identity{}, nil, false
		}
		id.TenantID = target
	}
	agent, ok := h.agents.Agent(id.TenantID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "tenant not found"})
		return auth.Identity{}, nil, false
	}
	return id, agent, true
}

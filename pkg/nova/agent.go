// Package nova is the tenant-scoped business analysis agent. An Agent turns a
// question into an answer by letting the model call a small set of tools
// (read-only SQL, exchange rates, business summaries) for a bounded number of
// rounds, and accounts for the tokens and cost of every call.
package nova

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"econova/pkg/llm"
	"econova/pkg/logging"
	"econova/pkg/nova/prompt"
	"econova/pkg/nova/tenant"
	"econova/pkg/nova/tools"
	"econova/pkg/nova/usage"
)

const (
	toolConcurrency = 3

	finalAnswerNote = "[Nota del sistema: alcanzaste el límite de consultas. Responde ahora con la información que ya obtuviste, sin llamar más herramientas.]"

	fallbackAnswer = "No pude completar la respuesta con la información disponible. Intenta reformular la pregunta o acotarla."
)

var (
	// ErrEmptyQuestion is returned by Chat for a blank question.
	ErrEmptyQuestion = errors.New("question is required")
)

// SearchResult is the outcome of one Chat call.
type SearchResult struct {
	Answer     string           `json:"answer"`
	Data       any              `json:"data,omitempty"`
	Source     string           `json:"source,omitempty"`
	Query      string           `json:"query,omitempty"`
	Usage      usage.Data       `json:"usage"`
	ToolCalls  []ToolCallRecord `json:"tool_calls,omitempty"`
	Iterations int              `json:"iterations"`
}

// ToolCallRecord describes one tool call. Error holds the raw failure text,
// which may include database errors, and is never serialized.
type ToolCallRecord struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Failed    bool            `json:"failed,omitempty"`
	Error     string          `json:"-"`
}

type Agent struct {
	cfg      tenant.Config
	provider llm.Provider
	logger   logging.Logger
	tracker  *usage.Tracker
	prices   usage.PriceTable
	now      func() time.Time
}

type Option func(*Agent)

func WithProvider(p llm.Provider) Option {
	return func(a *Agent) { a.provider = p }
}

func WithLogger(l logging.Logger) Option {
	return func(a *Agent) { a.logger = l }
}

// WithTracker shares a usage tracker between agents.
func WithTracker(t *usage.Tracker) Option {
	return func(a *Agent) { a.tracker = t }
}

func WithPriceTable(t usage.PriceTable) Option {
	return func(a *Agent) { a.prices = t.Clone() }
}

func WithClock(now func() time.Time) Option {
	return func(a *Agent) { a.now = now }
}

// New validates cfg, applies defaults and builds an Agent. Without
// WithProvider an Anthropic provider is created from cfg.Model and cfg.APIKey.
func New(cfg tenant.Config, opts ...Option) (*Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("nova: invalid tenant config: %w", err)
	}
	cfg = cfg.WithDefaults().Clone()

	a := &Agent{
		cfg:    cfg,
		prices: usage.DefaultPriceTable(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.provider == nil {
		a.provider = llm.NewAnthropicProvider(llm.Config{
			Provider:  "anthropic",
			Model:     cfg.Model,
			APIKey:    cfg.APIKey,
			MaxTokens: cfg.MaxTokensPerRequest,
		})
	}
	if a.logger == nil {
		a.logger = logging.NewDiscardLogger()
	}
	if a.tracker == nil {
		a.tracker = usage.NewTracker()
	}
	if a.now == nil {
		a.now = time.Now
	}
	return a, nil
}

// Config returns a copy of the effective tenant configuration.
func (a *Agent) Config() tenant.Config {
	return a.cfg.Clone()
}

func (a *Agent) UsageStats() usage.Stats {
	return a.tracker.Stats()
}

func (a *Agent) ResetStats() {
	a.tracker.Reset()
}

// chatState collects what the tool rounds produced for the final result.
type chatState struct {
	toolsUsed    []string
	records      []ToolCallRecord
	data         any
	source       string
	query        string
	inputTokens  int
	outputTokens int
}

// Chat answers question for the tenant. Tool failures are handed back to the
// model; only provider failures and cancellation are returned as errors.
func (a *Agent) Chat(ctx context.Context, question string, actx *tenant.Context) (SearchResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return SearchResult{}, ErrEmptyQuestion
	}
	start := a.now()
	log := a.logger.WithFields(logging.Fields{
		"tenant_id": a.cfg.TenantID,
	})
	if actx != nil && actx.UserID != "" {
		log = log.WithField("user_id", actx.UserID)
	}

	messages := a.buildMessages(question, actx)
	defs := tools.Definitions(a.cfg)
	ctx = llm.WithMaxTokens(ctx, a.cfg.MaxTokensPerRequest)

	var state chatState
	var answer string
	iterations := 0
	for {
		if err := ctx.Err(); err != nil {
			return SearchResult{}, err
		}
		final := iterations >= a.cfg.MaxIterations
		reqCtx := ctx
		if final {
			reqCtx = llm.WithoutToolUse(ctx)
			messages = append(messages, llm.Message{Role: "user", Content: finalAnswerNote})
		}

		resp, err := a.complete(reqCtx, messages, defs)
		if err != nil {
			log.WithError(err).WithField("iteration", iterations).Error("Nova LLM request failed")
			return SearchResult{}, fmt.Errorf("nova: llm request failed: %w", err)
		}
		state.inputTokens += resp.inputTokens
		state.outputTokens += resp.outputTokens

		if final || len(resp.toolCalls) == 0 {
			answer = strings.TrimSpace(resp.content)
			if final && len(resp.toolCalls) > 0 {
				log.WithField("ignored_tool_calls", len(resp.toolCalls)).Warn("Nova model requested tools after the iteration limit")
			}
			break
		}

		messages = append(messages, llm.Message{
			Role:      "assistant",
			Content:   resp.content,
			ToolCalls: resp.toolCalls,
		})
		results := a.runTools(ctx, resp.toolCalls, actx)
		for i, call := range resp.toolCalls {
			res := results[i]
			messages = append(messages, llm.Message{
				Role:       "tool",
				Name:       call.Name,
				Content:    toolContent(res),
				ToolCallID: call.ID,
				IsError:    !res.Success,
			})
			state.observe(call, res)
		}
		iterations++
	}
	if answer == "" {
		answer = fallbackAnswer
	}

	llmTokensTotal.WithLabelValues(a.cfg.TenantID, "input").Add(float64(state.inputTokens))
	llmTokensTotal.WithLabelValues(a.cfg.TenantID, "output").Add(float64(state.outputTokens))
	chatIterations.Observe(float64(iterations))

	params := usage.DataParams{
		TenantID:     a.cfg.TenantID,
		Model:        a.cfg.Model,
		InputTokens:  state.inputTokens,
		OutputTokens: state.outputTokens,
		Duration:     a.now().Sub(start),
		ToolsUsed:    state.toolsUsed,
		Prices:       &a.prices,
		Now:          a.now,
	}
	if actx != nil {
		params.UserID = actx.UserID
		params.CompanyID = actx.CompanyID
	}
	record := usage.NewData(params)
	a.tracker.Record(record)
	a.reportUsage(ctx, log, record)

	log.WithFields(logging.Fields{
		"request_id":    record.RequestID,
		"iterations":    iterations,
		"tools_used":    len(state.toolsUsed),
		"input_tokens":  record.InputTokens,
		"output_tokens": record.OutputTokens,
		"cost_usd":      record.CostUSD,
	}).Info("Nova chat completed")

	return SearchResult{
		Answer:     answer,
		Data:       state.data,
		Source:     state.source,
		Query:      state.query,
		Usage:      record,
		ToolCalls:  state.records,
		Iterations: iterations,
	}, nil
}

func (s *chatState) observe(call llm.ToolCall, res tools.Result) {
	s.toolsUsed = append(s.toolsUsed, call.Name)
	record := ToolCallRecord{Name: call.Name, Failed: !res.Success, Error: res.Error}
	if args := strings.TrimSpace(call.Arguments); args != "" && json.Valid([]byte(args)) {
		record.Arguments = json.RawMessage(args)
	}
	s.records = append(s.records, record)
	if !res.Success {
		return
	}
	if res.Data != nil {
		s.data = res.Data
		s.source = res.Source
	}
	if call.Name == tenant.ToolQueryDatabase.String() && res.Query != "" {
		s.query = res.Query
	}
}

// buildMessages lays out system prompt, trimmed history and the question.
func (a *Agent) buildMessages(question string, actx *tenant.Context) []llm.Message {
	messages := []llm.Message{{Role: "system", Content: prompt.Build(a.cfg, actx)}}
	if actx != nil {
		history := actx.History
		if n := a.cfg.MaxConversationHistory; len(history) > n {
			history = history[len(history)-n:]
		}
		// The transcript has to open with a user turn.
		for len(history) > 0 && history[0].Role != tenant.RoleUser {
			history = history[1:]
		}
		for _, msg := range history {
			if msg.Role != tenant.RoleUser && msg.Role != tenant.RoleAssistant {
				continue
			}
			if strings.TrimSpace(msg.Content) == "" {
				continue
			}
			messages = append(messages, llm.Message{Role: string(msg.Role), Content: msg.Content})
		}
	}
	return append(messages, llm.Message{Role: "user", Content: question})
}

type turn struct {
	content      string
	toolCalls    []llm.ToolCall
	inputTokens  int
	outputTokens int
}

// complete issues one request and drains its stream.
func (a *Agent) complete(ctx context.Context, messages []llm.Message, defs []llm.Tool) (turn, error) {
	llmStart := time.Now()
	stream, err := a.provider.Complete(ctx, messages, defs)
	if err != nil {
		llmCallsTotal.WithLabelValues(a.cfg.TenantID, "error").Inc()
		llmDuration.WithLabelValues(a.cfg.TenantID).Observe(time.Since(llmStart).Seconds())
		return turn{}, err
	}
	defer func() { _ = stream.Close() }()

	var content strings.Builder
	var calls []llm.ToolCall
	var reported *llm.Usage
	for {
		chunk, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			llmCallsTotal.WithLabelValues(a.cfg.TenantID, "error").Inc()
			llmDuration.WithLabelValues(a.cfg.TenantID).Observe(time.Since(llmStart).Seconds())
			return turn{}, err
		}
		content.WriteString(chunk.Content)
		if len(chunk.ToolCalls) > 0 {
			calls = mergeToolCalls(calls, chunk.ToolCalls)
		}
		if chunk.Usage != nil {
			u := *chunk.Usage
			reported = &u
		}
	}
	llmCallsTotal.WithLabelValues(a.cfg.TenantID, "success").Inc()
	llmDuration.WithLabelValues(a.cfg.TenantID).Observe(time.Since(llmStart).Seconds())

	for i := range calls {
		if calls[i].ID == "" {
			calls[i].ID = fmt.Sprintf("call_%d", i)
		}
	}
	t := turn{content: content.String(), toolCalls: calls}
	if reported != nil && reported.InputTokens+reported.OutputTokens > 0 {
		t.inputTokens = reported.InputTokens
		t.outputTokens = reported.OutputTokens
	} else {
		t.inputTokens = countTokensInMessages(messages)
		t.outputTokens = estimateTokens(t.content)
		for _, call := range calls {
			t.outputTokens += estimateTokens(call.Arguments)
		}
	}
	return t, nil
}

// runTools executes one turn's calls concurrently. Results keep call order.
func (a *Agent) runTools(ctx context.Context, calls []llm.ToolCall, actx *tenant.Context) []tools.Result {
	results := make([]tools.Result, len(calls))
	var g errgroup.Group
	g.SetLimit(toolConcurrency)
	for i, call := range calls {
		g.Go(func() error {
			res := tools.Execute(ctx, call.Name, json.RawMessage(call.Arguments), a.cfg, actx)
			status := "success"
			if !res.Success {
				status = "error"
				a.logger.WithFields(logging.Fields{
					"tenant_id": a.cfg.TenantID,
					"tool":      call.Name,
					"error":     res.Error,
				}).Warn("Nova tool call failed")
			}
			toolCallsTotal.WithLabelValues(a.cfg.TenantID, toolLabel(call.Name), status).Inc()
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// reportUsage hands the record to the tenant's callback. The callback can
// neither fail nor crash the chat call.
func (a *Agent) reportUsage(ctx context.Context, log logging.Entry, record usage.Data) {
	if a.cfg.OnUsage == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("Nova usage callback panicked")
		}
	}()
	if err := a.cfg.OnUsage(ctx, record); err != nil {
		log.WithError(err).Warn("Nova usage callback failed")
	}
}

func toolContent(res tools.Result) string {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Sprintf(`{"success":false,"error":%q}`, "unencodable tool result: "+err.Error())
	}
	return string(payload)
}

func toolLabel(name string) string {
	if _, ok := tenant.ParseTool(name); ok {
		return name
	}
	return "unknown"
}

func mergeToolCalls(existing, incoming []llm.ToolCall) []llm.ToolCall {
	for _, inc := range incoming {
		found := false
		for i, ex := range existing {
			if ex.ID != "" && ex.ID == inc.ID {
				existing[i].Arguments = inc.Arguments
				if inc.Name != "" {
					existing[i].Name = inc.Name
				}
				found = true
				break
			}
		}
		if !found {
			existing = append(existing, inc)
		}
	}
	return existing
}

func estimateTokens(text string) int {
	return len(strings.Fields(text))
}

func countTokensInMessages(messages []llm.Message) int {
	total := 0
	for _, msg := range messages {
		total += estimateTokens(msg.Content)
		for _, call := range msg.ToolCalls {
			total += estimateTokens(call.Arguments)
		}
	}
	return total
}

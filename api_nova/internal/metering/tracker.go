// Package metering persists agent usage records and publishes per-tenant
// usage summaries for billing.
package metering

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lib/pq"

	"econova/pkg/logging"
	"econova/pkg/nova/usage"
)

const defaultMaxPending = 10000

var ErrStopped = errors.New("usage tracker stopped")

type TrackerConfig struct {
	DB            *sql.DB
	Publisher     SummaryPublisher
	Logger        logging.Logger
	FlushInterval time.Duration
	// MaxPending bounds buffered records; the oldest are dropped beyond it.
	MaxPending int
}

// Tracker buffers usage records in memory and flushes them on an interval.
// Records whose insert fails stay buffered for the next flush; summaries that
// fail to publish are retried the same way.
type Tracker struct {
	db            *sql.DB
	publisher     SummaryPublisher
	logger        logging.Logger
	flushInterval time.Duration
	maxPending    int

	startOnce sync.Once
	started   bool
	stopOnce  sync.Once
	stopCh    chan struct{}
	done      chan struct{}

	mu        sync.Mutex
	stopped   bool
	lastFlush time.Time
	records   []usage.Data

	pendingMu sync.Mutex
	pending   []Summary

	flushMu sync.Mutex
	now     func() time.Time
}

func NewTracker(cfg TrackerConfig) *Tracker {
	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = time.Minute
	}
	maxPending := cfg.MaxPending
	if maxPending <= 0 {
		maxPending = defaultMaxPending
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &Tracker{
		db:            cfg.DB,
		publisher:     cfg.Publisher,
		logger:        logger,
		flushInterval: flushInterval,
		maxPending:    maxPending,
		stopCh:        make(chan struct{}),
		done:          make(chan struct{}),
		lastFlush:     time.Now(),
		now:           time.Now,
	}
}

// OnUsage matches tenant.UsageFunc.
func (t *Tracker) OnUsage(_ context.Context, data usage.Data) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return ErrStopped
	}
	t.records = append(t.records, data)
	if over := len(t.records) - t.maxPending; over > 0 {
		t.records = append([]usage.Data(nil), t.records[over:]...)
		usageDropped.Add(float64(over))
		t.logger.WithField("dropped", over).Warn("Usage buffer full, dropping oldest records")
	}
	usageBuffered.Set(float64(len(t.records)))
	return nil
}

func (t *Tracker) Start() {
	t.startOnce.Do(func() {
		t.mu.Lock()
		t.started = true
		t.mu.Unlock()
		go t.loop()
	})
}

// Stop rejects further records, flushes what is buffered and waits for the
// loop to exit.
func (t *Tracker) Stop() {
	t.stopOnce.Do(func() {
		t.mu.Lock()
		t.stopped = true
		started := t.started
		t.mu.Unlock()
		close(t.stopCh)
		if !started {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			t.Flush(ctx)
			cancel()
			close(t.done)
		}
	})
	<-t.done
}

func (t *Tracker) loop() {
	defer close(t.done)
	ticker := time.NewTicker(t.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.Flush(context.Background())
		case <-t.stopCh:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			t.Flush(ctx)
			cancel()
			return
		}
	}
}

// Flush persists buffered records and publishes one summary per tenant.
func (t *Tracker) Flush(ctx context.Context) {
	t.flushMu.Lock()
	defer t.flushMu.Unlock()

	now := t.now()
	t.retryPendingSummaries(ctx)

	t.mu.Lock()
	if len(t.records) == 0 {
		t.lastFlush = now
		t.mu.Unlock()
		return
	}
	batch := t.records
	t.records = nil
	windowStart := t.lastFlush
	t.lastFlush = now
	t.mu.Unlock()

	persisted, failed := t.persist(ctx, batch)
	if len(failed) > 0 {
		t.requeue(failed)
		usageFlushes.WithLabelValues("error").Inc()
	} else {
		usageFlushes.WithLabelValues("success").Inc()
	}

	if t.publisher == nil || len(persisted) == 0 {
		return
	}
	for _, summary := range BuildSummaries(persisted, windowStart, now) {
		if err := t.publisher.PublishUsageSummary(ctx, summary); err != nil {
			t.enqueueSummary(summary)
			t.logger.WithError(err).WithField("tenant_id", summary.TenantID).Warn("Failed to publish Nova usage summary")
		}
	}
}

func (t *Tracker) persist(ctx context.Context, batch []usage.Data) (persisted, failed []usage.Data) {
	if t.db == nil {
		return batch, nil
	}
	for _, d := range batch {
		if err := t.insert(ctx, d); err != nil {
			t.logger.WithError(err).WithFields(logging.Fields{
				"tenant_id":  d.TenantID,
				"request_id": d.RequestID,
			}).Warn("Failed to persist Nova usage")
			failed = append(failed, d)
			continue
		}
		persisted = append(persisted, d)
	}
	return persisted, failed
}

func (t *Tracker) insert(ctx context.Context, d usage.Data) error {
	var userID sql.NullString
	if d.UserID != "" {
		userID = sql.NullString{String: d.UserID, Valid: true}
	}
	var companyID sql.NullInt64
	if d.CompanyID != nil {
		companyID = sql.NullInt64{Int64: int64(*d.CompanyID), Valid: true}
	}
	tools := d.ToolsUsed
	if tools == nil {
		tools = []string{}
	}
	_, err := t.db.ExecContext(ctx, `
		INSERT INTO nova.agent_usage (
			request_id,
			tenant_id,
			user_id,
			company_id,
			model,
			input_tokens,
			output_tokens,
			total_tokens,
			cost_usd,
			duration_ms,
			tools_used,
			created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (request_id) DO NOTHING
	`, d.RequestID, d.TenantID, userID, companyID, d.Model,
		d.InputTokens, d.OutputTokens, d.TotalTokens, d.CostUSD,
		d.Duration.Milliseconds(), pq.Array(tools), d.Timestamp)
	if err != nil {
		return fmt.Errorf("insert usage %s: %w", d.RequestID, err)
	}
	return nil
}

// requeue puts failed records back ahead of anything recorded meanwhile.
func (t *Tracker) requeue(failed []usage.Data) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = append(append([]usage.Data(nil), failed...), t.records...)
	if over := len(t.records) - t.maxPending; over > 0 {
		t.records = t.records[over:]
		usageDropped.Add(float64(over))
	}
	usageBuffered.Set(float64(len(t.records)))
}

func (t *Tracker) enqueueSummary(summary Summary) {
	t.pendingMu.Lock()
	t.pending = append(t.pending, summary)
	t.capPendingLocked()
	t.pendingMu.Unlock()
}

// capPendingLocked keeps the newest maxPending summaries. pendingMu must be held.
func (t *Tracker) capPendingLocked() {
	if over := len(t.pending) - t.maxPending; over > 0 {
		t.pending = t.pending[over:]
		usageDropped.Add(float64(over))
	}
}

func (t *Tracker) retryPendingSummaries(ctx context.Context) {
	if t.publisher == nil {
		return
	}
	t.pendingMu.Lock()
	pending := t.pending
	t.pending = nil
	t.pendingMu.Unlock()
	if len(pending) == 0 {
		return
	}
	var remaining []Summary
	for _, summary := range pending {
		if err := t.publisher.PublishUsageSummary(ctx, summary); err != nil {
			remaining = append(remaining, summary)
			t.logger.WithError(err).WithField("tenant_id", summary.TenantID).Warn("Failed to retry Nova usage summary")
		}
	}
	if len(remaining) > 0 {
		t.pendingMu.Lock()
		t.pending = append(remaining, t.pending...)
		t.capPendingLocked()
		t.pendingMu.Unlock()
	}
}

// PendingSummaries reports how many summaries wait to be republished.
func (t *Tracker) PendingSummaries() int {
	t.pendingMu.Lock()
	defer t.pendingMu.Unlock()
	return len(t.pending)
}

// Buffered reports how many records wait for the next flush.
func (t *Tracker) Buffered() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records)
}

// Summary is the per-tenant usage of one flush window.
type Summary struct {
	TenantID     string         `json:"tenant_id"`
	Source       string         `json:"source"`
	Period       string         `json:"period"`
	Timestamp    time.Time      `json:"timestamp"`
	Requests     int            `json:"requests"`
	InputTokens  int            `json:"input_tokens"`
	OutputTokens int            `json:"output_tokens"`
	TotalTokens  int            `json:"total_tokens"`
	CostUSD      float64        `json:"cost_usd"`
	DurationMs   int64          `json:"duration_ms"`
	Models       map[string]int `json:"models"`
	ToolUsage    map[string]int `json:"tool_usage"`
}

// BuildSummaries aggregates records by tenant, ordered by tenant id.
func BuildSummaries(records []usage.Data, windowStart, windowEnd time.Time) []Summary {
	byTenant := make(map[string]*Summary)
	period := fmt.Sprintf("%s/%s", windowStart.Format(time.RFC3339), windowEnd.Format(time.RFC3339))
	for _, d := range records {
		s, ok := byTenant[d.TenantID]
		if !ok {
			s = &Summary{
				TenantID:  d.TenantID,
				Source:    "nova",
				Period:    period,
				Timestamp: windowEnd,
				Models:    make(map[string]int),
				ToolUsage: make(map[string]int),
			}
			byTenant[d.TenantID] = s
		}
		s.Requests++
		s.InputTokens += d.InputTokens
		s.OutputTokens += d.OutputTokens
		s.TotalTokens += d.TotalTokens
		s.CostUSD += d.CostUSD
		s.DurationMs += d.Duration.Milliseconds()
		s.Models[d.Model]++
		for _, tool := range d.ToolsUsed {
			s.ToolUsage[tool]++
		}
	}

	out := make([]Summary, 0, len(byTenant))
	for _, s := range byTenant {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TenantID < out[j].TenantID })
	return out
}

// Package datasource runs validated agent queries against a tenant's
// Postgres database.
package datasource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"

	"econova/pkg/logging"
)

const DefaultStatementTimeout = 15 * time.Second

// ErrStatementTimeout is returned when Postgres cancels a query that ran
// past the statement timeout.
var ErrStatementTimeout = errors.New("query exceeded the statement timeout")

// queryCanceled is SQLSTATE 57014.
const queryCanceled pq.ErrorCode = "57014"

type Options struct {
	// StatementTimeout is applied with SET LOCAL inside the transaction.
	StatementTimeout time.Duration
	// MaxRows stops scanning after MaxRows+1 rows so callers can tell a
	// truncated result from an exact one. Zero means unlimited.
	MaxRows int
}

// Postgres implements tenant.DataSource. Every query runs in its own
// read-only transaction that is always rolled back.
type Postgres struct {
	db     *sql.DB
	opts   Options
	logger logging.Logger
}

func New(db *sql.DB, opts Options, logger logging.Logger) *Postgres {
	if opts.StatementTimeout <= 0 {
		opts.StatementTimeout = DefaultStatementTimeout
	}
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &Postgres{db: db, opts: opts, logger: logger}
}

func (p *Postgres) Query(ctx context.Context, query string) ([]map[string]any, error) {
	start := time.Now()
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin read-only transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	timeout := fmt.Sprintf("SET LOCAL statement_timeout = %d", p.opts.StatementTimeout.Milliseconds())
	if _, err := tx.ExecContext(ctx, timeout); err != nil {
		return nil, fmt.Errorf("set statement timeout: %w", err)
	}

	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	result, err := scanRows(rows, p.opts.MaxRows)
	if err != nil {
		return nil, classify(err)
	}

	p.logger.WithFields(logging.Fields{
		"rows":     len(result),
		"duration": time.Since(start),
	}).Debug("Tenant query executed")
	return result, nil
}

func scanRows(rows *sql.Rows, maxRows int) ([]map[string]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("read column types: %w", err)
	}

	result := make([]map[string]any, 0)
	for rows.Next() {
		if maxRows > 0 && len(result) > maxRows {
			break
		}
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, name := range columns {
			row[name] = convertValue(values[i], types[i].DatabaseTypeName())
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// convertValue turns driver byte slices into JSON-friendly values. lib/pq
// hands NUMERIC back as text; it becomes a float64 when it parses.
func convertValue(v any, dbType string) any {
	b, ok := v.([]byte)
	if !ok {
		return v
	}
	switch strings.ToUpper(dbType) {
	case "NUMERIC", "DECIMAL", "MONEY":
		if f, err := strconv.ParseFloat(strings.TrimLeft(string(b), "$"), 64); err == nil {
			return f
		}
	case "BYTEA":
		return fmt.Sprintf("\\x%x", b)
	}
	return string(b)
}

func classify(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == queryCanceled {
		return fmt.Errorf("%w: %s", ErrStatementTimeout, pqErr.Message)
	}
	return err
}

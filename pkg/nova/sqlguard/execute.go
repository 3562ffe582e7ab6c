package sqlguard

import (
	"context"
	"fmt"
	"time"

	"econova/pkg/nova/tenant"
)

// ExecutionResult is what a query tool hands back to the model.
type ExecutionResult struct {
	Success bool             `json:"success"`
	Data    []map[string]any `json:"data,omitempty"`
	Error   string           `json:"error,omitempty"`
	Query   string           `json:"query,omitempty"`
}

// ExecuteSafeQuery validates query and, only if it passes, runs the
// normalized statement on ds. Host errors and panics are reported in the
// result instead of being returned.
func ExecuteSafeQuery(ctx context.Context, query string, ds tenant.DataSource) (result ExecutionResult) {
	validation := ValidateQuery(query)
	if !validation.Valid {
		return ExecutionResult{Success: false, Error: validation.Error}
	}
	if ds == nil {
		return ExecutionResult{Success: false, Error: "no data source configured", Query: validation.Query}
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			result = ExecutionResult{
				Success: false,
				Error:   fmt.Sprintf("query execution failed: %v", r),
				Query:   validation.Query,
			}
		}
		status := "success"
		if !result.Success {
			status = "error"
		}
		sqlExecutions.WithLabelValues(status).Inc()
		sqlDuration.Observe(time.Since(start).Seconds())
	}()

	rows, err := ds.Query(ctx, validation.Query)
	if err != nil {
		return ExecutionResult{
			Success: false,
			Error:   fmt.Sprintf("query execution failed: %v", err),
			Query:   validation.Query,
		}
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return ExecutionResult{Success: true, Data: rows, Query: validation.Query}
}

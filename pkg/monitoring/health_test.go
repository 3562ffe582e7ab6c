package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
)

func healthy(context.Context) CheckResult { return CheckResult{Status: StatusHealthy} }

func TestHealthChecker_Basic(t *testing.T) {
	hc := NewHealthChecker("nova", "v1")
	hc.AddCheck("ok", healthy)
	status := hc.CheckHealth(context.Background())
	if status.Status != StatusHealthy || status.Service != "nova" {
		t.Fatalf("expected healthy, got %+v", status)
	}
}

func TestHealthChecker_OptionalFailureDegrades(t *testing.T) {
	hc := NewHealthChecker("nova", "v1")
	hc.AddCheck("database", healthy)
	hc.AddOptionalCheck("redis", PingHealthCheck("Redis", func(context.Context) error { return errors.New("refused") }))

	status := hc.CheckHealth(context.Background())
	if status.Status != StatusDegraded {
		t.Fatalf("expected degraded, got %s", status.Status)
	}
	if !strings.Contains(status.Checks["redis"].Message, "refused") {
		t.Fatalf("unexpected redis message %q", status.Checks["redis"].Message)
	}

	hc.AddCheck("config", ConfigurationHealthCheck(map[string]string{"LLM_API_KEY": ""}))
	if status := hc.CheckHealth(context.Background()); status.Status != StatusUnhealthy {
		t.Fatalf("expected unhealthy, got %s", status.Status)
	}
}

func TestDatabaseHealthCheck(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectPing()
	if res := DatabaseHealthCheck(db)(context.Background()); res.Status != StatusHealthy {
		t.Fatalf("expected healthy, got %+v", res)
	}
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	if res := DatabaseHealthCheck(db)(context.Background()); res.Status != StatusUnhealthy {
		t.Fatalf("expected unhealthy, got %+v", res)
	}
	if res := DatabaseHealthCheck(nil)(context.Background()); res.Status != StatusUnhealthy {
		t.Fatalf("expected unhealthy for nil db, got %+v", res)
	}
}

func TestRedisHealthCheck(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()

	if res := RedisHealthCheck(client)(context.Background()); res.Status != StatusHealthy {
		t.Fatalf("expected healthy, got %+v", res)
	}
	mr.Close()
	if res := RedisHealthCheck(client)(context.Background()); res.Status != StatusUnhealthy {
		t.Fatalf("expected unhealthy after shutdown, got %+v", res)
	}
}

func TestKafkaProducerHealthCheckNil(t *testing.T) {
	if res := KafkaProducerHealthCheck(nil)(context.Background()); res.Status != StatusUnhealthy {
		t.Fatalf("expected unhealthy, got %+v", res)
	}
}

func TestHealthHandlerStatusCode(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hc := NewHealthChecker("nova", "v1")
	hc.AddCheck("database", func(context.Context) CheckResult { return CheckResult{Status: StatusUnhealthy} })

	router := gin.New()
	router.GET("/health", hc.Handler())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	var body HealthStatus
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Checks["database"].Status != StatusUnhealthy {
		t.Fatalf("unexpected body %+v", body)
	}
}

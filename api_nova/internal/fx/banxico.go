// Package fx provides exchange rates for the agent's get_exchange_rate tool,
// read from the Banxico SIE API and cached in process and optionally in Redis.
package fx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"

	"econova/pkg/clients"
	"econova/pkg/logging"
	"econova/pkg/nova/tenant"
	"econova/pkg/version"
)

const (
	DefaultBanxicoURL = "https://www.banxico.org.mx/SieAPIRest/service/v1"
	banxicoSource     = "banxico"
)

// DefaultSeries maps SIE series ids to the currency they quote in MXN.
var DefaultSeries = map[string]string{
	"SF43718": "USD", // FIX
	"SF46410": "EUR",
	"SF60632": "CAD",
	"SF46406": "JPY",
}

var (
	ErrMissingToken = errors.New("banxico token is required")
	ErrNoRates      = errors.New("banxico returned no rates")
)

type BanxicoConfig struct {
	BaseURL string
	Token   string
	// Series overrides DefaultSeries.
	Series  map[string]string
	Timeout time.Duration
	Logger  logging.Logger
}

// BanxicoClient reads the latest published ("oportuno") value of each series.
type BanxicoClient struct {
	baseURL  string
	token    string
	series   map[string]string
	http     *http.Client
	executor failsafe.Executor[*http.Response]
	logger   logging.Logger
}

func NewBanxicoClient(cfg BanxicoConfig) (*BanxicoClient, error) {
	if cfg.Token == "" {
		return nil, ErrMissingToken
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBanxicoURL
	}
	series := cfg.Series
	if len(series) == 0 {
		series = DefaultSeries
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}

	breaker := clients.DefaultBreakerConfig()
	httpCfg := clients.DefaultHTTPConfig("banxico")
	httpCfg.MaxRetries = 2
	httpCfg.Breaker = &breaker
	httpCfg.Logger = logger

	return &BanxicoClient{
		baseURL:  baseURL,
		token:    cfg.Token,
		series:   series,
		http:     clients.NewHTTPClient(timeout),
		executor: clients.NewHTTPExecutor(httpCfg),
		logger:   logger,
	}, nil
}

type sieResponse struct {
	BMX struct {
		Series []sieSeries `json:"series"`
	} `json:"bmx"`
}

type sieSeries struct {
	ID    string `json:"idSerie"`
	Title string `json:"titulo"`
	Data  []struct {
		Date  string `json:"fecha"`
		Value string `json:"dato"`
	} `json:"datos"`
}

// Latest returns one rate per configured series, sorted by currency.
func (c *BanxicoClient) Latest(ctx context.Context) ([]tenant.ExchangeRate, error) {
	ids := make([]string, 0, len(c.series))
	for id := range c.series {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	url := fmt.Sprintf("%s/series/%s/datos/oportuno", c.baseURL, strings.Join(ids, ","))

	resp, err := clients.Do(ctx, c.executor, c.http, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Bmx-Token", c.token)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", version.UserAgent())
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("banxico request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("banxico returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload sieResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode banxico response: %w", err)
	}
	return c.parse(payload)
}

func (c *BanxicoClient) parse(payload sieResponse) ([]tenant.ExchangeRate, error) {
	rates := make([]tenant.ExchangeRate, 0, len(payload.BMX.Series))
	for _, s := range payload.BMX.Series {
		currency, ok := c.series[s.ID]
		if !ok || len(s.Data) == 0 {
			continue
		}
		latest := s.Data[len(s.Data)-1]
		// "N/E" marks a day without a published value.
		value, err := strconv.ParseFloat(strings.ReplaceAll(latest.Value, ",", ""), 64)
		if err != nil {
			c.logger.WithFields(logging.Fields{"series": s.ID, "value": latest.Value}).Debug("Skipping unpublished FX value")
			continue
		}
		rates = append(rates, tenant.ExchangeRate{
			Currency: currency,
			Rate:     value,
			Date:     isoDate(latest.Date),
			Series:   s.ID,
			Source:   banxicoSource,
		})
	}
	if len(rates) == 0 {
		return nil, ErrNoRates
	}
	sort.Slice(rates, func(i, j int) bool { return rates[i].Currency < rates[j].Currency })
	return rates, nil
}

// isoDate converts SIE's dd/mm/yyyy to yyyy-mm-dd, leaving other input as is.
func isoDate(s string) string {
	t, err := time.Parse("02/01/2006", s)
	if err != nil {
		return s
	}
	return t.Format("2006-01-02")
}

package llm

import (
	"context"
	"net/http"
	"time"

	"econova/pkg/clients"
)

const maxRetries = 3

var retryExecutor = clients.NewHTTPExecutor(clients.HTTPConfig{
	Name:       "llm",
	MaxRetries: maxRetries,
	BaseDelay:  200 * time.Millisecond,
	MaxDelay:   4 * time.Second,
	ShouldRetry: func(resp *http.Response, err error) bool {
		if err != nil {
			return clients.DefaultShouldRetry(nil, err)
		}
		// 529 is Anthropic's overloaded status.
		return clients.DefaultShouldRetry(resp, nil) || (resp != nil && resp.StatusCode == 529)
	},
})

// doWithRetry sends a request built fresh for each attempt, retrying rate
// limits and upstream failures with backoff.
func doWithRetry(ctx context.Context, client *http.Client, build func() (*http.Request, error)) (*http.Response, error) {
	return clients.Do(ctx, retryExecutor, client, build)
}

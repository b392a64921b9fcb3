package rates

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// HTTPProvider fetches rate values from the platform configuration service.
// Responses are flat JSON objects of field name to decimal; a 404 means the
// key is not configured.
type HTTPProvider struct {
	client      *http.Client
	baseURL     string
	environment string
}

// NewHTTPProvider creates a provider against the given configuration service
// base URL. Lookups are bounded by the given timeout.
func NewHTTPProvider(baseURL, environment string, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPProvider{
		client:      &http.Client{Timeout: timeout},
		baseURL:     baseURL,
		environment: environment,
	}
}

// Lookup fetches the value for key. Unknown keys yield a missing Value;
// transport and decode failures yield a *LookupError.
func (p *HTTPProvider) Lookup(ctx context.Context, key string) (Value, error) {
	u := p.baseURL + "/api/v1/values/" + url.PathEscape(key) + "?environment=" + url.QueryEscape(p.environment)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Value{}, &LookupError{Key: key, Err: err}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return Value{}, &LookupError{Key: key, Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return Value{}, nil
	default:
		return Value{}, &LookupError{Key: key, Err: errors.Errorf("unexpected status %d", resp.StatusCode)}
	}

	var fields map[string]decimal.Decimal
	if err := json.NewDecoder(resp.Body).Decode(&fields); err != nil {
		return Value{}, &LookupError{Key: key, Err: errors.Wrap(err, "decode response")}
	}

	return NewValue(fields), nil
}

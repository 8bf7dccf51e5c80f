package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/seabucks/dealer/retry"
	"github.com/shopspring/decimal"
)

const exchangeRateAPIBaseURL = "https://open.er-api.com"

// ExchangeRateAPI is the primary tier: open.er-api.com, keyless, all currencies in one call.
type ExchangeRateAPI struct {
	client
	retry retry.Config
}

// NewExchangeRateAPI creates the open.er-api.com provider.
func NewExchangeRateAPI(opts ...ClientOption) *ExchangeRateAPI {
	return &ExchangeRateAPI{
		client: newClient(exchangeRateAPIBaseURL, opts),
		retry:  retry.ProviderConfig,
	}
}

func (p *ExchangeRateAPI) Name() string { return SourceExchangeRateAPI }

type erAPIResponse struct {
	Result    string                     `json:"result"`
	ErrorType string                     `json:"error-type"`
	BaseCode  string                     `json:"base_code"`
	Rates     map[string]decimal.Decimal `json:"rates"`
}

// Fetch retrieves the latest USD table and picks out the requested codes.
func (p *ExchangeRateAPI) Fetch(ctx context.Context, codes []string) (map[string]decimal.Decimal, error) {
	body, err := retry.Transient(ctx, p.retry, func(ctx context.Context) (*erAPIResponse, error) {
		url := fmt.Sprintf("%s/v6/latest/%s", p.baseURL, "USD")
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		req.Header = p.header.Clone()

		res, err := p.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("performing request: %w", err)
		}
		defer res.Body.Close()

		if res.StatusCode != http.StatusOK {
			return nil, &retry.StatusError{Upstream: p.Name(), StatusCode: res.StatusCode}
		}

		var out erAPIResponse
		if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
			return nil, fmt.Errorf("decoding response: %w", err)
		}
		return &out, nil
	})
	if err != nil {
		return nil, err
	}

	if body.Result != "success" {
		return nil, fmt.Errorf("%s: result %q (%s)", p.Name(), body.Result, body.ErrorType)
	}
	return positive(body.Rates, codes), nil
}

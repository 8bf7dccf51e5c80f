package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/seabucks/dealer/retry"
	"github.com/shopspring/decimal"
)

const frankfurterBaseURL = "https://api.frankfurter.app"

// frankfurterCurrencies are the payout currencies published in the ECB reference set.
var frankfurterCurrencies = map[string]bool{
	"IDR": true,
	"MYR": true,
	"PHP": true,
	"SGD": true,
	"THB": true,
}

// Frankfurter is the secondary tier: ECB reference rates via api.frankfurter.app.
// Currencies outside the ECB set are declined without a request.
type Frankfurter struct {
	client
	retry retry.Config
}

// NewFrankfurter creates the Frankfurter provider.
func NewFrankfurter(opts ...ClientOption) *Frankfurter {
	return &Frankfurter{
		client: newClient(frankfurterBaseURL, opts),
		retry:  retry.ProviderConfig,
	}
}

func (p *Frankfurter) Name() string { return SourceFrankfurter }

// Supports reports whether the ECB set includes code.
func (p *Frankfurter) Supports(code string) bool { return frankfurterCurrencies[code] }

type frankfurterResponse struct {
	Base  string                     `json:"base"`
	Date  string                     `json:"date"`
	Rates map[string]decimal.Decimal `json:"rates"`
}

// Fetch requests only the supported subset of codes.
func (p *Frankfurter) Fetch(ctx context.Context, codes []string) (map[string]decimal.Decimal, error) {
	wanted := make([]string, 0, len(codes))
	for _, code := range codes {
		if p.Supports(code) {
			wanted = append(wanted, code)
		}
	}
	if len(wanted) == 0 {
		return map[string]decimal.Decimal{}, nil
	}

	body, err := retry.Transient(ctx, p.retry, func(ctx context.Context) (*frankfurterResponse, error) {
		query := url.Values{}
		query.Set("from", "USD")
		query.Set("to", strings.Join(wanted, ","))

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/latest?"+query.Encode(), http.NoBody)
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

		var out frankfurterResponse
		if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
			return nil, fmt.Errorf("decoding response: %w", err)
		}
		return &out, nil
	})
	if err != nil {
		return nil, err
	}
	return positive(body.Rates, wanted), nil
}

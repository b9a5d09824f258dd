package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"fluxo/internal/core"
	"fluxo/internal/log"
)

// Fallback is used when the rate service is unreachable and no fetched table
// is cached yet. Values are units of foreign currency per one BRL.
func Fallback(base string) core.RateTable {
	return core.RateTable{
		Base: base,
		Rates: map[string]decimal.Decimal{
			"USD": decimal.NewFromFloat(0.20),
			"EUR": decimal.NewFromFloat(0.17),
			"GBP": decimal.NewFromFloat(0.15),
			"JPY": decimal.NewFromFloat(26.0),
			"CAD": decimal.NewFromFloat(0.25),
			"AUD": decimal.NewFromFloat(0.28),
			"CHF": decimal.NewFromFloat(0.16),
			"CNY": decimal.NewFromFloat(1.30),
		},
	}
}

// Client fetches a base-relative rate table over HTTP and caches it for a
// TTL. A stale table is better than no table, so fetch failures fall back to
// the last good response, then to the static table.
type Client struct {
	http   *http.Client
	url    string
	base   string
	ttl    time.Duration
	logger *log.Logger

	mu        sync.Mutex
	cached    core.RateTable
	fetchedAt time.Time
}

func New(url, base string, ttl time.Duration, logger *log.Logger) *Client {
	return &Client{
		http:   &http.Client{Timeout: 15 * time.Second},
		url:    url,
		base:   base,
		ttl:    ttl,
		logger: logger.WithComponent(log.ComponentRates),
	}
}

type ratesResponse struct {
	Base  string             `json:"base"`
	Rates map[string]float64 `json:"rates"`
}

// Table returns the current rate table, fetching at most once per TTL.
func (c *Client) Table(ctx context.Context) core.RateTable {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cached.Rates != nil && time.Since(c.fetchedAt) < c.ttl {
		return c.cached
	}

	table, err := c.fetch(ctx)
	if err != nil {
		c.logger.WarnContext(ctx, "rate fetch failed, using fallback", log.FieldError, err.Error())
		if c.cached.Rates != nil {
			return c.cached
		}
		return Fallback(c.base)
	}

	c.cached = table
	c.fetchedAt = time.Now()
	return table
}

func (c *Client) fetch(ctx context.Context) (core.RateTable, error) {
	if c.url == "" {
		return core.RateTable{}, fmt.Errorf("no rates url configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return core.RateTable{}, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return core.RateTable{}, fmt.Errorf("fetch rates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return core.RateTable{}, fmt.Errorf("fetch rates: unexpected status %d", resp.StatusCode)
	}

	var body ratesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return core.RateTable{}, fmt.Errorf("decode rates: %w", err)
	}
	if body.Base != "" && body.Base != c.base {
		return core.RateTable{}, fmt.Errorf("rates base %q does not match configured base %q", body.Base, c.base)
	}
	if len(body.Rates) == 0 {
		return core.RateTable{}, fmt.Errorf("rates response carried no rates")
	}

	table := core.RateTable{
		Base:        c.base,
		Rates:       make(map[string]decimal.Decimal, len(body.Rates)),
		LastUpdated: time.Now(),
	}
	for code, rate := range body.Rates {
		if rate <= 0 {
			continue
		}
		table.Rates[code] = decimal.NewFromFloat(rate)
	}
	return table, nil
}

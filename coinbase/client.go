// Package coinbase implements the price oracle against the Coinbase
// spot and candles HTTP APIs.
package coinbase

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"perpsim/market"
)

const (
	// SpotURL is the public spot price endpoint base.
	SpotURL = "https://api.coinbase.com"
	// CandlesURL is the exchange historical candles endpoint base.
	CandlesURL = "https://api.exchange.coinbase.com"

	// MaxCandlesPerRequest is the upstream per-request sample cap; longer
	// windows are fetched as consecutive chunks.
	MaxCandlesPerRequest = 300

	defaultTimeout = 10 * time.Second
)

// Client is a Coinbase API client implementing market.Oracle.
type Client struct {
	spotBase    string
	candlesBase string
	httpClient  *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURLs overrides the spot and candles endpoint bases (tests).
func WithBaseURLs(spotBase, candlesBase string) Option {
	return func(c *Client) {
		c.spotBase = spotBase
		c.candlesBase = candlesBase
	}
}

// WithTimeout overrides the default 10s HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// NewClient creates a Coinbase client with the public API endpoints.
func NewClient(opts ...Option) *Client {
	c := &Client{
		spotBase:    SpotURL,
		candlesBase: CandlesURL,
		httpClient:  &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ market.Oracle = (*Client)(nil)

type spotResponse struct {
	Data struct {
		Amount string `json:"amount"`
	} `json:"data"`
}

// Spot fetches the current spot price for a symbol, e.g. "BTC" or "SOL".
func (c *Client) Spot(ctx context.Context, symbol string) (float64, error) {
	pair := market.Normalize(symbol) + "-USD"
	apiURL := fmt.Sprintf("%s/v2/prices/%s/spot", c.spotBase, pair)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return 0, fmt.Errorf("create spot request: %w", market.ErrPriceUnavailable)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch spot %s: %v: %w", pair, err, market.ErrPriceUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("spot %s: status %d: %s: %w", pair, resp.StatusCode, string(body), market.ErrPriceUnavailable)
	}

	var sr spotResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return 0, fmt.Errorf("decode spot %s: %v: %w", pair, err, market.ErrPriceUnavailable)
	}

	price, err := strconv.ParseFloat(sr.Data.Amount, 64)
	if err != nil {
		return 0, fmt.Errorf("parse spot %s %q: %v: %w", pair, sr.Data.Amount, err, market.ErrPriceUnavailable)
	}
	return price, nil
}

// RangeExtremes returns the min and max price observed across [start, end].
// Zero or negative windows, and windows the upstream has no samples for,
// fall back to the current spot price.
func (c *Client) RangeExtremes(ctx context.Context, symbol string, start, end time.Time) (float64, float64, error) {
	if !start.Before(end) {
		spot, err := c.Spot(ctx, symbol)
		if err != nil {
			return 0, 0, err
		}
		return spot, spot, nil
	}

	var (
		lowSeen, highSeen float64
		seen              bool
	)
	err := c.scanCandles(ctx, symbol, start, end, func(candles []market.Candle) bool {
		for _, cd := range candles {
			if !seen || cd.Low < lowSeen {
				lowSeen = cd.Low
			}
			if !seen || cd.High > highSeen {
				highSeen = cd.High
			}
			seen = true
		}
		return true
	})
	if err != nil {
		return 0, 0, err
	}

	if !seen {
		spot, err := c.Spot(ctx, symbol)
		if err != nil {
			return 0, 0, err
		}
		return spot, spot, nil
	}
	return lowSeen, highSeen, nil
}

// FirstCrossing scans candles in chronological order and returns the time
// of the first sample whose low (CrossDown) or high (CrossUp) crosses
// target. Samples outside [start, end] are skipped.
func (c *Client) FirstCrossing(ctx context.Context, symbol string, target float64, dir market.CrossDirection, start, end time.Time) (time.Time, bool, error) {
	if !start.Before(end) {
		return time.Time{}, false, nil
	}

	var (
		hit   time.Time
		found bool
	)
	err := c.scanCandles(ctx, symbol, start, end, func(candles []market.Candle) bool {
		for _, cd := range candles {
			if cd.Time.Before(start) || cd.Time.After(end) {
				continue
			}
			crossed := cd.Low <= target
			if dir == market.CrossUp {
				crossed = cd.High >= target
			}
			if crossed {
				hit = cd.Time
				found = true
				return false
			}
		}
		return true
	})
	if err != nil {
		return time.Time{}, false, err
	}
	return hit, found, nil
}

// scanCandles fetches [start, end] as consecutive chunks of at most
// MaxCandlesPerRequest samples and hands each chunk, sorted by ascending
// timestamp, to visit. Returning false from visit stops the scan early.
func (c *Client) scanCandles(ctx context.Context, symbol string, start, end time.Time, visit func([]market.Candle) bool) error {
	granularity := chooseGranularity(start, end)
	chunk := time.Duration(granularity) * time.Second * MaxCandlesPerRequest

	for cursor := start; cursor.Before(end); {
		chunkEnd := cursor.Add(chunk)
		if chunkEnd.After(end) {
			chunkEnd = end
		}

		candles, err := c.getCandles(ctx, symbol, cursor, chunkEnd, granularity)
		if err != nil {
			return err
		}
		sort.Slice(candles, func(i, j int) bool {
			return candles[i].Time.Before(candles[j].Time)
		})
		if !visit(candles) {
			return nil
		}

		cursor = chunkEnd
	}
	return nil
}

func (c *Client) getCandles(ctx context.Context, symbol string, start, end time.Time, granularity int) ([]market.Candle, error) {
	product := market.Normalize(symbol) + "-USD"

	params := url.Values{}
	params.Set("start", start.UTC().Format(time.RFC3339))
	params.Set("end", end.UTC().Format(time.RFC3339))
	params.Set("granularity", strconv.Itoa(granularity))

	apiURL := fmt.Sprintf("%s/products/%s/candles?%s", c.candlesBase, product, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create candles request: %w", market.ErrPriceUnavailable)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch candles %s: %v: %w", product, err, market.ErrPriceUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("candles %s: status %d: %s: %w", product, resp.StatusCode, string(body), market.ErrPriceUnavailable)
	}

	// Each candle arrives as [timestamp, low, high, open, close, volume].
	var raw [][]float64
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode candles %s: %v: %w", product, err, market.ErrPriceUnavailable)
	}

	candles := make([]market.Candle, 0, len(raw))
	for _, tuple := range raw {
		if len(tuple) < 3 {
			continue
		}
		cd := market.Candle{
			Time: time.Unix(int64(tuple[0]), 0).UTC(),
			Low:  tuple[1],
			High: tuple[2],
		}
		if len(tuple) >= 5 {
			cd.Open = tuple[3]
			cd.Close = tuple[4]
		}
		if len(tuple) >= 6 {
			cd.Volume = tuple[5]
		}
		candles = append(candles, cd)
	}
	return candles, nil
}

// chooseGranularity picks the candle size for a window: fine candles for
// short windows, coarse for long ones, so any window fits in a bounded
// number of chunked requests.
func chooseGranularity(start, end time.Time) int {
	duration := end.Sub(start)
	if duration < 0 {
		duration = 0
	}
	day := 24 * time.Hour
	switch {
	case duration <= 2*day:
		return 60
	case duration <= 7*day:
		return 300
	case duration <= 30*day:
		return 900
	case duration <= 180*day:
		return 3600
	case duration <= 365*day:
		return 21600
	default:
		return 86400
	}
}

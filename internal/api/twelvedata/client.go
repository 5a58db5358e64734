package twelvedata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	httpClient "github.com/Alias1177/SignalScanner/internal/platform/http"
	"github.com/Alias1177/SignalScanner/models"
)

const defaultBaseURL = "https://api.twelvedata.com"

// Client is the TwelveData API client
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *httpClient.Client
	logger     zerolog.Logger
}

// ClientOptions holds options for creating a new TwelveData client
type ClientOptions struct {
	APIKey          string
	BaseURL         string
	RequestTimeout  time.Duration
	RequestsPerSec  int
	MaxRetries      int
	MaxRetryTimeout time.Duration
}

// NewClient creates a new TwelveData API client
func NewClient(options ClientOptions) *Client {
	httpOpts := httpClient.ClientOptions{
		Timeout:         options.RequestTimeout,
		RequestsPerSec:  options.RequestsPerSec,
		MaxRetries:      options.MaxRetries,
		MaxRetryTimeout: options.MaxRetryTimeout,
	}

	baseURL := strings.TrimRight(options.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &Client{
		apiKey:     options.APIKey,
		baseURL:    baseURL,
		httpClient: httpClient.NewClient(httpOpts),
		logger:     log.With().Str("component", "twelvedata_client").Logger(),
	}
}

type apiError struct {
	Status  string `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	params.Set("apikey", c.apiKey)
	endpoint := c.baseURL + path + "?" + params.Encode()

	c.logger.Debug().Str("path", path).Str("symbol", params.Get("symbol")).Msg("Requesting Twelve Data")

	body, err := c.httpClient.Get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}

	var status apiError
	if err := json.Unmarshal(body, &status); err == nil && status.Status == "error" {
		c.logger.Error().Int("code", status.Code).Str("message", status.Message).Msg("Twelve Data API error")
		// 400/404 mean the symbol or interval has no data
		if status.Code == 400 || status.Code == 404 {
			return nil, fmt.Errorf("%w: %s", models.ErrDataUnavailable, status.Message)
		}
		return nil, fmt.Errorf("Twelve Data API error %d: %s", status.Code, status.Message)
	}
	return body, nil
}

// GetCandles fetches up to count candles, oldest first
func (c *Client) GetCandles(ctx context.Context, symbol string, interval string, count int) ([]models.Candle, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	params.Set("outputsize", fmt.Sprint(count))

	body, err := c.get(ctx, "/time_series", params)
	if err != nil {
		return nil, err
	}

	var data models.TwelveResponse
	if err := json.Unmarshal(body, &data); err != nil {
		c.logger.Error().Err(err).Str("symbol", symbol).Msg("Error parsing JSON")
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}

	if len(data.Values) == 0 {
		c.logger.Warn().Str("symbol", symbol).Str("interval", interval).Msg("No candles in response")
		return nil, fmt.Errorf("%w: no candles for %s %s", models.ErrDataUnavailable, symbol, interval)
	}

	// Sort candles by datetime (oldest first for proper calculations)
	sort.Slice(data.Values, func(i, j int) bool {
		return data.Values[i].Datetime < data.Values[j].Datetime
	})

	candles := make([]models.Candle, 0, len(data.Values))
	for _, v := range data.Values {
		candles = append(candles, models.Candle{
			Datetime: v.Datetime,
			Open:     v.Open,
			High:     v.High,
			Low:      v.Low,
			Close:    v.Close,
			Volume:   v.Volume,
		})
	}

	c.logger.Debug().Str("symbol", symbol).Str("interval", interval).Int("count", len(candles)).Msg("Fetched candles")
	return candles, nil
}

// GetPrice fetches the latest traded price
func (c *Client) GetPrice(ctx context.Context, symbol string) (float64, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	body, err := c.get(ctx, "/price", params)
	if err != nil {
		return 0, err
	}

	var data models.TwelvePriceResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return 0, fmt.Errorf("parsing JSON: %w", err)
	}
	if data.Price <= 0 {
		return 0, fmt.Errorf("%w: no price for %s", models.ErrDataUnavailable, symbol)
	}
	return data.Price, nil
}

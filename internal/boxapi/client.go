// Package boxapi is the HTTP client for the product-detail ("box") API, the
// authoritative source of ground-truth attribute values per SKU.
package boxapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/shopmind/attrmatch/pkg/attrmatch"
	"github.com/shopmind/attrmatch/pkg/attrmatch/internalerr"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/118.0.5993.117 Safari/537.36"

// Options configures a Client.
type Options struct {
	BaseURL   string
	UserAgent string
	// RatePerSecond throttles requests as a courtesy to the third-party
	// API; Burst allows short spikes. Defaults: 0.5 req/s, burst 1.
	RatePerSecond float64
	Burst         int
	Timeout       time.Duration
	Logger        *zap.Logger
}

// Client fetches product details over HTTP. Safe for sequential use by the
// processing loop; the rate limiter makes concurrent use safe too.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	limiter    *rate.Limiter
	log        *zap.Logger
}

// New creates a Client.
func New(opts Options) *Client {
	perSec := opts.RatePerSecond
	if perSec <= 0 {
		perSec = 0.5
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    opts.BaseURL,
		userAgent:  ua,
		limiter:    rate.NewLimiter(rate.Limit(perSec), burst),
		log:        logger,
	}
}

// detailResponse mirrors the upstream envelope.
type detailResponse struct {
	Response struct {
		Data struct {
			BoxDetails []boxDetail `json:"boxDetails"`
		} `json:"data"`
	} `json:"response"`
}

type boxDetail struct {
	CategoryID    int64           `json:"categoryId"`
	CategoryName  string          `json:"categoryName"`
	AttributeInfo []attributeInfo `json:"attributeInfo"`
}

type attributeInfo struct {
	AttributeName         string      `json:"attributeName"`
	AttributeFriendlyName string      `json:"attributeFriendlyName"`
	AttributeValue        valueOrList `json:"attributeValue"`
}

// valueOrList accepts both a bare string and a string array, as the
// upstream API emits both shapes.
type valueOrList []string

func (v *valueOrList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*v = list
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err != nil {
		return err
	}
	*v = []string{single}
	return nil
}

// FetchAttributeData implements attrmatch.Fetcher.
func (c *Client) FetchAttributeData(ctx context.Context, sku string) (attrmatch.AttributeData, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return attrmatch.AttributeData{}, err
	}

	url := fmt.Sprintf("%s/boxes/%s/detail", c.baseURL, sku)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return attrmatch.AttributeData{}, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json, text/javascript, */*; q=0.01")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return attrmatch.AttributeData{}, fmt.Errorf("fetch %s: %w", sku, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return attrmatch.AttributeData{}, fmt.Errorf("fetch %s: unexpected status %d", sku, resp.StatusCode)
	}

	var decoded detailResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return attrmatch.AttributeData{}, fmt.Errorf("fetch %s: decode: %w", sku, err)
	}

	details := decoded.Response.Data.BoxDetails
	if len(details) == 0 {
		return attrmatch.AttributeData{}, fmt.Errorf("fetch %s: %w", sku, internalerr.ErrNoAttributeData)
	}

	box := details[0]
	data := attrmatch.AttributeData{
		CategoryID:   box.CategoryID,
		CategoryName: box.CategoryName,
	}
	for _, a := range box.AttributeInfo {
		data.Attributes = append(data.Attributes, attrmatch.AttributeInfo{
			Name:         a.AttributeName,
			FriendlyName: a.AttributeFriendlyName,
			Values:       a.AttributeValue,
		})
	}
	c.log.Debug("fetched product detail",
		zap.String("sku", sku),
		zap.Int64("category", data.CategoryID),
		zap.Int("attributes", len(data.Attributes)))
	return data, nil
}

// Package geocode resolves city names to coordinates and coordinates to
// places through the Nominatim JSON API.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/metaphotor/metaphotor/core"
	"github.com/metaphotor/metaphotor/core/gps"
)

const (
	defaultBaseURL        = "https://nominatim.openstreetmap.org"
	defaultUserAgent      = "metaphotor"
	defaultTimeout        = 10 * time.Second
	defaultCacheTTL       = 24 * time.Hour
	responseBodyReadLimit = 1 << 20
	errorBodyReadLimit    = 1024
	language              = "en"
)

// Client implements gps.Geocoder against Nominatim.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	limiter    *rate.Limiter
	cache      *cache.Cache
}

var _ gps.Geocoder = (*Client)(nil)

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the Nominatim base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(baseURL); trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithUserAgent sets the identifying User-Agent Nominatim requires.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(ua); trimmed != "" {
			c.userAgent = trimmed
		}
	}
}

// WithTimeout bounds each upstream request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithRate limits upstream requests to perSecond. Zero or less disables the
// limiter.
func WithRate(perSecond float64) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// WithCacheTTL sets how long answers are remembered. Zero or less disables
// caching.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) {
		if ttl <= 0 {
			c.cache = nil
			return
		}
		c.cache = cache.New(ttl, 2*ttl)
	}
}

// NewClient builds a client with a 10s timeout, one request per second and a
// 24h answer cache unless overridden.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    defaultBaseURL,
		userAgent:  defaultUserAgent,
		limiter:    rate.NewLimiter(rate.Limit(1), 1),
		cache:      cache.New(defaultCacheTTL, 2*defaultCacheTTL),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

type searchResult struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

type forwardAnswer struct {
	Lat, Lon float64
}

// Forward returns the coordinates of the best match for city.
func (c *Client) Forward(ctx context.Context, city string) (float64, float64, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return 0, 0, fmt.Errorf("%w: empty city name", core.ErrGeocodingUnresolved)
	}
	key := "fwd:" + strings.ToLower(city)
	if v, ok := c.cached(key); ok {
		a := v.(forwardAnswer)
		return a.Lat, a.Lon, nil
	}

	q := url.Values{}
	q.Set("q", city)
	q.Set("format", "jsonv2")
	q.Set("limit", "1")

	var results []searchResult
	if err := c.get(ctx, "search", q, &results); err != nil {
		return 0, 0, fmt.Errorf("%w: city %q: %v", core.ErrGeocodingUnresolved, city, err)
	}
	if len(results) == 0 {
		return 0, 0, fmt.Errorf("%w: no match for city %q", core.ErrGeocodingUnresolved, city)
	}
	lat, errLat := strconv.ParseFloat(results[0].Lat, 64)
	lon, errLon := strconv.ParseFloat(results[0].Lon, 64)
	if errLat != nil || errLon != nil {
		return 0, 0, fmt.Errorf("%w: bad coordinates for city %q", core.ErrGeocodingUnresolved, city)
	}

	c.store(key, forwardAnswer{Lat: lat, Lon: lon})
	return lat, lon, nil
}

type reverseResult struct {
	Error   string `json:"error"`
	Address struct {
		City        string `json:"city"`
		Country     string `json:"country"`
		CountryCode string `json:"country_code"`
	} `json:"address"`
}

// Reverse returns the place at lat/lon. The country is always filled; city
// and code only when the answer carries both.
func (c *Client) Reverse(ctx context.Context, lat, lon float64) (gps.Place, error) {
	key := "rev:" + strconv.FormatFloat(lat, 'f', 6, 64) + "," + strconv.FormatFloat(lon, 'f', 6, 64)
	if v, ok := c.cached(key); ok {
		return v.(gps.Place), nil
	}

	q := url.Values{}
	q.Set("lat", core.FormatFloat(lat))
	q.Set("lon", core.FormatFloat(lon))
	q.Set("format", "jsonv2")

	var res reverseResult
	if err := c.get(ctx, "reverse", q, &res); err != nil {
		return gps.Place{}, fmt.Errorf("%w: %s,%s: %v", core.ErrGeocodingUnresolved, core.FormatFloat(lat), core.FormatFloat(lon), err)
	}
	if res.Error != "" || res.Address.Country == "" {
		return gps.Place{}, fmt.Errorf("%w: %s,%s: no address", core.ErrGeocodingUnresolved, core.FormatFloat(lat), core.FormatFloat(lon))
	}

	place := gps.Place{Country: res.Address.Country}
	if res.Address.City != "" && res.Address.CountryCode != "" {
		place.City = res.Address.City
		place.CountryCode = res.Address.CountryCode
	}
	c.store(key, place)
	return place, nil
}

func (c *Client) get(ctx context.Context, endpoint string, q url.Values, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	q.Set("accept-language", language)
	u := strings.TrimRight(c.baseURL, "/") + "/" + endpoint + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, responseBodyReadLimit)).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) cached(key string) (any, bool) {
	if c.cache == nil {
		return nil, false
	}
	return c.cache.Get(key)
}

func (c *Client) store(key string, v any) {
	if c.cache != nil {
		c.cache.SetDefault(key, v)
	}
}

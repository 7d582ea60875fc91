// Package places finds nearby repair workshops with the Google Places
// nearby search API.
package places

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/WessleyAI/wessley-mechanic/pkg/cache"
)

// DefaultURL is the nearby search endpoint.
const DefaultURL = "https://maps.googleapis.com/maps/api/place/nearbysearch/json"

// Search parameters.
const (
	Radius     = 5000
	Keyword    = "car repair garage"
	MaxResults = 5
	CacheTTL   = 30 * time.Minute
)

// MapsURL links to a place on Google Maps.
func MapsURL(placeID string) string {
	return "https://www.google.com/maps/place/?q=place_id:" + placeID
}

// Client looks up workshops near a coordinate.
type Client struct {
	key     string
	url     string
	client  *http.Client
	limiter *rate.Limiter
	cache   cache.Cache
}

// Option configures a Client.
type Option func(*Client)

// WithURL overrides the endpoint.
func WithURL(u string) Option { return func(c *Client) { c.url = u } }

// WithCache caches results per rounded coordinate.
func WithCache(cc cache.Cache) Option { return func(c *Client) { c.cache = cc } }

// WithRate limits outbound requests per second.
func WithRate(perSec float64, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(perSec), burst) }
}

// New creates a Places client.
func New(key string, opts ...Option) *Client {
	c := &Client{
		key:     key,
		url:     DefaultURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(5), 5),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// cacheKey rounds to roughly 100m so nearby requests share an entry.
func cacheKey(lat, lng float64) string {
	return fmt.Sprintf("places:%.3f,%.3f", lat, lng)
}

// FindWorkshops returns up to MaxResults map URLs near (lat, lng).
func (c *Client) FindWorkshops(ctx context.Context, lat, lng float64) ([]string, error) {
	return cache.GetOrLoad(c.cache, cacheKey(lat, lng), CacheTTL, func() ([]string, error) {
		return c.nearby(ctx, lat, lng)
	})
}

func (c *Client) nearby(ctx context.Context, lat, lng float64) ([]string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("places: rate limit: %w", err)
	}
	q := url.Values{}
	q.Set("location", strconv.FormatFloat(lat, 'f', -1, 64)+","+strconv.FormatFloat(lng, 'f', -1, 64))
	q.Set("radius", strconv.Itoa(Radius))
	q.Set("keyword", Keyword)
	q.Set("key", c.key)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("places: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("places: read: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("places: status %d", resp.StatusCode)
	}
	switch status := gjson.GetBytes(raw, "status").String(); status {
	case "OK", "ZERO_RESULTS":
	default:
		return nil, fmt.Errorf("places: api status %q: %s", status, gjson.GetBytes(raw, "error_message").String())
	}

	urls := []string{}
	gjson.GetBytes(raw, "results").ForEach(func(_, p gjson.Result) bool {
		if id := p.Get("place_id").String(); id != "" {
			urls = append(urls, MapsURL(id))
		}
		return len(urls) < MaxResults
	})
	return urls, nil
}

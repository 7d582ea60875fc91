// Package websearch queries the Tavily search API.
package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/WessleyAI/wessley-mechanic/engine/domain"
	"github.com/WessleyAI/wessley-mechanic/pkg/cache"
)

// DefaultURL is Tavily's search endpoint.
const DefaultURL = "https://api.tavily.com/search"

// Defaults match an "advanced" search returning five results.
const (
	DefaultMaxResults = 5
	DefaultDepth      = "advanced"
	CacheTTL          = 6 * time.Hour
)

// Tavily is a web search client.
type Tavily struct {
	apiKey     string
	url        string
	maxResults int
	client     *http.Client
	cache      cache.Cache
}

// Option configures a Tavily client.
type Option func(*Tavily)

// WithURL overrides the endpoint.
func WithURL(u string) Option { return func(t *Tavily) { t.url = u } }

// WithCache caches results per query.
func WithCache(c cache.Cache) Option { return func(t *Tavily) { t.cache = c } }

// WithMaxResults caps the number of hits.
func WithMaxResults(n int) Option { return func(t *Tavily) { t.maxResults = n } }

// New creates a Tavily client.
func New(apiKey string, opts ...Option) *Tavily {
	t := &Tavily{
		apiKey:     apiKey,
		url:        DefaultURL,
		maxResults: DefaultMaxResults,
		client:     &http.Client{Timeout: 15 * time.Second},
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

type searchReq struct {
	APIKey      string `json:"api_key"`
	Query       string `json:"query"`
	MaxResults  int    `json:"max_results"`
	SearchDepth string `json:"search_depth"`
}

// Search returns the hits for query.
func (t *Tavily) Search(ctx context.Context, query string) ([]domain.SearchHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	return cache.GetOrLoad(t.cache, "tavily:"+strings.ToLower(query), CacheTTL, func() ([]domain.SearchHit, error) {
		return t.search(ctx, query)
	})
}

func (t *Tavily) search(ctx context.Context, query string) ([]domain.SearchHit, error) {
	body, err := json.Marshal(searchReq{APIKey: t.apiKey, Query: query, MaxResults: t.maxResults, SearchDepth: DefaultDepth})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("websearch: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("websearch: read: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("websearch: status %d: %s", resp.StatusCode, gjson.GetBytes(raw, "detail").String())
	}
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("websearch: invalid response body")
	}

	var hits []domain.SearchHit
	gjson.GetBytes(raw, "results").ForEach(func(_, r gjson.Result) bool {
		url := r.Get("url").String()
		if url == "" {
			return true
		}
		hits = append(hits, domain.SearchHit{
			Title:   r.Get("title").String(),
			URL:     url,
			Content: r.Get("content").String(),
			Score:   r.Get("score").Float(),
		})
		return len(hits) < t.maxResults
	})
	return hits, nil
}

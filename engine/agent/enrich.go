package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/WessleyAI/wessley-mechanic/engine/domain"
	"github.com/WessleyAI/wessley-mechanic/pkg/fn"
	"github.com/WessleyAI/wessley-mechanic/pkg/resilience"
	"github.com/WessleyAI/wessley-mechanic/pkg/vehiclenlp"
)

// MaxTutorialLinks caps the YouTube links attached to a DIY answer.
const MaxTutorialLinks = 3

// enrichStage adds web context: a reference for trouble codes missing from
// the table and tutorial links for DIY answers the model left without any.
// Search failures leave the response unchanged.
func (e *Engine) enrichStage(ctx context.Context, st turnState) fn.Result[turnState] {
	if e.search == nil {
		return fn.Ok(st)
	}
	if code := st.outcome.UnknownCode(); code != "" {
		hits := e.searchHits(ctx, fmt.Sprintf("OBD-II trouble code %s meaning", code))
		if len(hits) > 0 {
			st.resp.Explanation = strings.TrimSpace(fmt.Sprintf("%s Reference for %s: %s (%s)",
				st.resp.Explanation, code, hits[0].Title, hits[0].URL))
		}
	}
	if st.resp.Action == domain.ActionDIY && len(st.resp.YouTubeURLs) == 0 {
		query := st.resp.Diagnosis + " DIY repair youtube"
		if v, ok := vehiclenlp.Extract(st.in.UserInput); ok {
			query = v.String() + " " + query
		}
		st.resp.YouTubeURLs = tutorialLinks(e.searchHits(ctx, query))
	}
	return fn.Ok(st)
}

func (e *Engine) searchHits(ctx context.Context, query string) []domain.SearchHit {
	r := resilience.Do(ctx, e.searchGuard, func(ctx context.Context) ([]domain.SearchHit, error) {
		return e.search.Search(ctx, query)
	})
	if err := r.Cause(); err != nil {
		e.log.Debug("web search failed", "query", query, "err", err)
	}
	return r.UnwrapOr(nil)
}

func tutorialLinks(hits []domain.SearchHit) []string {
	urls := fn.Map(hits, func(h domain.SearchHit) string { return h.URL })
	out := fn.Unique(fn.Filter(urls, isVideoURL))
	if len(out) > MaxTutorialLinks {
		out = out[:MaxTutorialLinks]
	}
	return out
}

func isVideoURL(u string) bool {
	return strings.Contains(u, "youtube.com/watch") || strings.Contains(u, "youtu.be/")
}

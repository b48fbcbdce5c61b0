package feed

import (
	"context"

	"github.com/dgellow/release-watch/internal/log"
	"github.com/dgellow/release-watch/internal/metrics"
	"github.com/dgellow/release-watch/internal/storage"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is the number of feeds fetched at once
const DefaultConcurrency = 4

// Enricher attaches known tags to repositories. Lookups are best-effort:
// a repository whose feed cannot be read keeps an empty tag list.
type Enricher struct {
	fetcher     TagFetcher
	cache       Cache
	metrics     *metrics.Metrics
	concurrency int
}

// NewEnricher creates an enricher. A nil cache disables caching.
func NewEnricher(fetcher TagFetcher, cache Cache, m *metrics.Metrics) *Enricher {
	if cache == nil {
		cache = NopCache{}
	}
	if m == nil {
		m = metrics.New(nil)
	}
	return &Enricher{
		fetcher:     fetcher,
		cache:       cache,
		metrics:     m,
		concurrency: DefaultConcurrency,
	}
}

// Enrich returns one Repo per name, in input order
func (e *Enricher) Enrich(ctx context.Context, names []string) []storage.Repo {
	repos := make([]storage.Repo, len(names))

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i, name := range names {
		repos[i] = storage.Repo{Name: name, Tags: []string{}}
		g.Go(func() error {
			if tags := e.lookup(ctx, name); tags != nil {
				repos[i].Tags = tags
			}
			return nil
		})
	}
	_ = g.Wait()

	return repos
}

func (e *Enricher) lookup(ctx context.Context, repo string) []string {
	tags, ok, err := e.cache.Get(ctx, repo)
	if err != nil {
		log.LogWarn("Tag cache read failed for %s: %v", repo, err)
	}
	if ok {
		e.metrics.IncrementTagFetch("hit")
		return tags
	}

	tags, err = e.fetcher.Tags(ctx, repo)
	if err != nil {
		e.metrics.IncrementTagFetch("error")
		log.LogWarnWithFields("feed", "Tag lookup failed", map[string]any{
			"repo":  repo,
			"error": err.Error(),
		})
		return nil
	}
	e.metrics.IncrementTagFetch("fetched")

	if err := e.cache.Set(ctx, repo, tags); err != nil {
		log.LogWarn("Tag cache write failed for %s: %v", repo, err)
	}
	return tags
}

// Package videosource implements the video source adapter (C2): a lazy,
// finite, non-restartable sequence of VideoDescriptors. It does not consult
// the store; skipping already-checkpointed videos is done by the pipeline's
// prefilter. Two backends are wired: an external listing
// API (HTTP + JSON) and a local channel RSS/Atom feed via
// github.com/mmcdole/gofeed, selected by config.Source.Kind.
package videosource

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"chaffee-ingest/internal/services"
)

// VideoDescriptor identifies one candidate video before download.
type VideoDescriptor struct {
	VideoID     string
	Title       string
	Description string
	URL         string
	PublishedAt time.Time
	DurationS   float64
}

// Source produces VideoDescriptors lazily. Callers drain it via Next until
// it returns (nil, false, nil); a non-nil error on the final call carries
// SourceUnavailable-class failures, with whatever was already yielded still
// usable by the caller (spec's "partial list" contract).
type Source interface {
	Next(ctx context.Context) (*VideoDescriptor, bool, error)
}

// Config selects and parameterizes a Source.
type Config struct {
	Kind                   string
	APIBaseURL             string
	APIKey                 string
	ChannelFeedURL         string
	VideoIDs               []string
	VideoIDsFile           string
	DaysBack               int
	Limit                  int
	NewestFirst            bool
	SkipShorts             bool
	ShortsThresholdSeconds int
}

// New constructs the configured Source.
func New(cfg Config) (Source, error) {
	ids, err := explicitVideoIDs(cfg)
	if err != nil {
		return nil, err
	}
	if len(ids) > 0 {
		return newExplicitIDSource(ids, cfg), nil
	}

	switch cfg.Kind {
	case "external_api":
		return newAPISource(cfg), nil
	case "local_listing":
		return newFeedSource(cfg), nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "videosource", "new", fmt.Sprintf("unknown source kind %q", cfg.Kind), nil)
	}
}

func explicitVideoIDs(cfg Config) ([]string, error) {
	ids := append([]string{}, cfg.VideoIDs...)
	if cfg.VideoIDsFile == "" {
		return ids, nil
	}
	f, err := os.Open(cfg.VideoIDsFile)
	if err != nil {
		return nil, fmt.Errorf("open video ids file: %w", err)
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			ids = append(ids, line)
		}
	}
	return ids, scanner.Err()
}

// --- explicit ID list source ---

type explicitIDSource struct {
	ids []string
	cfg Config
	pos int
}

func newExplicitIDSource(ids []string, cfg Config) *explicitIDSource {
	return &explicitIDSource{ids: ids, cfg: cfg}
}

func (s *explicitIDSource) Next(ctx context.Context) (*VideoDescriptor, bool, error) {
	if s.cfg.Limit > 0 && s.pos >= s.cfg.Limit {
		return nil, false, nil
	}
	if s.pos >= len(s.ids) {
		return nil, false, nil
	}
	id := s.ids[s.pos]
	s.pos++
	return &VideoDescriptor{
		VideoID: id,
		URL:     fmt.Sprintf("https://www.youtube.com/watch?v=%s", id),
	}, true, nil
}

// --- external listing API source ---

type apiVideoListing struct {
	VideoID     string    `json:"video_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at"`
	DurationS   float64   `json:"duration_s"`
}

type apiSource struct {
	cfg     Config
	client  *http.Client
	buf     []apiVideoListing
	pos     int
	fetched bool
}

func newAPISource(cfg Config) *apiSource {
	return &apiSource{cfg: cfg, client: &http.Client{Timeout: 30 * time.Second}}
}

func (s *apiSource) Next(ctx context.Context) (*VideoDescriptor, bool, error) {
	if !s.fetched {
		if err := s.fetch(ctx); err != nil {
			return nil, false, services.Wrap(services.ErrExternalTool, "videosource", "fetch_listing", "upstream listing unavailable", err)
		}
		s.fetched = true
	}
	if s.cfg.Limit > 0 && s.pos >= s.cfg.Limit {
		return nil, false, nil
	}
	if s.pos >= len(s.buf) {
		return nil, false, nil
	}
	item := s.buf[s.pos]
	s.pos++
	if s.cfg.SkipShorts && item.DurationS > 0 && item.DurationS < float64(s.cfg.ShortsThresholdSeconds) {
		return s.Next(ctx)
	}
	return &VideoDescriptor{
		VideoID: item.VideoID, Title: item.Title, Description: item.Description,
		URL: item.URL, PublishedAt: item.PublishedAt, DurationS: item.DurationS,
	}, true, nil
}

func (s *apiSource) fetch(ctx context.Context) error {
	url := strings.TrimRight(s.cfg.APIBaseURL, "/") + "/videos"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build listing request: %w", err)
	}
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("listing request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("listing request returned status %d", resp.StatusCode)
	}

	var items []apiVideoListing
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return fmt.Errorf("decode listing response: %w", err)
	}
	if s.cfg.NewestFirst {
		sort.Slice(items, func(i, j int) bool { return items[i].PublishedAt.After(items[j].PublishedAt) })
	}
	if s.cfg.DaysBack > 0 {
		cutoff := time.Now().AddDate(0, 0, -s.cfg.DaysBack)
		filtered := items[:0]
		for _, it := range items {
			if it.PublishedAt.After(cutoff) {
				filtered = append(filtered, it)
			}
		}
		items = filtered
	}
	s.buf = items
	return nil
}

// --- channel RSS/Atom feed source ---

type feedSource struct {
	cfg     Config
	items   []*gofeed.Item
	pos     int
	fetched bool
}

func newFeedSource(cfg Config) *feedSource {
	return &feedSource{cfg: cfg}
}

func (s *feedSource) Next(ctx context.Context) (*VideoDescriptor, bool, error) {
	if !s.fetched {
		if err := s.fetch(ctx); err != nil {
			return nil, false, services.Wrap(services.ErrExternalTool, "videosource", "fetch_feed", "channel feed unavailable", err)
		}
		s.fetched = true
	}
	if s.cfg.Limit > 0 && s.pos >= s.cfg.Limit {
		return nil, false, nil
	}
	if s.pos >= len(s.items) {
		return nil, false, nil
	}
	item := s.items[s.pos]
	s.pos++
	return feedItemToDescriptor(item), true, nil
}

func (s *feedSource) fetch(ctx context.Context) error {
	parser := gofeed.NewParser()
	feed, err := parser.ParseURLWithContext(s.cfg.ChannelFeedURL, ctx)
	if err != nil {
		return fmt.Errorf("parse channel feed: %w", err)
	}
	items := feed.Items
	if s.cfg.NewestFirst {
		sort.Slice(items, func(i, j int) bool {
			return publishedTime(items[i]).After(publishedTime(items[j]))
		})
	}
	if s.cfg.DaysBack > 0 {
		cutoff := time.Now().AddDate(0, 0, -s.cfg.DaysBack)
		filtered := items[:0]
		for _, it := range items {
			if publishedTime(it).After(cutoff) {
				filtered = append(filtered, it)
			}
		}
		items = filtered
	}
	s.items = items
	return nil
}

func publishedTime(item *gofeed.Item) time.Time {
	if item.PublishedParsed != nil {
		return *item.PublishedParsed
	}
	return time.Time{}
}

func feedItemToDescriptor(item *gofeed.Item) *VideoDescriptor {
	return &VideoDescriptor{
		VideoID:     videoIDFromURL(item.Link),
		Title:       item.Title,
		Description: item.Description,
		URL:         item.Link,
		PublishedAt: publishedTime(item),
	}
}

func videoIDFromURL(link string) string {
	if idx := strings.LastIndex(link, "v="); idx >= 0 {
		return link[idx+2:]
	}
	if idx := strings.LastIndex(link, "/"); idx >= 0 {
		return link[idx+1:]
	}
	return link
}

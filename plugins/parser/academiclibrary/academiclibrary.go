// Package academiclibrary implements the Parser and SourceIndex
// collaborators for an academic legal library exposing a paginated JSON
// search API and per-record JSON documents.
//
// Uses stdlib encoding/json rather than a third-party JSON library: every
// other JSON-RPC envelope and config path in this codebase uses
// encoding/json directly, so there is no ecosystem convention to depart
// from here.
package academiclibrary

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/archivant/lexfetch/internal/core"
	"github.com/archivant/lexfetch/pkg/plugin"
)

const Name = "academic-library"

func init() {
	plugin.RegisterSourceIndex(Name, func() plugin.SourceIndex { return New() })
	plugin.RegisterParser(Name, func() plugin.Parser { return New() })
}

// searchResponse mirrors the library's JSON search endpoint shape.
type searchResponse struct {
	Results []struct {
		ID    string `json:"id"`
		URL   string `json:"url"`
		Title string `json:"title"`
	} `json:"results"`
	NextOffset *int `json:"next_offset"`
}

// record mirrors the per-document JSON shape returned for a single record.
type record struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Published string `json:"published_date"` // RFC3339
	Category  string `json:"category"`
	Sections  []struct {
		Heading string `json:"heading"`
		Body    string `json:"body"`
	} `json:"sections"`
}

// Source implements both Parser and SourceIndex: the library's search and
// record endpoints share one client and one JSON convention.
type Source struct {
	httpClient plugin.HTTPClient
	baseURL    string
	pageSize   int
}

func New() *Source { return &Source{pageSize: 50} }

var (
	_ plugin.SourceIndex = (*Source)(nil)
	_ plugin.Parser      = (*Source)(nil)
)

func (s *Source) Name() string { return Name }

type academicLibraryConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

func (s *Source) Init(cfg map[string]any) error {
	var c academicLibraryConfig
	if err := mapstructure.Decode(cfg, &c); err != nil {
		return fmt.Errorf("academic-library: decode config: %w", err)
	}
	s.baseURL = c.BaseURL
	if s.baseURL == "" {
		s.baseURL = "https://api.legal-library.example.edu/v1"
	}
	if hc, ok := cfg["http_client"].(plugin.HTTPClient); ok {
		s.httpClient = hc
	}
	return nil
}

func (s *Source) FetchPage(ctx context.Context, q plugin.IndexQuery) (plugin.IndexPage, error) {
	if s.httpClient == nil {
		return plugin.IndexPage{}, fmt.Errorf("academic-library: no http client configured")
	}
	offset := 0
	if q.Cursor != "" {
		o, err := strconv.Atoi(q.Cursor)
		if err != nil {
			return plugin.IndexPage{}, fmt.Errorf("academic-library: malformed cursor %q: %w", q.Cursor, err)
		}
		offset = o
	}

	url := fmt.Sprintf("%s/search?offset=%d&limit=%d", s.baseURL, offset, s.pageSize)
	if q.SearchQuery != "" {
		url += "&q=" + q.SearchQuery
	}
	if q.Category != "" {
		url += "&category=" + q.Category
	}

	resp, err := s.httpClient.Get(ctx, url, map[string]string{"Accept": "application/json"})
	if err != nil {
		return plugin.IndexPage{}, err
	}
	if resp.Status >= 400 {
		return plugin.IndexPage{}, fmt.Errorf("academic-library: search fetch %s: status %d", url, resp.Status)
	}

	var sr searchResponse
	if err := json.Unmarshal(resp.Body, &sr); err != nil {
		return plugin.IndexPage{}, fmt.Errorf("academic-library: malformed search response: %w", err)
	}

	page := plugin.IndexPage{References: make([]core.Reference, 0, len(sr.Results))}
	for _, r := range sr.Results {
		page.References = append(page.References, core.Reference{ExternalID: r.ID, URL: r.URL, Title: r.Title})
	}
	if sr.NextOffset != nil {
		page.HasMore = true
		page.NextCursor = strconv.Itoa(*sr.NextOffset)
	}
	return page, nil
}

func (s *Source) Parse(ref core.Reference, body []byte, contentType string) plugin.ParseResult {
	var rec record
	if err := json.Unmarshal(body, &rec); err != nil {
		return plugin.ParseResult{Errors: []error{fmt.Errorf("academic-library: %s: malformed record json: %w", ref.ExternalID, err)}}
	}
	if rec.ID == "" {
		return plugin.ParseResult{Errors: []error{fmt.Errorf("academic-library: %s: record missing id", ref.ExternalID)}}
	}

	var pub *time.Time
	if rec.Published != "" {
		if t, err := time.Parse(time.RFC3339, rec.Published); err == nil {
			pub = &t
		}
	}

	articles := make([]core.Article, 0, len(rec.Sections))
	for i, sec := range rec.Sections {
		articles = append(articles, core.Article{Number: strconv.Itoa(i + 1), Title: sec.Heading, Text: sec.Body})
	}

	return plugin.ParseResult{
		Document: &core.Document{
			SourceID:        ref.SourceID,
			ExternalID:      rec.ID,
			Title:           rec.Title,
			PublicationDate: pub,
			Category:        rec.Category,
			Articles:        articles,
		},
	}
}

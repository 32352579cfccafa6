// Package arbitration implements the Parser and SourceIndex collaborators
// for an international arbitration tribunal that publishes its docket as an
// Atom feed and each award as an XML case record.
//
// Uses stdlib encoding/xml: no feed-reader or XML convenience library fits
// this narrow a parsing job, so this is one of the few collaborators
// implemented directly on the standard library.
package arbitration

import (
	"context"
	"encoding/xml"
	"fmt"
	"strconv"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/archivant/lexfetch/internal/core"
	"github.com/archivant/lexfetch/pkg/plugin"
)

const Name = "arbitration-tribunal"

func init() {
	plugin.RegisterSourceIndex(Name, func() plugin.SourceIndex { return New() })
	plugin.RegisterParser(Name, func() plugin.Parser { return New() })
}

// atomFeed mirrors the docket's Atom 1.0 feed shape.
type atomFeed struct {
	XMLName xml.Name `xml:"feed"`
	Entries []struct {
		ID    string `xml:"id"`
		Title string `xml:"title"`
		Link  struct {
			Href string `xml:"href,attr"`
		} `xml:"link"`
	} `xml:"entry"`
	NextLink struct {
		Rel  string `xml:"rel,attr"`
		Href string `xml:"href,attr"`
	} `xml:"link"`
}

// award mirrors the per-case XML award record.
type award struct {
	XMLName xml.Name `xml:"award"`
	CaseID  string   `xml:"caseId,attr"`
	Title   string   `xml:"title"`
	Decided string   `xml:"decidedOn"` // RFC3339
	Status  string   `xml:"status"`
	Holdings []struct {
		Number string `xml:"number,attr"`
		Heading string `xml:"heading"`
		Text    string `xml:",chardata"`
	} `xml:"holdings>holding"`
}

// Source implements both Parser and SourceIndex for the tribunal's feed.
type Source struct {
	httpClient plugin.HTTPClient
	feedURL    string
}

func New() *Source { return &Source{} }

var (
	_ plugin.SourceIndex = (*Source)(nil)
	_ plugin.Parser      = (*Source)(nil)
)

func (s *Source) Name() string { return Name }

type arbitrationConfig struct {
	FeedURL string `mapstructure:"feed_url"`
}

func (s *Source) Init(cfg map[string]any) error {
	var c arbitrationConfig
	if err := mapstructure.Decode(cfg, &c); err != nil {
		return fmt.Errorf("arbitration-tribunal: decode config: %w", err)
	}
	s.feedURL = c.FeedURL
	if s.feedURL == "" {
		s.feedURL = "https://docket.example-tribunal.org/atom"
	}
	if hc, ok := cfg["http_client"].(plugin.HTTPClient); ok {
		s.httpClient = hc
	}
	return nil
}

func (s *Source) FetchPage(ctx context.Context, q plugin.IndexQuery) (plugin.IndexPage, error) {
	if s.httpClient == nil {
		return plugin.IndexPage{}, fmt.Errorf("arbitration-tribunal: no http client configured")
	}
	url := s.feedURL
	if q.Cursor != "" {
		url = q.Cursor // the feed hands back an absolute next-page link
	}

	resp, err := s.httpClient.Get(ctx, url, map[string]string{"Accept": "application/atom+xml"})
	if err != nil {
		return plugin.IndexPage{}, err
	}
	if resp.Status >= 400 {
		return plugin.IndexPage{}, fmt.Errorf("arbitration-tribunal: feed fetch %s: status %d", url, resp.Status)
	}

	var feed atomFeed
	if err := xml.Unmarshal(resp.Body, &feed); err != nil {
		return plugin.IndexPage{}, fmt.Errorf("arbitration-tribunal: malformed atom feed: %w", err)
	}

	page := plugin.IndexPage{References: make([]core.Reference, 0, len(feed.Entries))}
	for _, e := range feed.Entries {
		page.References = append(page.References, core.Reference{ExternalID: e.ID, URL: e.Link.Href, Title: e.Title})
	}
	if feed.NextLink.Rel == "next" && feed.NextLink.Href != "" {
		page.HasMore = true
		page.NextCursor = feed.NextLink.Href
	}
	return page, nil
}

func (s *Source) Parse(ref core.Reference, body []byte, contentType string) plugin.ParseResult {
	var a award
	if err := xml.Unmarshal(body, &a); err != nil {
		return plugin.ParseResult{Errors: []error{fmt.Errorf("arbitration-tribunal: %s: malformed award xml: %w", ref.ExternalID, err)}}
	}
	if a.CaseID == "" {
		return plugin.ParseResult{Errors: []error{fmt.Errorf("arbitration-tribunal: %s: award missing case id", ref.ExternalID)}}
	}

	var decided *time.Time
	if a.Decided != "" {
		if t, err := time.Parse(time.RFC3339, a.Decided); err == nil {
			decided = &t
		}
	}

	articles := make([]core.Article, 0, len(a.Holdings))
	for i, h := range a.Holdings {
		num := h.Number
		if num == "" {
			num = strconv.Itoa(i + 1)
		}
		articles = append(articles, core.Article{Number: num, Title: h.Heading, Text: h.Text})
	}

	return plugin.ParseResult{
		Document: &core.Document{
			SourceID:        ref.SourceID,
			ExternalID:      a.CaseID,
			Title:           a.Title,
			PublicationDate: decided,
			Status:          a.Status,
			Articles:        articles,
		},
	}
}

// Package gazette implements the Parser and SourceIndex collaborators for a
// national gazette: a date-paginated HTML index of daily issues, each
// linking to per-act PDF publications.
//
// Uses goquery/golang.org/x/net for HTML index walking, and pdfcpu for
// minimal PDF structural validation: a PDF that fails validation or reports
// zero pages is reported as a ParseResult error rather than a panic or a
// silently empty Document.
package gazette

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mitchellh/mapstructure"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/archivant/lexfetch/internal/core"
	"github.com/archivant/lexfetch/pkg/plugin"
)

const Name = "gazette"

func init() {
	plugin.RegisterParser(Name, func() plugin.Parser { return New() })
	plugin.RegisterSourceIndex(Name, func() plugin.SourceIndex { return New() })
}

// Source implements both plugin.Parser and plugin.SourceIndex: the gazette's
// index and document formats are developed together and rarely diverge, so
// one collaborator serves both roles (unlike the supreme-court portal, which
// keeps them separate — see plugins/parser/supremecourt).
type Source struct {
	httpClient plugin.HTTPClient
	indexURL   string
}

// New creates an unconfigured Source; Init supplies the index base URL and
// HTTP collaborator used to fetch index pages.
func New() *Source { return &Source{} }

var (
	_ plugin.Parser      = (*Source)(nil)
	_ plugin.SourceIndex = (*Source)(nil)
)

func (s *Source) Name() string { return Name }

type gazetteConfig struct {
	IndexURL string `mapstructure:"index_url"`
}

func (s *Source) Init(cfg map[string]any) error {
	var c gazetteConfig
	if err := mapstructure.Decode(cfg, &c); err != nil {
		return fmt.Errorf("gazette: decode config: %w", err)
	}
	s.indexURL = c.IndexURL
	if s.indexURL == "" {
		s.indexURL = "https://gazette.example.gov/issues"
	}
	if hc, ok := cfg["http_client"].(plugin.HTTPClient); ok {
		s.httpClient = hc
	}
	return nil
}

// FetchPage requests one day's issue index and extracts one Reference per
// linked act. The gazette paginates by date, not by offset: Cursor carries
// the next date to request in YYYY-MM-DD form, empty on the first call.
func (s *Source) FetchPage(ctx context.Context, q plugin.IndexQuery) (plugin.IndexPage, error) {
	if s.httpClient == nil {
		return plugin.IndexPage{}, fmt.Errorf("gazette: no http client configured")
	}
	url := s.indexURL
	date := q.Date
	if q.Cursor != "" {
		url = fmt.Sprintf("%s?date=%s", s.indexURL, q.Cursor)
	} else if !date.IsZero() {
		url = fmt.Sprintf("%s?date=%s", s.indexURL, date.Format("2006-01-02"))
	}

	resp, err := s.httpClient.Get(ctx, url, nil)
	if err != nil {
		return plugin.IndexPage{}, err
	}
	if resp.Status >= 400 {
		return plugin.IndexPage{}, fmt.Errorf("gazette: index fetch %s: status %d", url, resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(resp.Body)))
	if err != nil {
		return plugin.IndexPage{}, fmt.Errorf("gazette: index html unparseable: %w", err)
	}

	var page plugin.IndexPage
	doc.Find("a.act-link").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || href == "" {
			return
		}
		id, ok := sel.Attr("data-act-id")
		if !ok || id == "" {
			id = href
		}
		page.References = append(page.References, core.Reference{
			ExternalID: id,
			URL:        href,
			Title:      strings.TrimSpace(sel.Text()),
		})
	})

	if next, ok := doc.Find("link.next-issue").Attr("data-date"); ok && next != "" {
		page.HasMore = true
		page.NextCursor = next
	}
	return page, nil
}

// Parse validates the fetched PDF and produces a minimal Document. Full text
// extraction is out of scope — the gazette's Document carries only what the
// index already told us; the page count is checked to be non-zero but is
// not stored.
func (s *Source) Parse(ref core.Reference, body []byte, contentType string) plugin.ParseResult {
	if !strings.Contains(contentType, "pdf") && !strings.HasPrefix(string(body), "%PDF") {
		return plugin.ParseResult{Errors: []error{fmt.Errorf("gazette: %s: expected PDF, got content-type %q", ref.ExternalID, contentType)}}
	}

	tmp, err := os.CreateTemp("", "lexfetch-gazette-*.pdf")
	if err != nil {
		return plugin.ParseResult{Errors: []error{fmt.Errorf("gazette: %s: temp file: %w", ref.ExternalID, err)}}
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		return plugin.ParseResult{Errors: []error{fmt.Errorf("gazette: %s: temp write: %w", ref.ExternalID, err)}}
	}
	tmp.Close()

	if err := api.ValidateFile(tmp.Name(), nil); err != nil {
		return plugin.ParseResult{Errors: []error{fmt.Errorf("gazette: %s: invalid or scanned-only PDF: %w", ref.ExternalID, err)}}
	}
	pages, err := api.PageCountFile(tmp.Name())
	if err != nil || pages == 0 {
		return plugin.ParseResult{Errors: []error{fmt.Errorf("gazette: %s: no extractable pages (scanned-only PDF)", ref.ExternalID)}}
	}

	return plugin.ParseResult{
		Document: &core.Document{
			SourceID:   ref.SourceID,
			ExternalID: ref.ExternalID,
			Title:      ref.Title,
			Category:   "act",
		},
	}
}

// Package supremecourt implements the Parser and SourceIndex collaborators
// for a supreme-court legislation portal, whose HTML structure is known to
// churn. Index and Parser are deliberately two distinct types here, unlike
// plugins/parser/gazette's combined Source: the portal's article markup
// changes far more often than its index pagination, so only Parser needs to
// be swapped out when it breaks — parsers and source indexes sit in separate
// registries (both looked up under the source's configured parser name), so a
// replacement parser can ship without touching Index or the runtime.
package supremecourt

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mitchellh/mapstructure"

	"github.com/archivant/lexfetch/internal/core"
	"github.com/archivant/lexfetch/pkg/plugin"
)

const Name = "supreme-court"

func init() {
	plugin.RegisterSourceIndex(Name, func() plugin.SourceIndex { return NewIndex() })
	plugin.RegisterParser(Name, func() plugin.Parser { return NewParser() })
}

// Index paginates the portal's search-by-category listing, offset-based.
type Index struct {
	httpClient plugin.HTTPClient
	baseURL    string
	pageSize   int
}

func NewIndex() *Index { return &Index{pageSize: 25} }

var _ plugin.SourceIndex = (*Index)(nil)

func (i *Index) Name() string { return Name }

type supremeCourtConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

func (i *Index) Init(cfg map[string]any) error {
	var c supremeCourtConfig
	if err := mapstructure.Decode(cfg, &c); err != nil {
		return fmt.Errorf("supreme-court: decode config: %w", err)
	}
	i.baseURL = c.BaseURL
	if i.baseURL == "" {
		i.baseURL = "https://portal.example-court.gov/decisions"
	}
	if hc, ok := cfg["http_client"].(plugin.HTTPClient); ok {
		i.httpClient = hc
	}
	return nil
}

func (i *Index) FetchPage(ctx context.Context, q plugin.IndexQuery) (plugin.IndexPage, error) {
	if i.httpClient == nil {
		return plugin.IndexPage{}, fmt.Errorf("supreme-court: no http client configured")
	}
	offset := 0
	if q.Cursor != "" {
		o, err := strconv.Atoi(q.Cursor)
		if err != nil {
			return plugin.IndexPage{}, fmt.Errorf("supreme-court: malformed cursor %q: %w", q.Cursor, err)
		}
		offset = o
	}

	url := fmt.Sprintf("%s?offset=%d&limit=%d", i.baseURL, offset, i.pageSize)
	if q.Category != "" {
		url += "&category=" + q.Category
	}

	resp, err := i.httpClient.Get(ctx, url, nil)
	if err != nil {
		return plugin.IndexPage{}, err
	}
	if resp.Status >= 400 {
		return plugin.IndexPage{}, fmt.Errorf("supreme-court: index fetch %s: status %d", url, resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(resp.Body)))
	if err != nil {
		return plugin.IndexPage{}, fmt.Errorf("supreme-court: index html unparseable: %w", err)
	}

	var page plugin.IndexPage
	doc.Find("[data-decision-id]").Each(func(_ int, sel *goquery.Selection) {
		id, _ := sel.Attr("data-decision-id")
		href, _ := sel.Attr("href")
		if id == "" || href == "" {
			return
		}
		page.References = append(page.References, core.Reference{
			ExternalID: id,
			URL:        href,
			Title:      strings.TrimSpace(sel.Text()),
		})
	})
	if len(page.References) == i.pageSize {
		page.HasMore = true
		page.NextCursor = strconv.Itoa(offset + i.pageSize)
	}
	return page, nil
}

// Parser extracts a decision's articles from the portal's per-decision HTML
// page. This is the collaborator most likely to need a hot replacement when
// the portal reworks its markup, per the churn-resilience open question.
type Parser struct{}

func NewParser() *Parser { return &Parser{} }

var _ plugin.Parser = (*Parser)(nil)

func (p *Parser) Name() string             { return Name }
func (p *Parser) Init(map[string]any) error { return nil }

func (p *Parser) Parse(ref core.Reference, body []byte, contentType string) plugin.ParseResult {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return plugin.ParseResult{Errors: []error{fmt.Errorf("supreme-court: %s: unparseable html: %w", ref.ExternalID, err)}}
	}

	title := strings.TrimSpace(doc.Find("h1.decision-title").First().Text())
	if title == "" {
		title = ref.Title
	}
	status := strings.TrimSpace(doc.Find(".decision-status").First().Text())

	var articles []core.Article
	doc.Find(".decision-article").Each(func(i int, sel *goquery.Selection) {
		articles = append(articles, core.Article{
			Number: strconv.Itoa(i + 1),
			Title:  strings.TrimSpace(sel.Find(".article-heading").First().Text()),
			Text:   strings.TrimSpace(sel.Find(".article-body").First().Text()),
		})
	})

	if title == "" && len(articles) == 0 {
		return plugin.ParseResult{Errors: []error{fmt.Errorf("supreme-court: %s: no recognizable decision markup found", ref.ExternalID)}}
	}

	var extraRefs []core.Reference
	doc.Find("a.cites-decision").Each(func(_ int, sel *goquery.Selection) {
		if href, ok := sel.Attr("href"); ok && href != "" {
			if id, ok := sel.Attr("data-decision-id"); ok && id != "" {
				extraRefs = append(extraRefs, core.Reference{ExternalID: id, URL: href})
			}
		}
	})

	return plugin.ParseResult{
		Document: &core.Document{
			SourceID:   ref.SourceID,
			ExternalID: ref.ExternalID,
			Title:      title,
			Status:     status,
			Articles:   articles,
		},
		ExtraRefs: extraRefs,
	}
}

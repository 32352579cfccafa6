package plugin

import (
	"context"
	"time"

	"github.com/archivant/lexfetch/internal/core"
)

// IndexQuery parameterizes one page request against a source's index,
// unifying the today/date/range/category/search discovery variants into a
// single adapter call. Cursor is empty on the first call; subsequent calls
// pass back the previous page's NextCursor until the adapter reports
// HasMore=false.
type IndexQuery struct {
	Mode core.DiscoveryMode

	Date      time.Time
	DateStart time.Time
	DateEnd   time.Time

	Category string
	Scope    string
	Status   string

	SearchQuery string
	Filters     map[string]string

	Cursor string
}

// IndexPage is one page of discovered references.
type IndexPage struct {
	References []core.Reference
	NextCursor string
	HasMore    bool
}

// SourceIndex is the per-source pagination collaborator the Discovery actor
// drives.
type SourceIndex interface {
	Plugin
	FetchPage(ctx context.Context, q IndexQuery) (IndexPage, error)
}

package httpserver

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/claudiug/kaeruera/internal/domain/apperrors"
)

// parsePage reads the 1-indexed page parameter. Anything missing,
// non-numeric, zero or negative clamps to page 1.
func parsePage(req *http.Request) int {
	page, _ := strconv.Atoi(req.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	return page
}

// pageLinks builds prev/next navigation targets for the current request.
// The query string is parsed into a parameter map, the page entry updated
// and the result re-serialized, so a page parameter anywhere in the query
// string is rewritten correctly.
func pageLinks(path string, query url.Values, pg *apperrors.Page) (prev, next string) {
	if pg.HasPrev {
		prev = pageLink(path, query, pg.Page-1)
	}
	if pg.HasNext {
		next = pageLink(path, query, pg.Page+1)
	}
	return prev, next
}

func pageLink(path string, query url.Values, page int) string {
	q := url.Values{}
	for k, v := range query {
		q[k] = v
	}
	q.Set("page", strconv.Itoa(page))
	return path + "?" + q.Encode()
}

package batch

import (
	"fmt"
	"strconv"
	"strings"

	"folio/internal/services"
)

// PageRange is an inclusive page selection. End == 0 means "through the last
// page of the document".
type PageRange struct {
	Start int
	End   int
}

// FullRange selects every page.
var FullRange = PageRange{Start: 1}

// ParsePageRange parses expressions like "1-10", "5", or "3-".
func ParsePageRange(expr string) (PageRange, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return FullRange, nil
	}

	if !strings.Contains(expr, "-") {
		page, err := strconv.Atoi(expr)
		if err != nil || page < 1 {
			return PageRange{}, fmt.Errorf("invalid page %q", expr)
		}
		return PageRange{Start: page, End: page}, nil
	}

	parts := strings.SplitN(expr, "-", 2)
	start, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || start < 1 {
		return PageRange{}, fmt.Errorf("invalid page range %q", expr)
	}
	result := PageRange{Start: start}
	if tail := strings.TrimSpace(parts[1]); tail != "" {
		end, err := strconv.Atoi(tail)
		if err != nil || end < start {
			return PageRange{}, fmt.Errorf("invalid page range %q", expr)
		}
		result.End = end
	}
	return result, nil
}

// Resolve expands the range against a document's page count. Requesting a
// page beyond the document is a document read error, matching the
// rasterizer's contract.
func (r PageRange) Resolve(pageCount int) ([]int, error) {
	start := r.Start
	if start < 1 {
		start = 1
	}
	end := r.End
	if end == 0 {
		end = pageCount
	}
	if start > pageCount || end > pageCount {
		return nil, services.Wrap(services.ErrDocumentRead, "batch", "page range",
			fmt.Sprintf("requested pages %d-%d but document has %d", start, end, pageCount), nil)
	}
	pages := make([]int, 0, end-start+1)
	for page := start; page <= end; page++ {
		pages = append(pages, page)
	}
	return pages, nil
}

// String renders the range for logs and progress output.
func (r PageRange) String() string {
	switch {
	case r.Start <= 1 && r.End == 0:
		return "all"
	case r.End == 0:
		return fmt.Sprintf("%d-", r.Start)
	case r.Start == r.End:
		return strconv.Itoa(r.Start)
	default:
		return fmt.Sprintf("%d-%d", r.Start, r.End)
	}
}

package shared

const (
	// DefaultPerPage applies when a listing request omits per_page.
	DefaultPerPage = 20
	// MaxPerPage caps per_page on every listing endpoint.
	MaxPerPage = 100
)

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// NewPagination clamps page and perPage into range and derives the page count
// from total.
func NewPagination(page, perPage, total int) Pagination {
	perPage = min(max(perPage, 0), MaxPerPage)
	if perPage == 0 {
		perPage = DefaultPerPage
	}
	page = max(page, 1)
	total = max(total, 0)
	return Pagination{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: (total + perPage - 1) / perPage,
	}
}

// Offset is the row offset of the current page.
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// HasNext reports whether a page follows the current one.
func (p Pagination) HasNext() bool {
	return p.Page < p.TotalPages
}

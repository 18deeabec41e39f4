// Package paginate derives the visible table window over a columnar response.
package paginate

import "errors"

// DefaultRowsPerPage is the initial page size.
const DefaultRowsPerPage = 10

// maxPageButtons is the most page numbers offered at once.
const maxPageButtons = 5

// RowsPerPageOptions are the accepted page sizes.
var RowsPerPageOptions = []int{10, 20, 50}

// ErrInvalidRowsPerPage is returned for a page size outside RowsPerPageOptions.
var ErrInvalidRowsPerPage = errors.New("rows per page must be one of 10, 20, 50")

// Window is the slice of rows [StartIndex, EndIndex) shown on the current page.
type Window struct {
	StartIndex  int   `json:"startIndex"`
	EndIndex    int   `json:"endIndex"`
	TotalPages  int   `json:"totalPages"`
	PageNumbers []int `json:"pageNumbers"`
}

// TotalPages returns ceil(totalRows/rowsPerPage), at least 1.
func TotalPages(totalRows, rowsPerPage int) int {
	if rowsPerPage <= 0 || totalRows <= 0 {
		return 1
	}
	return (totalRows + rowsPerPage - 1) / rowsPerPage
}

// Derive computes the window for currentPage. currentPage is clamped into
// [1, TotalPages] so the indices always lie within [0, totalRows].
func Derive(totalRows, currentPage, rowsPerPage int) Window {
	if rowsPerPage <= 0 {
		rowsPerPage = DefaultRowsPerPage
	}
	if totalRows < 0 {
		totalRows = 0
	}
	totalPages := TotalPages(totalRows, rowsPerPage)
	currentPage = clamp(currentPage, 1, totalPages)

	start := (currentPage - 1) * rowsPerPage
	end := min(start+rowsPerPage, totalRows)
	return Window{
		StartIndex:  start,
		EndIndex:    end,
		TotalPages:  totalPages,
		PageNumbers: pageNumbers(currentPage, totalPages),
	}
}

// pageNumbers returns at most five page numbers around currentPage.
func pageNumbers(currentPage, totalPages int) []int {
	var first int
	switch {
	case totalPages <= maxPageButtons, currentPage <= 3:
		first = 1
	case currentPage >= totalPages-2:
		first = totalPages - maxPageButtons + 1
	default:
		first = currentPage - 2
	}
	n := min(totalPages, maxPageButtons)
	pages := make([]int, n)
	for i := range pages {
		pages[i] = first + i
	}
	return pages
}

// State is the table pagination of one dashboard. Not safe for concurrent
// use; the owning dashboard serializes access.
type State struct {
	CurrentPage int `json:"currentPage"`
	RowsPerPage int `json:"rowsPerPage"`
}

// NewState returns page 1 with DefaultRowsPerPage.
func NewState() State {
	return State{CurrentPage: 1, RowsPerPage: DefaultRowsPerPage}
}

// Window derives the window for totalRows.
func (s State) Window(totalRows int) Window {
	return Derive(totalRows, s.CurrentPage, s.RowsPerPage)
}

// GoToPage moves to p clamped into [1, TotalPages(totalRows)].
func (s *State) GoToPage(p, totalRows int) {
	s.CurrentPage = clamp(p, 1, TotalPages(totalRows, s.RowsPerPage))
}

// SetRowsPerPage changes the page size and returns to page 1.
func (s *State) SetRowsPerPage(n int) error {
	if !ValidRowsPerPage(n) {
		return ErrInvalidRowsPerPage
	}
	s.RowsPerPage = n
	s.CurrentPage = 1
	return nil
}

// Reset returns to page 1, keeping the page size.
func (s *State) Reset() {
	s.CurrentPage = 1
}

// ValidRowsPerPage reports whether n is one of RowsPerPageOptions.
func ValidRowsPerPage(n int) bool {
	for _, opt := range RowsPerPageOptions {
		if n == opt {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

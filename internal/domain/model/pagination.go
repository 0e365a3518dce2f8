package model

// DefaultPageSize applies when the caller passes a non-positive page size.
const DefaultPageSize = 20

// PaginatedResult is one 1-indexed page of an ordered collection.
type PaginatedResult[T any] struct {
	Items      []T
	Total      int
	Page       int
	PageSize   int
	TotalPages int
}

// NormalizePage defaults non-positive paging parameters. Positive values are
// used as given, with no upper bound on pageSize.
func NormalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	return page, pageSize
}

// TotalPages returns ceil(total/pageSize).
func TotalPages(total, pageSize int) int {
	if pageSize <= 0 || total <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}

// Offset returns the number of items preceding page.
func Offset(page, pageSize int) int {
	return (page - 1) * pageSize
}

// NewPage builds a PaginatedResult from one page of items and the total.
func NewPage[T any](items []T, total, page, pageSize int) PaginatedResult[T] {
	if items == nil {
		items = []T{}
	}
	return PaginatedResult[T]{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: TotalPages(total, pageSize),
	}
}

// Paginate slices an already ordered collection in memory. A page past the
// end yields no items but keeps the totals.
func Paginate[T any](all []T, page, pageSize int) PaginatedResult[T] {
	page, pageSize = NormalizePage(page, pageSize)
	total := len(all)

	start := Offset(page, pageSize)
	if start >= total {
		return NewPage[T](nil, total, page, pageSize)
	}
	end := min(start+pageSize, total)

	items := make([]T, end-start)
	copy(items, all[start:end])
	return NewPage(items, total, page, pageSize)
}

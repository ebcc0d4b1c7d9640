package services

const (
	defaultPageSize = 50
	maxPageSize     = 1000

	minPasswordLen = 6
)

// normalizePage clamps pagination inputs and returns the offset to hand
// the repo layer.
func normalizePage(page, pageSize int) (int, int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize, (page - 1) * pageSize
}

package shared

// Pagination contains metadata for offset based listings.
type Pagination struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"hasMore"`
}

// NewPagination computes pagination metadata. A non-positive limit falls
// back to defaultLimit.
func NewPagination(limit, offset, total, defaultLimit int) Pagination {
	if limit <= 0 {
		limit = defaultLimit
	}
	if offset < 0 {
		offset = 0
	}
	return Pagination{Total: total, Limit: limit, Offset: offset, HasMore: offset+limit < total}
}

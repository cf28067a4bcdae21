package scans

// PaginatedResult is one page of scans plus paging metadata.
type PaginatedResult struct {
	Data       []*Scan `json:"data"`
	Page       int     `json:"page"`
	PageSize   int     `json:"page_size"`
	Total      int64   `json:"total_items"`
	TotalPages int     `json:"total_pages"`
}

// NewPage fills TotalPages from total and pageSize.
func NewPage(data []*Scan, page, pageSize int, total int64) PaginatedResult {
	pages := 0
	if pageSize > 0 {
		pages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}
	if data == nil {
		data = []*Scan{}
	}
	return PaginatedResult{Data: data, Page: page, PageSize: pageSize, Total: total, TotalPages: pages}
}

package pagination

// Pagination carries offset paging parameters for history queries.
type Pagination struct {
	Limit  int `form:"limit,default=50" validate:"gte=1,lte=250"`
	Offset int `form:"offset" validate:"gte=0"`
}

type PageInfo struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

// Normalize clamps paging parameters to sane bounds.
func (p Pagination) Normalize(defaultLimit int) Pagination {
	if p.Limit <= 0 {
		p.Limit = defaultLimit
	}
	if p.Limit > 250 {
		p.Limit = 250
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// BuildPageInfo derives a PageInfo from a page fetched with limit+1 rows.
// Callers pass the raw row count before truncating to the page size.
func BuildPageInfo(fetched int, p Pagination) PageInfo {
	return PageInfo{
		Limit:   p.Limit,
		Offset:  p.Offset,
		HasMore: fetched > p.Limit,
	}
}

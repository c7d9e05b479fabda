package service

import "math"

const (
	DefaultPageSize        = 20
	DefaultMessagePageSize = 50
	MaxPageSize            = 100

	// MaxPage 保证 Page*Size 不会溢出 int。
	MaxPage = math.MaxInt / MaxPageSize
)

// PageRequest 使用从 0 开始的页码。
type PageRequest struct {
	Page int
	Size int
}

// NewPageRequest 修正越界参数：负页码归零，页码超过 MaxPage 时截断，
// size 非正时取默认值，超过上限时截断。
func NewPageRequest(page, size, defaultSize int) PageRequest {
	if page < 0 {
		page = 0
	}
	if page > MaxPage {
		page = MaxPage
	}
	if size <= 0 {
		size = defaultSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return PageRequest{Page: page, Size: size}
}

func (p PageRequest) offset() int { return p.Page * p.Size }

type Page[T any] struct {
	Content       []T   `json:"content"`
	PageNumber    int   `json:"pageNumber"`
	PageSize      int   `json:"pageSize"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int   `json:"totalPages"`
	HasNext       bool  `json:"hasNext"`
	HasPrevious   bool  `json:"hasPrevious"`
}

func newPage[T any](content []T, req PageRequest, total int64) Page[T] {
	if content == nil {
		content = []T{}
	}
	pages := 0
	if req.Size > 0 {
		pages = int((total + int64(req.Size) - 1) / int64(req.Size))
	}
	return Page[T]{
		Content:       content,
		PageNumber:    req.Page,
		PageSize:      req.Size,
		TotalElements: total,
		TotalPages:    pages,
		HasNext:       req.Page+1 < pages,
		HasPrevious:   req.Page > 0,
	}
}

package dal

import "github.com/gofiber/fiber/v2"

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// Pagination 分页参数
type Pagination struct {
	Page     int `query:"page" json:"page"`
	PageSize int `query:"pageSize" json:"pageSize"`
}

// Normalize 修正非法的页码与每页数量
func (p *Pagination) Normalize() {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = defaultPageSize
	}
	if p.PageSize > maxPageSize {
		p.PageSize = maxPageSize
	}
}

// Offset 偏移量
func (p *Pagination) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// PaginationFrom 从查询参数读取分页
func PaginationFrom(c *fiber.Ctx) *Pagination {
	p := &Pagination{
		Page:     c.QueryInt("page", 1),
		PageSize: c.QueryInt("pageSize", defaultPageSize),
	}
	p.Normalize()
	return p
}

// PagedResult 分页结果
type PagedResult[T any] struct {
	Items    []T   `json:"items"`
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
}

// NewPagedResult 创建分页结果
func NewPagedResult[T any](items []T, total int64, p *Pagination) *PagedResult[T] {
	if items == nil {
		items = []T{}
	}
	return &PagedResult[T]{Items: items, Total: total, Page: p.Page, PageSize: p.PageSize}
}

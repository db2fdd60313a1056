package audit

import (
	"context"
	"errors"
	"fmt"

	"github.com/ecolix/ecolix/internal/platform/httpx"
	"github.com/ecolix/ecolix/internal/rbac"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
	// MaxExportRows caps a single CSV export.
	MaxExportRows = 10000
)

// ErrExportTooLarge is returned when the filtered timeline exceeds MaxExportRows.
var ErrExportTooLarge = fmt.Errorf("audit: export exceeds %d rows, narrow the date range: %w", MaxExportRows, httpx.ErrValidation)

// Service coordinates audit timeline reads.
type Service struct {
	repo Repository
}

// NewService builds a timeline service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Timeline returns one page of entries visible to actor. Actors that do not
// cross tenants are pinned to their own school.
func (s *Service) Timeline(ctx context.Context, actor rbac.Principal, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, errors.New("audit: repository not configured")
	}
	filters = scopeToActor(actor, filters)
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	rows, err := s.repo.Window(ctx, filters, (page-1)*pageSize, pageSize+1)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// Export returns every matching entry, up to MaxExportRows.
func (s *Service) Export(ctx context.Context, actor rbac.Principal, filters TimelineFilters) ([]TimelineRow, error) {
	if s.repo == nil {
		return nil, errors.New("audit: repository not configured")
	}
	rows, err := s.repo.Window(ctx, scopeToActor(actor, filters), 0, MaxExportRows+1)
	if err != nil {
		return nil, err
	}
	if len(rows) > MaxExportRows {
		return nil, ErrExportTooLarge
	}
	return rows, nil
}

func scopeToActor(actor rbac.Principal, filters TimelineFilters) TimelineFilters {
	if !actor.Role.CrossesWall() {
		filters.TenantID = actor.TenantID
	}
	return filters
}

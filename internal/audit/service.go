package audit

import (
	"context"
	"errors"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
)

// TimelineRepository is the read side of audit_logs.
type TimelineRepository interface {
	TimelineWindow(ctx context.Context, arg WindowParams) ([]TimelineRow, error)
}

// Service coordinates audit timeline reads.
type Service struct {
	repo TimelineRepository
}

// NewService builds a timeline service.
func NewService(repo TimelineRepository) *Service {
	return &Service{repo: repo}
}

// Timeline returns one page of the tenant's audit history.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, errors.New("audit: repository not configured")
	}
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
	params := windowParams(filters)
	params.OffsetRows = int32((page - 1) * pageSize)
	params.LimitRows = int32(pageSize + 1)

	rows, err := s.repo.TimelineWindow(ctx, params)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	if rows == nil {
		rows = []TimelineRow{}
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

// Export returns every matching row up to MaxExportRows.
func (s *Service) Export(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error) {
	if s.repo == nil {
		return nil, errors.New("audit: repository not configured")
	}
	params := windowParams(filters)
	params.LimitRows = MaxExportRows
	return s.repo.TimelineWindow(ctx, params)
}

func windowParams(filters TimelineFilters) WindowParams {
	return WindowParams{
		TenantID: filters.TenantID,
		FromAt:   toPgTime(filters.From),
		ToAt:     toPgTime(filters.To),
		ActorID:  optionalInt(filters.ActorID),
		Entity:   optionalText(filters.Entity),
		EntityID: optionalText(filters.EntityID),
		Action:   optionalText(filters.Action),
	}
}

package audithttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ecolix/ecolix/internal/audit"
	"github.com/ecolix/ecolix/internal/platform/httpx"
	"github.com/ecolix/ecolix/internal/rbac"
)

const (
	defaultDateRange  = 7 * 24 * time.Hour
	maxDateRangeHours = 24 * 90
	dateLayout        = "2006-01-02"
)

// TimelineService defines the business contract for timeline data.
type TimelineService interface {
	Timeline(ctx context.Context, actor rbac.Principal, filters audit.TimelineFilters) (audit.Result, error)
	Export(ctx context.Context, actor rbac.Principal, filters audit.TimelineFilters) ([]audit.TimelineRow, error)
}

// Handler serves the audit timeline.
type Handler struct {
	logger  *slog.Logger
	service TimelineService
	rbac    rbac.Middleware
	now     func() time.Time
}

// NewHandler builds an audit handler.
func NewHandler(logger *slog.Logger, service TimelineService, guard rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: guard, now: time.Now}
}

// WithClock replaces the clock used for default date ranges.
func (h *Handler) WithClock(now func() time.Time) *Handler {
	clone := *h
	clone.now = now
	return &clone
}

type timelineResponse struct {
	From   string              `json:"from"`
	To     string              `json:"to"`
	Rows   []audit.TimelineRow `json:"rows"`
	Paging audit.PagingInfo    `json:"paging"`
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.Timeline(r.Context(), actor, filters)
	if err != nil {
		h.handleServerError(w, "load audit timeline", err)
		return
	}
	rows := result.Rows
	if rows == nil {
		rows = []audit.TimelineRow{}
	}
	httpx.JSON(w, http.StatusOK, timelineResponse{
		From:   filters.From.Format(dateLayout),
		To:     filters.To.Add(-24 * time.Hour).Format(dateLayout),
		Rows:   rows,
		Paging: result.Paging,
	})
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rows, err := h.service.Export(r.Context(), actor, filters)
	if err != nil {
		if errors.Is(err, audit.ErrExportTooLarge) {
			httpx.RespondError(w, err)
			return
		}
		h.handleServerError(w, "export audit timeline", err)
		return
	}
	csvBytes, err := audit.WriteCSV(rows)
	if err != nil {
		h.handleServerError(w, "encode csv", err)
		return
	}
	h.logger.Info("audit export", slog.Int64("actor_id", actor.ID), slog.Int("rows", len(rows)))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=\"audit-timeline.csv\"")
	if _, err := w.Write(csvBytes); err != nil {
		h.logger.Warn("write csv", slog.Any("error", err))
	}
}

// parseFilters reads an inclusive [from, to] day range; To is returned as the
// exclusive upper bound.
func (h *Handler) parseFilters(r *http.Request) (audit.TimelineFilters, error) {
	q := r.URL.Query()
	now := h.now().UTC()
	toTime := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if v := strings.TrimSpace(q.Get("to")); v != "" {
		parsed, err := time.Parse(dateLayout, v)
		if err != nil {
			return audit.TimelineFilters{}, invalid("to")
		}
		toTime = parsed
	}
	fromTime := toTime.Add(-defaultDateRange)
	if v := strings.TrimSpace(q.Get("from")); v != "" {
		parsed, err := time.Parse(dateLayout, v)
		if err != nil {
			return audit.TimelineFilters{}, invalid("from")
		}
		fromTime = parsed
	}
	if fromTime.After(toTime) || toTime.Sub(fromTime) > maxDateRangeHours*time.Hour {
		return audit.TimelineFilters{}, invalid("range")
	}

	filters := audit.TimelineFilters{
		From:   fromTime,
		To:     toTime.Add(24 * time.Hour),
		Entity: strings.TrimSpace(q.Get("entity")),
		Action: strings.TrimSpace(q.Get("action")),
		Page:   1,
	}
	var err error
	if filters.Page, err = positiveInt(q.Get("page"), 1); err != nil {
		return audit.TimelineFilters{}, invalid("page")
	}
	if filters.PageSize, err = positiveInt(q.Get("page_size"), 0); err != nil {
		return audit.TimelineFilters{}, invalid("page_size")
	}
	if v := strings.TrimSpace(q.Get("actor_id")); v != "" {
		if filters.ActorID, err = strconv.ParseInt(v, 10, 64); err != nil || filters.ActorID <= 0 {
			return audit.TimelineFilters{}, invalid("actor_id")
		}
	}
	if v := strings.TrimSpace(q.Get("tenant_id")); v != "" {
		if filters.TenantID, err = strconv.ParseInt(v, 10, 64); err != nil || filters.TenantID <= 0 {
			return audit.TimelineFilters{}, invalid("tenant_id")
		}
	}
	return filters, nil
}

func positiveInt(raw string, fallback int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, errors.New("not a positive integer")
	}
	return v, nil
}

func invalid(field string) error {
	return &validationError{field: field}
}

func actorFrom(w http.ResponseWriter, r *http.Request) (rbac.Principal, bool) {
	guarded, ok := rbac.GuardedFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, rbac.ErrUnauthenticated)
		return rbac.Principal{}, false
	}
	return guarded.Principal, true
}

func (h *Handler) handleServerError(w http.ResponseWriter, message string, err error) {
	h.logger.Error(message, slog.Any("error", err))
	httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
}

type validationError struct {
	field string
}

func (v *validationError) Error() string {
	return "invalid filter " + v.field
}

func (v *validationError) Unwrap() error { return httpx.ErrValidation }

package handler

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"github.com/pesio-ai/be-rp-allocations/internal/platform/errors"
	"github.com/pesio-ai/be-rp-allocations/internal/platform/logger"
	"github.com/pesio-ai/be-rp-allocations/internal/repository"
	"github.com/pesio-ai/be-rp-allocations/internal/service"
)

// HTTPHandler handles HTTP requests
type HTTPHandler struct {
	periods   *service.PeriodService
	planning  *service.PlanningService
	actuals   *service.ActualsService
	approvals *service.ApprovalService
	log       *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(
	periods *service.PeriodService,
	planning *service.PlanningService,
	actuals *service.ActualsService,
	approvals *service.ApprovalService,
	log *logger.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		periods:   periods,
		planning:  planning,
		actuals:   actuals,
		approvals: approvals,
		log:       log.Component("http"),
	}
}

// Router builds the HTTP surface: access logging, request ids and the
// /api/v1 routes behind caller identity.
func (h *HTTPHandler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(hlog.NewHandler(h.log.Logger))
	r.Use(hlog.RequestIDHandler("request_id", "X-Request-ID"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("HTTP request")
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(h.identity)

		api.Route("/periods", func(pr chi.Router) {
			pr.Get("/", h.ListPeriods)
			pr.Post("/", h.OpenPeriod)
			pr.Get("/mutable", h.IsPeriodMutable)
			pr.Get("/{periodID}", h.GetPeriod)
			pr.Post("/{periodID}/lock", h.LockPeriod)
			pr.Post("/{periodID}/unlock", h.UnlockPeriod)
			pr.Get("/{periodID}/demand-lines", h.GetDemandLines)
			pr.Get("/{periodID}/supply-lines", h.GetSupplyLines)
			pr.Get("/{periodID}/actual-lines", h.GetActualLines)
			pr.Get("/{periodID}/insights", h.GetInsights)
		})

		api.Post("/demand-lines", h.CreateDemand)
		api.Put("/demand-lines/{id}", h.UpdateDemand)
		api.Delete("/demand-lines/{id}", h.DeleteDemand)

		api.Put("/supply-lines", h.UpsertSupply)
		api.Delete("/supply-lines/{id}", h.DeleteSupply)

		api.Post("/actual-lines", h.CreateActual)
		api.Put("/actual-lines/{id}", h.UpdateActual)
		api.Delete("/actual-lines/{id}", h.DeleteActual)
		api.Post("/actual-lines/{id}/sign", h.SignActual)
		api.Post("/actual-lines/{id}/proxy-sign", h.ProxySignActual)

		api.Route("/approvals", func(ar chi.Router) {
			ar.Get("/inbox", h.Inbox)
			ar.Get("/by-subject/{subjectID}", h.GetApprovalBySubject)
			ar.Get("/{instanceID}", h.GetApproval)
			ar.Get("/{instanceID}/history", h.GetApprovalHistory)
			ar.Post("/{instanceID}/steps/{stepID}/approve", h.ApproveStep)
			ar.Post("/{instanceID}/steps/{stepID}/reject", h.RejectStep)
			ar.Post("/{instanceID}/steps/{stepID}/proxy-approve", h.ProxyApproveStep)
		})
	})

	return r
}

// identity resolves the caller from gateway headers.
func (h *HTTPHandler) identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, err := resolveUser(r.Header.Get(HeaderTenantID), r.Header.Get(HeaderUserID), r.Header.Get(HeaderUserRole))
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), u)))
	})
}

// ── Periods ───────────────────────────────────────────────────────────────────

// ListPeriods handles GET /periods
func (h *HTTPHandler) ListPeriods(w http.ResponseWriter, r *http.Request) {
	u, _ := userFrom(r.Context())
	periods, err := h.periods.List(r.Context(), u.TenantID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"periods": orEmpty(periods)})
}

// OpenPeriod handles POST /periods
func (h *HTTPHandler) OpenPeriod(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Year  int `json:"year"`
		Month int `json:"month"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	u, _ := userFrom(r.Context())
	p, err := h.periods.Open(r.Context(), u, req.Year, req.Month)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// IsPeriodMutable handles GET /periods/mutable?year=&month=
func (h *HTTPHandler) IsPeriodMutable(w http.ResponseWriter, r *http.Request) {
	year, err1 := strconv.Atoi(r.URL.Query().Get("year"))
	month, err2 := strconv.Atoi(r.URL.Query().Get("month"))
	if err1 != nil || err2 != nil {
		h.writeError(w, r, errors.InvalidInput("year", "year and month query parameters are required"))
		return
	}
	u, _ := userFrom(r.Context())
	mutable, err := h.periods.IsMutable(r.Context(), u.TenantID, year, month)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"year": year, "month": month, "mutable": mutable})
}

// GetPeriod handles GET /periods/{periodID}
func (h *HTTPHandler) GetPeriod(w http.ResponseWriter, r *http.Request) {
	u, _ := userFrom(r.Context())
	p, err := h.periods.Get(r.Context(), u.TenantID, chi.URLParam(r, "periodID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

// LockPeriod handles POST /periods/{periodID}/lock
func (h *HTTPHandler) LockPeriod(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if !h.decode(w, r, &req) {
		return
	}
	u, _ := userFrom(r.Context())
	p, err := h.periods.Lock(r.Context(), u, chi.URLParam(r, "periodID"), req.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// UnlockPeriod handles POST /periods/{periodID}/unlock
func (h *HTTPHandler) UnlockPeriod(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if !h.decode(w, r, &req) {
		return
	}
	u, _ := userFrom(r.Context())
	p, err := h.periods.Unlock(r.Context(), u, chi.URLParam(r, "periodID"), req.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ── Planning ──────────────────────────────────────────────────────────────────

// GetDemandLines handles GET /periods/{periodID}/demand-lines
func (h *HTTPHandler) GetDemandLines(w http.ResponseWriter, r *http.Request) {
	u, _ := userFrom(r.Context())
	lines, err := h.planning.GetDemandLines(r.Context(), u.TenantID, chi.URLParam(r, "periodID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"demand_lines": orEmpty(lines)})
}

type demandRequest struct {
	PeriodID      string      `json:"period_id"`
	ProjectID     string      `json:"project_id"`
	ResourceID    *string     `json:"resource_id"`
	PlaceholderID *string     `json:"placeholder_id"`
	FTEPercent    json.Number `json:"fte_percent"`
}

// CreateDemand handles POST /demand-lines
func (h *HTTPHandler) CreateDemand(w http.ResponseWriter, r *http.Request) {
	var req demandRequest
	if !h.decode(w, r, &req) {
		return
	}
	fte, err := wholePercent("fte_percent", req.FTEPercent)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	u, _ := userFrom(r.Context())
	line, err := h.planning.UpsertDemand(r.Context(), u, service.DemandInput{
		PeriodID:      req.PeriodID,
		ProjectID:     req.ProjectID,
		ResourceID:    req.ResourceID,
		PlaceholderID: req.PlaceholderID,
		FTEPercent:    fte,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, line)
}

// UpdateDemand handles PUT /demand-lines/{id}
func (h *HTTPHandler) UpdateDemand(w http.ResponseWriter, r *http.Request) {
	var req demandRequest
	if !h.decode(w, r, &req) {
		return
	}
	fte, err := wholePercent("fte_percent", req.FTEPercent)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	u, _ := userFrom(r.Context())
	line, err := h.planning.UpsertDemand(r.Context(), u, service.DemandInput{
		ID:         chi.URLParam(r, "id"),
		FTEPercent: fte,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, line)
}

// DeleteDemand handles DELETE /demand-lines/{id}
func (h *HTTPHandler) DeleteDemand(w http.ResponseWriter, r *http.Request) {
	u, _ := userFrom(r.Context())
	if err := h.planning.DeleteDemand(r.Context(), u, chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetSupplyLines handles GET /periods/{periodID}/supply-lines
func (h *HTTPHandler) GetSupplyLines(w http.ResponseWriter, r *http.Request) {
	u, _ := userFrom(r.Context())
	lines, err := h.planning.GetSupplyLines(r.Context(), u.TenantID, chi.URLParam(r, "periodID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"supply_lines": orEmpty(lines)})
}

// UpsertSupply handles PUT /supply-lines
func (h *HTTPHandler) UpsertSupply(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PeriodID   string      `json:"period_id"`
		ResourceID string      `json:"resource_id"`
		FTEPercent json.Number `json:"fte_percent"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	fte, err := wholePercent("fte_percent", req.FTEPercent)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	u, _ := userFrom(r.Context())
	line, err := h.planning.UpsertSupply(r.Context(), u, service.SupplyInput{
		PeriodID:   req.PeriodID,
		ResourceID: req.ResourceID,
		FTEPercent: fte,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, line)
}

// DeleteSupply handles DELETE /supply-lines/{id}
func (h *HTTPHandler) DeleteSupply(w http.ResponseWriter, r *http.Request) {
	u, _ := userFrom(r.Context())
	if err := h.planning.DeleteSupply(r.Context(), u, chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetInsights handles GET /periods/{periodID}/insights
func (h *HTTPHandler) GetInsights(w http.ResponseWriter, r *http.Request) {
	u, _ := userFrom(r.Context())
	ins, err := h.planning.PlanningInsights(r.Context(), u, chi.URLParam(r, "periodID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	byCC := make([]map[string]any, 0, len(ins.ByCostCenter))
	for _, g := range ins.ByCostCenter {
		byCC = append(byCC, map[string]any{
			"cost_center_id":   g.CostCenterID,
			"cost_center_name": g.CostCenterName,
			"demand_total":     g.DemandTotal,
			"supply_total":     g.SupplyTotal,
			"gap":              g.Gap,
		})
	}
	orphans := make([]map[string]any, 0, len(ins.Orphans))
	for _, o := range ins.Orphans {
		orphans = append(orphans, map[string]any{
			"demand_line_id": o.DemandLineID,
			"project_id":     o.ProjectID,
			"fte_percent":    o.FTEPercent,
			"reason":         o.Reason,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"period":         ins.Period,
		"by_cost_center": byCC,
		"orphan_demand":  orphans,
		"stats": map[string]any{
			"total_demand": ins.TotalDemand,
			"total_supply": ins.TotalSupply,
			"total_gap":    ins.TotalGap,
			"gaps_count":   ins.GapsCount,
		},
	})
}

// ── Actuals ───────────────────────────────────────────────────────────────────

type actualRequest struct {
	PeriodID          string      `json:"period_id"`
	ResourceID        string      `json:"resource_id"`
	ProjectID         string      `json:"project_id"`
	PlannedFTEPercent json.Number `json:"planned_fte_percent"`
	ActualFTEPercent  json.Number `json:"actual_fte_percent"`
}

// GetActualLines handles GET /periods/{periodID}/actual-lines
func (h *HTTPHandler) GetActualLines(w http.ResponseWriter, r *http.Request) {
	u, _ := userFrom(r.Context())
	lines, err := h.actuals.GetActualLines(r.Context(), u.TenantID, chi.URLParam(r, "periodID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"actual_lines": orEmpty(lines)})
}

// CreateActual handles POST /actual-lines
func (h *HTTPHandler) CreateActual(w http.ResponseWriter, r *http.Request) {
	h.upsertActual(w, r, "", http.StatusCreated)
}

// UpdateActual handles PUT /actual-lines/{id}
func (h *HTTPHandler) UpdateActual(w http.ResponseWriter, r *http.Request) {
	h.upsertActual(w, r, chi.URLParam(r, "id"), http.StatusOK)
}

func (h *HTTPHandler) upsertActual(w http.ResponseWriter, r *http.Request, id string, okStatus int) {
	var req actualRequest
	if !h.decode(w, r, &req) {
		return
	}
	planned, err := wholePercent("planned_fte_percent", req.PlannedFTEPercent)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	actual, err := wholePercent("actual_fte_percent", req.ActualFTEPercent)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	u, _ := userFrom(r.Context())
	line, err := h.actuals.UpsertActual(r.Context(), u, service.ActualInput{
		ID:                id,
		PeriodID:          req.PeriodID,
		ResourceID:        req.ResourceID,
		ProjectID:         req.ProjectID,
		PlannedFTEPercent: planned,
		ActualFTEPercent:  actual,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, okStatus, line)
}

// DeleteActual handles DELETE /actual-lines/{id}
func (h *HTTPHandler) DeleteActual(w http.ResponseWriter, r *http.Request) {
	u, _ := userFrom(r.Context())
	if err := h.actuals.DeleteActual(r.Context(), u, chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SignActual handles POST /actual-lines/{id}/sign
func (h *HTTPHandler) SignActual(w http.ResponseWriter, r *http.Request) {
	u, _ := userFrom(r.Context())
	line, inst, err := h.actuals.Sign(r.Context(), u, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"actual_line": line, "approval": inst})
}

// ProxySignActual handles POST /actual-lines/{id}/proxy-sign
func (h *HTTPHandler) ProxySignActual(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if !h.decode(w, r, &req) {
		return
	}
	u, _ := userFrom(r.Context())
	line, inst, err := h.actuals.ProxySign(r.Context(), u, chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"actual_line": line, "approval": inst})
}

// ── Approvals ─────────────────────────────────────────────────────────────────

type inboxItemJSON struct {
	Instance       *repository.ApprovalInstance `json:"instance"`
	Step           *repository.ApprovalStep     `json:"step"`
	ProxyAvailable bool                         `json:"proxy_available"`
}

func inboxItems(items []service.InboxItem) []inboxItemJSON {
	out := make([]inboxItemJSON, 0, len(items))
	for _, it := range items {
		out = append(out, inboxItemJSON{Instance: it.Instance, Step: it.Step, ProxyAvailable: it.ProxyAvailable})
	}
	return out
}

// Inbox handles GET /approvals/inbox
func (h *HTTPHandler) Inbox(w http.ResponseWriter, r *http.Request) {
	u, _ := userFrom(r.Context())
	inbox, err := h.approvals.ListInbox(r.Context(), u)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"pending":          inboxItems(inbox.Pending),
		"proxy_approvable": inboxItems(inbox.ProxyApprovable),
	})
}

// GetApproval handles GET /approvals/{instanceID}
func (h *HTTPHandler) GetApproval(w http.ResponseWriter, r *http.Request) {
	u, _ := userFrom(r.Context())
	inst, err := h.approvals.GetApprovalByID(r.Context(), u.TenantID, chi.URLParam(r, "instanceID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

// GetApprovalBySubject handles GET /approvals/by-subject/{subjectID}
func (h *HTTPHandler) GetApprovalBySubject(w http.ResponseWriter, r *http.Request) {
	u, _ := userFrom(r.Context())
	inst, err := h.approvals.GetApprovalInstance(r.Context(), u.TenantID, chi.URLParam(r, "subjectID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

// GetApprovalHistory handles GET /approvals/{instanceID}/history
func (h *HTTPHandler) GetApprovalHistory(w http.ResponseWriter, r *http.Request) {
	u, _ := userFrom(r.Context())
	entries, err := h.approvals.GetApprovalHistory(r.Context(), u.TenantID, chi.URLParam(r, "instanceID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": orEmpty(entries)})
}

type commentRequest struct {
	Comment *string `json:"comment"`
}

// ApproveStep handles POST /approvals/{instanceID}/steps/{stepID}/approve
func (h *HTTPHandler) ApproveStep(w http.ResponseWriter, r *http.Request) {
	var req commentRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	u, _ := userFrom(r.Context())
	inst, err := h.approvals.ApproveStep(r.Context(), u, chi.URLParam(r, "instanceID"), chi.URLParam(r, "stepID"), req.Comment)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

// RejectStep handles POST /approvals/{instanceID}/steps/{stepID}/reject
func (h *HTTPHandler) RejectStep(w http.ResponseWriter, r *http.Request) {
	var req commentRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	u, _ := userFrom(r.Context())
	inst, err := h.approvals.RejectStep(r.Context(), u, chi.URLParam(r, "instanceID"), chi.URLParam(r, "stepID"), req.Comment)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

// ProxyApproveStep handles POST /approvals/{instanceID}/steps/{stepID}/proxy-approve
func (h *HTTPHandler) ProxyApproveStep(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Explanation string `json:"explanation"`
	}
	if !h.decodeOptional(w, r, &req) {
		return
	}
	u, _ := userFrom(r.Context())
	inst, err := h.approvals.ProxyApproveDirectorStep(r.Context(), u, chi.URLParam(r, "instanceID"), chi.URLParam(r, "stepID"), req.Explanation)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

// ── Encoding ──────────────────────────────────────────────────────────────────

func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeError(w, r, errors.InvalidInput("body", "invalid request body"))
		return false
	}
	return true
}

// wholePercent converts a decoded FTE percentage. An absent value is 0; a
// fractional one is FTE_INVALID.
func wholePercent(field string, n json.Number) (int, error) {
	if n == "" {
		return 0, nil
	}
	if v, err := n.Int64(); err == nil {
		return int(v), nil
	}
	f, err := n.Float64()
	if err != nil {
		return 0, errors.InvalidInput(field, field+" must be a number")
	}
	if f == math.Trunc(f) && math.Abs(f) <= math.MaxInt32 {
		return int(f), nil
	}
	return 0, errors.Newf(errors.ErrCodeFteInvalid, "%s must be a whole number", field).
		WithExtra(field, f)
}

// decodeOptional accepts an empty body.
func (h *HTTPHandler) decodeOptional(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.ContentLength == 0 {
		return true
	}
	return h.decode(w, r, dst)
}

type errorBody struct {
	Code    errors.Code    `json:"code"`
	Message string         `json:"message"`
	Extras  map[string]any `json:"extras,omitempty"`
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := HTTPStatus(errors.CodeOf(err))
	body := errorBody{Code: errors.CodeOf(err), Message: "internal error"}
	if e, ok := errors.As(err); ok && status != http.StatusInternalServerError {
		body.Message = e.Message
		body.Extras = e.Extras
	}

	if status == http.StatusInternalServerError {
		hlog.FromRequest(r).Error().Err(err).Msg("Request failed")
	} else {
		hlog.FromRequest(r).Debug().Str("code", string(body.Code)).Msg("Request rejected")
	}
	writeJSON(w, status, body)
}

// HTTPStatus maps an error code to its HTTP status.
func HTTPStatus(code errors.Code) int {
	switch code {
	case errors.ErrCodeNotFound:
		return http.StatusNotFound
	case errors.ErrCodeInvalidInput:
		return http.StatusBadRequest
	case errors.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case errors.ErrCodeForbidden, errors.ErrCodeNotApprover:
		return http.StatusForbidden
	case errors.ErrCodeConflict,
		errors.ErrCodePeriodLocked,
		errors.ErrCodeActualsLocked,
		errors.ErrCodeInvalidTransition,
		errors.ErrCodeStepNotPending,
		errors.ErrCodeStepOutOfOrder:
		return http.StatusConflict
	case errors.ErrCodeDemandXor,
		errors.ErrCodeFteInvalid,
		errors.ErrCodePlaceholderBlocked4MFC,
		errors.ErrCodeActualsOver100,
		errors.ErrCodeApproverNotConfigured,
		errors.ErrCodeExplanationRequired:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// orEmpty keeps empty lists as [] in JSON.
func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

package sites

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/buildledger/buildledger/internal/platform/httpx"
	"github.com/buildledger/buildledger/internal/shared"
)

// Handler wires HTTP endpoints for site management.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers site routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listSites)
	r.Post("/", h.createSite)
	r.Get("/{id}", h.getSite)
	r.Put("/{id}", h.updateSite)
	r.Delete("/{id}", h.deleteSite)
	r.Post("/{id}/supervisor", h.assignSupervisor)
	r.Patch("/{id}/progress", h.updateProgress)
}

type sitePayload struct {
	Name        string  `json:"name" validate:"required"`
	Location    string  `json:"location"`
	Status      string  `json:"status"`
	TotalBudget float64 `json:"totalBudget" validate:"gte=0"`
	StartDate   *string `json:"startDate"`
	EndDate     *string `json:"endDate"`
}

func parseDate(raw *string) (*time.Time, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", *raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (h *Handler) createSite(w http.ResponseWriter, r *http.Request) {
	var req sitePayload
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, r, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, r, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	start, err := parseDate(req.StartDate)
	if err != nil {
		httpx.Problem(w, r, http.StatusBadRequest, "Validation Failed", "startDate must be YYYY-MM-DD")
		return
	}
	end, err := parseDate(req.EndDate)
	if err != nil {
		httpx.Problem(w, r, http.StatusBadRequest, "Validation Failed", "endDate must be YYYY-MM-DD")
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	site, err := h.service.Create(r.Context(), actor, NewSite{
		Name:        req.Name,
		Location:    req.Location,
		TotalBudget: req.TotalBudget,
		StartDate:   start,
		EndDate:     end,
	})
	if err != nil {
		h.logger.Error("create site", slog.Any("error", err))
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, site)
}

func (h *Handler) listSites(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.List(r.Context())
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) getSite(w http.ResponseWriter, r *http.Request) {
	id, ok := h.siteID(w, r)
	if !ok {
		return
	}
	site, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, site)
}

func (h *Handler) updateSite(w http.ResponseWriter, r *http.Request) {
	id, ok := h.siteID(w, r)
	if !ok {
		return
	}
	var req sitePayload
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, r, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, r, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	start, err := parseDate(req.StartDate)
	if err != nil {
		httpx.Problem(w, r, http.StatusBadRequest, "Validation Failed", "startDate must be YYYY-MM-DD")
		return
	}
	end, err := parseDate(req.EndDate)
	if err != nil {
		httpx.Problem(w, r, http.StatusBadRequest, "Validation Failed", "endDate must be YYYY-MM-DD")
		return
	}
	status := Status(req.Status)
	if req.Status == "" {
		status = StatusActive
	}
	actor, _ := shared.ActorFromContext(r.Context())
	site, err := h.service.Update(r.Context(), actor, id, UpdateSite{
		Name:        req.Name,
		Location:    req.Location,
		Status:      status,
		TotalBudget: req.TotalBudget,
		StartDate:   start,
		EndDate:     end,
	})
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, site)
}

func (h *Handler) deleteSite(w http.ResponseWriter, r *http.Request) {
	id, ok := h.siteID(w, r)
	if !ok {
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	if err := h.service.Delete(r.Context(), actor, id); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type assignSupervisorRequest struct {
	SupervisorID int64 `json:"supervisorId" validate:"required,gt=0"`
}

func (h *Handler) assignSupervisor(w http.ResponseWriter, r *http.Request) {
	id, ok := h.siteID(w, r)
	if !ok {
		return
	}
	var req assignSupervisorRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, r, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, r, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	if err := h.service.AssignSupervisor(r.Context(), actor, id, req.SupervisorID); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type updateProgressRequest struct {
	Progress        int  `json:"progress" validate:"gte=0,lte=100"`
	AllowRegression bool `json:"allowRegression"`
}

func (h *Handler) updateProgress(w http.ResponseWriter, r *http.Request) {
	id, ok := h.siteID(w, r)
	if !ok {
		return
	}
	var req updateProgressRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, r, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, r, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	if err := h.service.UpdateProgress(r.Context(), actor, id, req.Progress, req.AllowRegression); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) siteID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, r, http.StatusBadRequest, "Validation Failed", "invalid site id")
		return 0, false
	}
	return id, true
}

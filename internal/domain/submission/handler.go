package submission

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/praxisbill/praxisbill/internal/platform/auth"
	"github.com/praxisbill/praxisbill/internal/platform/invoicedoc"
	"github.com/praxisbill/praxisbill/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole("admin", "billing"))
	g.POST("/invoices/:id/submissions", h.Submit)
	g.GET("/submissions", h.ListSubmissions)
	g.GET("/submissions/:id", h.GetSubmission)
	g.GET("/submissions/:id/history", h.ListHistory)
	g.GET("/triage/responses", h.ListUnmatchedResponses)
	g.POST("/triage/responses/:id/resolve", h.ResolveResponse)
	g.GET("/triage/notifications", h.ListUnmatchedNotifications)
	g.POST("/triage/notifications/:id/resolve", h.ResolveNotification)
}

func (h *Handler) Submit(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req SubmitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.InvoiceID = id

	res, err := h.svc.Submit(c.Request().Context(), req)
	if err != nil {
		var active *ActiveSubmissionError
		if errors.As(err, &active) {
			return echo.NewHTTPError(http.StatusConflict, active.Error())
		}
		var build *invoicedoc.BuildError
		if errors.As(err, &build) {
			return echo.NewHTTPError(http.StatusUnprocessableEntity, build.Error())
		}
		var transport *TransportError
		if errors.As(err, &transport) {
			return echo.NewHTTPError(http.StatusBadGateway, transport.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *Handler) GetSubmission(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	sub, err := h.svc.GetSubmission(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "submission not found")
	}
	return c.JSON(http.StatusOK, sub)
}

func (h *Handler) ListSubmissions(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListSubmissions(c.Request().Context(), c.QueryParam("status"), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListHistory(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if _, err := h.svc.GetSubmission(c.Request().Context(), id); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "submission not found")
	}
	entries, err := h.svc.ListHistory(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, entries)
}

func (h *Handler) ListUnmatchedResponses(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListUnmatchedResponses(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

type resolveResponseRequest struct {
	SubmissionID uuid.UUID `json:"submission_id"`
	ApplyStatus  bool      `json:"apply_status"`
}

func (h *Handler) ResolveResponse(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req resolveResponseRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.SubmissionID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "submission_id is required")
	}
	rec, err := h.svc.ResolveResponse(c.Request().Context(), id, req.SubmissionID, req.ApplyStatus)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) ListUnmatchedNotifications(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListUnmatchedNotifications(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

type resolveNotificationRequest struct {
	SubmissionID uuid.UUID `json:"submission_id"`
}

func (h *Handler) ResolveNotification(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req resolveNotificationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.SubmissionID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "submission_id is required")
	}
	rec, err := h.svc.ResolveNotification(c.Request().Context(), id, req.SubmissionID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, rec)
}

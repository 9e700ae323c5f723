package review

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/alert/alert/internal/domain/adds"
	"github.com/alert/alert/internal/domain/state"
	"github.com/alert/alert/internal/platform/auth"
	"github.com/alert/alert/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Read endpoints – clinicians and auditors
	readGroup := api.Group("", auth.RequireRole("clinician", "auditor"))
	readGroup.GET("/reviews", h.ListReviews)
	readGroup.GET("/reviews/:id", h.GetReview)
	readGroup.GET("/reviews/:id/survey-url", h.GetSurveyURL)

	// Write endpoints – clinicians
	writeGroup := api.Group("", auth.RequireRole("clinician"))
	writeGroup.POST("/reviews", h.CreateReview)
	writeGroup.DELETE("/reviews/:id", h.DeleteReview)
	writeGroup.PUT("/reviews/:id/fields/:name", h.SetField)
	writeGroup.POST("/reviews/:id/import", h.Import)
	writeGroup.POST("/reviews/:id/recompute", h.Recompute)
	writeGroup.PUT("/reviews/:id/report", h.EditReport)
	writeGroup.POST("/reviews/:id/report/regenerate", h.RegenerateReport)
	writeGroup.POST("/reviews/:id/devices", h.AddDevice)
	writeGroup.DELETE("/reviews/:id/devices/:index", h.RemoveDevice)
	writeGroup.POST("/reviews/:id/adds", h.ApplyADDS)
	writeGroup.POST("/reviews/:id/bloods/copy-forward", h.CopyForwardBloods)
	writeGroup.POST("/reviews/:id/discharge-prompt/dismiss", h.DismissDischarge)
	writeGroup.POST("/reviews/:id/clear", h.Clear)
	writeGroup.POST("/reviews/:id/undo", h.Undo)
}

// httpError maps service errors onto status codes.
func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "review not found")
	case errors.Is(err, ErrNothingToUndo):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, state.ErrUnknownField):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, state.ErrKind), errors.Is(err, state.ErrOption), errors.Is(err, ErrDeviceIndex):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

// -- Lifecycle --

type createRequest struct {
	ReviewType    string `json:"review_type"`
	ClinicianRole string `json:"clinician_role"`
}

func (h *Handler) CreateReview(c echo.Context) error {
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	v, err := h.svc.Create(c.Request().Context(), req.ReviewType, req.ClinicianRole)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, v)
}

func (h *Handler) ListReviews(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if link := pg.LinkHeader(c.Request().URL.Path, total); link != "" {
		c.Response().Header().Set("Link", link)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetReview(c echo.Context) error {
	v, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) DeleteReview(c echo.Context) error {
	if err := h.svc.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Edits --

type fieldRequest struct {
	Value interface{} `json:"value"`
}

func (h *Handler) SetField(c echo.Context) error {
	var req fieldRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	v, err := h.svc.SetField(c.Request().Context(), c.Param("id"), c.Param("name"), req.Value)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, v)
}

type importRequest struct {
	Text string `json:"text"`
}

func (h *Handler) Import(c echo.Context) error {
	var req importRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Text == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text is required")
	}
	sum, err := h.svc.Import(c.Request().Context(), c.Param("id"), req.Text)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sum)
}

func (h *Handler) Recompute(c echo.Context) error {
	v, err := h.svc.Recompute(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, v)
}

type reportRequest struct {
	Text string `json:"text"`
}

func (h *Handler) EditReport(c echo.Context) error {
	var req reportRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	v, err := h.svc.EditReport(c.Request().Context(), c.Param("id"), req.Text)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) RegenerateReport(c echo.Context) error {
	v, err := h.svc.RegenerateReport(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) AddDevice(c echo.Context) error {
	var d state.DeviceEntry
	if err := c.Bind(&d); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	v, err := h.svc.AddDevice(c.Request().Context(), c.Param("id"), d)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return httpError(err)
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, v)
}

func (h *Handler) RemoveDevice(c echo.Context) error {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid index")
	}
	v, err := h.svc.RemoveDevice(c.Request().Context(), c.Param("id"), index)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) ApplyADDS(c echo.Context) error {
	var in adds.Inputs
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	out, err := h.svc.ApplyADDS(c.Request().Context(), c.Param("id"), in)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return httpError(err)
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, out)
}

// -- Bloods, discharge, clear --

func (h *Handler) CopyForwardBloods(c echo.Context) error {
	v, msg, err := h.svc.CopyForwardBloods(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"toast": msg, "view": v})
}

func (h *Handler) DismissDischarge(c echo.Context) error {
	v, err := h.svc.DismissDischarge(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) Clear(c echo.Context) error {
	v, err := h.svc.Clear(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) Undo(c echo.Context) error {
	v, err := h.svc.Undo(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) GetSurveyURL(c echo.Context) error {
	u, err := h.svc.SurveyURL(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"url": u})
}

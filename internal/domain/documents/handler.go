package documents

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/careview/careview/internal/platform/auth"
	"github.com/careview/careview/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the CRUD surface on the authenticated API group and
// the verification endpoint on the public router.
func (h *Handler) RegisterRoutes(api *echo.Group, public *echo.Group) {
	docs := api.Group("", auth.RequireRole("admin", "physician", "nurse"))
	docs.GET("/documents", h.List)
	docs.GET("/documents/:id", h.Get)
	docs.POST("/documents", h.Create)
	docs.PUT("/documents/:id", h.Update)
	docs.DELETE("/documents/:id", h.Delete)

	// GET-only and side-effect-free; this is the QR code target.
	public.GET("/verify/:fingerprint", h.Verify)
}

type documentResponse struct {
	*Document
	VerificationURL string `json:"verification_url"`
}

func (h *Handler) respond(c echo.Context, status int, d *Document) error {
	return c.JSON(status, documentResponse{
		Document:        d,
		VerificationURL: h.svc.VerificationURL(d.Fingerprint),
	})
}

func (h *Handler) Create(c echo.Context) error {
	var d Document
	if err := c.Bind(&d); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d.CreatedBy = auth.UserIDFromContext(c.Request().Context())
	if err := h.svc.Create(c.Request().Context(), &d); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return h.respond(c, http.StatusCreated, &d)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	d, err := h.svc.Get(c.Request().Context(), id)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "document not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "document storage unavailable")
	}
	return h.respond(c, http.StatusOK, d)
}

func (h *Handler) Update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	existing, err := h.svc.Get(c.Request().Context(), id)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "document not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "document storage unavailable")
	}

	var d Document
	if err := c.Bind(&d); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d.ID = existing.ID
	d.PatientID = existing.PatientID
	d.CreatedBy = existing.CreatedBy
	if err := h.svc.Update(c.Request().Context(), &d); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return h.respond(c, http.StatusOK, &d)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	err = h.svc.Delete(c.Request().Context(), id)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "document not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "document storage unavailable")
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) List(c echo.Context) error {
	patientID, err := uuid.Parse(c.QueryParam("patient_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "patient_id is required")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListByPatient(c.Request().Context(), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "document storage unavailable")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Verify(c echo.Context) error {
	result, err := h.svc.Verify(c.Request().Context(), c.Param("fingerprint"))
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "no document matches this fingerprint")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "verification unavailable")
	}
	return c.JSON(http.StatusOK, result)
}

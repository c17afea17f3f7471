package sharelink

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/careview/careview/internal/platform/auth"
	"github.com/careview/careview/pkg/pagination"
)

// neutralUnavailable is what visitors see for expired, exhausted and
// deactivated links alike, so access patterns are not leaked.
const neutralUnavailable = "this link is no longer available"

// DocumentSource supplies the shareable view of a document on a successful
// visit. The handler stays decoupled from the documents package; main wires
// an adapter over its service.
type DocumentSource interface {
	SharedView(ctx context.Context, documentID uuid.UUID) (interface{}, error)
}

type Handler struct {
	svc  *Service
	docs DocumentSource
}

func NewHandler(svc *Service, docs DocumentSource) *Handler {
	return &Handler{svc: svc, docs: docs}
}

// RegisterRoutes mounts owner-facing routes on the authenticated API group
// and the public share endpoint on the bare router.
func (h *Handler) RegisterRoutes(api *echo.Group, public *echo.Group) {
	owner := api.Group("", auth.RequireRole("admin", "physician", "nurse"))
	owner.POST("/documents/:id/shares", h.CreateShare)
	owner.GET("/documents/:id/shares", h.ListShares)
	owner.GET("/documents/:id/shares/stats", h.ShareStats)
	owner.DELETE("/shares/:token", h.DeactivateShare)

	public.GET("/share/:token", h.ViewShare)
}

type createShareRequest struct {
	TTLSeconds int64  `json:"ttl_seconds"`
	Password   string `json:"password"`
	MaxViews   *int   `json:"max_views"`
}

type createShareResponse struct {
	*ShareLink
	URL string `json:"url"`
}

func (h *Handler) CreateShare(c echo.Context) error {
	documentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid document id")
	}
	var req createShareRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.TTLSeconds < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "ttl_seconds must not be negative")
	}

	link, url, err := h.svc.Create(c.Request().Context(), documentID, CreateParams{
		TTL:      time.Duration(req.TTLSeconds) * time.Second,
		Password: req.Password,
		MaxViews: req.MaxViews,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, createShareResponse{ShareLink: link, URL: url})
}

func (h *Handler) ListShares(c echo.Context) error {
	documentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid document id")
	}
	pg := pagination.FromContext(c)
	links, total, err := h.svc.List(c.Request().Context(), documentID, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "share link storage unavailable")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(links, total, pg.Limit, pg.Offset))
}

func (h *Handler) ShareStats(c echo.Context) error {
	documentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid document id")
	}
	stats, err := h.svc.Stats(c.Request().Context(), documentID)
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "share link storage unavailable")
	}
	return c.JSON(http.StatusOK, stats)
}

func (h *Handler) DeactivateShare(c echo.Context) error {
	err := h.svc.Deactivate(c.Request().Context(), c.Param("token"))
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "share link not found")
	case err != nil:
		return echo.NewHTTPError(http.StatusServiceUnavailable, "share link storage unavailable")
	}
	return c.NoContent(http.StatusNoContent)
}

// ViewShare resolves the token, checks the password and counts the view.
// The password travels in a header (or query fallback) so it never appears
// in the path.
func (h *Handler) ViewShare(c echo.Context) error {
	password := c.Request().Header.Get("X-Share-Password")
	if password == "" {
		password = c.QueryParam("password")
	}

	link, err := h.svc.RecordView(c.Request().Context(), c.Param("token"), password)
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "share link not found")
	case errors.Is(err, ErrExpired), errors.Is(err, ErrExhausted), errors.Is(err, ErrDeactivated):
		return echo.NewHTTPError(http.StatusGone, neutralUnavailable)
	case errors.Is(err, ErrPasswordRequired):
		return echo.NewHTTPError(http.StatusUnauthorized, "password required")
	case errors.Is(err, ErrPasswordIncorrect):
		return echo.NewHTTPError(http.StatusForbidden, "password incorrect")
	case err != nil:
		return echo.NewHTTPError(http.StatusServiceUnavailable, "share link storage unavailable")
	}

	doc, err := h.docs.SharedView(c.Request().Context(), link.DocumentID)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "document not found")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"document":   doc,
		"view_count": link.ViewCount,
	})
}

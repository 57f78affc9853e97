package documents

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ins/ins/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the JSON document endpoints on an API group that is
// already guarded.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/documents", h.ListDocuments)
	api.GET("/documents/:id", h.GetDocument)
}

type documentView struct {
	Document
	TypeLabel   string `json:"type_label"`
	Previewable bool   `json:"previewable"`
}

func toView(d Document) documentView {
	return documentView{Document: d, TypeLabel: d.TypeLabel(), Previewable: d.Previewable()}
}

func (h *Handler) ListDocuments(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.Search(c.Request().Context(), c.QueryParam("q"), pg)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	views := make([]documentView, len(items))
	for i, d := range items {
		views[i] = toView(d)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(views, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetDocument(c echo.Context) error {
	d, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "document not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, toView(*d))
}

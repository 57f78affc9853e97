package patient

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ins/ins/internal/capture"
	"github.com/ins/ins/pkg/pagination"
)

// APIHandler exposes patient records as JSON.
type APIHandler struct {
	svc *Service
}

func NewAPIHandler(svc *Service) *APIHandler {
	return &APIHandler{svc: svc}
}

// RegisterRoutes mounts the endpoints on a guarded API group.
func (h *APIHandler) RegisterRoutes(api *echo.Group) {
	api.GET("/patients", h.ListPatients)
	api.GET("/patients/:patientId", h.GetPatient)
	api.POST("/signature/render", h.RenderSignature)
}

func (h *APIHandler) ListPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, _, err := h.svc.List(c.Request().Context(), c.QueryParam("q"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	page := pagination.Apply(items, pg)
	resp := pagination.NewResponse(page, len(items), pg.Limit, pg.Offset)
	return c.JSON(http.StatusOK, resp)
}

func (h *APIHandler) GetPatient(c echo.Context) error {
	p, err := h.svc.Get(c.Request().Context(), c.Param("patientId"))
	if err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusOK, p)
}

type renderSignatureRequest struct {
	Events []capture.PointerEvent `json:"events"`
}

type renderSignatureResponse struct {
	Signature string `json:"signature"`
}

// RenderSignature rasterizes recorded pointer events into the PNG data URL
// that the signature fields store.
func (h *APIHandler) RenderSignature(c echo.Context) error {
	var req renderSignatureRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	sig, err := capture.RenderSignature(req.Events)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return c.JSON(http.StatusOK, renderSignatureResponse{Signature: sig})
}

func apiError(err error) error {
	if he := statusError(err); he != nil {
		return he
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

package tariff

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/praxisbill/praxisbill/internal/platform/auth"
	"github.com/praxisbill/praxisbill/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	role := auth.RequireRole("admin", "billing")

	read := api.Group("", role)
	read.GET("/tariffs", h.SearchTariffs)
	read.GET("/tariffs/:code", h.GetTariff)
	read.GET("/tariffs/:code/price", h.PriceTariff)
}

func (h *Handler) SearchTariffs(c echo.Context) error {
	pg := pagination.FromContext(c)
	query := c.QueryParam("query")

	items := h.svc.Search(query, pg.Limit)
	return c.JSON(http.StatusOK, pagination.NewResponse(items, len(items), pg.Limit, pg.Offset))
}

func (h *Handler) GetTariff(c echo.Context) error {
	item, ok := h.svc.Lookup(c.Param("code"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "tariff position not found")
	}
	return c.JSON(http.StatusOK, item)
}

func (h *Handler) PriceTariff(c echo.Context) error {
	code := c.Param("code")
	canton := c.QueryParam("canton")

	quantity := 1.0
	if q := c.QueryParam("quantity"); q != "" {
		parsed, err := strconv.ParseFloat(q, 64)
		if err != nil || parsed <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid quantity")
		}
		quantity = parsed
	}

	item, ok := h.svc.Lookup(code)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "tariff position not found")
	}

	var (
		amount float64
		err    error
	)
	if canton == "" {
		amount = round2(h.svc.PriceDefault(item.TaxPoints) * quantity)
	} else {
		amount, err = h.svc.PriceItem(code, quantity, canton)
		if err != nil {
			var unknownCanton *UnknownCantonError
			if errors.As(err, &unknownCanton) {
				return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
			}
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"code":       item.Code,
		"tax_points": item.TaxPoints,
		"quantity":   quantity,
		"canton":     canton,
		"amount":     amount,
		"currency":   "CHF",
	})
}

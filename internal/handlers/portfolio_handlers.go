package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"portfolio_builder_echo/internal/models"
	"portfolio_builder_echo/internal/services"
)

type PortfolioHandler struct {
	store services.PortfolioStore
	cache *services.RedisCache
}

func NewPortfolioHandler(store services.PortfolioStore, cache *services.RedisCache) *PortfolioHandler {
	return &PortfolioHandler{store: store, cache: cache}
}

// CreatePortfolio handles POST /api/portfolios
func (h *PortfolioHandler) CreatePortfolio(c echo.Context) error {
	var req CreatePortfolioRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid JSON payload")
	}
	if strings.TrimSpace(req.Name) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Portfolio name is required")
	}

	portfolio := &models.Portfolio{
		UserID:     getStringFromContext(c, "userUID"),
		Name:       req.Name,
		TemplateID: req.TemplateID,
	}
	if err := h.store.CreatePortfolio(c.Request().Context(), portfolio); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to create portfolio")
	}

	return c.JSON(http.StatusCreated, portfolio)
}

// GetPortfolio handles GET /api/portfolios/:id
func (h *PortfolioHandler) GetPortfolio(c echo.Context) error {
	portfolio, err := h.fetchOwned(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, portfolio)
}

// ListPortfolios handles GET /api/portfolios
func (h *PortfolioHandler) ListPortfolios(c echo.Context) error {
	userID := getStringFromContext(c, "userUID")
	portfolios, err := h.store.ListPortfoliosByUser(c.Request().Context(), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to list portfolios")
	}
	if portfolios == nil {
		portfolios = []models.Portfolio{}
	}
	return c.JSON(http.StatusOK, portfolios)
}

// PublishPortfolio handles POST /api/portfolios/:id/publish. Publishing is
// gated on the payment having completed.
func (h *PortfolioHandler) PublishPortfolio(c echo.Context) error {
	portfolio, err := h.fetchOwned(c)
	if err != nil {
		return err
	}

	if !portfolio.IsPaid() {
		return echo.NewHTTPError(http.StatusConflict, "Portfolio payment is not completed")
	}

	if err := h.store.SetPublished(c.Request().Context(), portfolio.ID, true); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to publish portfolio")
	}

	// Drop any stale cached copy of the public page
	if h.cache != nil {
		_ = h.cache.Delete(c.Request().Context(), publicPortfolioCacheKey(portfolio.ID))
	}

	portfolio.Published = true
	return c.JSON(http.StatusOK, portfolio)
}

// PublicPortfolio handles GET /p/:id, the public read path for published
// sites. Cached in Redis because it takes anonymous traffic.
func (h *PortfolioHandler) PublicPortfolio(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid portfolio id")
	}

	fetch := func() (*models.Portfolio, error) {
		return h.store.GetPortfolioByID(c.Request().Context(), id)
	}

	var portfolio *models.Portfolio
	var err error
	if h.cache != nil {
		portfolio, err = services.GetOrSet(h.cache, c.Request().Context(), publicPortfolioCacheKey(id), 5*time.Minute, fetch)
	} else {
		portfolio, err = fetch()
	}
	if err != nil || portfolio == nil || !portfolio.Published {
		return echo.NewHTTPError(http.StatusNotFound, "Portfolio not found")
	}

	return c.JSON(http.StatusOK, portfolio)
}

func (h *PortfolioHandler) fetchOwned(c echo.Context) (*models.Portfolio, error) {
	id := c.Param("id")
	if id == "" {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "Invalid portfolio id")
	}

	portfolio, err := h.store.GetPortfolioByID(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrPortfolioNotFound) {
			return nil, echo.NewHTTPError(http.StatusNotFound, "Portfolio not found")
		}
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "Failed to fetch portfolio")
	}

	if portfolio.UserID != getStringFromContext(c, "userUID") {
		return nil, echo.NewHTTPError(http.StatusForbidden, "You can only manage your own portfolios")
	}
	return portfolio, nil
}

func publicPortfolioCacheKey(id string) string {
	return "portfolio:public:" + id
}

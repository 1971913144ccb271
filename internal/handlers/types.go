package handlers

import (
	"github.com/labstack/echo/v4"
)

// CreateCheckoutSessionRequest is the body of POST /api/checkout-sessions
type CreateCheckoutSessionRequest struct {
	PortfolioID string `json:"portfolioId"`
}

// CreateCheckoutSessionResponse mirrors what the frontend needs to redirect
// the user into the hosted checkout
type CreateCheckoutSessionResponse struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

// CreatePortfolioRequest is the body of POST /api/portfolios
type CreatePortfolioRequest struct {
	Name       string `json:"name"`
	TemplateID string `json:"templateId"`
}

// getStringFromContext safely extracts a string value set by middleware
func getStringFromContext(c echo.Context, key string) string {
	if val := c.Get(key); val != nil {
		if s, ok := val.(string); ok {
			return s
		}
	}
	return ""
}

// requestOrigin derives the caller-facing origin for redirect URLs. Prefers
// the Origin header, then the configured app URL, then the request host.
func requestOrigin(c echo.Context, appURL string) string {
	if origin := c.Request().Header.Get("Origin"); origin != "" {
		return origin
	}
	if appURL != "" {
		return appURL
	}
	scheme := c.Scheme()
	if scheme == "" {
		scheme = "http"
	}
	return scheme + "://" + c.Request().Host
}

package handlers

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"speakapp/internal/observability"

	"github.com/gin-gonic/gin"
)

// RouteInfo represents information about a single route
type RouteInfo struct {
	Method      string `json:"method"`
	Path        string `json:"path"`
	HandlerName string `json:"handler_name"`
}

// RouteListingHandler serves the index page at "/" with every registered
// route, as HTML or JSON.
type RouteListingHandler struct {
	serviceName string
	routes      []RouteInfo
}

// NewRouteListingHandler creates a new route listing handler
func NewRouteListingHandler(serviceName string) *RouteListingHandler {
	return &RouteListingHandler{
		serviceName: serviceName,
		routes:      []RouteInfo{},
	}
}

// CollectRoutes extracts all routes from a Gin engine
func (h *RouteListingHandler) CollectRoutes(engine *gin.Engine) {
	h.routes = []RouteInfo{}

	for _, route := range engine.Routes() {
		if strings.HasPrefix(route.Path, "/debug/") {
			continue
		}
		h.routes = append(h.routes, RouteInfo{
			Method:      route.Method,
			Path:        route.Path,
			HandlerName: route.Handler,
		})
	}

	sort.Slice(h.routes, func(i, j int) bool {
		return h.routes[i].Path < h.routes[j].Path
	})
}

// GetRouteListingPage shows all available routes as HTML
func (h *RouteListingHandler) GetRouteListingPage(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "get_route_listing_page")
	defer observability.FinishSpan(span, nil)

	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.String(http.StatusOK, h.generateHTML())
}

// GetRouteListingJSON returns the route listing as JSON
func (h *RouteListingHandler) GetRouteListingJSON(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "get_route_listing_json")
	defer observability.FinishSpan(span, nil)
	c.JSON(http.StatusOK, h.routes)
}

// generateHTML creates an HTML page listing all routes
func (h *RouteListingHandler) generateHTML() string {
	var html strings.Builder

	html.WriteString(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>` + h.serviceName + ` - Available Routes</title>
    <style>
        body { font-family: -apple-system, "Segoe UI", Roboto, Helvetica, Arial, sans-serif; padding: 20px; background-color: #f8f9fa; color: #212529; }
        .container { max-width: 960px; margin: auto; background: #fff; padding: 30px; border-radius: 8px; }
        h1 { color: #0056b3; border-bottom: 2px solid #dee2e6; padding-bottom: 10px; }
        table { width: 100%; border-collapse: collapse; }
        th, td { padding: 10px; text-align: left; border-bottom: 1px solid #dee2e6; }
        .method { display: inline-block; padding: 3px 8px; border-radius: 4px; font-size: 12px; font-weight: bold; }
        .method-get { background-color: #d4edda; color: #155724; }
        .method-post { background-color: #cce5ff; color: #004085; }
        .method-patch { background-color: #fff3cd; color: #856404; }
        .method-delete { background-color: #f8d7da; color: #721c24; }
        .path { font-family: monospace; color: #6f42c1; }
    </style>
</head>
<body>
    <div class="container">
        <h1>` + h.serviceName + ` - Available Routes</h1>
        <p>Generated ` + time.Now().Format("2006-01-02 15:04:05") + ` | ` + fmt.Sprintf("%d routes", len(h.routes)) + ` | <a href="/?json=true">JSON</a></p>
        <table>
            <thead><tr><th>Method</th><th>Path</th><th>Handler</th></tr></thead>
            <tbody>`)

	for _, route := range h.routes {
		methodClass := "method-" + strings.ToLower(route.Method)
		html.WriteString(fmt.Sprintf(`
                <tr>
                    <td><span class="method %s">%s</span></td>
                    <td><span class="path">%s</span></td>
                    <td>%s</td>
                </tr>`,
			methodClass, route.Method, route.Path, route.HandlerName,
		))
	}

	html.WriteString(`
            </tbody>
        </table>
    </div>
</body>
</html>`)

	return html.String()
}

package sdk

import (
	"github.com/gin-gonic/gin"
)

// Route is a single (method, path) handler contributed by a plugin. Paths are
// relative to the plugin's mount prefix.
type Route struct {
	Method  string
	Path    string
	Handler gin.HandlerFunc
}

// Router collects the routes a plugin builds during Init. The host merges it
// into the server-wide dispatch table under /<plugin-id>/. Method matching is
// exact; the host does not inject CORS preflight handlers, so plugins that
// need cross-origin access register OPTIONS routes explicitly.
type Router struct {
	routes []Route
}

// NewRouter returns an empty plugin router.
func NewRouter() *Router {
	return &Router{}
}

// Handle registers a handler for the given method and path. Multiple methods
// may share a path.
func (r *Router) Handle(method, path string, handler gin.HandlerFunc) *Router {
	r.routes = append(r.routes, Route{Method: method, Path: path, Handler: handler})
	return r
}

// GET is shorthand for Handle("GET", ...).
func (r *Router) GET(path string, handler gin.HandlerFunc) *Router {
	return r.Handle("GET", path, handler)
}

// POST is shorthand for Handle("POST", ...).
func (r *Router) POST(path string, handler gin.HandlerFunc) *Router {
	return r.Handle("POST", path, handler)
}

// DELETE is shorthand for Handle("DELETE", ...).
func (r *Router) DELETE(path string, handler gin.HandlerFunc) *Router {
	return r.Handle("DELETE", path, handler)
}

// OPTIONS is shorthand for Handle("OPTIONS", ...), used for explicit CORS
// preflight registration.
func (r *Router) OPTIONS(path string, handler gin.HandlerFunc) *Router {
	return r.Handle("OPTIONS", path, handler)
}

// Routes returns the collected routes in registration order.
func (r *Router) Routes() []Route {
	return r.routes
}

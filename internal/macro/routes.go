// internal/macro/routes.go
package macro

import (
	"net/http"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/markb/macrolite/internal/catalog"
	"github.com/markb/macrolite/internal/log"
)

// Routes is the dynamic per-macro route table. Route generation is an
// explicit step: a new sub-router is built from one catalog snapshot and
// swapped in atomically, so in-flight requests keep dispatching against
// the router they entered with. Macros added by a catalog refresh stay
// unreachable until Regenerate runs; removed macros 404 immediately via
// the per-request catalog lookup.
type Routes struct {
	handler *Handler
	mux     atomic.Pointer[chi.Mux]
}

// NewRoutes creates an empty route table; call Regenerate to populate it.
func NewRoutes(h *Handler) *Routes {
	r := &Routes{handler: h}
	r.mux.Store(newDynamicMux())
	return r
}

// Regenerate rebuilds the route table from a snapshot: one GET route per
// macro, plus a POST route for table macros. Returns the number of macros
// routed.
func (r *Routes) Regenerate(snap *catalog.Snapshot) int {
	mux := newDynamicMux()
	for _, d := range snap.Descriptors() {
		name := d.Name
		mux.Get("/"+name, r.handler.DynamicGet(name))
		if d.Kind == catalog.KindTable {
			mux.Post("/"+name, r.handler.DynamicPost(name))
		}
	}
	r.mux.Store(mux)
	log.Info("dynamic macro routes generated", "macros", len(snap.Macros))
	return len(snap.Macros)
}

// ServeHTTP dispatches against the current route table.
func (r *Routes) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.Load().ServeHTTP(w, req)
}

func newDynamicMux() *chi.Mux {
	mux := chi.NewRouter()
	notFound := func(w http.ResponseWriter, req *http.Request) {
		writeError(w, http.StatusNotFound, CodeNotFound, "no such macro endpoint")
	}
	mux.NotFound(notFound)
	// Scalar macros are GET-only on this surface; an unrouted method is
	// indistinguishable from an unknown macro to the caller.
	mux.MethodNotAllowed(notFound)
	return mux
}

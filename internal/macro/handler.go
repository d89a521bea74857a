// internal/macro/handler.go
package macro

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/markb/macrolite/internal/catalog"
	"github.com/markb/macrolite/internal/coerce"
)

// Handler serves the macro HTTP surface: the static list/info/execute
// endpoints and the per-macro handlers mounted by Routes.
type Handler struct {
	catalog  *catalog.Service
	executor *Executor
}

// NewHandler creates a macro HTTP handler.
func NewHandler(cat *catalog.Service, executor *Executor) *Handler {
	return &Handler{catalog: cat, executor: executor}
}

// HandleListMacros handles GET /macros.
func (h *Handler) HandleListMacros(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.catalog.Current().Descriptors())
}

// HandleGetMacro handles GET /macros/{name}.
func (h *Handler) HandleGetMacro(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	d, ok := h.catalog.Lookup(name)
	if !ok {
		writeError(w, http.StatusNotFound, CodeNotFound, (&NotFoundError{Macro: name}).Error())
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// HandleExecuteNamed handles POST /macros/{name}/execute with a
// {"parameters": {...}} body and returns the full execution envelope.
func (h *Handler) HandleExecuteNamed(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req ExecuteRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, CodeInvalidParameters, "invalid JSON body")
			return
		}
	}
	if req.Parameters == nil {
		req.Parameters = map[string]any{}
	}

	result, err := h.executor.Execute(r.Context(), name, req.Parameters)
	if err != nil {
		h.respondError(w, err)
		return
	}

	resp := ExecuteResponse{
		Success:         true,
		RowCount:        result.RowCount(),
		ExecutionTimeMS: float64(result.Duration.Microseconds()) / 1000.0,
		MacroType:       result.Kind,
	}
	if result.Kind == catalog.KindTable {
		resp.Data = rowsOrEmpty(result.Rows)
		resp.Columns = result.Columns
	} else {
		resp.Data = result.Value
	}
	writeJSON(w, http.StatusOK, resp)
}

// DynamicGet returns the GET operation for one generated route. The macro
// is re-resolved against the current snapshot on every call, so routes from
// a stale snapshot correctly 404 after the macro is withdrawn.
func (h *Handler) DynamicGet(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params := map[string]any{}
		for key, values := range r.URL.Query() {
			if len(values) > 0 && values[0] != "" {
				params[key] = values[0]
			}
		}
		h.executeDynamic(w, r, name, params)
	}
}

// DynamicPost returns the POST operation for one generated table-macro
// route, reading parameters from a JSON object body.
func (h *Handler) DynamicPost(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params := map[string]any{}
		if r.Body != nil && r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
				writeError(w, http.StatusBadRequest, CodeInvalidParameters, "invalid JSON body")
				return
			}
		}
		h.executeDynamic(w, r, name, params)
	}
}

// executeDynamic runs the macro and writes the dynamic-surface response:
// a bare row array for table macros, {"result": value} for scalars.
func (h *Handler) executeDynamic(w http.ResponseWriter, r *http.Request, name string, params map[string]any) {
	result, err := h.executor.Execute(r.Context(), name, params)
	if err != nil {
		h.respondError(w, err)
		return
	}

	if result.Kind == catalog.KindTable {
		writeJSON(w, http.StatusOK, rowsOrEmpty(result.Rows))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": result.Value})
}

// respondError maps the error taxonomy onto HTTP statuses and codes.
// Nothing is swallowed; every failure carries the macro or parameter name.
func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var notFound *NotFoundError
	var paramErr *ParameterError
	var coerceErr *coerce.Error
	var execErr *ExecutionError

	switch {
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, CodeNotFound, err.Error())
	case errors.As(err, &paramErr), errors.As(err, &coerceErr):
		writeError(w, http.StatusBadRequest, CodeInvalidParameters, err.Error())
	case errors.As(err, &execErr):
		writeError(w, http.StatusInternalServerError, CodeExecutionError, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, CodeExecutionError, err.Error())
	}
}

// rowsOrEmpty keeps empty table results as [] rather than null.
func rowsOrEmpty(rows []map[string]any) []map[string]any {
	if rows == nil {
		return []map[string]any{}
	}
	return rows
}

type errorResponse struct {
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code"`
	Timestamp string `json:"timestamp"`
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{
		Detail:    detail,
		ErrorCode: code,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

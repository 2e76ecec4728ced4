package admin

import (
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/gorilla/mux"

	pkgerrors "github.com/nspilman/sms-venue-pipeline/pkg/errors"
	"github.com/nspilman/sms-venue-pipeline/pkg/telemetry"
)

// NewRouter builds the admin HTTP surface: the two operator-triggered
// pipeline endpoints, health/ready, Prometheus metrics exposition,
// and a websocket tail of the ingest log. Every request runs under a fresh
// span context so log lines from the handlers and the stages they drive
// share one trace id.
func NewRouter(d Deps) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/admin/health", d.Health).Methods(http.MethodGet)
	r.HandleFunc("/admin/ready", d.Health).Methods(http.MethodGet)
	r.HandleFunc("/admin/gateway-once", requireJSON(d.GatewayOnce)).Methods(http.MethodPost)
	r.HandleFunc("/admin/parse", requireJSON(d.Parse)).Methods(http.MethodPost)
	r.HandleFunc("/admin/ingest-log/stream", d.StreamIngestLog)

	if d.MetricsHandler != nil {
		r.Handle("/admin/metrics", d.MetricsHandler).Methods(http.MethodGet)
	}

	return recoverer(traced(r))
}

// traced stamps each request's context with a root span and the caller's
// X-Request-Id, which the JSON logger picks up on every line.
func traced(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := telemetry.ContextWithSpanContext(r.Context(), telemetry.NewSpanContext())
		if rid := requestID(r); rid != "" {
			ctx = telemetry.WithRequestID(ctx, rid)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireJSON rejects requests with a non-empty body whose content-type
// isn't application/json.
func requireJSON(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength == 0 {
			next(w, r)
			return
		}
		ct := strings.ToLower(r.Header.Get("content-type"))
		if !strings.HasPrefix(ct, "application/json") {
			pkgerrors.WriteHTTP(w, http.StatusUnsupportedMediaType, pkgerrors.NewEnvelope(pkgerrors.SourceInvalidSpec, "content-type must be application/json", requestID(r), "", nil))
			return
		}
		next(w, r)
	}
}

func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				_ = debug.Stack()
				pkgerrors.WriteHTTP(w, http.StatusInternalServerError, pkgerrors.NewEnvelope(pkgerrors.Internal, "internal server error", requestID(r), "", nil))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

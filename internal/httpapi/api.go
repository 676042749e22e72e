package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"orchflow.org/access/internal/obs"
	"orchflow.org/access/internal/rbac"
)

const serviceName = "access-api"

// ReadyProbe checks the service's backing dependencies.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer over the access-control service.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string
	rbac       *rbac.Service
}

func New(rp ReadyProbe, version string, svc *rbac.Service) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: rp,
		version:    version,
		rbac:       svc,
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/roles", a.handleRoles)
	a.mux.HandleFunc("/v1/roles/", a.handleRoleResource)
	a.mux.HandleFunc("/v1/permissions", a.handlePermissionCatalog)
	a.mux.HandleFunc("/v1/users/", a.handleUserResource)
	a.mux.HandleFunc("/v1/organizations/", a.handleOrganizationScoped)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully instrumented http.Handler for the server.
func (a *API) Handler() http.Handler {
	var handler http.Handler = a.mux
	handler = a.withAuth(handler)
	handler = MaxBodyBytes(handler, 1<<20)
	handler = SecurityHeaders(handler)
	handler = CORS(handler)
	handler = RateLimit(handler, 100, 50)
	handler = LoggingJSON(handler)
	handler = RequestID(handler)
	return obs.Instrument(handler)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

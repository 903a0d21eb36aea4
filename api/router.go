package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/alwitt/cardbank/db"
	"github.com/alwitt/goutils"
	"github.com/apex/log"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// readinessTimeout max duration of a readiness probe DB check
const readinessTimeout = 2 * time.Second

// newRestAPIHandler define the common REST handler base
func newRestAPIHandler(logTags log.Fields, requestIDHeader string) goutils.RestAPIHandler {
	return goutils.RestAPIHandler{
		Component: goutils.Component{
			LogTags: logTags,
			LogTagModifiers: []goutils.LogMetadataModifier{
				goutils.ModifyLogMetadataByRestRequestParam,
			},
		},
		CallRequestIDHeaderField: &requestIDHeader,
	}
}

// HealthHandler liveness and readiness REST handler
type HealthHandler struct {
	goutils.RestAPIHandler
	persistence db.Client
}

/*
NewHealthHandler define new liveness and readiness REST handler

	@param persistence db.Client - persistence client, checked for readiness
	@param requestIDHeader string - header carrying the caller's request ID
	@returns handler
*/
func NewHealthHandler(persistence db.Client, requestIDHeader string) (HealthHandler, error) {
	if persistence == nil {
		return HealthHandler{}, fmt.Errorf("no persistence client provided")
	}
	logTags := log.Fields{"module": "api", "component": "health-handler"}
	return HealthHandler{
		RestAPIHandler: newRestAPIHandler(logTags, requestIDHeader),
		persistence:    persistence,
	}, nil
}

// Alive liveness probe
func (h HealthHandler) Alive(w http.ResponseWriter, r *http.Request) {
	if err := h.WriteRESTResponse(
		w, http.StatusOK, h.GetStdRESTSuccessMsg(r.Context()), nil,
	); err != nil {
		log.WithError(err).WithFields(h.LogTags).Error("Failed to form response")
	}
}

// Ready readiness probe
func (h HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	respCode := http.StatusOK
	response := h.GetStdRESTSuccessMsg(r.Context())
	if err := h.persistence.Ready(ctx); err != nil {
		respCode = http.StatusServiceUnavailable
		response = h.GetStdRESTErrorMsg(r.Context(), respCode, "Persistence not ready", "")
	}
	if err := h.WriteRESTResponse(w, respCode, response, nil); err != nil {
		log.WithError(err).WithFields(h.LogTags).Error("Failed to form response")
	}
}

/*
BuildRouter define the REST API router

	@param encryption EncryptionHandler - encrypt and decrypt handler
	@param records RecordHandler - encryption record CRUD handler
	@param health HealthHandler - liveness and readiness handler
	@param metrics prometheus.Gatherer - metrics to expose
	@returns router
*/
func BuildRouter(
	encryption EncryptionHandler,
	records RecordHandler,
	health HealthHandler,
	metrics prometheus.Gatherer,
) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/encrypt", encryption.EncryptHandler()).Methods(http.MethodPost)
	router.HandleFunc("/decrypt", encryption.DecryptHandler()).Methods(http.MethodGet)

	cardBanks := router.PathPrefix("/card-banks").Subrouter()
	cardBanks.HandleFunc("", records.ListRecordsHandler()).Methods(http.MethodGet)
	cardBanks.HandleFunc("", records.UpdateRecordHandler()).Methods(http.MethodPut)
	cardBanks.HandleFunc("/{id}", records.GetRecordHandler()).Methods(http.MethodGet)
	cardBanks.HandleFunc("/{id}", records.DeleteRecordHandler()).Methods(http.MethodDelete)

	router.HandleFunc("/alive", health.Alive).Methods(http.MethodGet)
	router.HandleFunc("/ready", health.Ready).Methods(http.MethodGet)
	if metrics != nil {
		router.Handle("/metrics", promhttp.HandlerFor(metrics, promhttp.HandlerOpts{}))
	}

	return router
}

// ServerParams HTTP server parameters
type ServerParams struct {
	// ListenAddress host:port to listen on
	ListenAddress string
	// ReadTimeout max duration for reading a request
	ReadTimeout time.Duration
	// WriteTimeout max duration for writing a response
	WriteTimeout time.Duration
}

/*
BuildServer define the HTTP server

	@param params ServerParams - server parameters
	@param router *mux.Router - request router
	@returns server
*/
func BuildServer(params ServerParams, router *mux.Router) *http.Server {
	return &http.Server{
		Addr:         params.ListenAddress,
		Handler:      router,
		ReadTimeout:  params.ReadTimeout,
		WriteTimeout: params.WriteTimeout,
	}
}

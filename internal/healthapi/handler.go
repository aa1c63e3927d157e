// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package healthapi serves the reactor's produced surface over HTTP:
// the nested health report, the latest tick result, and prometheus
// metrics.
package healthapi

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/yaml.v3"

	coreactor "github.com/swarmlab/reactor/core/reactor"
)

// Logger represents the methods the handler uses to log information.
type Logger interface {
	Errorf(string, ...any)
	Debugf(string, ...any)
}

// Reporter is the slice of the swarm reactor the handler reads.
type Reporter interface {
	GetHealthMetrics() coreactor.HealthReport
	IsSystemHealthy() bool
	LatestTick() (coreactor.TickResult, bool)
}

// Config holds the dependencies of a handler.
type Config struct {
	Logger   Logger
	Reporter Reporter

	// Registry serves /metrics. Optional; the route is omitted
	// when nil.
	Registry *prometheus.Registry
}

// Validate returns an error if the config cannot drive a handler.
func (config Config) Validate() error {
	if config.Logger == nil {
		return errors.NotValidf("nil Logger")
	}
	if config.Reporter == nil {
		return errors.NotValidf("nil Reporter")
	}
	return nil
}

type handler struct {
	config Config
}

// NewHandler returns the HTTP handler for the reactor's
// observability surface.
func NewHandler(config Config) (http.Handler, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	h := &handler{config: config}
	router := mux.NewRouter()
	router.HandleFunc("/health", h.health).Methods("GET")
	router.HandleFunc("/tick/latest", h.latestTick).Methods("GET")
	if config.Registry != nil {
		router.Handle("/metrics", promhttp.HandlerFor(
			config.Registry, promhttp.HandlerOpts{})).Methods("GET")
	}
	return router, nil
}

// health serves the nested health report; 503 when unhealthy so load
// balancers can act on the status code alone.
func (h *handler) health(w http.ResponseWriter, req *http.Request) {
	report := h.config.Reporter.GetHealthMetrics()
	status := http.StatusOK
	if !h.config.Reporter.IsSystemHealthy() {
		status = http.StatusServiceUnavailable
	}
	h.writeYAML(w, status, report)
}

func (h *handler) latestTick(w http.ResponseWriter, req *http.Request) {
	result, ok := h.config.Reporter.LatestTick()
	if !ok {
		http.Error(w, "no tick has completed", http.StatusNotFound)
		return
	}
	h.writeYAML(w, http.StatusOK, result)
}

func (h *handler) writeYAML(w http.ResponseWriter, status int, value any) {
	body, err := yaml.Marshal(value)
	if err != nil {
		h.config.Logger.Errorf("marshalling response: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		h.config.Logger.Debugf("writing response: %v", err)
	}
}

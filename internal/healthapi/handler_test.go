// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package healthapi

import (
	"net/http"
	"net/http/httptest"

	jc "github.com/juju/testing/checkers"
	"github.com/prometheus/client_golang/prometheus"
	gc "gopkg.in/check.v1"
	"gopkg.in/yaml.v3"

	coreactor "github.com/swarmlab/reactor/core/reactor"
	coretesting "github.com/swarmlab/reactor/testing"
)

type HandlerSuite struct {
	coretesting.BaseSuite

	reporter *stubReporter
}

var _ = gc.Suite(&HandlerSuite{})

func (s *HandlerSuite) SetUpTest(c *gc.C) {
	s.BaseSuite.SetUpTest(c)
	s.reporter = &stubReporter{healthy: true}
}

type stubReporter struct {
	report  coreactor.HealthReport
	healthy bool
	latest  *coreactor.TickResult
}

func (r *stubReporter) GetHealthMetrics() coreactor.HealthReport {
	return r.report
}

func (r *stubReporter) IsSystemHealthy() bool {
	return r.healthy
}

func (r *stubReporter) LatestTick() (coreactor.TickResult, bool) {
	if r.latest == nil {
		return coreactor.TickResult{}, false
	}
	return *r.latest, true
}

func (s *HandlerSuite) handler(c *gc.C, registry *prometheus.Registry) http.Handler {
	handler, err := NewHandler(Config{
		Logger:   coretesting.NewCheckLogger(c),
		Reporter: s.reporter,
		Registry: registry,
	})
	c.Assert(err, jc.ErrorIsNil)
	return handler
}

func (s *HandlerSuite) get(c *gc.C, handler http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", path, nil)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	return recorder
}

func (s *HandlerSuite) TestConfigValidation(c *gc.C) {
	_, err := NewHandler(Config{Reporter: s.reporter})
	c.Check(err, gc.ErrorMatches, "nil Logger not valid")

	_, err = NewHandler(Config{Logger: coretesting.NoopLogger{}})
	c.Check(err, gc.ErrorMatches, "nil Reporter not valid")
}

func (s *HandlerSuite) TestHealthReportServed(c *gc.C) {
	s.reporter.report = coreactor.HealthReport{
		InstanceID: "test-instance",
		Reactor:    coreactor.ReactorSection{RegisteredUnits: 4},
	}
	recorder := s.get(c, s.handler(c, nil), "/health")
	c.Assert(recorder.Code, gc.Equals, http.StatusOK)
	c.Assert(recorder.Header().Get("Content-Type"), gc.Equals, "application/yaml")

	var report coreactor.HealthReport
	err := yaml.Unmarshal(recorder.Body.Bytes(), &report)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(report.InstanceID, gc.Equals, "test-instance")
	c.Assert(report.Reactor.RegisteredUnits, gc.Equals, 4)
}

func (s *HandlerSuite) TestHealthUnhealthyIs503(c *gc.C) {
	s.reporter.healthy = false
	recorder := s.get(c, s.handler(c, nil), "/health")
	c.Assert(recorder.Code, gc.Equals, http.StatusServiceUnavailable)
	c.Assert(recorder.Body.String(), jc.Contains, "instance-id")
}

func (s *HandlerSuite) TestLatestTickBeforeAnyTick(c *gc.C) {
	recorder := s.get(c, s.handler(c, nil), "/tick/latest")
	c.Assert(recorder.Code, gc.Equals, http.StatusNotFound)
	c.Assert(recorder.Body.String(), jc.Contains, "no tick has completed")
}

func (s *HandlerSuite) TestLatestTickServed(c *gc.C) {
	s.reporter.latest = &coreactor.TickResult{
		TickID:         7,
		UnitsEvaluated: 3,
		UnitsTriggered: 2,
		UnitsExecuted:  2,
	}
	recorder := s.get(c, s.handler(c, nil), "/tick/latest")
	c.Assert(recorder.Code, gc.Equals, http.StatusOK)

	var result coreactor.TickResult
	err := yaml.Unmarshal(recorder.Body.Bytes(), &result)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(result.TickID, gc.Equals, uint64(7))
	c.Assert(result.UnitsExecuted, gc.Equals, 2)
}

func (s *HandlerSuite) TestMetricsServedWhenRegistryConfigured(c *gc.C) {
	registry := prometheus.NewRegistry()
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "swarm_reactor_test_gauge",
		Help: "Test gauge.",
	})
	c.Assert(registry.Register(gauge), jc.ErrorIsNil)
	gauge.Set(3)

	recorder := s.get(c, s.handler(c, registry), "/metrics")
	c.Assert(recorder.Code, gc.Equals, http.StatusOK)
	c.Assert(recorder.Body.String(), jc.Contains, "swarm_reactor_test_gauge 3")
}

func (s *HandlerSuite) TestMetricsAbsentWithoutRegistry(c *gc.C) {
	recorder := s.get(c, s.handler(c, nil), "/metrics")
	c.Assert(recorder.Code, gc.Equals, http.StatusNotFound)
}

// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package observability exposes reactor health as prometheus metrics.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"

	coreactor "github.com/swarmlab/reactor/core/reactor"
)

const metricsNamespace = "swarm_reactor"

// HealthReporter provides the nested health report the collector
// flattens into metrics.
type HealthReporter interface {
	GetHealthMetrics() coreactor.HealthReport
}

// Collector is a prometheus.Collector over a reactor's health report.
type Collector struct {
	reporter HealthReporter

	ticksTotal      *prometheus.Desc
	registeredUnits *prometheus.Desc
	activeCooldowns *prometheus.Desc
	scansTruncated  *prometheus.Desc
	triggerFailures *prometheus.Desc
	throttleRate    *prometheus.Desc
	adjustments     *prometheus.Desc
	successRate     *prometheus.Desc
	avgDuration     *prometheus.Desc
	avgMemory       *prometheus.Desc
	healthy         *prometheus.Desc
	unitExecutions  *prometheus.Desc
	unitFailures    *prometheus.Desc
	groupSelections *prometheus.Desc
}

// NewCollector returns a collector reading from reporter.
func NewCollector(reporter HealthReporter) *Collector {
	return &Collector{
		reporter: reporter,
		ticksTotal: prometheus.NewDesc(
			metricsNamespace+"_ticks_total",
			"Number of reactor ticks run.",
			nil, nil),
		registeredUnits: prometheus.NewDesc(
			metricsNamespace+"_registered_units",
			"Number of currently registered units.",
			nil, nil),
		activeCooldowns: prometheus.NewDesc(
			metricsNamespace+"_active_cooldowns",
			"Number of units currently on cooldown.",
			nil, nil),
		scansTruncated: prometheus.NewDesc(
			metricsNamespace+"_evaluation_scans_truncated_total",
			"Number of evaluation scans cut short by budget or cap.",
			nil, nil),
		triggerFailures: prometheus.NewDesc(
			metricsNamespace+"_trigger_failures_total",
			"Number of trigger predicates that failed.",
			nil, nil),
		throttleRate: prometheus.NewDesc(
			metricsNamespace+"_throttle_rate",
			"Current throttle rate.",
			nil, nil),
		adjustments: prometheus.NewDesc(
			metricsNamespace+"_throttle_adjustments_total",
			"Number of throttle rate adjustments applied.",
			nil, nil),
		successRate: prometheus.NewDesc(
			metricsNamespace+"_execution_success_rate",
			"Aggregate execution success rate.",
			nil, nil),
		avgDuration: prometheus.NewDesc(
			metricsNamespace+"_execution_avg_duration_seconds",
			"Average successful execution duration.",
			nil, nil),
		avgMemory: prometheus.NewDesc(
			metricsNamespace+"_execution_avg_memory_bytes",
			"Average successful execution memory delta.",
			nil, nil),
		healthy: prometheus.NewDesc(
			metricsNamespace+"_healthy",
			"Whether the system health thresholds are all met.",
			nil, nil),
		unitExecutions: prometheus.NewDesc(
			metricsNamespace+"_unit_executions_total",
			"Number of executions per unit.",
			[]string{"unit"}, nil),
		unitFailures: prometheus.NewDesc(
			metricsNamespace+"_unit_failures_total",
			"Number of failed executions per unit.",
			[]string{"unit"}, nil),
		groupSelections: prometheus.NewDesc(
			metricsNamespace+"_mutex_group_selections_total",
			"Number of selections per mutex group.",
			[]string{"group"}, nil),
	}
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.ticksTotal
	ch <- c.registeredUnits
	ch <- c.activeCooldowns
	ch <- c.scansTruncated
	ch <- c.triggerFailures
	ch <- c.throttleRate
	ch <- c.adjustments
	ch <- c.successRate
	ch <- c.avgDuration
	ch <- c.avgMemory
	ch <- c.healthy
	ch <- c.unitExecutions
	ch <- c.unitFailures
	ch <- c.groupSelections
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	report := c.reporter.GetHealthMetrics()

	ch <- prometheus.MustNewConstMetric(
		c.ticksTotal, prometheus.CounterValue, float64(report.Reactor.TicksRun))
	ch <- prometheus.MustNewConstMetric(
		c.registeredUnits, prometheus.GaugeValue, float64(report.Reactor.RegisteredUnits))
	ch <- prometheus.MustNewConstMetric(
		c.activeCooldowns, prometheus.GaugeValue, float64(report.Reactor.ActiveCooldowns))
	ch <- prometheus.MustNewConstMetric(
		c.scansTruncated, prometheus.CounterValue, float64(report.Evaluation.ScansTruncated))
	ch <- prometheus.MustNewConstMetric(
		c.triggerFailures, prometheus.CounterValue, float64(report.Evaluation.TriggerFailures))
	ch <- prometheus.MustNewConstMetric(
		c.throttleRate, prometheus.GaugeValue, report.Throttling.Rate)
	ch <- prometheus.MustNewConstMetric(
		c.adjustments, prometheus.CounterValue, float64(report.Throttling.Adjustments))
	ch <- prometheus.MustNewConstMetric(
		c.successRate, prometheus.GaugeValue, report.Execution.Aggregate.SuccessRate)
	ch <- prometheus.MustNewConstMetric(
		c.avgDuration, prometheus.GaugeValue, report.Execution.Aggregate.AvgDuration.Seconds())
	ch <- prometheus.MustNewConstMetric(
		c.avgMemory, prometheus.GaugeValue, float64(report.Execution.Aggregate.AvgMemory))
	healthy := 0.0
	if report.Execution.Healthy {
		healthy = 1.0
	}
	ch <- prometheus.MustNewConstMetric(c.healthy, prometheus.GaugeValue, healthy)

	for id, health := range report.Execution.Units {
		ch <- prometheus.MustNewConstMetric(
			c.unitExecutions, prometheus.CounterValue, float64(health.Executions), id)
		ch <- prometheus.MustNewConstMetric(
			c.unitFailures, prometheus.CounterValue, float64(health.Failures), id)
	}
	for _, group := range report.Mutex.Groups {
		ch <- prometheus.MustNewConstMetric(
			c.groupSelections, prometheus.CounterValue, float64(group.SelectionCount), group.Group)
	}
}

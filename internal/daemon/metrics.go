package daemon

// Copyright (C) 2025-2026 The Watt Authors
// SPDX-License-Identifier: BSD-3-Clause

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"watt/internal/hal"
	"watt/internal/telemetry"
)

// exporter serves the per-tick gauges over HTTP when daemon.metrics_listen is
// configured.
type exporter struct {
	listenAddr string
	registry   *prometheus.Registry

	powerSource  prometheus.Gauge
	avgUsage     prometheus.Gauge
	maxTempC     prometheus.Gauge
	batteryPct   prometheus.Gauge
	batteryRateW prometheus.Gauge
	turboOn      prometheus.Gauge
	pollInterval prometheus.Gauge
}

func newExporter(listenAddr string) *exporter {
	e := &exporter{
		listenAddr: listenAddr,
		registry:   prometheus.NewRegistry(),
		powerSource: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "watt_on_battery",
			Help: "1 when the active power source is the battery",
		}),
		avgUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "watt_cpu_avg_usage_ratio",
			Help: "Average CPU utilization over the last tick",
		}),
		maxTempC: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "watt_max_temp_celsius",
			Help: "Hottest thermal zone or hwmon sensor",
		}),
		batteryPct: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "watt_battery_charge_percent",
			Help: "Battery charge percentage",
		}),
		batteryRateW: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "watt_battery_rate_watts",
			Help: "Smoothed battery rate, negative when discharging",
		}),
		turboOn: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "watt_turbo_enabled",
			Help: "1 when the last resolved turbo target is on",
		}),
		pollInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "watt_poll_interval_seconds",
			Help: "Current adaptive poll interval",
		}),
	}
	e.registry.MustRegister(e.powerSource, e.avgUsage, e.maxTempC,
		e.batteryPct, e.batteryRateW, e.turboOn, e.pollInterval)
	return e
}

func (e *exporter) serve() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{}))
	slog.Info("starting metrics server", slog.String("address", e.listenAddr))
	go func() {
		server := &http.Server{
			Addr:              e.listenAddr,
			Handler:           mux,
			ReadHeaderTimeout: 3 * time.Second,
		}
		if err := server.ListenAndServe(); err != nil {
			slog.Error("metrics server stopped", slog.String("error", err.Error()))
		}
	}()
}

func (e *exporter) update(sample *telemetry.Sample, turboState hal.TurboState, interval time.Duration) {
	if sample.Source == hal.SourceBattery {
		e.powerSource.Set(1)
	} else {
		e.powerSource.Set(0)
	}
	if sample.UsageKnown {
		e.avgUsage.Set(sample.AvgUsage)
	}
	if sample.TempKnown {
		e.maxTempC.Set(sample.MaxTempC)
	}
	if sample.Battery.ChargeKnown {
		e.batteryPct.Set(sample.Battery.ChargePct)
	}
	if sample.Battery.RateKnown {
		e.batteryRateW.Set(sample.Battery.RateW)
	}
	if turboState == hal.TurboOn {
		e.turboOn.Set(1)
	} else {
		e.turboOn.Set(0)
	}
	e.pollInterval.Set(interval.Seconds())
}

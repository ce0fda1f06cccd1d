package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DeductAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_deduct_attempts_total",
		Help: "Total number of stock deduction attempts",
	})

	DeductSuccessTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_deduct_success_total",
		Help: "Total number of successful stock deductions",
	})

	DeductRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_deduct_rejected_total",
		Help: "Total number of rejected stock deductions",
	}, []string{"reason"})

	RollbackTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_rollback_total",
		Help: "Total number of stock rollbacks",
	}, []string{"outcome"})

	DeductLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stock_deduct_latency_seconds",
		Help:    "Latency of atomic stock deduction",
		Buckets: prometheus.DefBuckets,
	})

	TokenAcquireTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "admission_token_acquire_total",
		Help: "Total number of admission attempts by outcome",
	}, []string{"outcome"})

	OrdersPersistedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_persisted_total",
		Help: "Total number of orders persisted by the ingest pipeline",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of order persistence failures",
	}, []string{"reason"})

	IngestFlushTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_flush_total",
		Help: "Total number of ingest buffer flushes",
	}, []string{"trigger"})

	IngestFlushLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ingest_flush_latency_seconds",
		Help:    "Latency of ingest buffer flushes",
		Buckets: prometheus.DefBuckets,
	})

	DeadLettersTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dead_letters_total",
		Help: "Total number of messages escalated to the dead-letter topic",
	})

	OrdersTimedOutTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_timed_out_total",
		Help: "Total number of orders closed by the timeout sweep",
	})

	ReconciliationRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciliation_runs_total",
		Help: "Total number of reconciliation runs by outcome",
	}, []string{"outcome"})

	ReconciliationDiscrepancies = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reconciliation_discrepancies_total",
		Help: "Total number of SKU discrepancies detected",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)

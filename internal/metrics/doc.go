/*
Package metrics provides Prometheus metrics for tiercycle runs and store calls.

# Overview

Collector owns a private registry, so tests can create as many collectors as they
like without tripping over the global default registry.

	┌─────────────┐
	│  Collector  │  ← lifecycle.Recorder + store instrumentation
	└──────┬──────┘
	       │
	   ┌───┴──────────────────────────┐
	   │                              │
	┌──▼───────────┐        ┌─────────▼──────┐
	│  Prometheus  │        │ HTTP Endpoints │
	│   Registry   │        │  /metrics      │
	└──────────────┘        │  /health       │
	                        └────────────────┘

# Usage

	collector, err := metrics.NewCollector(&metrics.Config{
		Enabled:   true,
		Addr:      ":9090",
		Path:      "/metrics",
		Namespace: "tiercycle",
	}, logger)
	if err != nil {
		return err
	}
	if err := collector.Start(ctx); err != nil {
		return err
	}
	defer collector.Stop(context.Background())

	coord := lifecycle.NewCoordinator(store, lifecycle.WithRecorder(collector))

# Exported Metrics

Pipeline:

	tiercycle_objects_processed_total{outcome,stage}
	tiercycle_object_duration_seconds{outcome}
	tiercycle_object_size_bytes
	tiercycle_objects_in_flight
	tiercycle_runs_total{status}
	tiercycle_run_duration_seconds
	tiercycle_last_run_objects{kind}
	tiercycle_last_run_timestamp_seconds

Store (recorded by internal/storage/resilient):

	tiercycle_store_operations_total{backend,operation,status}
	tiercycle_store_operation_duration_seconds{backend,operation}
	tiercycle_store_errors_total{backend,operation,type}
	tiercycle_store_retries_total{backend,operation}
	tiercycle_store_circuit_state{backend}

Scheduling:

	tiercycle_lock_attempts_total{result}
	tiercycle_triggers_total{source}

A disabled collector accepts every Record call and drops it, so callers never need
to nil-check.
*/
package metrics

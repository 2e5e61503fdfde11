// Package metrics defines the sinks that record booking and charging
// session events. Sinks like PromSink and InfluxSink live in infra/metrics
// and register themselves with the factory; NewMetricsSink returns a
// MultiSink when several sinks are configured.
package metrics

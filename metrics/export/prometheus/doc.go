// Package prometheus renders goOTP engine counters in Prometheus text
// exposition format. Counters are named gootp_*_total and the Validate latency
// histogram is gootp_validate_latency_seconds. Callers mount [PrometheusExporter.Handler].
package prometheus

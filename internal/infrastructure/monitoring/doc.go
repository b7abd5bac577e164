/*
Package monitoring provides Prometheus-based metrics collection.

Tracks HTTP request metrics, terminal session lifecycle (created, killed,
active), command validation outcomes by safety tier, output stream
subscriptions, and peer service health.

Usage:

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	metrics.RecordValidation("dangerous", true)
*/
package monitoring

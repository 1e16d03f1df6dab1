package mqtt

import (
	"github.com/sweeney/blinkenbox/internal/metrics"
)

const subSystem = "mqtt"

var (
	// Total number of log lines dropped before reaching the publisher
	logLinesDroppedTotal = metrics.MustRegisterCounter(subSystem,
		"log_lines_dropped_total",
		"Total number of log lines dropped before reaching the publisher")
	// Total number of failed publishes
	publishErrorsTotal = metrics.MustRegisterCounter(subSystem,
		"publish_errors_total",
		"Total number of failed publishes")
	// Total number of messages overwritten in the offline buffer
	bufferDroppedTotal = metrics.MustRegisterCounter(subSystem,
		"offline_buffer_dropped_total",
		"Total number of messages overwritten in the offline buffer")
)

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "snippetserver"

	metricLabelHandler   = "handler"
	metricLabelStatus    = "status"
	metricLabelSource    = "source"
	metricLabelRemote    = "remote"
	metricLabelOperation = "operation"
)

// Metrics is the structure that holds all prometheus metrics
var (
	// ServiceRequestCounter count the number of requests for each service function
	ServiceRequestCounter = newCounterVec(
		"service_request_count",
		"Count of requests for each handler",
		metricLabelHandler, metricLabelStatus, metricLabelSource,
	)
	// ServiceRequestDuration observe the duration of requests for each service function
	ServiceRequestDuration = newSummaryVec(
		"service_request_duration_seconds",
		"Seconds to unmarshal requests, execute a service function and marshal its reponses",
		metricLabelHandler, metricLabelStatus, metricLabelSource,
	)
	// MutationsCounter count the store mutations by operation and result
	MutationsCounter = newCounterVec(
		"mutations_count",
		"Number of store mutations",
		metricLabelOperation, metricLabelStatus,
	)
	// PersistFailedCounter count the number of failed attempts to write the collection to the backend
	PersistFailedCounter = newCounterVec(
		"persist_failed_count",
		"Number of failures to write the snippet collection to its backend",
	)
	// ImportedSnippetsCounter count the snippets added through imports
	ImportedSnippetsCounter = newCounterVec(
		"imported_snippets_count",
		"Number of snippets added by imports",
	)
	// SnippetsGauge number of snippets in the collection
	SnippetsGauge = newGaugeVec(
		"snippets_total",
		"Number of snippets currently in the collection",
	)
	// NumSocketsGauge keep track of the total number of open sockets
	NumSocketsGauge = newGaugeVec(
		"num_sockets_total",
		"Total number of currently open socket connections",
		metricLabelRemote,
	)
)

func newSummaryVec(name, help string, labels ...string) *prometheus.SummaryVec {
	vec := prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, labels)
	prometheus.MustRegister(vec)
	return vec
}

func newCounterVec(name, help string, labels ...string) *prometheus.CounterVec {
	vec := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, labels)
	prometheus.MustRegister(vec)
	return vec
}

func newGaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	vec := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, labels)
	prometheus.MustRegister(vec)
	return vec
}

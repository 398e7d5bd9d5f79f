package obs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds every storefront collector. It is served at /metrics.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	// CartMutations counts ledger mutations by operation.
	CartMutations = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_cart_mutations_total",
		Help: "Cart ledger mutations by operation.",
	}, []string{"op"})

	// OptimisticMutations counts settled optimistic add-to-cart calls by outcome.
	OptimisticMutations = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_optimistic_mutations_total",
		Help: "Settled optimistic add-to-cart mutations by outcome.",
	}, []string{"outcome"})

	// CacheLookups counts catalog cache lookups by cache and result.
	CacheLookups = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_catalog_cache_lookups_total",
		Help: "Catalog cache lookups by cache name and result (hit, miss, stale).",
	}, []string{"cache", "result"})

	// CatalogFetchSeconds observes remote catalog request latency.
	CatalogFetchSeconds = factory.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storefront_catalog_fetch_seconds",
		Help:    "Remote catalog request latency by resource.",
		Buckets: prometheus.DefBuckets,
	}, []string{"resource"})

	// HTTPRequests counts API requests by method, route pattern and status.
	HTTPRequests = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_http_requests_total",
		Help: "HTTP requests by method, route pattern and status code.",
	}, []string{"method", "route", "status"})

	// HTTPRequestSeconds observes API latency by route pattern.
	HTTPRequestSeconds = factory.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storefront_http_request_seconds",
		Help:    "HTTP request latency by route pattern.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	// PersistWrites counts durable cart writes by result.
	PersistWrites = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_persist_writes_total",
		Help: "Durable cart snapshot writes by result (ok, error).",
	}, []string{"result"})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

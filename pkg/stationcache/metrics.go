package stationcache

import "github.com/prometheus/client_golang/prometheus"

var (
	cacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "tunerproxy_lineup_cache_hits_total", Help: "Lineups served from cache"},
	)
	fetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "tunerproxy_lineup_fetches_total", Help: "Backend lineup fetches"},
		[]string{"result"},
	)
	staleTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "tunerproxy_lineup_stale_total", Help: "Failed fetches answered with a previous lineup"},
	)
)

func Collectors() []prometheus.Collector {
	return []prometheus.Collector{cacheHits, fetchesTotal, staleTotal}
}

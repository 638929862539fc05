// Package metrics exposes supervisor activity as Prometheus series: how
// many children each service has spawned, how many it currently has
// in-flight (meaningful only for wait mode), and how many wait-mode
// children the Reaper has collected (nowait children carry no
// back-reference to their service and are not counted). Wiring an HTTP endpoint is optional (see --metrics-address);
// the counters themselves are always updated.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	SpawnsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "superserver",
		Name:      "spawns_total",
		Help:      "Number of child processes spawned per service.",
	}, []string{"service", "protocol", "mode"})

	ReapsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "superserver",
		Name:      "reaps_total",
		Help:      "Number of wait-mode child processes reaped per service.",
	}, []string{"service"})

	ActiveChildren = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "superserver",
		Name:      "active_children",
		Help:      "Wait-mode children currently holding their service's socket (0 or 1 per service).",
	}, []string{"service"})
)

func init() {
	prometheus.MustRegister(SpawnsTotal, ReapsTotal, ActiveChildren)
}

// Serve starts a background HTTP server exposing /metrics on addr. A
// listen failure is logged, not fatal: metrics are diagnostic, not load
// bearing, so the supervisor keeps running without them rather than
// refusing to start.
func Serve(addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		logrus.Infof("metrics: serving on %s", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			logrus.Warnf("metrics: server stopped: %v", err)
		}
	}()
}

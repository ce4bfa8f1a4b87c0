package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "trades_total", Help: "Buy requests acknowledged by the venue"},
		[]string{"symbol", "direction"},
	)
	SettlementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "settlements_total", Help: "Contracts settled, by outcome"},
		[]string{"symbol", "outcome"},
	)
	ReconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "venue_reconnects_total", Help: "Venue websocket reconnects"},
	)
	BuyRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "buy_retries_total", Help: "Failed buy attempts that were retried"},
	)
	HeartbeatFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "heartbeat_failures_total", Help: "Keepalive pings that failed to send"},
	)
	GlobalWinAmount = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "global_win_amount", Help: "Accumulated profit across all signals"},
	)
	GlobalLossAmount = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "global_loss_amount", Help: "Accumulated loss across all signals"},
	)
)

func init() {
	prometheus.MustRegister(
		TradesTotal,
		SettlementsTotal,
		ReconnectsTotal,
		BuyRetriesTotal,
		HeartbeatFailuresTotal,
		GlobalWinAmount,
		GlobalLossAmount,
	)
}

func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}

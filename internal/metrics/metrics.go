package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SubmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "solexec_submissions_total", Help: "Submit results by outcome"},
		[]string{"outcome", "code"},
	)
	SubmitAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "solexec_submit_attempts_total", Help: "Send attempts per endpoint"},
		[]string{"endpoint"},
	)
	PreSignTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "solexec_presign_total", Help: "Pre-sign calls by result code"},
		[]string{"code"},
	)
	SimulationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "solexec_simulations_total", Help: "Simulations by source and result"},
		[]string{"source", "ok"},
	)
	RotationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "solexec_endpoint_rotations_total", Help: "Endpoint pool rotations"},
	)
	BusyWallets = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "solexec_busy_wallets", Help: "Wallets currently flagged busy"},
	)
)

func init() {
	prometheus.MustRegister(SubmissionsTotal, SubmitAttemptsTotal, PreSignTotal, SimulationsTotal, RotationsTotal, BusyWallets)
}

func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}

package metrics

import (
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CrawlPlayers = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kudosu_crawl_players_total",
		Help: "Players whose best lists were crawled",
	})
	CrawlErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kudosu_crawl_errors_total",
		Help: "Players skipped due to fetch or store errors",
	})
	AggregateDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "kudosu_aggregate_duration_seconds",
		Help:    "Relationship aggregation duration seconds",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})
	RecommendDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "kudosu_recommend_duration_seconds",
		Help:    "Recommendation query duration seconds",
		Buckets: prometheus.DefBuckets,
	})
	APIRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kudosu_api_retries_total",
		Help: "Total API retry attempts",
	}, []string{"endpoint"})
	MapDownloads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kudosu_map_downloads_total",
		Help: "Chart file download attempts by result",
	}, []string{"result"})
	CommandRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kudosu_command_runs_total",
		Help: "CLI command invocations",
	}, []string{"command"})
	CommandErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kudosu_command_errors_total",
		Help: "CLI command failures",
	}, []string{"command"})
)

func init() {
	prometheus.MustRegister(CrawlPlayers, CrawlErrors, AggregateDuration, RecommendDuration,
		APIRetries, MapDownloads, CommandRuns, CommandErrors)
}

// StartServer starts a metrics HTTP server on addr (e.g., ":9090").
func StartServer(addr string) {
	if addr == "" {
		addr = os.Getenv("METRICS_ADDR")
	}
	if addr == "" {
		return
	}
	http.Handle("/metrics", promhttp.Handler())
	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	go func() { _ = http.ListenAndServe(addr, nil) }()
}

// ObserveAggregateDuration records an aggregation run duration.
func ObserveAggregateDuration(start time.Time) {
	AggregateDuration.Observe(time.Since(start).Seconds())
}

// IncAPIRetry increments the retry counter for an endpoint.
func IncAPIRetry(endpoint string) { APIRetries.WithLabelValues(endpoint).Inc() }

// IncCommandRun increments the run counter for a CLI command.
func IncCommandRun(cmd string) { CommandRuns.WithLabelValues(cmd).Inc() }

// IncCommandError increments the error counter for a CLI command.
func IncCommandError(cmd string) { CommandErrors.WithLabelValues(cmd).Inc() }

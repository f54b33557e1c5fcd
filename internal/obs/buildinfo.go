package obs

import (
	"runtime"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	buildInfoOnce sync.Once

	// buildInfo carries one series for the release that is serving, so a
	// rollout shows up as the version label flipping on the dashboard.
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name:        "build_info",
			Help:        "Release of the risk register API that is serving, always 1.",
			ConstLabels: prometheus.Labels{"service": "rcsa-api"},
		},
		[]string{"version", "commit", "go_version"},
	)
)

// InitBuildInfo publishes the running release. A second call replaces the
// previous series rather than adding one.
func InitBuildInfo(version, commit string) {
	buildInfoOnce.Do(func() {
		prometheus.MustRegister(buildInfo)
	})
	if version == "" {
		version = "dev"
	}
	if commit == "" {
		commit = "unknown"
	}
	buildInfo.Reset()
	buildInfo.WithLabelValues(version, commit, runtime.Version()).Set(1)
}

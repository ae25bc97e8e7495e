// Package metrics exposes Prometheus counters and histograms for the
// generation pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once

	stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dreamhouse",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages in seconds.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"stage", "success"},
	)
	areaImages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dreamhouse",
			Subsystem: "pipeline",
			Name:      "area_images_total",
			Help:      "Per-area image outcomes.",
		},
		[]string{"outcome"},
	)
	videoOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dreamhouse",
			Subsystem: "video",
			Name:      "operations_total",
			Help:      "Video operation outcomes.",
		},
		[]string{"outcome"},
	)
	videoPolls = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "dreamhouse",
			Subsystem: "video",
			Name:      "polls_total",
			Help:      "Video operation polls issued.",
		},
	)
	recolors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dreamhouse",
			Subsystem: "recolor",
			Name:      "requests_total",
			Help:      "Recolor outcomes.",
		},
		[]string{"outcome"},
	)
	demotions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "dreamhouse",
			Subsystem: "capability",
			Name:      "demotions_total",
			Help:      "Times the premium capability was demoted after a credential rejection.",
		},
	)
)

func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(stageDuration, areaImages, videoOperations, videoPolls, recolors, demotions)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	Register()
	return promhttp.Handler()
}

func RecordStage(stage string, duration time.Duration, success bool) {
	Register()
	stageDuration.WithLabelValues(stage, strconv.FormatBool(success)).Observe(duration.Seconds())
}

func RecordAreaImage(outcome string) {
	Register()
	areaImages.WithLabelValues(outcome).Inc()
}

func RecordVideo(outcome string) {
	Register()
	videoOperations.WithLabelValues(outcome).Inc()
}

func RecordVideoPoll() {
	Register()
	videoPolls.Inc()
}

func RecordRecolor(outcome string) {
	Register()
	recolors.WithLabelValues(outcome).Inc()
}

func RecordDemotion() {
	Register()
	demotions.Inc()
}

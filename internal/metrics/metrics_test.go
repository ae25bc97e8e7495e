package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHandlerExposesPipelineMetrics(t *testing.T) {
	Register()
	Register()

	RecordStage("descriptions", 2*time.Second, true)
	RecordAreaImage("ready")
	RecordVideo("failed")
	RecordVideoPoll()
	RecordRecolor("applied")
	RecordDemotion()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	for _, name := range []string{
		"dreamhouse_pipeline_stage_duration_seconds",
		`dreamhouse_pipeline_area_images_total{outcome="ready"}`,
		`dreamhouse_video_operations_total{outcome="failed"}`,
		"dreamhouse_video_polls_total",
		`dreamhouse_recolor_requests_total{outcome="applied"}`,
		"dreamhouse_capability_demotions_total",
	} {
		if !strings.Contains(string(body), name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}

package telemetry

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kunal/infer-scheduler/internal/scheduler"
)

func TestCollectorTracksAndSnapshots(t *testing.T) {
	c := NewCollector("node-1", "false")
	s := scheduler.New(scheduler.Config{}, nil, nil)
	c.Track("resnet50", s)

	snaps := c.Snapshots()
	if len(snaps) != 1 || snaps[0].Model != "resnet50" {
		t.Fatalf("Snapshots() = %+v, want one entry for resnet50", snaps)
	}
}

func TestCollectorServePrometheus(t *testing.T) {
	c := NewCollector("node-1", "false")
	s := scheduler.New(scheduler.Config{}, nil, nil)
	c.Track("resnet50", s)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	c.ServePrometheus(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, `scheduler_queue_size{node="node-1",model="resnet50"}`) {
		t.Fatalf("expected queue size metric line, got:\n%s", body)
	}
	if !strings.Contains(body, "gpu_vram_free_gb") {
		t.Fatalf("expected gpu metric line, got:\n%s", body)
	}
}

package registry

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kunal/infer-scheduler/internal/dashboard"
	"github.com/kunal/infer-scheduler/internal/scheduler"
	"github.com/kunal/infer-scheduler/pkg/telemetry"
)

func TestPollerBroadcastsTrackedModelState(t *testing.T) {
	reg := NewModelRegistry()
	s := scheduler.New(scheduler.Config{}, nil, nil)
	reg.Register("resnet50", s, []*ReplicaEntry{{ID: 1, Healthy: true}})

	collector := telemetry.NewCollector("node-1", "false")
	collector.Track("resnet50", s)

	broadcaster := dashboard.NewBroadcaster()
	srv := httptest.NewServer(http.HandlerFunc(broadcaster.HandleWS))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	poller := NewPoller(reg, collector, broadcaster, time.Hour)

	// The server registers the client asynchronously right after the
	// handshake completes; retry the broadcast until it lands.
	deadline := time.Now().Add(time.Second)
	var data []byte
	for {
		poller.broadcastOnce()
		conn.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
		_, msg, err := conn.ReadMessage()
		if err == nil {
			data = msg
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("never received a broadcast: %v", err)
		}
	}

	if !strings.Contains(string(data), `"model":"resnet50"`) {
		t.Fatalf("expected broadcast state to include resnet50, got: %s", data)
	}
	if !strings.Contains(string(data), `"healthy_replicas":1`) {
		t.Fatalf("expected healthy_replicas=1, got: %s", data)
	}
}

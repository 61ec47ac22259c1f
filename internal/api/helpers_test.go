package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/idiotic-core/internal/automation"
	"github.com/nerrad567/idiotic-core/internal/device"
	"github.com/nerrad567/idiotic-core/internal/infrastructure/config"
	"github.com/nerrad567/idiotic-core/internal/infrastructure/logging"
	"github.com/nerrad567/idiotic-core/internal/protocol"
)

const sensorID = "62:01:94:31:6A:EA"

type testEnv struct {
	srv      *Server
	http     *httptest.Server
	registry *device.Registry
	engine   *automation.Engine
	feed     *device.Feed
}

type fakeChecker struct{ err error }

func (c fakeChecker) HealthCheck(context.Context) error { return c.err }

// newTestEnv wires a registry, feed, engine, dispatcher and hub behind
// an httptest server, with a light "hue-2" registered.
func newTestEnv(t *testing.T, checks map[string]HealthChecker) *testEnv {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	log := logging.NewWithWriter(io.Discard, config.LoggingConfig{Level: "error"}, "test")

	catalog := device.NewCatalog()
	specs := []device.ClassSpec{
		{Name: "TempSensor", Attributes: []device.AttributeSpec{
			{Name: "temp", Default: 0.0},
			{Name: "firmware", Default: "1.0", ReadOnly: true},
		}},
		{Name: "HueLight", Attributes: []device.AttributeSpec{{Name: "brightness", Default: 0.0}}},
	}
	for _, s := range specs {
		if err := catalog.RegisterSpec(s); err != nil {
			t.Fatalf("RegisterSpec(%s) error = %v", s.Name, err)
		}
	}
	reg := device.NewRegistry(catalog)
	light, err := catalog.New(ctx, "HueLight", "hue-2", "Living Room 2")
	if err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(light); err != nil {
		t.Fatal(err)
	}

	wsCfg := config.WebSocketConfig{DevicePath: "/embedded", MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}
	hub := NewHub(wsCfg, log)
	go hub.Run(ctx)

	feed := device.NewFeed(64)
	reg.SetFeed(feed)
	feed.AddSink(device.ConnectionSink(reg))
	feed.AddSink(hub)
	go feed.Run(ctx)

	engine := automation.NewEngine(automation.EngineConfig{}, log)
	engine.SetHub(hub)
	dispatcher := protocol.NewDispatcher(reg, engine, log)
	dispatcher.AddObserver(hub)

	srv, err := New(Deps{
		WS:         wsCfg,
		Logger:     log,
		Registry:   reg,
		Dispatcher: dispatcher,
		Engine:     engine,
		Feed:       feed,
		Hub:        hub,
		Checks:     checks,
		Version:    "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testEnv{srv: srv, http: ts, registry: reg, engine: engine, feed: feed}
}

func (e *testEnv) do(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.http.URL+path, r)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil && !errors.Is(err, io.EOF) {
		t.Fatalf("decoding %s %s: %v", method, path, err)
	}
	return resp.StatusCode, out
}

func (e *testEnv) dial(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.http.URL, "http") + path
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readJSON reads one text frame, failing after two seconds.
func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	//nolint:errcheck // test deadline
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msgType, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	if msgType != websocket.TextMessage {
		t.Fatalf("message type = %d, want text", msgType)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal %s: %v", data, err)
	}
	return out
}

func writeJSONFrame(t *testing.T, conn *websocket.Conn, frame string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
}

// waitFor polls cond until it holds or a second passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/framestream/internal/codec"
	"github.com/smazurov/framestream/internal/nats"
	"github.com/smazurov/framestream/internal/streaming"
	"github.com/smazurov/framestream/internal/wire"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func pngPayload(t *testing.T) []byte {
	t.Helper()
	data, err := codec.EncodeBytes(codec.PNG{}, codec.NewRawBuffer(2, 2, codec.RGBA32))
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestDecodeWritesLayout(t *testing.T) {
	dir := t.TempDir()
	payload := pngPayload(t)

	good := filepath.Join(dir, "frame.bin")
	if err := os.WriteFile(good, wire.Encode("cam1/2025-01-27_10-30-00-125.png", payload), 0o644); err != nil {
		t.Fatal(err)
	}

	out := filepath.Join(dir, "out")
	c := CreateDecodeCmd()
	var stdout bytes.Buffer
	c.SetOut(&stdout)
	c.SetArgs([]string{good, "--out", out})
	if err := c.Execute(); err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(out, "cam1", "2025-01-27_10-30-00-125.png"))
	if err != nil {
		t.Fatalf("decoded frame missing: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Error("decoded payload differs")
	}
	if !strings.Contains(stdout.String(), "cam1/2025-01-27_10-30-00-125.png") {
		t.Errorf("unexpected output %q", stdout.String())
	}
}

func TestDecodeReportsMalformed(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.bin")
	if err := os.WriteFile(bad, []byte{1, 2}, 0o644); err != nil {
		t.Fatal(err)
	}

	c := CreateDecodeCmd()
	var stderr bytes.Buffer
	c.SetOut(io.Discard)
	c.SetErr(&stderr)
	c.SetArgs([]string{bad, filepath.Join(dir, "missing.bin"), "--out", filepath.Join(dir, "out")})
	err := c.Execute()
	if err == nil || !strings.Contains(err.Error(), "2 of 2") {
		t.Errorf("expected 2 failures, got %v", err)
	}
	if !strings.Contains(stderr.String(), "bad.bin") {
		t.Errorf("stderr = %q", stderr.String())
	}
}

func TestReceiveRequiresOneSource(t *testing.T) {
	tests := [][]string{
		{},
		{"--url", "ws://127.0.0.1:1/Image", "--nats", "nats://127.0.0.1:1"},
	}
	for _, args := range tests {
		c := CreateReceiveCmd()
		c.SetOut(io.Discard)
		c.SetErr(io.Discard)
		c.SetArgs(append(args, "--out", t.TempDir()))
		if err := c.Execute(); err == nil {
			t.Errorf("args %v: expected error", args)
		}
	}
}

func TestReceiveFromSocket(t *testing.T) {
	hub := streaming.NewHub(time.Second, nil, testLogger())
	srv := streaming.NewServer(hub, streaming.ServerOptions{Logger: testLogger()})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		hub.CloseAll()
		ts.Close()
	})
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + srv.Path()

	out := t.TempDir()
	c := CreateReceiveCmd()
	c.SetOut(io.Discard)
	c.SetArgs([]string{"--url", url, "--out", out, "--reconnect", "20ms"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.ExecuteContext(ctx) }()

	msg := wire.Encode("cam2/frame.png", pngPayload(t))
	want := filepath.Join(out, "cam2", "frame.png")
	deadline := time.Now().Add(3 * time.Second)
	for {
		_ = hub.Broadcast(msg)
		if _, err := os.Stat(want); err == nil {
			break
		}
		if time.Now().After(deadline) {
			cancel()
			t.Fatal("frame was not saved")
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("receive returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("receive did not stop")
	}
}

// stateController is a minimal control target for the bridge.
type stateController struct {
	mu      sync.Mutex
	enabled bool
	delay   int
}

func (s *stateController) SetEnabled(enabled bool, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = enabled
}

func (s *stateController) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

func (s *stateController) SetDelay(delay int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = delay
}

func (s *stateController) Delay() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delay
}

func TestControlCommands(t *testing.T) {
	server := nats.NewServer(nats.ServerOptions{Port: -1, Logger: testLogger()})
	if err := server.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(server.Stop)

	ctrl := &stateController{enabled: true}
	bridge := nats.NewControlBridge(server.ClientURL(), ctrl, testLogger())
	if err := bridge.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(bridge.Stop)

	run := func(args ...string) nats.StateMessage {
		t.Helper()
		c := CreateControlCmd()
		var stdout bytes.Buffer
		c.SetOut(&stdout)
		c.SetArgs(append(args, "--nats", server.ClientURL()))
		if err := c.Execute(); err != nil {
			t.Fatalf("control %v: %v", args, err)
		}
		var state nats.StateMessage
		if err := json.Unmarshal(stdout.Bytes(), &state); err != nil {
			t.Fatalf("invalid output %q: %v", stdout.String(), err)
		}
		return state
	}

	if state := run("disable"); state.Enabled || ctrl.Enabled() {
		t.Errorf("disable: state %+v, controller enabled %v", state, ctrl.Enabled())
	}
	if state := run("delay", "4"); state.Delay != 4 || ctrl.Delay() != 4 {
		t.Errorf("delay: state %+v, controller delay %d", state, ctrl.Delay())
	}
	if state := run("enable", "--reason", "test"); !state.Enabled {
		t.Errorf("enable: state %+v", state)
	}

	c := CreateControlCmd()
	c.SetOut(io.Discard)
	c.SetErr(io.Discard)
	c.SetArgs([]string{"delay", "-3", "--nats", server.ClientURL()})
	if err := c.Execute(); err == nil {
		t.Error("expected error for negative delay")
	}
}

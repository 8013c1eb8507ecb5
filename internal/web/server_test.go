package web

import (
	"bufio"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"listen-along/internal/sse"
)

// freeAddr reserves an ephemeral port and releases it for the server.
func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserving port: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

// waitForServer polls the health endpoint until the listener is up.
func waitForServer(t *testing.T, addr string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get("http://" + addr + "/healthz")
		if err == nil {
			resp.Body.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("server never came up")
}

func TestRun_ShutdownDeliversFinalEventToLiveSubscriber(t *testing.T) {
	hub := sse.NewHub(log.New(io.Discard))
	addr := freeAddr(t)

	srv := NewServer(ServerConfig{
		Addr:     addr,
		AdminKey: "secret",
		Hub:      hub,
		Logger:   log.New(io.Discard),
	})

	hookRan := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- srv.Run(func() {
			hub.Shutdown()
			close(hookRan)
		})
	}()

	waitForServer(t, addr)

	// A client timeout keeps a regression from hanging the test on a
	// stream that never closes.
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + addr + "/api/events")
	if err != nil {
		t.Fatalf("GET /api/events: %v", err)
	}
	defer resp.Body.Close()

	// Reading the connected ack guarantees the subscriber is registered
	// before the interrupt arrives.
	scanner := bufio.NewScanner(resp.Body)
	var first string
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			first = line
			break
		}
	}
	if !strings.Contains(first, `"Connected"`) {
		t.Fatalf("first event = %q, want connected ack", first)
	}

	if err := syscall.Kill(syscall.Getpid(), syscall.SIGTERM); err != nil {
		t.Fatalf("sending SIGTERM: %v", err)
	}

	var rest []string
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			rest = append(rest, line)
		}
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after SIGTERM with a live subscriber")
	}

	select {
	case <-hookRan:
	default:
		t.Error("shutdown hook never ran")
	}

	want := `data: {"message":"Server connection lost..."}`
	found := false
	for _, line := range rest {
		if line == want {
			found = true
		}
	}
	if !found {
		t.Errorf("stream ended with %v, want final event %q", rest, want)
	}
}

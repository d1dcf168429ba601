package sensorctl

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/impactrange/internal/testutil"
)

type fakePort struct {
	mu      sync.Mutex
	written bytes.Buffer
	reads   []byte
	idx     int
	closed  bool
}

func newFakePort(lines string) *fakePort {
	return &fakePort{reads: []byte(lines)}
}

func (p *fakePort) Read(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.idx >= len(p.reads) {
		if p.closed {
			return 0, io.EOF
		}
		time.Sleep(5 * time.Millisecond)
		return 0, nil
	}
	n := copy(buf, p.reads[p.idx:])
	p.idx += n
	return n, nil
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.Write(b)
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func TestIsAllowedAcceptsListAndThresholdSet(t *testing.T) {
	for _, cmd := range []string{"?N", "?V", "?D", "TH?", "TH=42"} {
		assert.Truef(t, IsAllowed(cmd), "expected %q to be allowed", cmd)
	}
	assert.False(t, IsAllowed("AX"), "expected factory-reset command to be rejected")
}

func TestSendCommandRejectsUnlisted(t *testing.T) {
	c := New(newFakePort(""))
	err := c.SendCommand("AX")
	require.Error(t, err)
	var notAllowed *ErrCommandNotAllowed
	assert.ErrorAs(t, err, &notAllowed)
}

func TestSendCommandWritesAllowedCommand(t *testing.T) {
	port := newFakePort("")
	c := New(port)
	require.NoError(t, c.SendCommand("?N"))

	port.mu.Lock()
	got := port.written.String()
	port.mu.Unlock()
	assert.Equal(t, "?N\n", got)
}

func TestMonitorFansOutToSubscribers(t *testing.T) {
	port := newFakePort("SN=abc123\n")
	c := New(port)
	id, ch := c.Subscribe()
	defer c.Unsubscribe(id)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Monitor(ctx)

	select {
	case line := <-ch:
		if line != "SN=abc123" {
			t.Errorf("got %q", line)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for fanned-out line")
	}
}

func TestAdminSendRouteRejectsNonPost(t *testing.T) {
	c := New(newFakePort(""))
	mux := http.NewServeMux()
	c.AttachAdminRoutes(mux)

	req := testutil.NewTestRequest(http.MethodGet, "/debug/sensorctl-send")
	w := testutil.NewTestRecorder()
	mux.ServeHTTP(w, req)

	testutil.AssertStatusCode(t, w.Code, http.StatusMethodNotAllowed)
}

func TestCloseUnblocksSubscribers(t *testing.T) {
	c := New(newFakePort(""))
	_, ch := c.Subscribe()
	if err := c.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for channel close")
	}
}

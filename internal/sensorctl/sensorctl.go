// Package sensorctl exposes a narrow, allow-listed plain-text debug
// console to the sensor node's debug serial link, mirroring the
// teacher's commands.go allow-list and serialmux fan-out pattern but
// scoped to the handful of queries the firmware actually answers.
package sensorctl

import (
	"bufio"
	"bytes"
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"tailscale.com/tsweb"

	"github.com/banshee-data/impactrange/internal/httputil"
	"github.com/banshee-data/impactrange/internal/monitoring"
)

func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

// AllowedCommands is the set of exact-match debug commands the node will
// accept; IsAllowed additionally accepts "TH=<n>". Anything else is
// rejected by SendCommand before it reaches the wire.
var AllowedCommands = []string{
	"?N",  // query serial number
	"?V",  // query firmware version
	"?D",  // query build date
	"TH?", // query snapshot threshold
}

// IsAllowed reports whether command matches an allow-listed command,
// treating "TH=" as a prefix match so "TH=123" is accepted alongside the
// literal "TH?" query.
func IsAllowed(command string) bool {
	for _, c := range AllowedCommands {
		if command == c {
			return true
		}
	}
	return len(command) > 3 && command[:3] == "TH="
}

// Port is the minimal serial-port abstraction sensorctl depends on,
// matching serialmux's SerialPorter shape so a go.bug.st/serial port (or
// a test fake) can back this debug console.
type Port interface {
	io.ReadWriteCloser
}

// Console multiplexes one serial debug link to many subscribers, exactly
// as serialmux.SerialMux does for the radar port, but with SendCommand
// filtered through the allow list before anything is written.
type Console struct {
	port Port

	subMu       sync.Mutex
	subscribers map[string]chan string

	cmdMu sync.Mutex

	closingMu sync.Mutex
	closing   bool
}

// New wraps port in a Console.
func New(port Port) *Console {
	return &Console{
		port:        port,
		subscribers: make(map[string]chan string),
	}
}

func (c *Console) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string, 1)
	c.subMu.Lock()
	c.subscribers[id] = ch
	c.subMu.Unlock()
	return id, ch
}

func (c *Console) Unsubscribe(id string) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if ch, ok := c.subscribers[id]; ok {
		close(ch)
		delete(c.subscribers, id)
	}
}

// ErrCommandNotAllowed is returned by SendCommand for anything outside
// AllowedCommands.
type ErrCommandNotAllowed struct{ Command string }

func (e *ErrCommandNotAllowed) Error() string {
	return fmt.Sprintf("sensorctl: command %q is not allow-listed", e.Command)
}

// SendCommand writes an allow-listed command to the node, appending the
// trailing newline the firmware expects.
func (c *Console) SendCommand(command string) error {
	if !IsAllowed(command) {
		return &ErrCommandNotAllowed{Command: command}
	}
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	if !bytes.HasSuffix([]byte(command), []byte("\n")) {
		command += "\n"
	}
	n, err := c.port.Write([]byte(command))
	if err != nil {
		return err
	}
	if n != len(command) {
		return fmt.Errorf("sensorctl: short write to debug console")
	}
	return nil
}

// Monitor reads lines from the debug link and fans them out to every
// subscriber, dropping a line for a subscriber whose channel is full
// rather than blocking the read loop.
func (c *Console) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(c.port)
	lines := make(chan string)
	scanErr := make(chan error, 1)

	go func() {
		defer close(lines)
		for scan.Scan() {
			select {
			case lines <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErr <- err:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-scanErr:
			return err
		case line, ok := <-lines:
			if !ok {
				return scan.Err()
			}
			c.closingMu.Lock()
			closing := c.closing
			c.closingMu.Unlock()
			if closing {
				return nil
			}
			monitoring.Tracef("sensorctl: %s", line)
			c.subMu.Lock()
			for _, ch := range c.subscribers {
				select {
				case ch <- line:
				default:
				}
			}
			c.subMu.Unlock()
		}
	}
}

func (c *Console) Close() error {
	c.closingMu.Lock()
	c.closing = true
	c.closingMu.Unlock()

	c.subMu.Lock()
	for id, ch := range c.subscribers {
		close(ch)
		delete(c.subscribers, id)
	}
	c.subMu.Unlock()
	return c.port.Close()
}

// AttachAdminRoutes exposes a live SSE tail of the debug console and a
// silent endpoint to issue allow-listed commands, mirroring serialmux's
// send-command/tail admin routes.
func (c *Console) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleSilentFunc("sensorctl-tail", func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			httputil.InternalServerError(w, "streaming unsupported")
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")

		id, ch := c.Subscribe()
		defer c.Unsubscribe(id)

		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case <-ticker.C:
				fmt.Fprint(w, ": ping\n\n")
				flusher.Flush()
			case line, ok := <-ch:
				if !ok {
					return
				}
				fmt.Fprintf(w, "data: %s\n\n", line)
				flusher.Flush()
			}
		}
	})

	debug.HandleSilentFunc("sensorctl-send", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httputil.MethodNotAllowed(w)
			return
		}
		command := r.FormValue("command")
		if err := c.SendCommand(command); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		httputil.WriteJSONOK(w, map[string]string{"status": "sent"})
	})
}

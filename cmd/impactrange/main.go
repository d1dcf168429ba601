// Command impactrange listens for impact-burst datagrams from the sensor
// node, runs them through the classification/localization/fusion
// pipeline, and persists the results, following the same
// listen-dispatch-persist-serve shape as the teacher's own main.go.
//
// Session lifecycle (start/pause/confirm calibration) is driven by an
// external operator surface, out of scope here per SPEC_FULL.md; this
// binary only ingests bursts and records whatever the pipeline produces
// against the session a caller embedding internal/session has started.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"go.bug.st/serial"

	"github.com/banshee-data/impactrange/internal/burst"
	"github.com/banshee-data/impactrange/internal/calib"
	"github.com/banshee-data/impactrange/internal/config"
	"github.com/banshee-data/impactrange/internal/dedupe"
	"github.com/banshee-data/impactrange/internal/dispatch"
	"github.com/banshee-data/impactrange/internal/hitlog"
	"github.com/banshee-data/impactrange/internal/httputil"
	"github.com/banshee-data/impactrange/internal/monitoring"
	"github.com/banshee-data/impactrange/internal/pipeline"
	"github.com/banshee-data/impactrange/internal/sensorctl"
	"github.com/banshee-data/impactrange/internal/session"
	"github.com/banshee-data/impactrange/internal/store"
	"github.com/banshee-data/impactrange/internal/timeutil"
	"github.com/banshee-data/impactrange/internal/version"
)

var (
	configPath    = flag.String("config", config.DefaultConfigPath, "path to the tuning config JSON file")
	dbPath        = flag.String("db", "impactrange.db", "path to the sqlite session/shot database")
	adminAddr     = flag.String("admin-listen", ":8081", "listen address for the admin debug mux")
	showVersion   = flag.Bool("version", false, "print version information and exit")
	debugPortPath = flag.String("sensor-debug-port", "", "path to the sensor node's debug serial link (empty disables the console)")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("impactrange %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}
	monitoring.Infof("impactrange %s (%s) starting", version.Version, version.GitSHA)

	cfg, err := config.LoadTuningConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "impactrange: failed to load config %s: %v\n", *configPath, err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "impactrange: invalid config: %v\n", err)
		os.Exit(1)
	}

	st, err := store.Open(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "impactrange: failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	hl, err := hitlog.New(cfg.GetHitLogDir())
	if err != nil {
		fmt.Fprintf(os.Stderr, "impactrange: failed to open hit log: %v\n", err)
		os.Exit(1)
	}
	defer hl.Close()

	initialFit := calib.Identity(cfg.GetHalfSpanCM())
	if loaded, err := calib.Load(cfg.GetCalibrationFitPath()); err == nil {
		initialFit = loaded
	} else if !os.IsNotExist(err) {
		monitoring.Opsf("discarding unusable calibration fit at %s: %v", cfg.GetCalibrationFitPath(), err)
	}

	clock := timeutil.RealClock{}
	ctrl := session.NewController(clock, cfg.GetCalibrationFitPath(), initialFit)
	dedupeWindow := dedupe.New(clock)
	d := dispatch.New(st, cfg.GetDispatchQueueCapacity(), cfg.GetDispatchSendTimeout())
	chanMap := burst.DefaultChannelMap()
	p := pipeline.New(chanMap, cfg, dedupeWindow, ctrl, d)

	var console *sensorctl.Console
	if *debugPortPath != "" {
		mode := &serial.Mode{BaudRate: 9600, DataBits: 8, Parity: serial.NoParity, StopBits: serial.OneStopBit}
		port, err := serial.Open(*debugPortPath, mode)
		if err != nil {
			monitoring.Opsf("impactrange: failed to open debug console %s: %v", *debugPortPath, err)
		} else {
			console = sensorctl.New(port)
			defer console.Close()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := d.Run(ctx); err != nil && err != context.Canceled {
			monitoring.Opsf("dispatcher stopped: %v", err)
		}
	}()

	if console != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := console.Monitor(ctx); err != nil && err != context.Canceled {
				monitoring.Opsf("sensor debug console stopped: %v", err)
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		persistDispatchedShots(ctx, d, st, ctrl)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		runUDPIngest(ctx, cfg, chanMap, p, hl, ctrl)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		runAdminServer(ctx, *adminAddr, st, d, console)
	}()

	wg.Wait()
	monitoring.Infof("impactrange: shutdown complete")
}

// runUDPIngest reads hit_bundle datagrams off the configured UDP port,
// parses them, and feeds each one through the pipeline. Malformed
// datagrams are logged and dropped; they are never fatal to the listener.
func runUDPIngest(ctx context.Context, cfg *config.TuningConfig, chanMap burst.ChannelMap, p *pipeline.Pipeline, hl *hitlog.Logger, ctrl *session.Controller) {
	addr, err := net.ResolveUDPAddr("udp", cfg.GetUDPListenAddr())
	if err != nil {
		monitoring.Opsf("impactrange: invalid UDP listen address %s: %v", cfg.GetUDPListenAddr(), err)
		return
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		monitoring.Opsf("impactrange: failed to bind UDP %s: %v", cfg.GetUDPListenAddr(), err)
		return
	}
	defer conn.Close()
	monitoring.Infof("impactrange: listening for bursts on %s", cfg.GetUDPListenAddr())

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	buf := make([]byte, 4096)
	var seq int64
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			monitoring.Tracef("impactrange: udp read error: %v", err)
			continue
		}

		payload := make([]byte, n)
		copy(payload, buf[:n])

		b, err := burst.Parse(payload, chanMap)
		if err != nil {
			monitoring.Tracef("impactrange: dropping datagram: %v", err)
			continue
		}
		seq++

		outcome := p.Process(b)
		appendHitLogRow(hl, ctrl, b, chanMap, outcome, seq)
	}
}

func appendHitLogRow(hl *hitlog.Logger, ctrl *session.Controller, b burst.ImpactBurst, chanMap burst.ChannelMap, outcome pipeline.Outcome, seq int64) {
	n, e, s, w := burst.CompassEnergies(b, chanMap)
	sessionID := ""
	if status := ctrl.Status(); status != nil {
		sessionID = status.SessionID
	}
	row := hitlog.RowFromOutcome(
		time.UnixMilli(b.TMillis), seq, b.Node, sessionID, ctrl.Mode().String(),
		n, e, s, w,
		outcome.Energy, outcome.TDOA.Estimate, !outcome.TDOA.Unavailable,
		outcome.Fused, outcome.XCM, outcome.YCM, outcome.Classification,
	)
	if err := hl.Append(row); err != nil {
		monitoring.Opsf("impactrange: hit log append failed: %v", err)
	}
}

// persistDispatchedShots subscribes to the dispatcher and writes every
// confirmed shot into the normalized shot table, alongside the raw
// event_log row the dispatcher's Store already records for every event.
func persistDispatchedShots(ctx context.Context, d *dispatch.Dispatcher, st *store.Store, ctrl *session.Controller) {
	id, ch := d.Subscribe()
	defer d.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if ev.Kind != dispatch.KindShot {
				continue
			}
			shot, ok := ev.Payload.(session.Shot)
			if !ok {
				continue
			}
			status := ctrl.Status()
			if status == nil {
				continue
			}
			if err := st.SaveShot(ctx, status.SessionID, shot); err != nil {
				monitoring.Opsf("impactrange: failed to persist shot: %v", err)
			}
		}
	}
}

func runAdminServer(ctx context.Context, addr string, st *store.Store, d *dispatch.Dispatcher, console *sensorctl.Console) {
	mux := http.NewServeMux()
	if err := st.AttachAdminRoutes(mux); err != nil {
		monitoring.Opsf("impactrange: failed to attach store admin routes: %v", err)
	}
	d.AttachAdminRoutes(mux)
	if console != nil {
		console.AttachAdminRoutes(mux)
	}
	mux.HandleFunc("/debug/version", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSONOK(w, map[string]string{
			"version": version.Version,
			"git_sha": version.GitSHA,
			"built":   version.BuildTime,
		})
	})

	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			monitoring.Opsf("impactrange: admin server error: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		monitoring.Opsf("impactrange: admin server shutdown error: %v", err)
	}
}

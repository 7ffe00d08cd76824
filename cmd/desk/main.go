// Command desk drives a Jarvis desk with a CB2C controller: it reads the
// height from the controller's UART, watches and drives the handset lines,
// stores readings in SQLite and serves the HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/desk.report/internal/api"
	"github.com/banshee-data/desk.report/internal/button"
	"github.com/banshee-data/desk.report/internal/config"
	"github.com/banshee-data/desk.report/internal/db"
	"github.com/banshee-data/desk.report/internal/desk"
	"github.com/banshee-data/desk.report/internal/desk/desksim"
	"github.com/banshee-data/desk.report/internal/gpio"
	"github.com/banshee-data/desk.report/internal/serialport"
	"github.com/banshee-data/desk.report/internal/telemetry"
	"github.com/banshee-data/desk.report/internal/timeutil"
	"github.com/banshee-data/desk.report/internal/version"
)

var (
	configPath  = flag.String("config", config.DefaultConfigPath, "Path to the desk configuration (.yaml, .yml or .json)")
	listen      = flag.String("listen", ":8080", "Listen address")
	dbPath      = flag.String("db", "desk.db", "Path to the SQLite database")
	devMode     = flag.Bool("dev", false, "Run against a simulated controller and fake pins")
	retention   = flag.Duration("retention", 0, "Delete height readings older than this (0 keeps everything)")
	listPorts   = flag.Bool("list-ports", false, "List serial ports and exit")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// pruneInterval is how often old readings are deleted when -retention is set.
const pruneInterval = time.Hour

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags]\n       %s [flags] migrate <command>\n\n", os.Args[0], os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	if *listPorts {
		if err := printPorts(os.Stdout, serialport.Ports); err != nil {
			log.Fatalf("failed to list serial ports: %v", err)
		}
		return
	}

	if args := flag.Args(); len(args) > 0 {
		switch args[0] {
		case "migrate":
			db.RunMigrateCommand(args[1:], *dbPath)
			return
		default:
			flag.Usage()
			os.Exit(2)
		}
	}

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	log.Printf("%s, config %s", version.String(), *configPath)

	store, err := db.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer store.Close()

	clock := timeutil.RealClock{}
	hub := telemetry.NewHub(clock)
	defer hub.Close()

	hw, err := newHardware(cfg, *devMode, clock)
	if err != nil {
		log.Fatalf("failed to set up hardware: %v", err)
	}

	d, err := desk.New(desk.Options{
		Config:    cfg,
		Open:      hw.open,
		Pins:      hw.pins,
		Publisher: desk.DedupEach(store, hub),
		Events:    desk.MultiEventSink{store, hub},
		Frames:    hub,
		Commands:  desk.MultiCommandRecorder{store, hub},
		Clock:     clock,
	})
	if err != nil {
		log.Fatalf("invalid desk setup: %v", err)
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The desk loop owns the UART and the pins. If it cannot start, the API
	// keeps serving stored data.
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := d.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("desk stopped: %v", err)
		}
		log.Print("desk routine terminated")
	}()

	if *retention > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pruneLoop(ctx, store, *retention, clock)
			log.Print("prune routine terminated")
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(d, store, cfg).ServeMux()
		hub.AttachAdminRoutes(mux)
		store.AttachAdminRoutes(mux)

		server := &http.Server{
			Addr:              *listen,
			Handler:           api.LoggingMiddleware(mux),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			log.Printf("listening on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}
		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}

// printPorts writes one serial port path per line.
func printPorts(w io.Writer, list func() ([]string, error)) error {
	ports, err := list()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		_, err = fmt.Fprintln(w, "no serial ports found")
		return err
	}
	for _, p := range ports {
		if _, err := fmt.Fprintln(w, p); err != nil {
			return err
		}
	}
	return nil
}

type readingPruner interface {
	PruneReadings(ctx context.Context, before time.Time) (int64, error)
}

// pruneOnce deletes readings older than retention.
func pruneOnce(ctx context.Context, store readingPruner, retention time.Duration, clock timeutil.Clock) {
	n, err := store.PruneReadings(ctx, clock.Now().Add(-retention))
	if err != nil {
		log.Printf("prune readings: %v", err)
		return
	}
	if n > 0 {
		log.Printf("pruned %d readings older than %s", n, retention)
	}
}

// pruneLoop prunes at start and then every pruneInterval until ctx is done.
func pruneLoop(ctx context.Context, store readingPruner, retention time.Duration, clock timeutil.Clock) {
	pruneOnce(ctx, store, retention, clock)
	ticker := clock.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			pruneOnce(ctx, store, retention, clock)
		}
	}
}

// hardware is the serial opener and pin provider the desk runs on.
type hardware struct {
	open serialport.Opener
	pins gpio.Provider
	sim  *desksim.Controller
}

// newHardware returns real hardware, or in dev mode fake pins wired to a
// simulated controller that watches them.
func newHardware(cfg *config.Config, dev bool, clock timeutil.Clock) (*hardware, error) {
	if !dev {
		pins, err := gpio.NewPeriphProvider()
		if err != nil {
			return nil, err
		}
		return &hardware{open: serialport.Open, pins: pins}, nil
	}

	pins := gpio.NewFakeProvider()
	levels := make(map[button.Line]desksim.Level)
	for line, pc := range cfg.Lines() {
		levels[line] = pins.Get(pc.Number)
	}
	sim := desksim.New(levels, clock, desksim.Options{})
	log.Printf("dev mode: simulated controller at %.0fmm, %d handset lines", sim.HeightMM(), len(levels))
	return &hardware{open: sim.Open, pins: pins, sim: sim}, nil
}

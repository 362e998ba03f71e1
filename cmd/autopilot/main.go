package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/rover.autopilot/internal/api"
	"github.com/banshee-data/rover.autopilot/internal/autopilot"
	"github.com/banshee-data/rover.autopilot/internal/config"
	"github.com/banshee-data/rover.autopilot/internal/db"
	"github.com/banshee-data/rover.autopilot/internal/network"
	"github.com/banshee-data/rover.autopilot/internal/perception"
	"github.com/banshee-data/rover.autopilot/internal/serialmux"
	"github.com/banshee-data/rover.autopilot/internal/version"
)

var (
	configPath    = flag.String("config", config.DefaultConfigPath, "Path to the rover configuration JSON")
	dbPath        = flag.String("db-path", "mission.db", "Path to the mission log database")
	devMode       = flag.Bool("dev", false, "Replay a telemetry fixture instead of opening the serial port")
	fixturePath   = flag.String("fixture", "fixtures/telemetry.jsonl", "Telemetry fixture replayed in dev mode")
	listen        = flag.String("listen", ":8080", "HTTP listen address")
	udpListen     = flag.String("udp-listen", ":4567", "UDP telemetry listen address (empty to disable)")
	udpCapture    = flag.String("udp-capture", "", "Write inbound UDP telemetry to this pcap file")
	port          = flag.String("port", "/dev/ttyUSB0", "Serial port of the telemetry bridge (ignored in dev mode)")
	baudRate      = flag.Int("baud", serialmux.DefaultBaudRate, "Serial baud rate")
	disableSerial = flag.Bool("disable-serial", false, "Run without a serial link; telemetry arrives over HTTP or UDP only")
	listPorts     = flag.Bool("list-ports", false, "List serial ports on this host and exit")
	showVersion   = flag.Bool("version", false, "Print version and exit")
)

// devInterval approximates the simulator's telemetry rate.
const devInterval = 40 * time.Millisecond

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("rover-autopilot"))
		return
	}

	if *listPorts {
		ports, err := serialmux.ListPorts()
		if err != nil {
			log.Fatalf("failed to list serial ports: %v", err)
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return
	}

	if flag.NArg() > 0 && flag.Arg(0) == "migrate" {
		if err := db.RunMigrateCommand(flag.Args()[1:], *dbPath, os.Stdin, os.Stdout); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		return
	}

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	cfg, err := config.LoadRoverConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	ref, err := perception.LoadReferenceMap(cfg.Mission.ReferenceMapPath, cfg.Perception.WorldSize)
	if err != nil {
		log.Fatalf("failed to load reference map: %v", err)
	}
	pipeline, err := perception.NewPipeline(cfg.Perception)
	if err != nil {
		log.Fatalf("failed to build perception pipeline: %v", err)
	}

	database, err := db.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		log.Fatalf("failed to encode config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	recorder, err := database.StartMission(ctx, time.Now(), cfgJSON)
	if err != nil {
		log.Fatalf("failed to start mission: %v", err)
	}

	pilot, err := autopilot.New(cfg, autopilot.Options{
		Pipeline:  pipeline,
		Reference: ref,
		Recorder:  recorder,
	})
	if err != nil {
		log.Fatalf("failed to build autopilot: %v", err)
	}

	link, err := openSerial(ctx)
	if err != nil {
		log.Fatalf("failed to open serial link: %v", err)
	}
	defer link.Close()
	if err := link.Initialize(); err != nil {
		log.Fatalf("failed to initialize serial link: %v", err)
	}

	var wg sync.WaitGroup

	// serial IO and the decision loop that answers it
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := link.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("serial monitor stopped: %v", err)
		}
		log.Print("monitor routine terminated")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := serialmux.Drive(ctx, link, pilot); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("serial drive stopped: %v", err)
		}
		log.Print("drive routine terminated")
	}()

	if *udpListen != "" {
		listenerCfg := network.UDPListenerConfig{
			Address: *udpListen,
			RcvBuf:  1 << 20,
			Cycler:  pilot,
		}
		if *udpCapture != "" {
			f, err := os.Create(*udpCapture)
			if err != nil {
				log.Fatalf("failed to create capture file: %v", err)
			}
			defer f.Close()
			src, dst, err := captureAddrs(*udpListen)
			if err != nil {
				log.Fatalf("failed to resolve capture address: %v", err)
			}
			cw, err := network.NewCaptureWriter(f, src, dst)
			if err != nil {
				log.Fatalf("failed to start capture: %v", err)
			}
			listenerCfg.Capture = cw
		}
		listener := network.NewUDPListener(listenerCfg)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := listener.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("udp listener stopped: %v", err)
			}
			log.Printf("udp listener terminated: %+v", listener.Stats())
		}()
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(pilot, database).ServeMux()
		link.AttachAdminRoutes(mux)
		if err := database.AttachAdminRoutes(mux); err != nil {
			log.Printf("failed to attach db admin routes: %v", err)
		}

		server := &http.Server{
			Addr:              *listen,
			Handler:           api.LoggingMiddleware(mux),
			ReadHeaderTimeout: 5 * time.Second,
		}

		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			server.Close()
		}
		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()

	finishCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	summary := db.SummaryOf(pilot.Status(), time.Now())
	if err := recorder.Finish(finishCtx, summary); err != nil {
		log.Printf("failed to finish mission %s: %v", recorder.ID, err)
	}
	log.Printf("mission %s ended in %s: %d/%d samples, %.1f%% mapped at %.1f%% fidelity",
		recorder.ID, summary.FinalBehavior, summary.SamplesCollected, summary.SamplesToFind,
		summary.Stats.PercentMapped, summary.Stats.Fidelity)
}

// openSerial picks the link implementation from the flags.
func openSerial(ctx context.Context) (serialmux.SerialMuxInterface, error) {
	switch {
	case *disableSerial:
		log.Print("serial link disabled")
		return serialmux.NewDisabledSerialMux(), nil
	case *devMode:
		lines, err := serialmux.LoadFixture(*fixturePath)
		if err != nil {
			return nil, err
		}
		log.Printf("dev mode: replaying %d fixture lines from %s", len(lines), *fixturePath)
		return serialmux.NewMockSerialMux(ctx, lines, devInterval, nil), nil
	default:
		m, err := serialmux.NewRealSerialMux(*port, serialmux.PortOptions{BaudRate: *baudRate})
		if err != nil {
			return nil, err
		}
		return m, nil
	}
}

// captureAddrs returns the endpoints stamped on captured frames. The
// destination port matches the listener so replay can filter on it.
func captureAddrs(listen string) (src, dst *net.UDPAddr, err error) {
	dst, err = net.ResolveUDPAddr("udp", listen)
	if err != nil {
		return nil, nil, err
	}
	if dst.IP == nil || dst.IP.IsUnspecified() {
		dst.IP = net.IPv4(127, 0, 0, 1)
	}
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 2), Port: 40000}, dst, nil
}

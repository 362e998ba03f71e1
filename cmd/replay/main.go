// Command replay feeds a pcap of UDP telemetry through an autopilot, either
// in-process with a clock that follows the capture or against a running
// autopilot over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/rover.autopilot/internal/api"
	"github.com/banshee-data/rover.autopilot/internal/autopilot"
	"github.com/banshee-data/rover.autopilot/internal/config"
	"github.com/banshee-data/rover.autopilot/internal/db"
	"github.com/banshee-data/rover.autopilot/internal/httputil"
	"github.com/banshee-data/rover.autopilot/internal/network"
	"github.com/banshee-data/rover.autopilot/internal/perception"
	"github.com/banshee-data/rover.autopilot/internal/telemetry"
	"github.com/banshee-data/rover.autopilot/internal/timeutil"
)

var (
	pcapPath   = flag.String("pcap", "", "Capture of UDP telemetry to replay (required)")
	udpPort    = flag.Int("udp-port", 4567, "Destination UDP port carrying telemetry (0 for any)")
	configPath = flag.String("config", config.DefaultConfigPath, "Rover configuration for in-process replay")
	dbPath     = flag.String("db-path", "", "Record the replayed mission into this database")
	targetURL  = flag.String("target-url", "", "Replay against a running autopilot at this base URL instead of in-process")
	quiet      = flag.Bool("quiet", false, "Only print the summary")
)

// cycler matches both the in-process autopilot and the HTTP client.
type cycler interface {
	Cycle(ctx context.Context, msg []byte) (telemetry.Command, error)
}

// result tallies one replay.
type result struct {
	Packets  int
	Failed   int
	Commands map[telemetry.CommandType]int
	Capture  network.CaptureStats
}

func main() {
	flag.Parse()
	if *pcapPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out := io.Writer(os.Stdout)
	if *quiet {
		out = io.Discard
	}

	if *targetURL != "" {
		client := api.NewClient(httputil.NewStandardClient(nil, 5*time.Second), *targetURL)
		res, err := replay(ctx, *pcapPath, *udpPort, client, nil, out)
		if err != nil {
			log.Fatalf("replay failed: %v", err)
		}
		printSummary(os.Stdout, res, nil)
		return
	}

	cfg, err := config.LoadRoverConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	ref, err := perception.LoadReferenceMap(cfg.Mission.ReferenceMapPath, cfg.Perception.WorldSize)
	if err != nil {
		log.Fatalf("failed to load reference map: %v", err)
	}

	start, err := firstTimestamp(ctx, *pcapPath, *udpPort)
	if err != nil {
		log.Fatalf("failed to read capture: %v", err)
	}
	clock := timeutil.NewMockClock(start)
	opts := autopilot.Options{Reference: ref, Clock: clock}

	var recorder *db.MissionRecorder
	if *dbPath != "" {
		database, err := db.NewDB(*dbPath)
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		defer database.Close()
		recorder, err = database.StartMission(ctx, clock.Now(), nil)
		if err != nil {
			log.Fatalf("failed to start mission: %v", err)
		}
		opts.Recorder = recorder
	}

	pilot, err := autopilot.New(cfg, opts)
	if err != nil {
		log.Fatalf("failed to build autopilot: %v", err)
	}

	res, err := replay(ctx, *pcapPath, *udpPort, pilot, clock, out)
	if err != nil {
		log.Fatalf("replay failed: %v", err)
	}

	st := pilot.Status()
	if recorder != nil {
		if err := recorder.Finish(context.Background(), db.SummaryOf(st, clock.Now())); err != nil {
			log.Printf("failed to finish mission: %v", err)
		}
		fmt.Printf("recorded mission %s\n", recorder.ID)
	}
	printSummary(os.Stdout, res, &st)
}

var errFound = errors.New("found")

// firstTimestamp returns the capture time of the first telemetry packet.
func firstTimestamp(ctx context.Context, path string, port int) (time.Time, error) {
	var first time.Time
	_, err := network.ReadTelemetryPCAPFile(ctx, path, port, func(p network.TelemetryPacket) error {
		first = p.Timestamp
		return errFound
	})
	switch {
	case errors.Is(err, errFound):
		return first, nil
	case err != nil:
		return time.Time{}, err
	default:
		return time.Time{}, fmt.Errorf("no telemetry on port %d in %s", port, path)
	}
}

// replay runs every telemetry packet in the capture through c. When clock
// is set it is moved to each packet's capture time before the cycle.
func replay(ctx context.Context, path string, port int, c cycler, clock *timeutil.MockClock, out io.Writer) (result, error) {
	res := result{Commands: make(map[telemetry.CommandType]int)}
	stats, err := network.ReadTelemetryPCAPFile(ctx, path, port, func(p network.TelemetryPacket) error {
		if clock != nil && p.Timestamp.After(clock.Now()) {
			clock.Set(p.Timestamp)
		}
		res.Packets++
		cmd, err := c.Cycle(ctx, p.Data)
		if err != nil {
			res.Failed++
			fmt.Fprintf(out, "%6d %s  %s  error: %v\n", res.Packets, p.Timestamp.Format("15:04:05.000"), cmd, err)
		} else {
			fmt.Fprintf(out, "%6d %s  %s\n", res.Packets, p.Timestamp.Format("15:04:05.000"), cmd)
		}
		res.Commands[cmd.Type]++
		return nil
	})
	res.Capture = stats
	return res, err
}

func printSummary(w io.Writer, res result, st *autopilot.Status) {
	fmt.Fprintf(w, "packets: %d in capture, %d telemetry, %d skipped\n",
		res.Capture.Packets, res.Capture.Telemetry, res.Capture.Skipped)
	fmt.Fprintf(w, "cycles: %d (%d failed), drive=%d pickup=%d\n",
		res.Packets, res.Failed, res.Commands[telemetry.CommandData], res.Commands[telemetry.CommandPickup])
	if st == nil {
		return
	}
	fmt.Fprintf(w, "final behavior: %s\n", st.Behavior)
	fmt.Fprintf(w, "samples: %d/%d collected, %d located\n", st.SamplesCollected, st.SamplesToFind, st.Map.SamplesLocated)
	fmt.Fprintf(w, "map: %.1f%% mapped, %.1f%% fidelity\n", st.Map.PercentMapped, st.Map.Fidelity)
}

// Command mission-report renders PNG plots for a mission recorded in the
// mission log.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"

	"github.com/banshee-data/rover.autopilot/internal/config"
	"github.com/banshee-data/rover.autopilot/internal/db"
	"github.com/banshee-data/rover.autopilot/internal/monitor"
)

var (
	dbPath    = flag.String("db-path", "mission.db", "Path to the mission log database")
	missionID = flag.String("mission", "", "Mission id (default: most recent)")
	outDir    = flag.String("out", ".", "Directory the PNGs are written to")
	list      = flag.Bool("list", false, "List recorded missions and exit")
)

func main() {
	flag.Parse()

	database, err := db.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	ctx := context.Background()
	if *list {
		if err := listMissions(ctx, database); err != nil {
			log.Fatal(err)
		}
		return
	}

	files, err := report(ctx, database, *missionID, *outDir)
	if err != nil {
		log.Fatal(err)
	}
	for _, f := range files {
		fmt.Println(f)
	}
}

func listMissions(ctx context.Context, database *db.DB) error {
	missions, err := database.ListMissions(ctx)
	if err != nil {
		return err
	}
	for _, m := range missions {
		ended := "running"
		if m.Ended != nil {
			ended = m.FinalBehavior
		}
		fmt.Printf("%s  %s  %-10s %d/%d samples  %.1f%% mapped\n",
			m.ID, m.Started.Format("2006-01-02 15:04:05"), ended,
			m.SamplesCollected, m.SamplesToFind, m.PercentMapped)
	}
	return nil
}

// report writes the PNGs for id, or for the newest mission when id is empty.
func report(ctx context.Context, database *db.DB, id, dir string) ([]string, error) {
	var mission db.Mission
	if id == "" {
		missions, err := database.ListMissions(ctx)
		if err != nil {
			return nil, err
		}
		if len(missions) == 0 {
			return nil, errors.New("no missions recorded")
		}
		mission = missions[0]
	} else {
		m, err := database.GetMission(ctx, id)
		if err != nil {
			return nil, err
		}
		mission = m
	}

	records, err := database.MissionCycles(ctx, mission.ID)
	if err != nil {
		return nil, err
	}
	return monitor.WriteMissionReport(dir, records, home(mission))
}

// home reads the home position from the config stored with the mission.
func home(m db.Mission) monitor.Point {
	cfg := config.DefaultRoverConfig()
	if m.ConfigJSON != "" {
		if err := json.Unmarshal([]byte(m.ConfigJSON), cfg); err != nil {
			log.Printf("mission %s has an unreadable config, using default home: %v", m.ID, err)
			cfg = config.DefaultRoverConfig()
		}
	}
	return monitor.Point{X: cfg.Mission.HomeX, Y: cfg.Mission.HomeY}
}

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/mcdev12/racetrack/go/internal/dbconfig"
	"github.com/mcdev12/racetrack/go/internal/snapshot"
	"github.com/mcdev12/racetrack/go/internal/timing"
)

func main() {
	backend := flag.String("backend", "file", "snapshot backend: file, badger or postgres")
	path := flag.String("path", "data/racetrack.json", "snapshot file or badger directory")
	flag.Parse()

	store, err := open(*backend, *path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	doc, err := store.Load(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load snapshot: %v\n", err)
		os.Exit(1)
	}
	if doc == nil {
		fmt.Println("no snapshot stored")
		return
	}

	render(os.Stdout, doc)
}

func open(backend, path string) (snapshot.Store, error) {
	switch backend {
	case "file":
		return snapshot.NewFileStore(path)
	case "badger":
		return snapshot.OpenBadger(path)
	case "postgres":
		cfg := dbconfig.Default()
		cfg.ApplyEnv()
		db, err := cfg.Open()
		if err != nil {
			return nil, err
		}
		return snapshot.NewPostgresStore(context.Background(), db)
	}
	return nil, fmt.Errorf("unknown backend %q", backend)
}

func render(w io.Writer, doc *snapshot.Document) {
	fmt.Fprintf(w, "snapshot v%d saved %s\n\n", doc.Version, doc.SavedAt.Format(time.RFC3339))

	if doc.Race != nil {
		t := table.NewWriter()
		t.SetOutputMirror(w)
		t.SetStyle(table.StyleRounded)
		t.SetTitle("Race")
		t.AppendHeader(table.Row{"Session", "Mode", "Active", "Time left", "Deadline"})

		deadline := "-"
		if doc.Race.EndDeadline != nil {
			deadline = doc.Race.EndDeadline.Format(time.RFC3339)
		}
		session := doc.Race.SessionID.String()
		if doc.Race.SessionName != "" {
			session = doc.Race.SessionName + " (" + session + ")"
		}
		t.AppendRow(table.Row{session, doc.Race.RaceMode, doc.Race.RaceActive, formatClock(doc.Race.TimeLeft), deadline})
		t.Render()
		fmt.Fprintln(w)
	}

	for _, s := range doc.Sessions {
		t := table.NewWriter()
		t.SetOutputMirror(w)
		t.SetStyle(table.StyleRounded)
		t.SetTitle(fmt.Sprintf("%s (%s)", s.Name, s.ID))
		t.AppendHeader(table.Row{"Pos", "Car", "Driver", "Laps", "Fastest"})

		for _, row := range timing.Leaderboard(s) {
			pos, fastest := "-", "-"
			if row.Position > 0 {
				pos = strconv.Itoa(row.Position)
			}
			if row.FastestLapMs != nil {
				fastest = timing.FormatLap(*row.FastestLapMs)
			}
			t.AppendRow(table.Row{pos, row.CarNumber, row.Name, row.CurrentLap, fastest})
		}
		t.AppendFooter(table.Row{"", "", "Drivers", len(s.Drivers), ""})
		t.Render()
		fmt.Fprintln(w)
	}
}

func formatClock(seconds int) string {
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

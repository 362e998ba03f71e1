package serialmux

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"tailscale.com/tsweb"

	"github.com/banshee-data/rover.autopilot/internal/httputil"
	"github.com/banshee-data/rover.autopilot/internal/telemetry"
)

//go:embed templates/*
var adminFS embed.FS

var sendCommandPage = template.Must(template.ParseFS(adminFS, "templates/send-command.html.tmpl"))

// attachAdminRoutes mounts, under /debug/:
//
//	send-command      page with a command form and a live tail
//	send-command-api  POST form field "command", a JSON rover command
//	tail              server-sent events, one per line from the rover
//	tail.js           script for the page
//	serial-stats      LinkStats as JSON
func attachAdminRoutes(mux *http.ServeMux, s SerialMuxInterface) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("send-command", "send a command line to the rover", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := sendCommandPage.Execute(w, nil); err != nil {
			logf("failed to render send-command page: %v", err)
		}
	})

	debug.HandleFunc("serial-stats", "serial link counters", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSONOK(w, s.Stats())
	})

	debug.HandleSilentFunc("send-command-api", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		raw := strings.TrimSpace(r.FormValue("command"))
		if raw == "" {
			http.Error(w, "Missing command", http.StatusBadRequest)
			return
		}
		// Round-trip through Command so only well-formed commands reach the rover.
		var cmd telemetry.Command
		if err := json.Unmarshal([]byte(raw), &cmd); err != nil {
			http.Error(w, fmt.Sprintf("Invalid command: %v", err), http.StatusBadRequest)
			return
		}
		if err := sendCommand(s, cmd); err != nil {
			http.Error(w, "Failed to write command", http.StatusInternalServerError)
			return
		}
		line, _ := json.Marshal(cmd)
		fmt.Fprintf(w, "Wrote command %s to serial port", line)
	})

	debug.HandleSilentFunc("tail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}

		h := w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")

		id, lines := s.Subscribe()
		defer s.Unsubscribe(id)

		fmt.Fprint(w, ": ping\n\n")
		flusher.Flush()
		for {
			select {
			case line, ok := <-lines:
				if !ok {
					return
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", summarize(line)); err != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})

	debug.HandleSilentFunc("tail.js", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/javascript")
		w.Header().Set("Cache-Control", "no-cache")
		http.ServeFileFS(w, r, adminFS, "templates/tail.js")
	})
}

// voice-sim stands in for the TTS, device-directory, and playback services
// so the engine can be exercised end to end without real speakers. It
// records every request and serves them back on /stats.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

type renderRequest struct {
	Timestamp string `json:"timestamp"`
	Text      string `json:"text"`
	Language  string `json:"language"`
}

type playRequest struct {
	Timestamp string  `json:"timestamp"`
	DeviceID  string  `json:"device_id"`
	URL       string  `json:"url"`
	Volume    float64 `json:"volume"`
}

type stats struct {
	Renders     int64           `json:"renders"`
	Plays       int64           `json:"plays"`
	LastRenders []renderRequest `json:"last_renders"`
	LastPlays   []playRequest   `json:"last_plays"`
	Since       string          `json:"since"`
}

var (
	mu          sync.Mutex
	renders     int64
	plays       int64
	lastRenders []renderRequest
	lastPlays   []playRequest
	since       time.Time
	maxStored   = 50
)

func main() {
	since = time.Now().UTC()

	addr := ":9100"
	if v := os.Getenv("ADDR"); v != "" {
		addr = v
	}

	http.HandleFunc("/v1.0/tts", ttsHandler)
	http.HandleFunc("/v1.0/playback", playbackHandler)
	http.HandleFunc("/v1.0/users/", devicesHandler)
	http.HandleFunc("/stats", statsHandler)
	http.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	http.HandleFunc("/reset", func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		renders = 0
		plays = 0
		lastRenders = nil
		lastPlays = nil
		since = time.Now().UTC()
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "reset")
	})

	log.Printf("voice-sim listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, nil))
}

func ttsHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text     string `json:"text"`
		Language string `json:"language"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	mu.Lock()
	renders++
	lastRenders = append(lastRenders, renderRequest{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Text:      body.Text,
		Language:  body.Language,
	})
	if len(lastRenders) > maxStored {
		lastRenders = lastRenders[len(lastRenders)-maxStored:]
	}
	n := renders
	mu.Unlock()

	log.Printf("tts render #%d: %q (%s)", n, body.Text, body.Language)
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"url":"http://localhost%s/clips/%d.mp3","duration_ms":1500}`, r.Host, n)
}

func playbackHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DeviceID string  `json:"device_id"`
		URL      string  `json:"url"`
		Volume   float64 `json:"volume"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	mu.Lock()
	plays++
	lastPlays = append(lastPlays, playRequest{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		DeviceID:  body.DeviceID,
		URL:       body.URL,
		Volume:    body.Volume,
	})
	if len(lastPlays) > maxStored {
		lastPlays = lastPlays[len(lastPlays)-maxStored:]
	}
	n := plays
	mu.Unlock()

	log.Printf("playback #%d: device=%s volume=%.2f url=%s", n, body.DeviceID, body.Volume, body.URL)
	w.WriteHeader(http.StatusAccepted)
	fmt.Fprintf(w, `{"played":%d}`, n)
}

// devicesHandler answers /v1.0/users/{id}/devices with a fixed pair of
// speakers so every owner appears to have hardware.
func devicesHandler(w http.ResponseWriter, r *http.Request) {
	if !strings.HasSuffix(r.URL.Path, "/devices") {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `[{"id":"sim-speaker-1","name":"Living Room"},{"id":"sim-speaker-2","name":"Bedroom"}]`)
}

func statsHandler(w http.ResponseWriter, _ *http.Request) {
	mu.Lock()
	s := stats{
		Renders:     renders,
		Plays:       plays,
		LastRenders: lastRenders,
		LastPlays:   lastPlays,
		Since:       since.Format(time.RFC3339),
	}
	mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s)
}

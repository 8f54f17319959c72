// Package main provides a listener simulator that connects a number of
// clients to the station's /ws/state endpoint and reports what they observe.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"math"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// Metrics tracks the simulation results across all clients.
type Metrics struct {
	ConnectionsAttempted int64
	ConnectionsSuccess   int64
	ConnectionsFailed    int64
	SnapshotsReceived    int64
	DesyncedSnapshots    int64
	MaxSpreadMilli       int64 // worst observed cross-client position spread, in ms
}

var metrics Metrics

// positions holds the most recent playback position per client so the spread
// between the fastest and slowest listener can be measured.
var positions sync.Map

type stateSnapshot struct {
	IsPlaying bool    `json:"is_playing"`
	IsLive    bool    `json:"is_live"`
	IsSynced  bool    `json:"is_synced"`
	Progress  float64 `json:"progress"`
	Listeners int     `json:"listener_count"`
}

func main() {
	host := flag.String("host", "localhost:8390", "radio server host")
	clients := flag.Int("clients", 10, "number of concurrent listeners")
	duration := flag.Duration("duration", 60*time.Second, "simulation duration")
	flag.Parse()

	log.Printf("Starting listener simulation against %s with %d clients for %v", *host, *clients, *duration)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	var wg sync.WaitGroup
	stopChan := make(chan struct{})

	for i := 0; i < *clients; i++ {
		wg.Add(1)
		go runListener(*host, i, stopChan, &wg)
		time.Sleep(100 * time.Millisecond)
	}

	select {
	case <-time.After(*duration):
		log.Println("Simulation duration reached")
	case <-interrupt:
		log.Println("Interrupted by user")
	}

	close(stopChan)
	wg.Wait()

	printMetrics()
}

func runListener(host string, id int, stopChan <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()
	atomic.AddInt64(&metrics.ConnectionsAttempted, 1)

	u := url.URL{Scheme: "ws", Host: host, Path: "/ws/state"}
	c, resp, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		atomic.AddInt64(&metrics.ConnectionsFailed, 1)
		return
	}
	if resp != nil && resp.Body != nil {
		defer func() { _ = resp.Body.Close() }()
	}
	defer func() { _ = c.Close() }()
	defer positions.Delete(id)

	atomic.AddInt64(&metrics.ConnectionsSuccess, 1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, raw, err := c.ReadMessage()
			if err != nil {
				return
			}
			var snap stateSnapshot
			if err := json.Unmarshal(raw, &snap); err != nil {
				continue
			}
			atomic.AddInt64(&metrics.SnapshotsReceived, 1)
			if snap.IsLive && snap.IsPlaying && !snap.IsSynced {
				atomic.AddInt64(&metrics.DesyncedSnapshots, 1)
			}
			if snap.IsLive && snap.IsPlaying {
				positions.Store(id, snap.Progress)
				recordSpread()
			}
		}
	}()

	select {
	case <-stopChan:
		_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		select {
		case <-done:
		case <-time.After(2 * time.Second):
		}
	case <-done:
	}
}

// recordSpread folds the current per-client positions into the worst-spread
// metric.
func recordSpread() {
	lo, hi := math.Inf(1), math.Inf(-1)
	n := 0
	positions.Range(func(_, v any) bool {
		p := v.(float64)
		lo = math.Min(lo, p)
		hi = math.Max(hi, p)
		n++
		return true
	})
	if n < 2 {
		return
	}
	spread := int64((hi - lo) * 1000)
	for {
		prev := atomic.LoadInt64(&metrics.MaxSpreadMilli)
		if spread <= prev || atomic.CompareAndSwapInt64(&metrics.MaxSpreadMilli, prev, spread) {
			return
		}
	}
}

func printMetrics() {
	log.Println("=== Listener Simulation Results ===")
	log.Printf("Connections: %d attempted, %d succeeded, %d failed",
		atomic.LoadInt64(&metrics.ConnectionsAttempted),
		atomic.LoadInt64(&metrics.ConnectionsSuccess),
		atomic.LoadInt64(&metrics.ConnectionsFailed))
	log.Printf("Snapshots received: %d (%d not yet synced)",
		atomic.LoadInt64(&metrics.SnapshotsReceived),
		atomic.LoadInt64(&metrics.DesyncedSnapshots))
	log.Printf("Worst cross-client position spread: %dms",
		atomic.LoadInt64(&metrics.MaxSpreadMilli))
}

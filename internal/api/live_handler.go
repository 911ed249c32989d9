package api

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all for dev; restrict in prod
	},
}

// DefaultLiveInterval is how often the live feed pushes a fresh snapshot.
const DefaultLiveInterval = 5 * time.Second

type LiveOccupancyHandler struct {
	Occupancy OccupancyProvider
	Interval  time.Duration

	// IntervalFn, when set, overrides Interval per connection so a config
	// reload changes the cadence for new clients without a restart.
	IntervalFn func() time.Duration
}

func NewLiveOccupancyHandler(occ OccupancyProvider, interval time.Duration) *LiveOccupancyHandler {
	if interval <= 0 {
		interval = DefaultLiveInterval
	}
	return &LiveOccupancyHandler{Occupancy: occ, Interval: interval}
}

func (h *LiveOccupancyHandler) interval() time.Duration {
	if h.IntervalFn != nil {
		if d := h.IntervalFn(); d > 0 {
			return d
		}
	}
	return h.Interval
}

// ServeWS streams the all-regions occupancy snapshot on a fixed cadence
// until the client disconnects.
// GET /api/v1/occupancy/live
func (h *LiveOccupancyHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WS Upgrade Failed: %v", err)
		return
	}
	defer conn.Close()

	// Reader goroutine just waits for close; the client never sends data.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func() error {
		snaps, err := h.Occupancy.AllRegionOccupancy(r.Context())
		if err != nil {
			log.Printf("[ERROR] Live feed: occupancy fetch failed: %v", err)
			return conn.WriteJSON(map[string]string{"error": "occupancy unavailable"})
		}
		return conn.WriteJSON(map[string]any{
			"regions":   snaps,
			"timestamp": time.Now(),
		})
	}

	if err := send(); err != nil {
		return
	}

	ticker := time.NewTicker(h.interval())
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if err := send(); err != nil {
				return
			}
		}
	}
}

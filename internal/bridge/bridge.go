// Package bridge accepts device HTTP notifications and republishes them
// onto the message bus. Older firmware can only POST alarm payloads over
// HTTP; the bridge puts those devices on the same bus path the native
// MQTT devices use.
package bridge

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	maxBodyBytes    = 1 << 20 // 1 MiB, far above any real alarm payload
	publishAttempts = 3
	publishBackoff  = time.Second
	publishTimeout  = 5 * time.Second
)

var errPublishTimeout = errors.New("bus publish timed out")

// BusPublisher is the republish side, satisfied by the paho client.
type BusPublisher interface {
	Publish(topic string, qos byte, retained bool, payload any) mqtt.Token
}

type Bridge struct {
	bus     BusPublisher
	topic   string
	backoff time.Duration
}

func New(bus BusPublisher, topic string) *Bridge {
	return &Bridge{bus: bus, topic: topic, backoff: publishBackoff}
}

// Router is the bridge's HTTP surface.
func (b *Bridge) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Post("/notify", b.HandleNotify)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})
	return r
}

// HandleNotify validates the body is JSON and republishes it verbatim.
// The payload is passed through untouched; normalization happens at the
// ingest worker like any other bus message.
func (b *Bridge) HandleNotify(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "read failed", http.StatusBadRequest)
		return
	}
	if !json.Valid(body) {
		http.Error(w, "body must be JSON", http.StatusBadRequest)
		return
	}

	if err := b.republish(body); err != nil {
		log.Printf("[ERROR] Bridge: republish failed after %d attempts: %v", publishAttempts, err)
		http.Error(w, "bus unavailable", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "forwarded"})
}

func (b *Bridge) republish(payload []byte) error {
	var lastErr error
	for attempt := 0; attempt < publishAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(b.backoff)
		}
		token := b.bus.Publish(b.topic, 1, false, payload)
		if !token.WaitTimeout(publishTimeout) {
			lastErr = errPublishTimeout
			continue
		}
		if err := token.Error(); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}

package ingest

import (
	"context"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/technosupport/ts-occupancy/internal/metrics"
)

type BusConfig struct {
	BrokerURL string
	ClientID  string
	Topic     string
	QoS       byte
	Username  string
	Password  string
}

// BuildBusClient wires the MQTT client to the worker's intake queue.
// Auto-ack is disabled: a message is acknowledged to the broker only once
// the worker has durably handled every event in it, so delivery is
// at-least-once and a crash between receipt and persist means redelivery,
// not loss.
func (w *Worker) BuildBusClient(cfg BusConfig) mqtt.Client {
	handler := func(_ mqtt.Client, msg mqtt.Message) {
		m := msg
		if !w.Enqueue(msg.Payload(), func() { m.Ack() }) {
			log.Printf("[WARN] Ingest: draining, message on %s not accepted", msg.Topic())
		}
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetCleanSession(false).
		SetOrderMatters(false).
		SetAutoAckDisabled(true).
		SetKeepAlive(30 * time.Second).
		SetPingTimeout(10 * time.Second).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	opts.OnConnect = func(c mqtt.Client) {
		log.Printf("Ingest: connected to broker %s", cfg.BrokerURL)
		if token := c.Subscribe(cfg.Topic, cfg.QoS, handler); token.Wait() && token.Error() != nil {
			log.Printf("[ERROR] Ingest: subscribe failed: %v", token.Error())
			return
		}
		w.status.set(StateSubscribed)
		metrics.BusState.Set(float64(StateSubscribed))
		log.Printf("Ingest: subscribed to topic %s (QoS %d)", cfg.Topic, cfg.QoS)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		w.status.set(StateConnecting)
		metrics.BusState.Set(float64(StateConnecting))
		log.Printf("[ERROR] Ingest: bus connection lost: %v", err)
	}
	opts.OnReconnecting = func(c mqtt.Client, o *mqtt.ClientOptions) {
		w.status.set(StateConnecting)
		metrics.BusState.Set(float64(StateConnecting))
	}

	return mqtt.NewClient(opts)
}

// ConnectWithBackoff dials the broker, doubling the wait on each failure
// up to max. Reconnect backoff has no upper attempt bound; a broker that
// never comes back is an alerting concern, not this process's.
func ConnectWithBackoff(ctx context.Context, client mqtt.Client, start, max time.Duration) error {
	backoff := start
	for {
		if token := client.Connect(); token.Wait() && token.Error() != nil {
			log.Printf("[ERROR] Ingest: connect failed: %v; retrying in %s", token.Error(), backoff)
			select {
			case <-time.After(backoff):
				if backoff < max {
					backoff *= 2
				}
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		return nil
	}
}

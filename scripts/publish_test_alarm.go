//go:build ignore

// Publishes one synthetic cross-counting alarm to the broker so the whole
// ingest path can be smoke tested end to end.
// Usage: go run scripts/publish_test_alarm.go [channel] [in] [out]
package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

func main() {
	channel := "Atrium-North"
	in, out := 25, 11
	if len(os.Args) > 1 {
		channel = os.Args[1]
	}
	if len(os.Args) > 3 {
		in, _ = strconv.Atoi(os.Args[2])
		out, _ = strconv.Atoi(os.Args[3])
	}

	broker := os.Getenv("MQTT_BROKER_URL")
	if broker == "" {
		broker = "tcp://localhost:1883"
	}
	topic := os.Getenv("MQTT_TOPIC")
	if topic == "" {
		topic = "alert"
	}

	payload := fmt.Sprintf(`{
		"data": {
			"dev_net_info": [{"ChannelName": %q, "device_name": "demo-nvr", "ip": "127.0.0.1", "mac": "de:mo:de:mo:de:mo"}],
			"alarm_list": [{
				"time": %q,
				"channel_alarm": [{
					"int_alarm": {"int_subtype": "cc", "alarm_val": true},
					"cc_alrm_num": {"cc_in_num": %d, "cc_out_num": %d, "cc_total_num": %d}
				}]
			}]
		}
	}`, channel, time.Now().Format("2006-01-02 15:04:05"), in, out, in+out)

	opts := mqtt.NewClientOptions().AddBroker(broker).SetClientID("crosscount-smoketest")
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		panic(token.Error())
	}
	defer client.Disconnect(250)

	token := client.Publish(topic, 1, false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		panic(err)
	}
	fmt.Printf("published cc alarm for %q (in=%d out=%d) to %s on %q\n", channel, in, out, broker, topic)
}

package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrMalformedPayload = errors.New("malformed payload")
	ErrMissingChannel   = errors.New("missing ChannelName in dev_net_info")
)

// Event is one normalized cross-counting sample extracted from a vendor
// alarm message. It carries no storage identity; the ingest worker resolves
// the owning camera and stamps the ingest time at persistence.
type Event struct {
	DeviceName string
	DeviceIP   string
	DeviceMAC  string
	DevicePhy  string

	Channel      string
	ChannelAlias string

	InCount    int
	OutCount   int
	TotalCount int

	AlarmSnapshot bool
	AlarmSubtype  string
	AlarmStatus   bool
	AlarmRecord   bool

	SubscribeID *string
	DataPos     *int64

	// DeviceTime is the vendor-reported alarm time. It may be skewed or
	// absent; analytics never key off it. Nil when the device sent nothing
	// parseable.
	DeviceTime *time.Time
}

// Device timestamp layouts observed in firmware pushes. Local wall clock
// with no zone is the common case.
var deviceTimeLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006/01/02 15:04:05",
}

// Normalize parses one raw alarm message into zero or more events. It never
// panics and never returns a partial decode error alongside events from the
// same failure: a message with no channel identity yields no events at all.
// Per-entry problems (missing counter block, bad timestamp) degrade that
// entry, not the message. Pure function; safe to call from multiple
// goroutines.
func Normalize(raw []byte) ([]Event, []error) {
	var msg AlarmMessage
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&msg); err != nil {
		return nil, []error{fmt.Errorf("%w: %v", ErrMalformedPayload, err)}
	}

	if msg.Data == nil {
		return nil, []error{fmt.Errorf("%w: missing data object", ErrMalformedPayload)}
	}

	var net DevNetInfo
	if len(msg.Data.DevNetInfo) > 0 {
		net = msg.Data.DevNetInfo[0]
	}
	if net.ChannelName == "" {
		return nil, []error{ErrMissingChannel}
	}

	deviceName := net.DeviceName
	if deviceName == "" {
		deviceName = "Unknown Device"
	}
	deviceIP := net.IP
	if deviceIP == "" {
		deviceIP = "0.0.0.0"
	}
	deviceMAC := net.MAC
	if deviceMAC == "" {
		deviceMAC = "00:00:00:00:00:00"
	}

	var events []Event
	var errs []error

	for _, batch := range msg.Data.AlarmList {
		deviceTime := parseDeviceTime(batch.Time)

		for _, ca := range batch.ChannelAlarm {
			if ca.IntAlarm == nil || ca.IntAlarm.IntSubtype != SubtypeCrossCounting {
				// Other alarm subtypes (motion etc.) are not errors, just
				// not ours.
				continue
			}

			evt := Event{
				DeviceName:    deviceName,
				DeviceIP:      deviceIP,
				DeviceMAC:     deviceMAC,
				DevicePhy:     net.PhyAddr,
				Channel:       net.ChannelName,
				ChannelAlias:  ca.ChnAlias,
				AlarmSnapshot: ca.IntAlarm.TakeAlarmSnap != 0,
				AlarmSubtype:  ca.IntAlarm.IntSubtype,
				AlarmStatus:   boolFromRaw(ca.IntAlarm.AlarmVal),
				AlarmRecord:   ca.IntAlarm.TakeAlarmRec != 0,
				SubscribeID:   batch.SubscribeID,
				DataPos:       batch.DataPos,
				DeviceTime:    deviceTime,
			}

			if ca.CcAlarmNum != nil {
				evt.InCount = ca.CcAlarmNum.CcInNum
				evt.OutCount = ca.CcAlarmNum.CcOutNum
				evt.TotalCount = ca.CcAlarmNum.CcTotalNum
			}

			if evt.InCount < 0 || evt.OutCount < 0 || evt.TotalCount < 0 {
				errs = append(errs, fmt.Errorf("%w: negative counter for channel %q", ErrMalformedPayload, net.ChannelName))
				continue
			}

			events = append(events, evt)
		}
	}

	return events, errs
}

// parseDeviceTime tries the known firmware layouts. A bad or empty
// timestamp returns nil; it never blocks event emission since the ingest
// time is authoritative for analytics.
func parseDeviceTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range deviceTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return &t
		}
	}
	return nil
}

// boolFromRaw accepts the firmware's loose alarm_val encoding: true/false,
// 0/1, or a quoted variant of either.
func boolFromRaw(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n != 0
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s == "1" || s == "true"
	}
	return false
}

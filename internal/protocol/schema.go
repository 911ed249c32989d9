package protocol

import "encoding/json"

// Wire schema for the vendor alarm push. Field names must match the device
// firmware exactly; do not rename tags. Everything the device may omit is a
// pointer or has a zero default so a partial payload still decodes.

type AlarmMessage struct {
	Data *AlarmData `json:"data"`
}

type AlarmData struct {
	DevNetInfo []DevNetInfo `json:"dev_net_info"`
	AlarmList  []AlarmBatch `json:"alarm_list"`
}

// DevNetInfo describes the reporting device. Only the first array element is
// meaningful; the firmware always sends exactly one but the schema is an array.
type DevNetInfo struct {
	ChannelName string `json:"ChannelName"`
	DeviceName  string `json:"device_name"`
	IP          string `json:"ip"`
	MAC         string `json:"mac"`
	PhyAddr     string `json:"phy_addr"`
}

// AlarmBatch groups channel alarms sharing one device-reported timestamp.
type AlarmBatch struct {
	Time         string         `json:"time"`
	SubscribeID  *string        `json:"subs_id"`
	DataPos      *int64         `json:"data_pos"`
	ChannelAlarm []ChannelAlarm `json:"channel_alarm"`
}

type ChannelAlarm struct {
	ChnAlias   string      `json:"chn_alias"`
	IntAlarm   *IntAlarm   `json:"int_alarm"`
	CcAlarmNum *CcAlarmNum `json:"cc_alrm_num"`
}

type IntAlarm struct {
	IntSubtype    string          `json:"int_subtype"`
	TakeAlarmSnap int             `json:"take_alarm_snap"`
	TakeAlarmRec  int             `json:"take_alarm_rec"`
	AlarmVal      json.RawMessage `json:"alarm_val"`
}

type CcAlarmNum struct {
	CcInNum    int `json:"cc_in_num"`
	CcOutNum   int `json:"cc_out_num"`
	CcTotalNum int `json:"cc_total_num"`
}

// SubtypeCrossCounting is the only int_alarm subtype this system ingests.
const SubtypeCrossCounting = "cc"

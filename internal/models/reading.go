package models

import "time"

// ReadingKind 设备上报数据类型
type ReadingKind string

const (
	ReadingKindLocation    ReadingKind = "location"
	ReadingKindHeartRate   ReadingKind = "heartrate"
	ReadingKindTemperature ReadingKind = "temperature"
	ReadingKindFall        ReadingKind = "fall"
	// ReadingKindSOS 求救按键，不落 readings 表，只开启紧急案例
	ReadingKindSOS ReadingKind = "sos"
)

// ParseReadingKind 解析上报类型
func ParseReadingKind(s string) (ReadingKind, bool) {
	switch k := ReadingKind(s); k {
	case ReadingKindLocation, ReadingKindHeartRate, ReadingKindTemperature, ReadingKindFall, ReadingKindSOS:
		return k, true
	}
	return "", false
}

// StoredKinds 落库的 reading 类型
var StoredKinds = []ReadingKind{
	ReadingKindLocation,
	ReadingKindHeartRate,
	ReadingKindTemperature,
	ReadingKindFall,
}

// ReadingStatus 入库时计算的状态，之后不再重算
type ReadingStatus string

const (
	StatusNormal       ReadingStatus = "normal"
	StatusAbnormalLow  ReadingStatus = "abnormal_low"
	StatusAbnormalHigh ReadingStatus = "abnormal_high"
	StatusOutsideZone1 ReadingStatus = "outside_zone_1"
	StatusOutsideZone2 ReadingStatus = "outside_zone_2"
	StatusUnconfirmed  ReadingStatus = "unconfirmed"
)

// Reading 设备读数（四种类型共用，按 Kind 填充对应字段）
type Reading struct {
	ReadingID   string        `json:"reading_id"`
	DependentID string        `json:"dependent_id"`
	Kind        ReadingKind   `json:"kind"`
	Status      ReadingStatus `json:"status"`
	RecordedAt  time.Time     `json:"recorded_at"`

	// location / fall
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Battery   *int     `json:"battery,omitempty"`
	DistanceM *int     `json:"distance_m,omitempty"`

	// heartrate
	BPM *int `json:"bpm,omitempty"`

	// temperature
	Temperature *float64 `json:"temperature,omitempty"`

	// fall 冲击向量
	ImpactX *float64 `json:"impact_x,omitempty"`
	ImpactY *float64 `json:"impact_y,omitempty"`
	ImpactZ *float64 `json:"impact_z,omitempty"`
}

// DevicePayload 设备上报的原始数据（HTTP body 与 MQTT payload 相同）
type DevicePayload struct {
	DependentID string   `json:"dependent_id"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	Battery     *int     `json:"battery,omitempty"`
	BPM         *int     `json:"bpm,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	X           *float64 `json:"x,omitempty"`
	Y           *float64 `json:"y,omitempty"`
	Z           *float64 `json:"z,omitempty"`
	Timestamp   int64    `json:"timestamp,omitempty"` // Unix 秒，0 表示使用服务端时间
}

// RecordedAt 读数时间
func (p *DevicePayload) RecordedAt(now time.Time) time.Time {
	if p.Timestamp > 0 {
		return time.Unix(p.Timestamp, 0).UTC()
	}
	return now
}

// Location 上报的坐标（可能为空）
func (p *DevicePayload) Location() *GeoPoint {
	if p.Latitude == nil || p.Longitude == nil {
		return nil
	}
	return &GeoPoint{Lat: *p.Latitude, Lng: *p.Longitude}
}

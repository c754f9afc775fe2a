package models

import "time"

// Dependent 被监护人（佩戴设备的老人）
type Dependent struct {
	DependentID string    `json:"dependent_id" db:"dependent_id"`
	Name        string    `json:"name" db:"name"`
	CaregiverID *string   `json:"caregiver_id,omitempty" db:"caregiver_id"`
	IsActive    bool      `json:"is_active" db:"is_active"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// AlertConfig 被监护人的报警阈值配置（alert_settings 表，所有字段可为空）
type AlertConfig struct {
	DependentID    string   `json:"dependent_id" db:"dependent_id"`
	HeartRateMin   *int     `json:"heart_rate_min,omitempty" db:"heart_rate_min"`
	HeartRateMax   *int     `json:"heart_rate_max,omitempty" db:"heart_rate_max"`
	MaxTemperature *float64 `json:"max_temperature,omitempty" db:"max_temperature"`
	GeofenceLat    *float64 `json:"geofence_lat,omitempty" db:"geofence_lat"`
	GeofenceLng    *float64 `json:"geofence_lng,omitempty" db:"geofence_lng"`
	RadiusLv1      *int     `json:"radius_lv1,omitempty" db:"radius_lv1"`
	RadiusLv2      *int     `json:"radius_lv2,omitempty" db:"radius_lv2"`
}

// AlertDefaults 系统默认阈值（不可变，从配置加载后显式传递）
type AlertDefaults struct {
	HeartRateMin      int     `yaml:"heart_rate_min"`
	HeartRateMax      int     `yaml:"heart_rate_max"`
	MaxTemperature    float64 `yaml:"max_temperature"`
	RadiusLv1         int     `yaml:"radius_lv1"`
	RadiusLv2         int     `yaml:"radius_lv2"`
	LowBatteryPercent int     `yaml:"low_battery_percent"`
}

// DefaultAlertDefaults 内置默认值
func DefaultAlertDefaults() AlertDefaults {
	return AlertDefaults{
		HeartRateMin:      50,
		HeartRateMax:      120,
		MaxTemperature:    37.5,
		RadiusLv1:         100,
		RadiusLv2:         500,
		LowBatteryPercent: 15,
	}
}

// GeoPoint 经纬度
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid 纬度 [-90, 90]，经度 [-180, 180]
func (g GeoPoint) Valid() bool {
	return g.Lat >= -90 && g.Lat <= 90 && g.Lng >= -180 && g.Lng <= 180
}

// EffectiveConfig 合并后的生效配置
type EffectiveConfig struct {
	HeartRateMin      int
	HeartRateMax      int
	MaxTemperature    float64
	Geofence          *GeoPoint // nil 表示未设置安全区中心
	RadiusLv1         int
	RadiusLv2         int
	LowBatteryPercent int
}

// Effective 按字段合并：被监护人配置优先，缺失字段使用系统默认值
// cfg 为 nil 时完全使用默认值
func (d AlertDefaults) Effective(cfg *AlertConfig) EffectiveConfig {
	eff := EffectiveConfig{
		HeartRateMin:      d.HeartRateMin,
		HeartRateMax:      d.HeartRateMax,
		MaxTemperature:    d.MaxTemperature,
		RadiusLv1:         d.RadiusLv1,
		RadiusLv2:         d.RadiusLv2,
		LowBatteryPercent: d.LowBatteryPercent,
	}
	if cfg == nil {
		return eff
	}
	if cfg.HeartRateMin != nil {
		eff.HeartRateMin = *cfg.HeartRateMin
	}
	if cfg.HeartRateMax != nil {
		eff.HeartRateMax = *cfg.HeartRateMax
	}
	if cfg.MaxTemperature != nil {
		eff.MaxTemperature = *cfg.MaxTemperature
	}
	if cfg.GeofenceLat != nil && cfg.GeofenceLng != nil {
		eff.Geofence = &GeoPoint{Lat: *cfg.GeofenceLat, Lng: *cfg.GeofenceLng}
	}
	if cfg.RadiusLv1 != nil {
		eff.RadiusLv1 = *cfg.RadiusLv1
	}
	if cfg.RadiusLv2 != nil {
		eff.RadiusLv2 = *cfg.RadiusLv2
	}
	return eff
}

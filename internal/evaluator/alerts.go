package evaluator

import (
	"fmt"
	"time"

	"github.com/frankss230/AFE-PLUS.2-sub001/internal/models"
)

// 各类报警的文案与颜色

func geofenceAlert(name string, r *models.Reading, eff models.EffectiveConfig) models.Alert {
	level, color, radius := 1, models.ColorWarning, eff.RadiusLv1
	if r.Status == models.StatusOutsideZone2 {
		level, color, radius = 2, models.ColorDanger, eff.RadiusLv2
	}
	return models.Alert{
		DependentID: r.DependentID,
		Kind:        models.AlertGeofence,
		Message:     fmt.Sprintf("%s is outside safe zone (level %d), beyond the %d m boundary", name, level, radius),
		Value:       fmt.Sprintf("%d m", *r.DistanceM),
		Color:       color,
		ReadingID:   r.ReadingID,
		RaisedAt:    r.RecordedAt,
	}
}

func lowBatteryAlert(name string, r *models.Reading) models.Alert {
	return models.Alert{
		DependentID: r.DependentID,
		Kind:        models.AlertLowBattery,
		Message:     fmt.Sprintf("%s's watch battery is low, please charge the device", name),
		Value:       fmt.Sprintf("%d%%", *r.Battery),
		Color:       models.ColorInfo,
		ReadingID:   r.ReadingID,
		RaisedAt:    r.RecordedAt,
	}
}

func heartRateAlert(name string, r *models.Reading, eff models.EffectiveConfig) models.Alert {
	msg := fmt.Sprintf("%s's heart rate is above normal (max %d bpm)", name, eff.HeartRateMax)
	if r.Status == models.StatusAbnormalLow {
		msg = fmt.Sprintf("%s's heart rate is below normal (min %d bpm)", name, eff.HeartRateMin)
	}
	return models.Alert{
		DependentID: r.DependentID,
		Kind:        models.AlertHeartRate,
		Message:     msg,
		Value:       fmt.Sprintf("%d bpm", *r.BPM),
		Color:       models.ColorDanger,
		ReadingID:   r.ReadingID,
		RaisedAt:    r.RecordedAt,
	}
}

func temperatureAlert(name string, r *models.Reading, eff models.EffectiveConfig) models.Alert {
	return models.Alert{
		DependentID: r.DependentID,
		Kind:        models.AlertTemperature,
		Message:     fmt.Sprintf("%s's body temperature is high (max %.1f °C)", name, eff.MaxTemperature),
		Value:       fmt.Sprintf("%.1f °C", *r.Temperature),
		Color:       models.ColorDanger,
		ReadingID:   r.ReadingID,
		RaisedAt:    r.RecordedAt,
	}
}

// EmergencyAlert 紧急案例（SOS / 跌倒）的通知，统一走 sos 报警类型
func EmergencyAlert(name string, c *models.EmergencyCase, at time.Time) models.Alert {
	msg := fmt.Sprintf("%s pressed the SOS button and needs help", name)
	value := "SOS"
	if c.Kind == models.CaseKindFall {
		msg = fmt.Sprintf("%s may have fallen and needs help", name)
		value = "FALL"
	}
	if c.Latitude != nil && c.Longitude != nil {
		value = fmt.Sprintf("%s @ %.6f,%.6f", value, *c.Latitude, *c.Longitude)
	}
	return models.Alert{
		DependentID: c.DependentID,
		Kind:        models.AlertSOS,
		Message:     msg,
		Value:       value,
		Color:       models.ColorDanger,
		CaseID:      c.CaseID,
		RaisedAt:    at,
	}
}

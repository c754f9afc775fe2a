package models

import "time"

// AlertKind 报警类型（固定五种）
type AlertKind string

const (
	AlertGeofence    AlertKind = "geofence"
	AlertHeartRate   AlertKind = "heart_rate"
	AlertTemperature AlertKind = "temperature"
	AlertLowBattery  AlertKind = "low_battery"
	AlertSOS         AlertKind = "sos"
)

// 颜色提示（通知卡片的 header 颜色）
const (
	ColorDanger  = "#E53935"
	ColorWarning = "#FB8C00"
	ColorInfo    = "#1E88E5"
)

// Alert 一次待发送的报警
type Alert struct {
	DependentID string    `json:"dependent_id"`
	Kind        AlertKind `json:"kind"`
	Message     string    `json:"message"`
	Value       string    `json:"value"`
	Color       string    `json:"color"`
	ReadingID   string    `json:"reading_id,omitempty"`
	CaseID      string    `json:"case_id,omitempty"`
	RaisedAt    time.Time `json:"raised_at"`
}

// DispatchStatus 发送结果
type DispatchStatus string

const (
	DispatchSent               DispatchStatus = "sent"
	DispatchSkippedNoRecipient DispatchStatus = "skipped_no_recipient"
	DispatchChannelError       DispatchStatus = "channel_error"
)

// RecipientSource 收件人来源
type RecipientSource string

const (
	RecipientCaregiver RecipientSource = "caregiver"
	RecipientAdmin     RecipientSource = "admin"
)

// Recipient 通知收件人
type Recipient struct {
	Address string          `json:"address"`
	Source  RecipientSource `json:"source"`
	OwnerID string          `json:"owner_id"`
}

// DispatchOutcome 单次发送的结果；调用方只用于记录，不影响流程
type DispatchOutcome struct {
	Status    DispatchStatus `json:"status"`
	Recipient *Recipient     `json:"recipient,omitempty"`
	Err       error          `json:"-"`
}

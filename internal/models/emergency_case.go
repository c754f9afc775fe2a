package models

import "time"

// CaseKind 紧急案例类型
type CaseKind string

const (
	CaseKindFall CaseKind = "FALL"
	CaseKindSOS  CaseKind = "SOS"
)

// CaseStatus 紧急案例状态
// DETECTED -> ACKNOWLEDGED -> RESOLVED，RESOLVED 为终态
type CaseStatus string

const (
	CaseDetected     CaseStatus = "DETECTED"
	CaseAcknowledged CaseStatus = "ACKNOWLEDGED"
	CaseResolved     CaseStatus = "RESOLVED"
)

// Terminal 是否终态
func (s CaseStatus) Terminal() bool {
	return s == CaseResolved
}

// AcceptPolicy 并发接单策略
type AcceptPolicy string

const (
	// AcceptFirstWins 只有 DETECTED 状态可以接单，第二个接单失败
	AcceptFirstWins AcceptPolicy = "first_wins"
	// AcceptOverwrite 已接单的案例可被后来者覆盖
	AcceptOverwrite AcceptPolicy = "overwrite"
)

// EmergencyCase 紧急求助案例（emergency_cases 表）
type EmergencyCase struct {
	CaseID         string     `json:"case_id" db:"case_id"`
	DependentID    string     `json:"dependent_id" db:"dependent_id"`
	Kind           CaseKind   `json:"kind" db:"kind"`
	Status         CaseStatus `json:"status" db:"status"`
	Latitude       *float64   `json:"latitude,omitempty" db:"latitude"`
	Longitude      *float64   `json:"longitude,omitempty" db:"longitude"`
	ResponderID    *string    `json:"responder_id,omitempty" db:"responder_id"`
	ResponderLat   *float64   `json:"responder_lat,omitempty" db:"responder_lat"`
	ResponderLng   *float64   `json:"responder_lng,omitempty" db:"responder_lng"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty" db:"acknowledged_at"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty" db:"resolved_at"`
}

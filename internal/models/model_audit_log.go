package models

import (
	"time"

	"gorm.io/datatypes"
)

type AuditSeverity string

const (
	AuditSeverityInfo     AuditSeverity = "info"
	AuditSeverityWarning  AuditSeverity = "warning"
	AuditSeverityCritical AuditSeverity = "critical"
)

type AuditLog struct {
	ID         string            `gorm:"column:id;type:uuid;primary_key" json:"id"`
	Action     string            `gorm:"column:action;type:varchar(64);not null;index" json:"action"`
	EntityType string            `gorm:"column:entity_type;type:varchar(64);not null" json:"entity_type"`
	EntityID   string            `gorm:"column:entity_id;type:varchar(64);not null;index" json:"entity_id"`
	Severity   AuditSeverity     `gorm:"column:severity;type:varchar(16);not null" json:"severity"`
	Details    datatypes.JSONMap `gorm:"column:details;type:jsonb" json:"details"`
	CreatedAt  time.Time         `json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_log" }

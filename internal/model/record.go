package model

import (
	"errors"
	"time"
)

// RecordModel 会议、活动、请假单、出差单的统一数据模型
type RecordModel struct {
	ID           string             `gorm:"primaryKey;type:varchar(64)"`
	Kind         string             `gorm:"type:varchar(32);not null;index"`
	BatchID      string             `gorm:"type:varchar(64);index"` // 多员工申报时同一次提交共享
	Title        string             `gorm:"type:varchar(255)"`
	EmployeeID   string             `gorm:"type:varchar(64);index"`
	EmployeeName string             `gorm:"type:varchar(255)"`
	Department   string             `gorm:"type:varchar(128);index"`
	Location     string             `gorm:"type:varchar(255)"`
	Organizer    string             `gorm:"type:varchar(255)"`
	Purpose      string             `gorm:"type:text"`
	Status       string             `gorm:"type:varchar(32);not null;index"`
	StartAt      time.Time          `gorm:"not null;index"`
	EndAt        time.Time          `gorm:"not null"`
	Remarks      string             `gorm:"type:text"`
	Attributes   map[string]string  `gorm:"type:jsonb;serializer:json"`
	Participants []ParticipantModel `gorm:"foreignKey:RecordID;constraint:OnDelete:CASCADE"`
	CreatedBy    string             `gorm:"type:varchar(64);index"`
	ApprovedBy   string             `gorm:"type:varchar(64)"`
	ApprovedAt   *time.Time
	CreatedAt    time.Time `gorm:"not null;index"`
	UpdatedAt    time.Time `gorm:"not null"`
}

// TableName 指定表名
func (RecordModel) TableName() string {
	return "records"
}

// Validate 验证记录模型
func (m *RecordModel) Validate() error {
	if m.ID == "" {
		return errors.New("record ID is required")
	}
	if m.Kind == "" {
		return errors.New("record kind is required")
	}
	if m.Status == "" {
		return errors.New("record status is required")
	}
	if m.StartAt.IsZero() || m.EndAt.IsZero() {
		return errors.New("record start and end are required")
	}
	if m.EndAt.Before(m.StartAt) {
		return errors.New("record end must not be before start")
	}
	return nil
}

// ParticipantModel 参与人
type ParticipantModel struct {
	ID         string `gorm:"primaryKey;type:varchar(64)"`
	RecordID   string `gorm:"type:varchar(64);not null;index"`
	Position   int    `gorm:"not null"`
	EmployeeID string `gorm:"type:varchar(64);not null"`
	Name       string `gorm:"type:varchar(255)"`
	Attendance string `gorm:"type:varchar(32)"`
}

// TableName 指定表名
func (ParticipantModel) TableName() string {
	return "record_participants"
}

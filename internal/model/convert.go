package model

import (
	"maps"
	"sort"

	"github.com/progenxxx/hris-sub006/internal/workflow"
)

// ToRecord 转换为工作流记录
func (m *RecordModel) ToRecord() workflow.Record {
	rec := workflow.Record{
		ID:           m.ID,
		Kind:         m.Kind,
		Title:        m.Title,
		EmployeeID:   m.EmployeeID,
		EmployeeName: m.EmployeeName,
		Department:   m.Department,
		Location:     m.Location,
		Organizer:    m.Organizer,
		Purpose:      m.Purpose,
		Status:       workflow.Status(m.Status),
		Start:        m.StartAt,
		End:          m.EndAt,
		Remarks:      m.Remarks,
		Attributes:   maps.Clone(m.Attributes),
		CreatedBy:    m.CreatedBy,
		ApprovedBy:   m.ApprovedBy,
		CreatedAt:    m.CreatedAt,
	}
	if m.ApprovedAt != nil {
		at := *m.ApprovedAt
		rec.ApprovedAt = &at
	}
	parts := append([]ParticipantModel(nil), m.Participants...)
	sort.SliceStable(parts, func(i, j int) bool { return parts[i].Position < parts[j].Position })
	for _, p := range parts {
		rec.Participants = append(rec.Participants, workflow.Participant{
			EmployeeID: p.EmployeeID,
			Name:       p.Name,
			Attendance: workflow.Attendance(p.Attendance),
		})
	}
	return rec
}

// ToRecords 批量转换
func ToRecords(models []*RecordModel) []workflow.Record {
	out := make([]workflow.Record, 0, len(models))
	for _, m := range models {
		out = append(out, m.ToRecord())
	}
	return out
}

// ApplyDraft 用提交的字段覆盖模型,不修改状态
func (m *RecordModel) ApplyDraft(d workflow.Draft, newID func() string) {
	m.Title = d.Title
	m.EmployeeName = d.EmployeeName
	m.Department = d.Department
	m.Location = d.Location
	m.Organizer = d.Organizer
	m.Purpose = d.Purpose
	m.StartAt = d.Start
	m.EndAt = d.End
	m.Remarks = d.Remarks
	m.Attributes = maps.Clone(d.Attributes)
	m.Participants = m.Participants[:0]
	for i, p := range d.Participants {
		attendance := p.Attendance
		if attendance == "" {
			attendance = workflow.AttendanceConfirmed
		}
		m.Participants = append(m.Participants, ParticipantModel{
			ID:         newID(),
			RecordID:   m.ID,
			Position:   i,
			EmployeeID: p.EmployeeID,
			Name:       p.Name,
			Attendance: string(attendance),
		})
	}
}

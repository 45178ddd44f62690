package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/progenxxx/hris-sub006/internal/workflow"
)

// ExportService 导出记录为 xlsx
type ExportService interface {
	Export(ctx context.Context, kind string, criteria workflow.Criteria, w io.Writer) (int, error)
}

type exportService struct {
	records RecordService
	loc     *time.Location
}

// NewExportService 创建导出服务
func NewExportService(records RecordService, loc *time.Location) ExportService {
	if loc == nil {
		loc = time.Local
	}
	return &exportService{records: records, loc: loc}
}

const exportTimeLayout = "2006-01-02 15:04"

// exportColumn 导出列
type exportColumn struct {
	header string
	value  func(r workflow.Record, loc *time.Location) string
}

var baseColumns = []exportColumn{
	{"ID", func(r workflow.Record, _ *time.Location) string { return r.ID }},
	{"Title", func(r workflow.Record, _ *time.Location) string { return r.Title }},
	{"Status", func(r workflow.Record, _ *time.Location) string { return string(r.Status) }},
	{"Start", func(r workflow.Record, loc *time.Location) string { return r.Start.In(loc).Format(exportTimeLayout) }},
	{"End", func(r workflow.Record, loc *time.Location) string { return r.End.In(loc).Format(exportTimeLayout) }},
	{"Remarks", func(r workflow.Record, _ *time.Location) string { return r.Remarks }},
	{"Approved By", func(r workflow.Record, _ *time.Location) string { return r.ApprovedBy }},
	{"Approved At", func(r workflow.Record, loc *time.Location) string {
		if r.ApprovedAt == nil {
			return ""
		}
		return r.ApprovedAt.In(loc).Format(exportTimeLayout)
	}},
}

// Export 按过滤条件写出工作簿,返回导出的记录数
func (s *exportService) Export(ctx context.Context, kind string, criteria workflow.Criteria, w io.Writer) (int, error) {
	recs, err := s.records.List(ctx, kind, criteria)
	if err != nil {
		return 0, err
	}
	kc, _ := s.records.Kinds().Get(kind)

	columns := append([]exportColumn(nil), baseColumns...)
	for _, field := range kc.SearchFields {
		if field == workflow.FieldTitle {
			continue
		}
		field := field
		columns = append(columns, exportColumn{
			header: headerFor(field),
			value:  func(r workflow.Record, _ *time.Location) string { return r.Field(field) },
		})
	}
	columns = append(columns, exportColumn{"Participants", func(r workflow.Record, _ *time.Location) string {
		names := make([]string, 0, len(r.Participants))
		for _, p := range r.Participants {
			name := p.Name
			if name == "" {
				name = p.EmployeeID
			}
			names = append(names, fmt.Sprintf("%s (%s)", name, p.Attendance))
		}
		return strings.Join(names, ", ")
	}})

	f := excelize.NewFile()
	defer f.Close()

	sheet := kc.Label
	if sheet == "" {
		sheet = kc.Name
	}
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return 0, fmt.Errorf("failed to name sheet: %w", err)
	}

	header := make([]interface{}, len(columns))
	for i, col := range columns {
		header[i] = col.header
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return 0, fmt.Errorf("failed to write header: %w", err)
	}

	for i, rec := range recs {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		row := make([]interface{}, len(columns))
		for j, col := range columns {
			row[j] = col.value(rec, s.loc)
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return 0, err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return 0, fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if err := f.Write(w); err != nil {
		return 0, fmt.Errorf("failed to write workbook: %w", err)
	}
	return len(recs), nil
}

// headerFor 字段名转表头: employee_name -> Employee Name
func headerFor(field string) string {
	words := strings.Split(field, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

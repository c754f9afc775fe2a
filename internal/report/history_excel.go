package report

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/frankss230/AFE-PLUS.2-sub001/internal/models"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// HistorySource 导出数据来源
type HistorySource interface {
	ListReadings(ctx context.Context, dependentID string, kind models.ReadingKind, from, to time.Time) ([]*models.Reading, error)
	ListCases(ctx context.Context, dependentID string, from, to time.Time) ([]*models.EmergencyCase, error)
}

const timeLayout = "2006-01-02 15:04:05"

// 每种读数一个工作表
type sheetSpec struct {
	name    string
	kind    models.ReadingKind
	headers []string
	widths  []float64
	row     func(r *models.Reading) []interface{}
}

var readingSheets = []sheetSpec{
	{
		name:    "Location",
		kind:    models.ReadingKindLocation,
		headers: []string{"Recorded At", "Status", "Latitude", "Longitude", "Distance (m)", "Battery (%)"},
		widths:  []float64{20, 16, 14, 14, 14, 12},
		row: func(r *models.Reading) []interface{} {
			return []interface{}{r.RecordedAt.Format(timeLayout), string(r.Status), floatCell(r.Latitude), floatCell(r.Longitude), intCell(r.DistanceM), intCell(r.Battery)}
		},
	},
	{
		name:    "Heart Rate",
		kind:    models.ReadingKindHeartRate,
		headers: []string{"Recorded At", "Status", "BPM"},
		widths:  []float64{20, 16, 10},
		row: func(r *models.Reading) []interface{} {
			return []interface{}{r.RecordedAt.Format(timeLayout), string(r.Status), intCell(r.BPM)}
		},
	},
	{
		name:    "Temperature",
		kind:    models.ReadingKindTemperature,
		headers: []string{"Recorded At", "Status", "Temperature (°C)"},
		widths:  []float64{20, 16, 18},
		row: func(r *models.Reading) []interface{} {
			return []interface{}{r.RecordedAt.Format(timeLayout), string(r.Status), floatCell(r.Temperature)}
		},
	},
	{
		name:    "Fall",
		kind:    models.ReadingKindFall,
		headers: []string{"Recorded At", "Status", "X", "Y", "Z", "Latitude", "Longitude"},
		widths:  []float64{20, 16, 10, 10, 10, 14, 14},
		row: func(r *models.Reading) []interface{} {
			return []interface{}{r.RecordedAt.Format(timeLayout), string(r.Status), floatCell(r.ImpactX), floatCell(r.ImpactY), floatCell(r.ImpactZ), floatCell(r.Latitude), floatCell(r.Longitude)}
		},
	},
}

// CaseSheetName 案例工作表
const CaseSheetName = "Emergency Cases"

var caseHeaders = []string{"Case ID", "Kind", "Status", "Created At", "Acknowledged At", "Resolved At", "Responder", "Latitude", "Longitude"}

// HistoryExporter 被监护人历史数据导出（xlsx）
type HistoryExporter struct {
	source HistorySource
	logger *zap.Logger
}

// NewHistoryExporter 创建导出器
func NewHistoryExporter(source HistorySource, logger *zap.Logger) *HistoryExporter {
	return &HistoryExporter{
		source: source,
		logger: logger,
	}
}

// Export 导出 [from, to) 内的读数与紧急案例
func (e *HistoryExporter) Export(ctx context.Context, dependentID string, from, to time.Time) ([]byte, error) {
	if !from.Before(to) {
		return nil, fmt.Errorf("invalid time range: %s - %s", from.Format(time.RFC3339), to.Format(time.RFC3339))
	}

	f := excelize.NewFile()
	// 出错路径统一关闭
	ok := false
	defer func() {
		if !ok {
			f.Close()
		}
	}()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	total := 0
	for _, sheet := range readingSheets {
		readings, err := e.source.ListReadings(ctx, dependentID, sheet.kind, from, to)
		if err != nil {
			return nil, err
		}
		rows := make([][]interface{}, 0, len(readings))
		for _, r := range readings {
			rows = append(rows, sheet.row(r))
		}
		if err := writeSheet(f, sheet.name, sheet.headers, sheet.widths, headerStyle, rows); err != nil {
			return nil, err
		}
		total += len(rows)
	}

	cases, err := e.source.ListCases(ctx, dependentID, from, to)
	if err != nil {
		return nil, err
	}
	caseRows := make([][]interface{}, 0, len(cases))
	for _, c := range cases {
		caseRows = append(caseRows, []interface{}{
			c.CaseID, string(c.Kind), string(c.Status),
			c.CreatedAt.Format(timeLayout), timeCell(c.AcknowledgedAt), timeCell(c.ResolvedAt),
			stringCell(c.ResponderID), floatCell(c.Latitude), floatCell(c.Longitude),
		})
	}
	if err := writeSheet(f, CaseSheetName, caseHeaders, []float64{38, 8, 14, 20, 20, 20, 38, 14, 14}, headerStyle, caseRows); err != nil {
		return nil, err
	}

	// 删除默认的 Sheet1
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to delete default sheet: %w", err)
	}
	f.SetActiveSheet(0)

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write to buffer: %w", err)
	}
	ok = true
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}

	e.logger.Info("History exported",
		zap.String("dependent_id", dependentID),
		zap.Int("readings", total),
		zap.Int("cases", len(cases)),
	)
	return buf.Bytes(), nil
}

func writeSheet(f *excelize.File, sheet string, headers []string, widths []float64, headerStyle int, rows [][]interface{}) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", sheet, err)
	}

	for col, header := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheet, cell, cell, headerStyle); err != nil {
			return fmt.Errorf("failed to set header style: %w", err)
		}
		if col < len(widths) {
			name, _ := excelize.ColumnNumberToName(col + 1)
			if err := f.SetColWidth(sheet, name, name, widths[col]); err != nil {
				return fmt.Errorf("failed to set column width: %w", err)
			}
		}
	}

	for i, row := range rows {
		for j, value := range row {
			if value == nil {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(j+1, i+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return fmt.Errorf("failed to set cell %s on %s: %w", cell, sheet, err)
			}
		}
	}

	// 冻结表头
	return f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func floatCell(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func intCell(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func stringCell(v *string) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func timeCell(v *time.Time) interface{} {
	if v == nil {
		return nil
	}
	return v.Format(timeLayout)
}

// Package export renders stored fiscal records as spreadsheets.
package export

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/fiscal-extractor/internal/entity"
	"github.com/joseph-ayodele/fiscal-extractor/internal/repository"
)

const (
	recordsSheet   = "Comprobantes"
	conceptosSheet = "Conceptos"
)

var recordHeaders = []string{
	"Fecha",
	"UUID",
	"RFC Emisor",
	"RFC Receptor",
	"Establecimiento",
	"Forma de pago",
	"Subtotal",
	"IVA",
	"Total",
	"Confianza",
	"Tipo",
	"Adquisición",
	"Archivo",
	"Advertencias",
}

var conceptoHeaders = []string{"UUID", "Descripción", "Cantidad", "Valor unitario", "Importe", "Clave ProdServ"}

// Service produces XLSX bytes for exports.
type Service struct {
	records repository.RecordRepository
	logger  *slog.Logger
}

func NewService(records repository.RecordRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{records: records, logger: logger}
}

// ExportRecordsXLSX returns a workbook for the records matching f.
func (s *Service) ExportRecordsXLSX(ctx context.Context, f repository.ListFilter) ([]byte, error) {
	recs, err := s.records.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	return s.RecordsXLSX(recs)
}

// RecordsXLSX writes one row per record to the first sheet and one row per
// line item to the second.
func (s *Service) RecordsXLSX(recs []repository.StoredRecord) ([]byte, error) {
	start := time.Now()

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", recordsSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(conceptosSheet); err != nil {
		return nil, err
	}
	idx, _ := f.GetSheetIndex(recordsSheet)
	f.SetActiveSheet(idx)

	moneyStyle, err := f.NewStyle(&excelize.Style{NumFmt: 4}) // #,##0.00
	if err != nil {
		return nil, err
	}
	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	writeHeaders(f, recordsSheet, recordHeaders, headerStyle)
	writeHeaders(f, conceptosSheet, conceptoHeaders, headerStyle)

	row, crow := 2, 2
	for _, sr := range recs {
		r := sr.Record
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(recordsSheet, cell, v)
		}
		write(1, r.Value(entity.FieldFecha))
		write(2, r.Value(entity.FieldUUID))
		write(3, r.Value(entity.FieldRFCEmisor))
		write(4, r.Value(entity.FieldRFCReceptor))
		write(5, r.Value(entity.FieldEstablecimiento))
		write(6, r.Value(entity.FieldFormaPago))
		write(7, money(r.Subtotal))
		write(8, money(r.IVA))
		write(9, money(r.Total))
		write(10, r.OverallConfidence)
		write(11, string(r.DocumentKind))
		write(12, string(r.AcquisitionMethod))
		write(13, sr.SourceFilename)
		write(14, truncate(strings.Join(r.Warnings, "; "), 500))

		for _, c := range r.Conceptos {
			cwrite := func(col int, v any) {
				cell, _ := excelize.CoordinatesToCellName(col, crow)
				_ = f.SetCellValue(conceptosSheet, cell, v)
			}
			cwrite(1, r.Value(entity.FieldUUID))
			cwrite(2, c.Descripcion)
			cwrite(3, c.Cantidad.InexactFloat64())
			cwrite(4, money(c.ValorUnitario))
			cwrite(5, money(c.Importe))
			cwrite(6, c.ClaveProdServ)
			crow++
		}
		row++
	}

	if row > 2 {
		_ = f.SetCellStyle(recordsSheet, "G2", fmt.Sprintf("I%d", row-1), moneyStyle)
	}
	if crow > 2 {
		_ = f.SetCellStyle(conceptosSheet, "D2", fmt.Sprintf("E%d", crow-1), moneyStyle)
	}

	_ = f.SetColWidth(recordsSheet, "A", "A", 20) // fecha
	_ = f.SetColWidth(recordsSheet, "B", "B", 38) // uuid
	_ = f.SetColWidth(recordsSheet, "C", "D", 16) // rfc
	_ = f.SetColWidth(recordsSheet, "E", "E", 32)
	_ = f.SetColWidth(recordsSheet, "F", "F", 24)
	_ = f.SetColWidth(recordsSheet, "G", "I", 14) // amounts
	_ = f.SetColWidth(recordsSheet, "M", "N", 48)
	_ = f.SetColWidth(conceptosSheet, "A", "A", 38)
	_ = f.SetColWidth(conceptosSheet, "B", "B", 48)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"rows", len(recs),
		"conceptos", crow-2,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func writeHeaders(f *excelize.File, sheet string, headers []string, style int) {
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	last, _ := excelize.CoordinatesToCellName(len(headers), 1)
	_ = f.SetCellStyle(sheet, "A1", last, style)
}

// money leaves unknown amounts as empty cells.
func money(m entity.Money) any {
	if !m.Valid() {
		return ""
	}
	return m.Decimal().InexactFloat64()
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}

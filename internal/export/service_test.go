package export

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/fiscal-extractor/internal/entity"
	"github.com/joseph-ayodele/fiscal-extractor/internal/repository"
)

type fakeRepo struct {
	repository.RecordRepository
	recs []repository.StoredRecord
	got  repository.ListFilter
}

func (f *fakeRepo) List(_ context.Context, lf repository.ListFilter) ([]repository.StoredRecord, error) {
	f.got = lf
	return f.recs, nil
}

func amount(s string) entity.Money { return entity.NewMoney(decimal.RequireFromString(s)) }

func TestExportRecordsXLSX(t *testing.T) {
	repo := &fakeRepo{recs: []repository.StoredRecord{
		{
			DocumentID:     "doc-1",
			SourceFilename: "factura.xml",
			Record: entity.FiscalRecord{
				UUID:      entity.StringPtr("6f1e6b2c-3c0b-4d4e-9b7a-2c1f0e9d8a7b"),
				RFCEmisor: entity.StringPtr("SEM950215S98"),
				Fecha:     entity.StringPtr("2024-03-05"),
				Total:     amount("116.00"),
				Subtotal:  amount("100.00"),
				IVA:       amount("16.00"),
				Conceptos: []entity.Concepto{
					{Descripcion: "Agua 1L", Cantidad: decimal.NewFromInt(2), ValorUnitario: amount("25.00"), Importe: amount("50.00")},
					{Descripcion: "Pan", Cantidad: decimal.NewFromInt(1), ValorUnitario: amount("50.00"), Importe: amount("50.00")},
				},
				Warnings: []string{"a", "b"},
			},
		},
		{
			DocumentID: "doc-2",
			Record:     entity.FiscalRecord{RFCEmisor: entity.StringPtr("GOMA8012034K1")},
		},
	}}
	svc := NewService(repo, slog.New(slog.NewTextHandler(io.Discard, nil)))

	b, err := svc.ExportRecordsXLSX(context.Background(), repository.ListFilter{RFCEmisor: "SEM950215S98"})
	require.NoError(t, err)
	assert.Equal(t, "SEM950215S98", repo.got.RFCEmisor)

	f, err := excelize.OpenReader(bytes.NewReader(b))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{recordsSheet, conceptosSheet}, f.GetSheetList())

	rows, err := f.GetRows(recordsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, recordHeaders, rows[0])
	assert.Equal(t, "2024-03-05", rows[1][0])
	assert.Equal(t, "6f1e6b2c-3c0b-4d4e-9b7a-2c1f0e9d8a7b", rows[1][1])
	assert.Equal(t, "factura.xml", rows[1][12])
	assert.Equal(t, "a; b", rows[1][13])
	assert.Equal(t, "GOMA8012034K1", rows[2][2])

	total, err := f.GetCellValue(recordsSheet, "I2", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	assert.Equal(t, "116", total)
	empty, err := f.GetCellValue(recordsSheet, "I3")
	require.NoError(t, err)
	assert.Empty(t, empty)

	lines, err := f.GetRows(conceptosSheet)
	require.NoError(t, err)
	require.Len(t, lines, 3)
	assert.Equal(t, "Agua 1L", lines[1][1])
	assert.Equal(t, "Pan", lines[2][1])
}

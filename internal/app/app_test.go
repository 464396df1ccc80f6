package app

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/fiscal-extractor/internal/common"
)

const cfdiXML = `<?xml version="1.0" encoding="UTF-8"?>
<cfdi:Comprobante xmlns:cfdi="http://www.sat.gob.mx/cfd/4" xmlns:tfd="http://www.sat.gob.mx/TimbreFiscalDigital"
  Version="4.0" Fecha="2024-03-05T12:30:00" SubTotal="100.00" Total="116.00" FormaPago="01">
  <cfdi:Emisor Rfc="SEM950215S98" Nombre="SUPERMERCADOS EJEMPLO SA DE CV"/>
  <cfdi:Receptor Rfc="XAXX010101000"/>
  <cfdi:Complemento>
    <tfd:TimbreFiscalDigital UUID="6f1e6b2c-3c0b-4d4e-9b7a-2c1f0e9d8a7b"/>
  </cfdi:Complemento>
</cfdi:Comprobante>`

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func offlineConfig() *common.Config {
	return &common.Config{
		OCR:      common.OCRConfig{Provider: common.ProviderNone, MaxPages: 1, Rasterizer: "pdfcpu"},
		LLM:      common.LLMConfig{Provider: common.ProviderNone},
		Pipeline: common.PipelineConfig{RunTimeout: time.Minute, VATRate: decimal.RequireFromString("0.16")},
		Cache:    common.CacheConfig{TTL: time.Hour},
		Worker:   common.WorkerConfig{Concurrency: 2},
	}
}

func TestBuild_OfflineWithSQLiteStore(t *testing.T) {
	reg := prometheus.NewRegistry()
	ctx := context.Background()
	a, err := Build(ctx, offlineConfig(), quietLogger(), Options{
		Registerer: reg,
		SQLitePath: filepath.Join(t.TempDir(), "records.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, a.Close()) })
	require.NotNil(t, a.Records)

	doc := []byte(cfdiXML)
	rec, err := a.Pipeline.ExtractBytes(ctx, doc, "application/xml", "factura.xml")
	require.NoError(t, err)
	assert.Equal(t, "116.00", rec.Total.String())

	require.NoError(t, a.Records.Save(ctx, "doc-1", "factura.xml", rec))
	got, err := a.Records.GetByUUID(ctx, "6f1e6b2c-3c0b-4d4e-9b7a-2c1f0e9d8a7b")
	require.NoError(t, err)
	assert.Equal(t, "SEM950215S98", *got.Record.RFCEmisor)

	n, err := testutil.GatherAndCount(reg, "fiscal_documents_processed_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestBuild_WithoutStore(t *testing.T) {
	a, err := Build(context.Background(), offlineConfig(), quietLogger(), Options{})
	require.NoError(t, err)
	defer a.Close()
	assert.Nil(t, a.Records)
	assert.Nil(t, a.Metrics)
}

func TestBuild_RejectsUnknownProviders(t *testing.T) {
	cfg := offlineConfig()
	cfg.OCR.Provider = "abbyy"
	_, err := Build(context.Background(), cfg, quietLogger(), Options{})
	assert.ErrorContains(t, err, "unknown OCR provider")

	cfg = offlineConfig()
	cfg.LLM.Provider = "claude"
	_, err = Build(context.Background(), cfg, quietLogger(), Options{})
	assert.ErrorContains(t, err, "unknown LLM provider")
}

func TestBuild_StoreRequiresConfiguration(t *testing.T) {
	_, err := Build(context.Background(), offlineConfig(), quietLogger(), Options{WithStore: true})
	assert.ErrorContains(t, err, "no record store configured")
}

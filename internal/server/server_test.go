package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/fiscal-extractor/internal/common"
	"github.com/joseph-ayodele/fiscal-extractor/internal/entity"
	"github.com/joseph-ayodele/fiscal-extractor/internal/export"
	"github.com/joseph-ayodele/fiscal-extractor/internal/metrics"
	"github.com/joseph-ayodele/fiscal-extractor/internal/repository"
)

const fiscalUUID = "6f1e6b2c-3c0b-4d4e-9b7a-2c1f0e9d8a7b"

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fakeExtractor struct {
	mu   sync.Mutex
	docs []entity.RawDocument
	err  error
}

func (f *fakeExtractor) Extract(_ context.Context, doc entity.RawDocument) (entity.FiscalRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs = append(f.docs, doc)
	if f.err != nil {
		return entity.FiscalRecord{}, f.err
	}
	return entity.FiscalRecord{
		UUID:              entity.StringPtr(fiscalUUID),
		RFCEmisor:         entity.StringPtr("SEM950215S98"),
		Total:             entity.NewMoney(decimal.RequireFromString("116.00")),
		OverallConfidence: 0.9,
		FieldProvenance:   map[entity.Field]entity.Method{entity.FieldUUID: entity.MethodPattern},
		Conceptos:         []entity.Concepto{},
		Warnings:          []string{},
	}, nil
}

type memRepo struct {
	mu   sync.Mutex
	recs map[string]repository.StoredRecord
}

func newMemRepo() *memRepo { return &memRepo{recs: map[string]repository.StoredRecord{}} }

func (m *memRepo) Save(_ context.Context, docID, filename string, rec entity.FiscalRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs[docID] = repository.StoredRecord{DocumentID: docID, SourceFilename: filename, Record: rec}
	return nil
}

func (m *memRepo) GetByDocument(_ context.Context, docID string) (repository.StoredRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recs[docID]
	if !ok {
		return repository.StoredRecord{}, repository.ErrNotFound
	}
	return r, nil
}

func (m *memRepo) GetByUUID(_ context.Context, id string) (repository.StoredRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.recs {
		if r.Record.UUID != nil && *r.Record.UUID == id {
			return r, nil
		}
	}
	return repository.StoredRecord{}, repository.ErrNotFound
}

func (m *memRepo) List(context.Context, repository.ListFilter) ([]repository.StoredRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]repository.StoredRecord, 0, len(m.recs))
	for _, r := range m.recs {
		out = append(out, r)
	}
	return out, nil
}

func (m *memRepo) Close() error { return nil }

func newTestHTTP(t *testing.T, ext Extractor, repo repository.RecordRepository) *httptest.Server {
	t.Helper()
	reg := prometheus.NewRegistry()
	metrics.New(reg).IncDocument("XML", "ok")
	svc := NewService(ext, repo, quietLogger())
	var exp *export.Service
	if repo != nil {
		exp = export.NewService(repo, quietLogger())
	}
	srv := httptest.NewServer(NewHTTPHandler(svc, exp, reg, 1<<10, quietLogger()).Router())
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTP_ExtractRawBodyAndLookup(t *testing.T) {
	ext := &fakeExtractor{}
	repo := newMemRepo()
	srv := newTestHTTP(t, ext, repo)

	resp, err := http.Post(srv.URL+"/v1/extract?filename=ticket.png", "image/png", bytes.NewReader([]byte("\x89PNGdata")))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		DocumentID string              `json:"documentId"`
		Record     entity.FiscalRecord `json:"record"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.NotEmpty(t, body.DocumentID)
	assert.Equal(t, "116.00", body.Record.Total.String())
	require.Len(t, ext.docs, 1)
	assert.Equal(t, "image/png", ext.docs[0].MIMEType)
	assert.Equal(t, "ticket.png", ext.docs[0].SourceFilename)

	get, err := http.Get(srv.URL + "/v1/records/" + fiscalUUID)
	require.NoError(t, err)
	defer get.Body.Close()
	assert.Equal(t, http.StatusOK, get.StatusCode)

	missing, err := http.Get(srv.URL + "/v1/records/00000000-0000-0000-0000-000000000000")
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)

	xlsx, err := http.Get(srv.URL + "/v1/records.xlsx")
	require.NoError(t, err)
	defer xlsx.Body.Close()
	assert.Equal(t, http.StatusOK, xlsx.StatusCode)
	assert.Contains(t, xlsx.Header.Get("Content-Type"), "spreadsheetml")
}

func TestHTTP_ExtractMultipart(t *testing.T) {
	ext := &fakeExtractor{}
	srv := newTestHTTP(t, ext, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "factura.xml")
	require.NoError(t, err)
	_, _ = part.Write([]byte("<cfdi:Comprobante/>"))
	require.NoError(t, mw.Close())

	resp, err := http.Post(srv.URL+"/v1/extract", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, ext.docs, 1)
	assert.Equal(t, "factura.xml", ext.docs[0].SourceFilename)
	assert.Empty(t, ext.docs[0].MIMEType)
}

func TestHTTP_ExtractErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"unsupported", common.Errorf(common.KindUnsupportedFormat, "nope"), http.StatusUnsupportedMediaType},
		{"no text", common.Errorf(common.KindNoTextDetected, "blank"), http.StatusUnprocessableEntity},
		{"ocr", common.Errorf(common.KindOCRFailure, "down"), http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newTestHTTP(t, &fakeExtractor{err: tc.err}, nil)
			resp, err := http.Post(srv.URL+"/v1/extract", "image/png", bytes.NewReader([]byte("x")))
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tc.code, resp.StatusCode)

			var body struct {
				Error errorBody `json:"error"`
			}
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, common.KindOf(tc.err), body.Error.Kind)
		})
	}

	srv := newTestHTTP(t, &fakeExtractor{}, nil)
	resp, err := http.Post(srv.URL+"/v1/extract", "image/png", bytes.NewReader(make([]byte, 2<<10)))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/v1/extract", "image/png", bytes.NewReader(nil))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/v1/records/" + fiscalUUID)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
}

func TestHTTP_HealthAndMetrics(t *testing.T) {
	srv := newTestHTTP(t, &fakeExtractor{}, nil)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(b), "fiscal_documents_processed_total")
}

func TestHTTP_ListRejectsBadDates(t *testing.T) {
	srv := newTestHTTP(t, &fakeExtractor{}, newMemRepo())
	resp, err := http.Get(srv.URL + "/v1/records?from=05/03/2024")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func dialBufconn(t *testing.T, ext Extractor, repo repository.RecordRepository) *FiscalExtractorClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer(grpc.UnaryInterceptor(UnaryLogging(quietLogger())))
	RegisterFiscalService(s, NewFiscalService(NewService(ext, repo, quietLogger()), 1<<20, quietLogger()))
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	cc, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cc.Close() })
	return NewFiscalExtractorClient(cc)
}

func TestGRPC_ExtractAndGetRecord(t *testing.T) {
	ext := &fakeExtractor{}
	client := dialBufconn(t, ext, newMemRepo())
	ctx := context.Background()

	req, err := structpb.NewStruct(map[string]any{
		"content":   base64.StdEncoding.EncodeToString([]byte("<cfdi:Comprobante/>")),
		"mime_type": "application/xml",
		"filename":  "factura.xml",
	})
	require.NoError(t, err)

	out, err := client.Extract(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "SEM950215S98", out.GetFields()["rfcEmisor"].GetStringValue())
	assert.InDelta(t, 116.0, out.GetFields()["total"].GetNumberValue(), 1e-9)
	assert.NotEmpty(t, out.GetFields()["documentId"].GetStringValue())
	require.Len(t, ext.docs, 1)
	assert.Equal(t, "application/xml", ext.docs[0].MIMEType)

	got, err := client.GetRecord(ctx, &structpb.Struct{Fields: map[string]*structpb.Value{"uuid": structpb.NewStringValue(fiscalUUID)}})
	require.NoError(t, err)
	assert.Equal(t, "factura.xml", got.GetFields()["sourceFilename"].GetStringValue())

	_, err = client.GetRecord(ctx, &structpb.Struct{Fields: map[string]*structpb.Value{"uuid": structpb.NewStringValue("nope")}})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestGRPC_ErrorCodes(t *testing.T) {
	client := dialBufconn(t, &fakeExtractor{err: common.Errorf(common.KindCancelled, "aborted")}, nil)
	ctx := context.Background()

	_, err := client.Extract(ctx, &structpb.Struct{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	req := &structpb.Struct{Fields: map[string]*structpb.Value{
		"content": structpb.NewStringValue(base64.StdEncoding.EncodeToString([]byte("x"))),
	}}
	_, err = client.Extract(ctx, req)
	assert.Equal(t, codes.Canceled, status.Code(err))

	_, err = client.GetRecord(ctx, &structpb.Struct{Fields: map[string]*structpb.Value{"uuid": structpb.NewStringValue(fiscalUUID)}})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
}

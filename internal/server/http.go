package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/joseph-ayodele/fiscal-extractor/internal/common"
	"github.com/joseph-ayodele/fiscal-extractor/internal/entity"
	"github.com/joseph-ayodele/fiscal-extractor/internal/export"
	"github.com/joseph-ayodele/fiscal-extractor/internal/repository"
)

// HTTPHandler serves the REST surface.
type HTTPHandler struct {
	svc      *Service
	exporter *export.Service
	gatherer prometheus.Gatherer
	maxBytes int64
	logger   *slog.Logger
}

// NewHTTPHandler builds the handler. exporter and gatherer may be nil, which
// disables the XLSX export and /metrics routes.
func NewHTTPHandler(svc *Service, exporter *export.Service, gatherer prometheus.Gatherer, maxBytes int64, logger *slog.Logger) *HTTPHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if maxBytes <= 0 {
		maxBytes = 20 << 20
	}
	return &HTTPHandler{svc: svc, exporter: exporter, gatherer: gatherer, maxBytes: maxBytes, logger: logger}
}

// Router mounts every route on a fresh chi router.
func (h *HTTPHandler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(h.requestContext)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if h.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}
	r.Route("/v1", func(r chi.Router) {
		r.Post("/extract", h.HandleExtract)
		r.Get("/records", h.HandleListRecords)
		r.Get("/records/{uuid}", h.HandleGetRecord)
		if h.exporter != nil {
			r.Get("/records.xlsx", h.HandleExportXLSX)
		}
	})
	return r
}

func (h *HTTPHandler) requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		rid := middleware.GetReqID(r.Context())
		ctx := common.WithRequestID(r.Context(), rid)
		next.ServeHTTP(ww, r.WithContext(ctx))
		h.logger.Info("http.request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"req_id", rid,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	})
}

// HandleExtract accepts either a multipart form with a "file" part or a raw
// body whose Content-Type is the document's MIME type.
func (h *HTTPHandler) HandleExtract(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)

	content, mimeType, filename, err := h.readUpload(r)
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]any{"error": errorBody{
				Kind: common.KindUnsupportedFormat, Message: fmt.Sprintf("document exceeds %d bytes", h.maxBytes),
			}})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": errorBody{
			Kind: common.KindUnsupportedFormat, Message: err.Error(),
		}})
		return
	}

	doc := entity.NewRawDocument(content, mimeType, filename)
	rec, err := h.svc.ExtractAndStore(r.Context(), doc)
	if err != nil {
		kind := common.KindOf(err)
		if kind == "" {
			kind = common.KindInternal
		}
		writeJSON(w, common.HTTPStatus(kind), map[string]any{"documentId": doc.ID, "error": toErrorBody(err)})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documentId": doc.ID, "record": rec})
}

func (h *HTTPHandler) readUpload(r *http.Request) ([]byte, string, string, error) {
	ct := r.Header.Get("Content-Type")
	mt, _, _ := mime.ParseMediaType(ct)
	if mt == "multipart/form-data" {
		if err := r.ParseMultipartForm(h.maxBytes); err != nil {
			return nil, "", "", err
		}
		file, hdr, err := r.FormFile("file")
		if err != nil {
			return nil, "", "", fmt.Errorf("multipart field \"file\": %w", err)
		}
		defer file.Close()
		b, err := io.ReadAll(file)
		if err != nil {
			return nil, "", "", err
		}
		if len(b) == 0 {
			return nil, "", "", errors.New("empty upload")
		}
		partMIME := hdr.Header.Get("Content-Type")
		if partMIME == "application/octet-stream" {
			partMIME = ""
		}
		return b, partMIME, hdr.Filename, nil
	}

	b, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, "", "", err
	}
	if len(b) == 0 {
		return nil, "", "", errors.New("empty body")
	}
	if mt == "application/octet-stream" {
		mt = ""
	}
	return b, mt, r.URL.Query().Get("filename"), nil
}

func (h *HTTPHandler) HandleGetRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "uuid")
	sr, err := h.svc.GetRecord(r.Context(), id)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "record not found"})
	case errors.Is(err, errStoreDisabled):
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": err.Error()})
	case err != nil:
		h.logger.Error("http.get_record.failed", "uuid", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "lookup failed"})
	default:
		writeJSON(w, http.StatusOK, sr)
	}
}

func (h *HTTPHandler) HandleListRecords(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	recs, err := h.svc.ListRecords(r.Context(), f)
	switch {
	case errors.Is(err, errStoreDisabled):
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": err.Error()})
	case err != nil:
		h.logger.Error("http.list_records.failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "list failed"})
	default:
		if recs == nil {
			recs = []repository.StoredRecord{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"records": recs})
	}
}

func (h *HTTPHandler) HandleExportXLSX(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	b, err := h.exporter.ExportRecordsXLSX(r.Context(), f)
	if err != nil {
		h.logger.Error("http.export.failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "export failed"})
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="comprobantes.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

func parseFilter(r *http.Request) (repository.ListFilter, error) {
	q := r.URL.Query()
	f := repository.ListFilter{
		RFCEmisor: strings.TrimSpace(q.Get("rfc_emisor")),
		FromDate:  strings.TrimSpace(q.Get("from")),
		ToDate:    strings.TrimSpace(q.Get("to")),
	}
	for name, v := range map[string]string{"from": f.FromDate, "to": f.ToDate} {
		if v == "" {
			continue
		}
		if _, err := time.Parse(time.DateOnly, v); err != nil {
			return f, fmt.Errorf("%s must be YYYY-MM-DD", name)
		}
	}
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			return f, errors.New("limit must be a non-negative integer")
		}
		f.Limit = n
	}
	return f, nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

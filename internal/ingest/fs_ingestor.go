package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joseph-ayodele/fiscal-extractor/constants"
	"github.com/joseph-ayodele/fiscal-extractor/internal/entity"
)

// DefaultMaxBytes caps a single document read from disk.
const DefaultMaxBytes = 20 << 20

// FSIngestor reads documents from the local filesystem.
type FSIngestor struct {
	MaxBytes int64
	logger   *slog.Logger
}

func NewFSIngestor(maxBytes int64, logger *slog.Logger) *FSIngestor {
	if logger == nil {
		logger = slog.Default()
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &FSIngestor{MaxBytes: maxBytes, logger: logger}
}

// IngestPath reads one file and wraps it in a RawDocument whose MIME type
// comes from the extension.
func (i *FSIngestor) IngestPath(path string) (IngestionResult, error) {
	var out IngestionResult

	abs, err := filepath.Abs(path)
	if err != nil {
		return out, fmt.Errorf("abs path: %w", err)
	}
	ext := constants.NormalizeExt(filepath.Ext(abs))
	if ext == "" || !AllowedExt(ext) {
		i.logger.Warn("ingest.unsupported_extension", "path", abs, "ext", ext)
		return out, fmt.Errorf("unsupported or missing extension: %q", ext)
	}

	f, err := os.Open(abs)
	if err != nil {
		return out, fmt.Errorf("open: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			i.logger.Warn("ingest.close_failed", "path", abs, "error", err)
		}
	}()

	st, err := f.Stat()
	if err != nil {
		return out, fmt.Errorf("stat: %w", err)
	}
	if st.IsDir() {
		return out, fmt.Errorf("%s is a directory", abs)
	}
	if st.Size() > i.MaxBytes {
		return out, fmt.Errorf("%s is %d bytes, limit is %d", abs, st.Size(), i.MaxBytes)
	}

	content, err := io.ReadAll(io.LimitReader(f, i.MaxBytes+1))
	if err != nil {
		return out, fmt.Errorf("read: %w", err)
	}
	if int64(len(content)) > i.MaxBytes {
		return out, fmt.Errorf("%s grew past the %d byte limit while reading", abs, i.MaxBytes)
	}
	sum := sha256.Sum256(content)

	out = IngestionResult{
		SourcePath: abs,
		HashHex:    hex.EncodeToString(sum[:]),
		FileExt:    ext,
		Size:       int64(len(content)),
		ModifiedAt: st.ModTime().UTC(),
		Document:   entity.NewRawDocument(content, constants.MapExtToMIME(ext), filepath.Base(abs)),
	}
	i.logger.Debug("ingest.read", "path", abs, "bytes", out.Size, "doc_id", out.Document.ID)
	return out, nil
}

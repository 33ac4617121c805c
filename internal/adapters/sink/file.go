package sink

import (
	"context"
	"os"
	"path/filepath"

	"go.trai.ch/grid/internal/core/domain"
	"go.trai.ch/zerr"
)

// FileSink writes every report as a JSON document below a directory, one subdirectory
// per run.
type FileSink struct {
	dir string
}

// NewFileSink creates a sink writing below dir.
func NewFileSink(dir string) *FileSink {
	return &FileSink{dir: filepath.Clean(dir)}
}

// Publish implements ports.ReportSink.
func (s *FileSink) Publish(_ context.Context, report *domain.CoverageReport, meta domain.ReportMetadata) error {
	data, err := encode(report, meta)
	if err != nil {
		return err
	}

	path := filepath.Join(s.dir, filepath.FromSlash(reportName(meta)))
	if err := os.MkdirAll(filepath.Dir(path), domain.DirPerm); err != nil {
		return zerr.With(domain.Classify(domain.ErrPublishFailed, err), "path", path)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, domain.FilePerm); err != nil {
		return zerr.With(domain.Classify(domain.ErrPublishFailed, err), "path", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return zerr.With(domain.Classify(domain.ErrPublishFailed, err), "path", path)
	}
	return nil
}

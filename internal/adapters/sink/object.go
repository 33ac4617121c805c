package sink

import (
	"bytes"
	"context"

	"github.com/minio/minio-go/v7"
	"go.trai.ch/grid/internal/adapters/objectstore"
	"go.trai.ch/grid/internal/core/domain"
	"go.trai.ch/zerr"
)

// ObjectSink uploads every report as a JSON object to an S3-compatible bucket.
type ObjectSink struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewObjectSink creates a sink writing to the bucket of remote.
func NewObjectSink(client *minio.Client, remote domain.RemoteConfig) *ObjectSink {
	return &ObjectSink{client: client, bucket: remote.Bucket, prefix: remote.Prefix}
}

// Publish implements ports.ReportSink.
func (s *ObjectSink) Publish(ctx context.Context, report *domain.CoverageReport, meta domain.ReportMetadata) error {
	data, err := encode(report, meta)
	if err != nil {
		return err
	}

	name := objectstore.ObjectName(s.prefix, reportName(meta))
	_, err = s.client.PutObject(ctx, s.bucket, name, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
		UserMetadata: map[string]string{
			"grid-run":   meta.RunID,
			"grid-scope": string(meta.Scope),
		},
	})
	if err != nil {
		return zerr.With(domain.Classify(domain.ErrPublishFailed, err), "object", name)
	}
	return nil
}

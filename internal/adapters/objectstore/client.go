// Package objectstore builds S3-compatible clients for the remote cache store and report sink.
package objectstore

import (
	"context"
	"net"
	"net/http"
	"os"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.trai.ch/grid/internal/core/domain"
	"go.trai.ch/zerr"
)

// NewClient creates a client for remote. Credentials are read from the environment
// variables the configuration names.
func NewClient(remote domain.RemoteConfig) (*minio.Client, error) {
	access := os.Getenv(remote.AccessKeyEnv)
	secret := os.Getenv(remote.SecretKeyEnv)
	if access == "" || secret == "" {
		err := zerr.With(zerr.Wrap(domain.ErrMissingCredentials, "credential variables are not set"), "access_key_env", remote.AccessKeyEnv)
		return nil, zerr.With(err, "secret_key_env", remote.SecretKeyEnv)
	}

	client, err := minio.New(remote.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(access, secret, ""),
		Secure:    remote.Secure,
		Region:    remote.Region,
		Transport: newTransport(),
	})
	if err != nil {
		return nil, zerr.With(domain.Classify(domain.ErrConfig, err), "endpoint", remote.Endpoint)
	}
	return client, nil
}

// EnsureBucket creates bucket when it does not exist.
func EnsureBucket(ctx context.Context, client *minio.Client, bucket, region string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to check bucket"), "bucket", bucket)
	}
	if exists {
		return nil
	}
	if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to create bucket"), "bucket", bucket)
	}
	return nil
}

// ObjectName joins prefix and name with a slash.
func ObjectName(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

// IsNotFound reports whether err is a missing-object response.
func IsNotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

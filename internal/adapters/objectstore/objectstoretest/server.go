// Package objectstoretest provides an in-memory S3-compatible endpoint for tests.
package objectstoretest

import (
	"bufio"
	"bytes"
	"crypto/md5" //nolint:gosec // S3 ETags are MD5 sums
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"go.trai.ch/grid/internal/adapters/objectstore"
	"go.trai.ch/grid/internal/core/domain"
)

const (
	accessKeyEnv = "GRID_OBJECTSTORETEST_ACCESS"
	secretKeyEnv = "GRID_OBJECTSTORETEST_SECRET"
)

type object struct {
	data        []byte
	contentType string
	modified    time.Time
}

// Server serves the bucket and object calls grid makes: HEAD, GET and PUT of buckets and
// objects. Signatures are not verified.
type Server struct {
	*httptest.Server

	mu      sync.Mutex
	buckets map[string]map[string]object
	puts    int
}

// NewServer starts a server holding the given empty buckets. It is closed when the test
// ends.
func NewServer(t testing.TB, buckets ...string) *Server {
	t.Helper()
	s := &Server{buckets: make(map[string]map[string]object)}
	for _, b := range buckets {
		s.buckets[b] = make(map[string]object)
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// Remote returns a configuration addressing bucket on the server.
func (s *Server) Remote(bucket, prefix string) domain.RemoteConfig {
	return domain.RemoteConfig{
		Endpoint:     strings.TrimPrefix(s.URL, "http://"),
		Bucket:       bucket,
		Prefix:       prefix,
		Region:       "us-east-1",
		AccessKeyEnv: accessKeyEnv,
		SecretKeyEnv: secretKeyEnv,
	}
}

// Client returns a client for the server built by objectstore.NewClient.
func (s *Server) Client(t *testing.T, bucket string) *minio.Client {
	t.Helper()
	t.Setenv(accessKeyEnv, "access")
	t.Setenv(secretKeyEnv, "secret")
	client, err := objectstore.NewClient(s.Remote(bucket, ""))
	if err != nil {
		t.Fatalf("objectstoretest: %v", err)
	}
	return client
}

// Object returns the content of an object.
func (s *Server) Object(bucket, name string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.buckets[bucket][name]
	return o.data, ok
}

// Objects returns the names of every object in bucket.
func (s *Server) Objects(bucket string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	for name := range s.buckets[bucket] {
		names = append(names, name)
	}
	return names
}

// SetObject stores data under name, creating the bucket if needed.
func (s *Server) SetObject(bucket, name string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buckets[bucket] == nil {
		s.buckets[bucket] = make(map[string]object)
	}
	s.buckets[bucket][name] = object{data: data, modified: time.Now().UTC()}
}

// Puts returns how many object uploads the server accepted.
func (s *Server) Puts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	bucket, name, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")

	if r.URL.Query().Has("location") {
		w.Header().Set("Content-Type", "application/xml")
		_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><LocationConstraint>us-east-1</LocationConstraint>`)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	objects, ok := s.buckets[bucket]
	if name == "" {
		switch r.Method {
		case http.MethodHead:
			if !ok {
				w.WriteHeader(http.StatusNotFound)
			}
		case http.MethodPut:
			if !ok {
				s.buckets[bucket] = make(map[string]object)
			}
		default:
			w.WriteHeader(http.StatusNotImplemented)
		}
		return
	}
	if !ok {
		writeError(w, r, http.StatusNotFound, "NoSuchBucket", bucket, name)
		return
	}

	switch r.Method {
	case http.MethodHead, http.MethodGet:
		o, ok := objects[name]
		if !ok {
			writeError(w, r, http.StatusNotFound, "NoSuchKey", bucket, name)
			return
		}
		sum := md5.Sum(o.data) //nolint:gosec // S3 ETags are MD5 sums
		w.Header().Set("Content-Length", strconv.Itoa(len(o.data)))
		w.Header().Set("Content-Type", orDefault(o.contentType, "application/octet-stream"))
		w.Header().Set("ETag", `"`+hex.EncodeToString(sum[:])+`"`)
		w.Header().Set("Last-Modified", o.modified.Format(http.TimeFormat))
		if r.Method == http.MethodGet {
			_, _ = w.Write(o.data)
		}
	case http.MethodPut:
		data, err := readBody(r)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "IncompleteBody", bucket, name)
			return
		}
		objects[name] = object{data: data, contentType: r.Header.Get("Content-Type"), modified: time.Now().UTC()}
		s.puts++
		sum := md5.Sum(data) //nolint:gosec // S3 ETags are MD5 sums
		w.Header().Set("ETag", `"`+hex.EncodeToString(sum[:])+`"`)
	default:
		w.WriteHeader(http.StatusNotImplemented)
	}
}

// readBody returns the payload of an upload, decoding aws-chunked framing.
func readBody(r *http.Request) ([]byte, error) {
	if r.Header.Get("X-Amz-Decoded-Content-Length") == "" &&
		!strings.Contains(r.Header.Get("Content-Encoding"), "aws-chunked") {
		return io.ReadAll(r.Body)
	}

	var out bytes.Buffer
	br := bufio.NewReader(r.Body)
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return nil, err
		}
		sizeHex, _, _ := strings.Cut(strings.TrimRight(line, "\r\n"), ";")
		size, err := strconv.ParseInt(sizeHex, 16, 64)
		if err != nil {
			return nil, err
		}
		if size == 0 {
			return out.Bytes(), nil
		}
		if _, err := io.CopyN(&out, br, size); err != nil {
			return nil, err
		}
		if _, err := br.Discard(2); err != nil {
			return nil, err
		}
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, bucket, name string) {
	if r.Method == http.MethodHead {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	_, _ = fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>`+
		`<Error><Code>%s</Code><Message>%s</Message><BucketName>%s</BucketName><Key>%s</Key>`+
		`<Resource>%s</Resource><RequestId>grid</RequestId><HostId>grid</HostId></Error>`,
		code, code, bucket, name, r.URL.Path)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

package handlers

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/s3proxy/interfaces"
	"github.com/ruteri/s3proxy/s3"
)

// MockStorageBackend implements interfaces.StorageBackend for testing
type MockStorageBackend struct {
	mock.Mock
	name string
}

func (m *MockStorageBackend) Get(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockStorageBackend) Put(ctx context.Context, key string, data []byte) error {
	args := m.Called(ctx, key, data)
	return args.Error(0)
}

func (m *MockStorageBackend) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockStorageBackend) List(ctx context.Context, prefix string) ([]interfaces.ObjectMeta, error) {
	args := m.Called(ctx, prefix)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]interfaces.ObjectMeta), args.Error(1)
}

func (m *MockStorageBackend) Head(ctx context.Context, key string) (interfaces.ObjectMeta, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(interfaces.ObjectMeta), args.Error(1)
}

func (m *MockStorageBackend) Name() string {
	return m.name
}

// memBackend is an in-memory backend for round-trip tests.
type memBackend struct {
	objects map[string][]byte
}

func newMemBackend() *memBackend {
	return &memBackend{objects: make(map[string][]byte)}
}

func (b *memBackend) Get(ctx context.Context, key string) ([]byte, error) {
	data, ok := b.objects[key]
	if !ok {
		return nil, interfaces.ErrObjectNotFound
	}
	return data, nil
}

func (b *memBackend) Put(ctx context.Context, key string, data []byte) error {
	b.objects[key] = append([]byte(nil), data...)
	return nil
}

func (b *memBackend) Delete(ctx context.Context, key string) error {
	if _, ok := b.objects[key]; !ok {
		return interfaces.ErrObjectNotFound
	}
	delete(b.objects, key)
	return nil
}

func (b *memBackend) List(ctx context.Context, prefix string) ([]interfaces.ObjectMeta, error) {
	var metas []interfaces.ObjectMeta
	for key, data := range b.objects {
		if strings.HasPrefix(key, prefix) {
			metas = append(metas, interfaces.ObjectMeta{
				Location:     key,
				Size:         int64(len(data)),
				LastModified: time.Unix(1700000000, 0).UTC(),
			})
		}
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].Location < metas[j].Location })
	return metas, nil
}

func (b *memBackend) Head(ctx context.Context, key string) (interfaces.ObjectMeta, error) {
	data, ok := b.objects[key]
	if !ok {
		return interfaces.ObjectMeta{}, interfaces.ErrObjectNotFound
	}
	return interfaces.ObjectMeta{
		Location:     key,
		Size:         int64(len(data)),
		LastModified: time.Unix(1700000000, 0).UTC(),
	}, nil
}

func (b *memBackend) Name() string { return "mem" }

func testRouter(backend interfaces.StorageBackend) http.Handler {
	h := NewHandler(backend, nil, slog.Default())

	r := chi.NewRouter()
	r.Get("/{bucket}", h.HandleListObjects)
	r.Put("/{bucket}", h.HandleCreateBucket)
	r.Delete("/{bucket}", h.HandleDeleteBucket)
	r.Get("/{bucket}/*", h.HandleGetObject)
	r.Put("/{bucket}/*", h.HandlePutObject)
	r.Delete("/{bucket}/*", h.HandleDeleteObject)
	r.Head("/{bucket}/*", h.HandleHeadObject)
	return r
}

func doRequest(t *testing.T, router http.Handler, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestPutGetRoundTrip(t *testing.T) {
	payloads := map[string][]byte{
		"empty":       {},
		"single byte": []byte("x"),
		"large":       bytes.Repeat([]byte("0123456789abcdef"), 80*1024), // 1.25 MiB
	}

	router := testRouter(newMemBackend())

	for name, payload := range payloads {
		t.Run(name, func(t *testing.T) {
			target := "/bucket/" + strings.ReplaceAll(name, " ", "-") + ".bin"

			put := doRequest(t, router, http.MethodPut, target, payload)
			require.Equal(t, http.StatusOK, put.Code)

			sum := md5.Sum(payload)
			assert.Equal(t, `"`+hex.EncodeToString(sum[:])+`"`, put.Header().Get("ETag"))

			get := doRequest(t, router, http.MethodGet, target, nil)
			require.Equal(t, http.StatusOK, get.Code)
			assert.Equal(t, payload, get.Body.Bytes())
			assert.Equal(t, "application/octet-stream", get.Header().Get("Content-Type"))
		})
	}
}

func TestGetObjectNotFound(t *testing.T) {
	router := testRouter(newMemBackend())

	rec := doRequest(t, router, http.MethodGet, "/bucket/missing.txt", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/xml", rec.Header().Get("Content-Type"))

	var envelope s3.Error
	require.NoError(t, xml.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "NoSuchKey", envelope.Code)
	assert.NotEmpty(t, envelope.Message)
	assert.Empty(t, envelope.Resource)
	assert.Empty(t, envelope.RequestID)
}

func TestDeleteObjectIdempotent(t *testing.T) {
	backend := newMemBackend()
	router := testRouter(backend)

	require.NoError(t, backend.Put(context.Background(), "a.txt", []byte("data")))

	first := doRequest(t, router, http.MethodDelete, "/bucket/a.txt", nil)
	assert.Equal(t, http.StatusNoContent, first.Code)

	second := doRequest(t, router, http.MethodDelete, "/bucket/a.txt", nil)
	assert.Equal(t, http.StatusNoContent, second.Code)
}

func TestDeleteObjectBackendError(t *testing.T) {
	backend := &MockStorageBackend{name: "mock"}
	backend.On("Delete", mock.Anything, "a.txt").Return(errors.New("connection refused"))

	rec := doRequest(t, testRouter(backend), http.MethodDelete, "/bucket/a.txt", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var envelope s3.Error
	require.NoError(t, xml.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "InternalError", envelope.Code)
	backend.AssertExpectations(t)
}

func TestHeadObject(t *testing.T) {
	backend := newMemBackend()
	router := testRouter(backend)

	require.NoError(t, backend.Put(context.Background(), "report.csv", []byte("12345678")))

	rec := doRequest(t, router, http.MethodHead, "/bucket/report.csv", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "8", rec.Header().Get("Content-Length"))
	assert.NotEmpty(t, rec.Header().Get("Last-Modified"))
	assert.NotEmpty(t, rec.Header().Get("ETag"))

	missing := doRequest(t, router, http.MethodHead, "/bucket/nope.csv", nil)
	assert.Equal(t, http.StatusNotFound, missing.Code)
	assert.Empty(t, missing.Body.Bytes())
}

func TestHeadETagStable(t *testing.T) {
	backend := newMemBackend()
	router := testRouter(backend)

	require.NoError(t, backend.Put(context.Background(), "stable.bin", []byte("payload")))

	first := doRequest(t, router, http.MethodHead, "/bucket/stable.bin", nil)
	second := doRequest(t, router, http.MethodHead, "/bucket/stable.bin", nil)
	require.Equal(t, http.StatusOK, first.Code)
	require.Equal(t, http.StatusOK, second.Code)

	etag := first.Header().Get("ETag")
	assert.NotEmpty(t, etag)
	assert.Equal(t, etag, second.Header().Get("ETag"))
}

func TestListObjects(t *testing.T) {
	backend := newMemBackend()
	router := testRouter(backend)

	for i := 0; i < 5; i++ {
		key := fmt.Sprintf("logs/entry-%d", i)
		require.NoError(t, backend.Put(context.Background(), key, []byte("x")))
	}
	require.NoError(t, backend.Put(context.Background(), "other/entry", []byte("x")))

	tests := []struct {
		name          string
		target        string
		expectedKeys  int
		expectedTrunc bool
		expectedMax   int
	}{
		{name: "all under prefix", target: "/bucket?prefix=logs/", expectedKeys: 5, expectedTrunc: false, expectedMax: 1000},
		{name: "truncated", target: "/bucket?prefix=logs/&max-keys=3", expectedKeys: 3, expectedTrunc: true, expectedMax: 3},
		{name: "exact boundary", target: "/bucket?prefix=logs/&max-keys=5", expectedKeys: 5, expectedTrunc: false, expectedMax: 5},
		{name: "empty result", target: "/bucket?prefix=nothing/", expectedKeys: 0, expectedTrunc: false, expectedMax: 1000},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(t, router, http.MethodGet, tc.target, nil)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "application/xml", rec.Header().Get("Content-Type"))

			var result s3.ListBucketResult
			require.NoError(t, xml.Unmarshal(rec.Body.Bytes(), &result))
			assert.Equal(t, "bucket", result.Name)
			assert.Equal(t, tc.expectedMax, result.MaxKeys)
			assert.Equal(t, tc.expectedTrunc, result.IsTruncated)
			assert.Len(t, result.Contents, tc.expectedKeys)

			for _, obj := range result.Contents {
				assert.Equal(t, s3.StorageClassStandard, obj.StorageClass)
				assert.True(t, strings.HasPrefix(obj.ETag, `"`))
				_, err := time.Parse(s3.TimeFormatISO8601Millis, obj.LastModified)
				assert.NoError(t, err)
			}
		})
	}
}

func TestListObjectsInvalidMaxKeys(t *testing.T) {
	rec := doRequest(t, testRouter(newMemBackend()), http.MethodGet, "/bucket?max-keys=nope", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var envelope s3.Error
	require.NoError(t, xml.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "InvalidArgument", envelope.Code)
}

func TestListObjectsBackendError(t *testing.T) {
	backend := &MockStorageBackend{name: "mock"}
	backend.On("List", mock.Anything, "").Return(nil, errors.New("timeout"))

	rec := doRequest(t, testRouter(backend), http.MethodGet, "/bucket", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var envelope s3.Error
	require.NoError(t, xml.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "InternalError", envelope.Code)
	backend.AssertExpectations(t)
}

func TestBucketLifecycleNoops(t *testing.T) {
	router := testRouter(newMemBackend())

	create := doRequest(t, router, http.MethodPut, "/bucket", nil)
	assert.Equal(t, http.StatusOK, create.Code)

	del := doRequest(t, router, http.MethodDelete, "/bucket", nil)
	assert.Equal(t, http.StatusNoContent, del.Code)
}

// prefixBackend applies a key prefix the way the provider adapters do:
// exactly once per operation, with results keeping the provider-side
// (prefixed) key.
type prefixBackend struct {
	inner  *memBackend
	prefix string
}

func (b *prefixBackend) join(key string) string {
	return strings.TrimSuffix(b.prefix, "/") + "/" + key
}

func (b *prefixBackend) Get(ctx context.Context, key string) ([]byte, error) {
	return b.inner.Get(ctx, b.join(key))
}

func (b *prefixBackend) Put(ctx context.Context, key string, data []byte) error {
	return b.inner.Put(ctx, b.join(key), data)
}

func (b *prefixBackend) Delete(ctx context.Context, key string) error {
	return b.inner.Delete(ctx, b.join(key))
}

func (b *prefixBackend) List(ctx context.Context, prefix string) ([]interfaces.ObjectMeta, error) {
	return b.inner.List(ctx, b.join(prefix))
}

func (b *prefixBackend) Head(ctx context.Context, key string) (interfaces.ObjectMeta, error) {
	return b.inner.Head(ctx, b.join(key))
}

func (b *prefixBackend) Name() string { return "prefixed-" + b.inner.Name() }

// A configured prefix remaps every stored key to prefix/key, and list and
// head results keep that provider-side key; it is never stripped.
func TestKeyPrefixRemap(t *testing.T) {
	store := newMemBackend()
	router := testRouter(&prefixBackend{inner: store, prefix: "tenant1"})

	put := doRequest(t, router, http.MethodPut, "/data/report.csv", []byte("12345678"))
	require.Equal(t, http.StatusOK, put.Code)

	_, prefixed := store.objects["tenant1/report.csv"]
	assert.True(t, prefixed, "object must be stored under the prefixed key")
	_, bare := store.objects["report.csv"]
	assert.False(t, bare, "object must not be stored under the logical key")

	head := doRequest(t, router, http.MethodHead, "/data/report.csv", nil)
	require.Equal(t, http.StatusOK, head.Code)
	assert.Equal(t, "8", head.Header().Get("Content-Length"))

	list := doRequest(t, router, http.MethodGet, "/data", nil)
	require.Equal(t, http.StatusOK, list.Code)

	var result s3.ListBucketResult
	require.NoError(t, xml.Unmarshal(list.Body.Bytes(), &result))
	require.Len(t, result.Contents, 1)
	assert.Equal(t, "tenant1/report.csv", result.Contents[0].Key)

	missing := doRequest(t, router, http.MethodGet, "/data/missing.csv", nil)
	require.Equal(t, http.StatusNotFound, missing.Code)

	var envelope s3.Error
	require.NoError(t, xml.Unmarshal(missing.Body.Bytes(), &envelope))
	assert.Equal(t, "NoSuchKey", envelope.Code)
}

func TestNestedKeyRouting(t *testing.T) {
	backend := &MockStorageBackend{name: "mock"}
	backend.On("Put", mock.Anything, "deep/nested/path/file.txt", []byte("v")).Return(nil)

	rec := doRequest(t, testRouter(backend), http.MethodPut, "/bucket/deep/nested/path/file.txt", []byte("v"))
	require.Equal(t, http.StatusOK, rec.Code)
	backend.AssertExpectations(t)
}

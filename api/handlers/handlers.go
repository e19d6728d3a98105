// Package handlers translates S3-compatible HTTP requests into operations
// on a single configured storage backend and renders results using S3 wire
// semantics: raw payloads, XML documents, and S3 status code conventions.
package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ruteri/s3proxy/interfaces"
	"github.com/ruteri/s3proxy/metrics"
	"github.com/ruteri/s3proxy/s3"
)

// defaultMaxKeys caps list responses when the client does not send
// max-keys, matching the S3 default.
const defaultMaxKeys = 1000

// Handler serves the S3-compatible API over one storage backend.
type Handler struct {
	backend  interfaces.StorageBackend
	observer metrics.StorageObserver
	log      *slog.Logger
}

// NewHandler creates a handler over the given backend. The observer may be
// nil, in which case storage operations are not instrumented.
func NewHandler(backend interfaces.StorageBackend, observer metrics.StorageObserver, log *slog.Logger) *Handler {
	return &Handler{
		backend:  backend,
		observer: observer,
		log:      log,
	}
}

// SetObserver wires a storage observer after construction. Used when the
// observer is owned by a component built later, such as the HTTP server's
// metrics registry.
func (h *Handler) SetObserver(observer metrics.StorageObserver) {
	h.observer = observer
}

func (h *Handler) observe(op string, err error, start time.Time) {
	if h.observer == nil {
		return
	}
	h.observer.ObserveStorageOp(op, err, time.Since(start))
}

// objectKey extracts the object key from the wildcard route segment.
func objectKey(r *http.Request) string {
	return chi.URLParam(r, "*")
}

// HandleGetObject serves GET /{bucket}/{key...}. The payload is returned
// verbatim with a content-derived ETag.
func (h *Handler) HandleGetObject(w http.ResponseWriter, r *http.Request) {
	key := objectKey(r)
	start := time.Now()

	data, err := h.backend.Get(r.Context(), key)
	h.observe("get", err, start)
	if err != nil {
		h.writeStorageError(w, "get object", key, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("ETag", s3.Quote(s3.ContentETag(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// HandlePutObject serves PUT /{bucket}/{key...}. Responds 200 with the
// ETag header set to the quoted MD5 of the stored payload.
func (h *Handler) HandlePutObject(w http.ResponseWriter, r *http.Request) {
	key := objectKey(r)

	data, err := io.ReadAll(r.Body)
	if err != nil {
		h.log.Warn("Failed to read request body", "err", err, slog.String("key", key))
		s3.WriteError(w, http.StatusBadRequest, "IncompleteBody", "Could not read request body")
		return
	}

	start := time.Now()
	err = h.backend.Put(r.Context(), key, data)
	h.observe("put", err, start)
	if err != nil {
		h.writeStorageError(w, "put object", key, err)
		return
	}

	w.Header().Set("ETag", s3.Quote(s3.ContentETag(data)))
	w.WriteHeader(http.StatusOK)
}

// HandleDeleteObject serves DELETE /{bucket}/{key...}. Deletion is
// idempotent: a missing key still yields 204.
func (h *Handler) HandleDeleteObject(w http.ResponseWriter, r *http.Request) {
	key := objectKey(r)
	start := time.Now()

	err := h.backend.Delete(r.Context(), key)
	h.observe("delete", err, start)
	if err != nil && !errors.Is(err, interfaces.ErrObjectNotFound) {
		h.writeStorageError(w, "delete object", key, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleHeadObject serves HEAD /{bucket}/{key...}. Responses carry
// metadata headers only; 404 has no body per HEAD semantics.
func (h *Handler) HandleHeadObject(w http.ResponseWriter, r *http.Request) {
	key := objectKey(r)
	start := time.Now()

	meta, err := h.backend.Head(r.Context(), key)
	h.observe("head", err, start)
	if err != nil {
		if errors.Is(err, interfaces.ErrObjectNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.log.Error("Failed to head object", "err", err, slog.String("key", key), slog.String("backend", h.backend.Name()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(meta.Size, 10))
	w.Header().Set("Last-Modified", meta.LastModified.UTC().Format(http.TimeFormat))
	w.Header().Set("ETag", s3.Quote(metaETag(meta)))
	w.WriteHeader(http.StatusOK)
}

// HandleListObjects serves GET /{bucket}. The backend listing is fully
// materialized and truncated here to max-keys; IsTruncated reports whether
// anything was cut.
func (h *Handler) HandleListObjects(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	prefix := r.URL.Query().Get("prefix")

	maxKeys := defaultMaxKeys
	if raw := r.URL.Query().Get("max-keys"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s3.WriteError(w, http.StatusBadRequest, "InvalidArgument", "max-keys must be a non-negative integer")
			return
		}
		maxKeys = n
	}

	start := time.Now()
	metas, err := h.backend.List(r.Context(), prefix)
	h.observe("list", err, start)
	if err != nil {
		h.writeStorageError(w, "list objects", prefix, err)
		return
	}

	truncated := len(metas) > maxKeys
	if truncated {
		metas = metas[:maxKeys]
	}

	contents := make([]s3.Object, 0, len(metas))
	for _, meta := range metas {
		contents = append(contents, s3.Object{
			Key:          meta.Location,
			LastModified: meta.LastModified.UTC().Format(s3.TimeFormatISO8601Millis),
			ETag:         s3.Quote(metaETag(meta)),
			Size:         meta.Size,
			StorageClass: s3.StorageClassStandard,
		})
	}

	result := s3.ListBucketResult{
		Xmlns:       s3.Xmlns,
		Name:        bucket,
		Prefix:      prefix,
		MaxKeys:     maxKeys,
		IsTruncated: truncated,
		Contents:    contents,
	}
	if err := s3.WriteXML(w, http.StatusOK, result); err != nil {
		h.log.Error("Failed to serialize list response", "err", err)
	}
}

// HandleCreateBucket serves PUT /{bucket}. Bucket lifecycle is owned by
// the configured backend, so this acknowledges without acting.
func (h *Handler) HandleCreateBucket(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// HandleDeleteBucket serves DELETE /{bucket}. Noop, as with create.
func (h *Handler) HandleDeleteBucket(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// writeStorageError maps a backend error onto the S3 error envelope:
// NotFound becomes 404 NoSuchKey, anything else 500 InternalError.
func (h *Handler) writeStorageError(w http.ResponseWriter, op, key string, err error) {
	if errors.Is(err, interfaces.ErrObjectNotFound) {
		s3.WriteError(w, http.StatusNotFound, "NoSuchKey", "The specified key does not exist.")
		return
	}
	h.log.Error("Storage operation failed",
		"err", err,
		slog.String("operation", op),
		slog.String("key", key),
		slog.String("backend", h.backend.Name()))
	s3.WriteError(w, http.StatusInternalServerError, "InternalError", "We encountered an internal error. Please try again.")
}

// metaETag picks the provider ETag when present and otherwise derives a
// stable one, so repeated reads of an unchanged object always agree.
func metaETag(meta interfaces.ObjectMeta) string {
	if meta.ETag != "" {
		return meta.ETag
	}
	return s3.StableETag(meta.Location, meta.Size, meta.LastModified)
}

// Package blobstore holds the bytes of accepted uploads (patient photos and
// patient documents) so pages can serve them back. It defines the Store
// interface, an in-memory implementation and the Echo handler that streams a
// blob to the browser.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// ---------------------------------------------------------------------------
// Sentinel errors
// ---------------------------------------------------------------------------

var (
	ErrBlobNotFound    = errors.New("blob not found")
	ErrFileTooLarge    = errors.New("file exceeds maximum allowed size")
	ErrMissingFileName = errors.New("file name is required")
	ErrInvalidCategory = errors.New("blob category is not allowed")
)

// ---------------------------------------------------------------------------
// Validation constants
// ---------------------------------------------------------------------------

// MaxFileSize is the largest blob accepted by any category (10 MiB, the
// document ceiling).
const MaxFileSize = 10 << 20

// Category groups blobs by the widget that produced them.
type Category string

const (
	CategoryPhoto    Category = "photo"
	CategoryDocument Category = "document"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	return c == CategoryPhoto || c == CategoryDocument
}

// ---------------------------------------------------------------------------
// Domain types
// ---------------------------------------------------------------------------

// Metadata describes a stored blob.
type Metadata struct {
	ID          string    `json:"id"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	PatientID   string    `json:"patient_id,omitempty"`
	Category    Category  `json:"category"`
	Hash        string    `json:"hash"`
	CreatedAt   time.Time `json:"created_at"`
	CreatedBy   string    `json:"created_by"`
}

// Store defines the contract for blob storage backends.
type Store interface {
	Put(ctx context.Context, meta Metadata, content io.Reader) (*Metadata, error)
	Open(ctx context.Context, id string) (io.ReadCloser, *Metadata, error)
	Stat(ctx context.Context, id string) (*Metadata, error)
	Delete(ctx context.Context, id string) error
	ListByPatient(ctx context.Context, patientID string, category Category) ([]*Metadata, error)
	DeleteByPatient(ctx context.Context, patientID string) (int, error)
}

// ---------------------------------------------------------------------------
// In-memory implementation
// ---------------------------------------------------------------------------

type storedBlob struct {
	metadata Metadata
	content  []byte
}

// MemoryStore is a thread-safe, in-memory Store.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string]*storedBlob
	now   func() time.Time
}

// NewMemoryStore returns a ready-to-use MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		blobs: make(map[string]*storedBlob),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Put validates inputs, reads the content, computes a SHA-256 hash, and
// stores the blob under a fresh ID.
func (s *MemoryStore) Put(_ context.Context, meta Metadata, content io.Reader) (*Metadata, error) {
	if meta.FileName == "" {
		return nil, ErrMissingFileName
	}
	if !meta.Category.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCategory, meta.Category)
	}

	data, err := io.ReadAll(io.LimitReader(content, MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading content: %w", err)
	}
	if int64(len(data)) > MaxFileSize {
		return nil, ErrFileTooLarge
	}

	h := sha256.Sum256(data)
	meta.ID = uuid.New().String()
	meta.Size = int64(len(data))
	meta.Hash = fmt.Sprintf("%x", h)
	meta.CreatedAt = s.now()

	s.mu.Lock()
	s.blobs[meta.ID] = &storedBlob{metadata: meta, content: data}
	s.mu.Unlock()

	out := meta
	return &out, nil
}

// Open returns a reader over the blob content and its metadata.
func (s *MemoryStore) Open(_ context.Context, id string) (io.ReadCloser, *Metadata, error) {
	s.mu.RLock()
	blob, ok := s.blobs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, nil, ErrBlobNotFound
	}

	meta := blob.metadata
	return io.NopCloser(bytes.NewReader(blob.content)), &meta, nil
}

// Stat returns blob metadata without content.
func (s *MemoryStore) Stat(_ context.Context, id string) (*Metadata, error) {
	s.mu.RLock()
	blob, ok := s.blobs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrBlobNotFound
	}

	meta := blob.metadata
	return &meta, nil
}

// Delete removes a blob by ID.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blobs[id]; !ok {
		return ErrBlobNotFound
	}
	delete(s.blobs, id)
	return nil
}

// ListByPatient returns the patient's blobs, oldest first, optionally
// filtered by category.
func (s *MemoryStore) ListByPatient(_ context.Context, patientID string, category Category) ([]*Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*Metadata
	for _, b := range s.blobs {
		if b.metadata.PatientID != patientID {
			continue
		}
		if category != "" && b.metadata.Category != category {
			continue
		}
		m := b.metadata
		matched = append(matched, &m)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
	return matched, nil
}

// DeleteByPatient removes every blob owned by patientID and returns how many
// were removed.
func (s *MemoryStore) DeleteByPatient(_ context.Context, patientID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, b := range s.blobs {
		if b.metadata.PatientID == patientID {
			delete(s.blobs, id)
			n++
		}
	}
	return n, nil
}

// ---------------------------------------------------------------------------
// HTTP handler
// ---------------------------------------------------------------------------

// Handler serves stored blobs back to the browser.
type Handler struct {
	store Store
}

// NewHandler creates a new Handler.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes mounts blob routes on the supplied Echo group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/blobs/:id", h.handleDownload)
}

func (h *Handler) handleDownload(c echo.Context) error {
	rc, meta, err := h.store.Open(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return err
	}
	defer rc.Close()

	disposition := "attachment"
	if meta.Category == CategoryPhoto || meta.ContentType == "application/pdf" {
		disposition = "inline"
	}
	c.Response().Header().Set("Content-Disposition", fmt.Sprintf(`%s; filename=%q`, disposition, meta.FileName))
	c.Response().Header().Set("X-Content-Type-Options", "nosniff")
	return c.Stream(http.StatusOK, meta.ContentType, rc)
}

package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func seedBlob(t *testing.T, store Store, patientID string, category Category, fileName, contentType, content string) *Metadata {
	t.Helper()
	meta := Metadata{
		FileName:    fileName,
		ContentType: contentType,
		PatientID:   patientID,
		Category:    category,
		CreatedBy:   "admin",
	}
	result, err := store.Put(context.Background(), meta, strings.NewReader(content))
	if err != nil {
		t.Fatalf("seedBlob: %v", err)
	}
	return result
}

// ---------------------------------------------------------------------------
// Store tests
// ---------------------------------------------------------------------------

func TestMemoryStore_Put(t *testing.T) {
	store := NewMemoryStore()
	content := "hello world"

	result := seedBlob(t, store, "P001", CategoryDocument, "notes.pdf", "application/pdf", content)

	if result.ID == "" {
		t.Error("expected non-empty ID")
	}
	if result.Size != int64(len(content)) {
		t.Errorf("expected size %d, got %d", len(content), result.Size)
	}
	wantHash := fmt.Sprintf("%x", sha256.Sum256([]byte(content)))
	if result.Hash != wantHash {
		t.Errorf("expected hash %s, got %s", wantHash, result.Hash)
	}
	if result.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
	if result.CreatedBy != "admin" {
		t.Errorf("expected CreatedBy admin, got %s", result.CreatedBy)
	}
}

func TestMemoryStore_PutValidation(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.Put(ctx, Metadata{Category: CategoryPhoto}, strings.NewReader("x"))
	if !errors.Is(err, ErrMissingFileName) {
		t.Errorf("expected ErrMissingFileName, got %v", err)
	}

	_, err = store.Put(ctx, Metadata{FileName: "a.txt", Category: "misc"}, strings.NewReader("x"))
	if !errors.Is(err, ErrInvalidCategory) {
		t.Errorf("expected ErrInvalidCategory, got %v", err)
	}

	big := bytes.NewReader(make([]byte, MaxFileSize+1))
	_, err = store.Put(ctx, Metadata{FileName: "big.pdf", Category: CategoryDocument}, big)
	if !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("expected ErrFileTooLarge, got %v", err)
	}
}

func TestMemoryStore_OpenAndStat(t *testing.T) {
	store := NewMemoryStore()
	seeded := seedBlob(t, store, "P001", CategoryPhoto, "face.png", "image/png", "png-bytes")

	rc, meta, err := store.Open(context.Background(), seeded.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "png-bytes" {
		t.Errorf("expected content png-bytes, got %q", data)
	}
	if meta.FileName != "face.png" {
		t.Errorf("expected file name face.png, got %s", meta.FileName)
	}

	st, err := store.Stat(context.Background(), seeded.ID)
	if err != nil || st.ID != seeded.ID {
		t.Fatalf("unexpected stat result %+v, %v", st, err)
	}

	if _, _, err := store.Open(context.Background(), "missing"); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("expected ErrBlobNotFound, got %v", err)
	}
	if _, err := store.Stat(context.Background(), "missing"); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("expected ErrBlobNotFound, got %v", err)
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	store := NewMemoryStore()
	seeded := seedBlob(t, store, "P001", CategoryPhoto, "face.png", "image/png", "x")

	if err := store.Delete(context.Background(), seeded.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.Delete(context.Background(), seeded.ID); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("expected ErrBlobNotFound on second delete, got %v", err)
	}
}

func TestMemoryStore_ListAndDeleteByPatient(t *testing.T) {
	store := NewMemoryStore()
	seedBlob(t, store, "P001", CategoryPhoto, "a.png", "image/png", "a")
	seedBlob(t, store, "P001", CategoryDocument, "b.pdf", "application/pdf", "b")
	seedBlob(t, store, "P002", CategoryDocument, "c.pdf", "application/pdf", "c")

	all, _ := store.ListByPatient(context.Background(), "P001", "")
	if len(all) != 2 {
		t.Fatalf("expected 2 blobs for P001, got %d", len(all))
	}
	docs, _ := store.ListByPatient(context.Background(), "P001", CategoryDocument)
	if len(docs) != 1 || docs[0].FileName != "b.pdf" {
		t.Fatalf("unexpected documents: %+v", docs)
	}

	n, err := store.DeleteByPatient(context.Background(), "P001")
	if err != nil || n != 2 {
		t.Fatalf("expected 2 deleted, got %d, %v", n, err)
	}
	rest, _ := store.ListByPatient(context.Background(), "P002", "")
	if len(rest) != 1 {
		t.Errorf("expected P002 blobs untouched, got %d", len(rest))
	}
}

func TestMemoryStore_ConcurrentPut(t *testing.T) {
	store := NewMemoryStore()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = store.Put(context.Background(), Metadata{
				FileName:  fmt.Sprintf("f%d.pdf", i),
				Category:  CategoryDocument,
				PatientID: "P001",
			}, strings.NewReader("x"))
		}(i)
	}
	wg.Wait()

	all, _ := store.ListByPatient(context.Background(), "P001", "")
	if len(all) != 20 {
		t.Errorf("expected 20 blobs, got %d", len(all))
	}
}

// ---------------------------------------------------------------------------
// Handler tests
// ---------------------------------------------------------------------------

func TestHandler_Download(t *testing.T) {
	store := NewMemoryStore()
	photo := seedBlob(t, store, "P001", CategoryPhoto, "face.png", "image/png", "png-bytes")
	doc := seedBlob(t, store, "P001", CategoryDocument, "plan.docx", "application/vnd.openxmlformats-officedocument.wordprocessingml.document", "docx")

	e := echo.New()
	h := NewHandler(store)
	h.RegisterRoutes(e.Group("/admin"))

	req := httptest.NewRequest(http.MethodGet, "/admin/blobs/"+photo.ID, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "png-bytes" {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("expected image/png, got %s", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.HasPrefix(cd, "inline") {
		t.Errorf("expected inline disposition, got %s", cd)
	}

	req = httptest.NewRequest(http.MethodGet, "/admin/blobs/"+doc.ID, nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if cd := rec.Header().Get("Content-Disposition"); !strings.HasPrefix(cd, "attachment") {
		t.Errorf("expected attachment disposition, got %s", cd)
	}
}

func TestHandler_DownloadNotFound(t *testing.T) {
	e := echo.New()
	NewHandler(NewMemoryStore()).RegisterRoutes(e.Group("/admin"))

	req := httptest.NewRequest(http.MethodGet, "/admin/blobs/nope", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

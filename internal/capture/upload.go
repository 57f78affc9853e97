// Package capture implements the two capture widgets of the patient forms:
// a single-file upload validator and a freehand signature pad.
package capture

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"sync"

	_ "golang.org/x/image/webp"

	"github.com/ins/ins/internal/platform/notification"
)

var (
	ErrFileTooLarge    = errors.New("file too large")
	ErrInvalidFileType = errors.New("invalid file type")
)

// Kind selects the policy an upload widget enforces.
type Kind string

const (
	KindPhoto    Kind = "photo"
	KindDocument Kind = "document"
)

// Policy is the size ceiling and MIME allow-list of one widget kind.
type Policy struct {
	Kind     Kind
	MaxBytes int64
	Allowed  []string
	Hint     string
}

var policies = map[Kind]Policy{
	KindPhoto: {
		Kind:     KindPhoto,
		MaxBytes: 5 << 20,
		Allowed:  []string{"image/jpeg", "image/png", "image/gif", "image/webp"},
		Hint:     "Please upload an image file (JPG, PNG, GIF, WebP)",
	},
	KindDocument: {
		Kind:     KindDocument,
		MaxBytes: 10 << 20,
		Allowed: []string{
			"application/pdf",
			"application/msword",
			"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		},
		Hint: "Please upload a PDF or Word document",
	},
}

// PolicyFor returns the policy for kind. Unknown kinds get the document
// policy.
func PolicyFor(kind Kind) Policy {
	if p, ok := policies[kind]; ok {
		return p
	}
	return policies[KindDocument]
}

// Allows reports whether contentType is on the allow-list.
func (p Policy) Allows(contentType string) bool {
	for _, a := range p.Allowed {
		if a == contentType {
			return true
		}
	}
	return false
}

// MaxMegabytes is the ceiling in whole MiB, as shown to users.
func (p Policy) MaxMegabytes() int64 {
	return p.MaxBytes >> 20
}

// File is an accepted upload.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Data        []byte
	// Preview is a data URL, set for photos only.
	Preview string
	// Width and Height are the decoded photo dimensions, zero when the
	// image could not be decoded.
	Width  int
	Height int
}

// Upload is one upload widget holding at most one file.
type Upload struct {
	policy   Policy
	catalog  *notification.Catalog
	sink     notification.Sink
	onUpload func(*File)

	mu      sync.Mutex
	current *File
}

// NewUpload creates a widget of the given kind. Notices go to sink and
// accepted files are reported to onUpload; both may be nil.
func NewUpload(kind Kind, catalog *notification.Catalog, sink notification.Sink, onUpload func(*File)) *Upload {
	if catalog == nil {
		catalog = notification.NewCatalog()
	}
	return &Upload{policy: PolicyFor(kind), catalog: catalog, sink: sink, onUpload: onUpload}
}

// Policy returns the widget's policy.
func (u *Upload) Policy() Policy { return u.policy }

// Select validates a candidate file. Size is measured on the bytes actually
// read. A rejected file leaves the widget unchanged; an accepted file
// replaces the previous one.
func (u *Upload) Select(name, contentType string, r io.Reader) (*File, error) {
	data, err := io.ReadAll(io.LimitReader(r, u.policy.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("capture: read %q: %w", name, err)
	}
	if int64(len(data)) > u.policy.MaxBytes {
		u.notify(notification.FileTooLarge, map[string]string{"limit": fmt.Sprint(u.policy.MaxMegabytes())})
		return nil, ErrFileTooLarge
	}

	ct := normalizeContentType(contentType, data)
	if !u.policy.Allows(ct) {
		u.notify(notification.FileInvalidType, map[string]string{"hint": u.policy.Hint})
		return nil, fmt.Errorf("%w: %s", ErrInvalidFileType, ct)
	}

	f := &File{Name: name, ContentType: ct, Size: int64(len(data)), Data: data}
	if u.policy.Kind == KindPhoto {
		f.Preview = DataURL(ct, data)
		if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
			f.Width, f.Height = cfg.Width, cfg.Height
		}
	}

	u.mu.Lock()
	u.current = f
	u.mu.Unlock()

	if u.onUpload != nil {
		u.onUpload(f)
	}
	u.notify(notification.FileUploaded, map[string]string{"name": name})
	return f, nil
}

// SelectHeader runs Select on a multipart form file.
func (u *Upload) SelectHeader(fh *multipart.FileHeader) (*File, error) {
	src, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("capture: open %q: %w", fh.Filename, err)
	}
	defer src.Close()
	return u.Select(fh.Filename, fh.Header.Get("Content-Type"), src)
}

// Current returns the held file, or nil.
func (u *Upload) Current() *File {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.current
}

func (u *Upload) notify(templateID string, data map[string]string) {
	if u.sink == nil {
		return
	}
	u.sink.Notify(u.catalog.MustRender(templateID, data))
}

// DataURL encodes data as a base64 data URL.
func DataURL(contentType string, data []byte) string {
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// normalizeContentType strips parameters from the declared type and sniffs
// the bytes when the browser sent nothing useful.
func normalizeContentType(declared string, data []byte) string {
	if declared != "" && declared != "application/octet-stream" {
		if mt, _, err := mime.ParseMediaType(declared); err == nil {
			return mt
		}
		return declared
	}
	mt, _, _ := mime.ParseMediaType(http.DetectContentType(data))
	return mt
}

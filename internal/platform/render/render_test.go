package render

import (
	"bytes"
	"html/template"
	"io/fs"
	"strings"
	"testing"

	"github.com/ins/ins/internal/platform/notification"
	"github.com/ins/ins/internal/platform/session"
)

type loginData struct {
	From       string
	Username   string
	SignedInAs *session.Session
}

func newRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func TestNew_ParsesAllPages(t *testing.T) {
	r := newRenderer(t)
	for _, name := range []string{"login", "placeholder", "error", "patients", "add-patient", "patient"} {
		if !r.Has(name) {
			t.Errorf("expected page %q to be registered", name)
		}
	}
	if r.Has("layout") {
		t.Error("layout must not be registered as a page")
	}
}

func TestRender_UnknownPage(t *testing.T) {
	r := newRenderer(t)
	var buf bytes.Buffer
	if err := r.Render(&buf, "nope", Page{}, nil); err == nil {
		t.Error("expected error for unknown page")
	}
}

func TestRender_LoginWithoutSession(t *testing.T) {
	r := newRenderer(t)
	var buf bytes.Buffer
	err := r.Render(&buf, "login", Page{
		Title: "Sign in",
		Notices: []notification.Notice{
			{Title: "Login Failed", Description: "Invalid username or password.", Severity: notification.SeverityError},
		},
		Data: loginData{From: "/admin/patients", Username: "<script>"},
	}, nil)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"<title>Sign in · INS Admin</title>",
		"Invalid username or password.",
		"notice-error",
		`value="/admin/patients"`,
		"&lt;script&gt;",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q", want)
		}
	}
	if strings.Contains(out, `action="/logout"`) {
		t.Error("expected no sign-out form without a session")
	}
}

func TestRender_NavigationWithSession(t *testing.T) {
	r := newRenderer(t)
	var buf bytes.Buffer
	err := r.Render(&buf, "login", Page{
		Title:   "Sign in",
		Session: &session.Session{Identity: "2", Name: "Head Nurse", Role: session.RoleNurse},
		Data:    loginData{SignedInAs: &session.Session{Identity: "2", Name: "Head Nurse", Role: session.RoleNurse}},
	}, nil)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	out := buf.String()
	for _, want := range []string{`action="/logout"`, ">HN<", "Currently signed in as"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q", want)
		}
	}
}

func TestRender_Placeholder(t *testing.T) {
	r := newRenderer(t)
	var buf bytes.Buffer
	if err := r.Render(&buf, "placeholder", Page{Title: "Loading", Data: "/admin/patients"}, nil); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(buf.String(), `href="/admin/patients"`) {
		t.Error("expected retry link")
	}
}

func TestFuncs_SafeURL(t *testing.T) {
	safeURL := funcs["safeURL"].(func(string) template.URL)
	tests := []struct {
		in   string
		want template.URL
	}{
		{"data:image/png;base64,AAAA", "data:image/png;base64,AAAA"},
		{"/admin/blobs/abc", "/admin/blobs/abc"},
		{"javascript:alert(1)", "about:blank"},
		{"data:text/html,<b>x</b>", "about:blank"},
	}
	for _, tt := range tests {
		if got := safeURL(tt.in); got != tt.want {
			t.Errorf("safeURL(%q): expected %q, got %q", tt.in, tt.want, got)
		}
	}
}

func TestFuncs_Initials(t *testing.T) {
	initials := funcs["initials"].(func(string) string)
	tests := map[string]string{
		"System Administrator": "SA",
		"Dr. Smith":            "DS",
		"jane":                 "J",
		"Mary Ann Lee":         "MA",
		"":                     "",
	}
	for in, want := range tests {
		if got := initials(in); got != want {
			t.Errorf("initials(%q): expected %q, got %q", in, want, got)
		}
	}
}

func TestStaticFS(t *testing.T) {
	for _, name := range []string{"app.css", "signature.js", "docs/sample.pdf"} {
		if _, err := fs.Stat(StaticFS(), name); err != nil {
			t.Errorf("expected static asset %s: %v", name, err)
		}
	}
}

func TestStaticFS_SignaturePadIsOpaque(t *testing.T) {
	src, err := fs.ReadFile(StaticFS(), "signature.js")
	if err != nil {
		t.Fatal(err)
	}
	js := string(src)
	if !strings.Contains(js, `fillStyle = "#fff"`) || !strings.Contains(js, "fillRect(") {
		t.Error("expected the canvas to be painted white")
	}
	if strings.Contains(js, "clearRect(") {
		t.Error("expected clear to repaint the background instead of making it transparent")
	}
}

package pagination

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestFromContext_Defaults(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	p := FromContext(c)

	if p.Limit != DefaultLimit {
		t.Errorf("expected default limit %d, got %d", DefaultLimit, p.Limit)
	}
	if p.Offset != 0 {
		t.Errorf("expected default offset 0, got %d", p.Offset)
	}
}

func TestFromContext_CustomValues(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?limit=50&offset=10", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	p := FromContext(c)

	if p.Limit != 50 {
		t.Errorf("expected limit 50, got %d", p.Limit)
	}
	if p.Offset != 10 {
		t.Errorf("expected offset 10, got %d", p.Offset)
	}
}

func TestFromContext_Clamps(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?limit=5000&offset=-3", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	p := FromContext(c)

	if p.Limit != MaxLimit {
		t.Errorf("expected limit clamped to %d, got %d", MaxLimit, p.Limit)
	}
	if p.Offset != 0 {
		t.Errorf("expected offset clamped to 0, got %d", p.Offset)
	}
}

func TestNewResponse(t *testing.T) {
	r := NewResponse([]string{"a"}, 25, 10, 10)
	if !r.HasMore {
		t.Error("expected HasMore with 25 total at offset 10")
	}
	r = NewResponse([]string{"a"}, 20, 10, 10)
	if r.HasMore {
		t.Error("expected no more results on the last page")
	}
}

func TestApply(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	tests := []struct {
		name string
		p    Params
		want []int
	}{
		{"first page", Params{Limit: 2, Offset: 0}, []int{1, 2}},
		{"middle page", Params{Limit: 2, Offset: 2}, []int{3, 4}},
		{"last partial", Params{Limit: 2, Offset: 4}, []int{5}},
		{"past the end", Params{Limit: 2, Offset: 9}, []int{}},
		{"no limit", Params{Offset: 1}, []int{2, 3, 4, 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Apply(items, tt.p)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("expected %v, got %v", tt.want, got)
				}
			}
		})
	}
}

func TestNavigation(t *testing.T) {
	p := Params{Limit: 10, Offset: 5}
	if !p.HasPrevious() || p.PreviousOffset() != 0 {
		t.Errorf("unexpected previous: %v %d", p.HasPrevious(), p.PreviousOffset())
	}
	if !p.HasNext(20) || p.NextOffset() != 15 {
		t.Errorf("unexpected next: %v %d", p.HasNext(20), p.NextOffset())
	}
	if p.HasNext(15) {
		t.Error("expected no next page")
	}
}

func TestLinks(t *testing.T) {
	p := Params{Limit: 10, Offset: 10}
	links := p.Links("/api/v1/patients", 35, url.Values{"q": {"smith"}})

	if len(links) != 3 {
		t.Fatalf("expected 3 links, got %d", len(links))
	}
	want := map[string]string{
		"self":     "/api/v1/patients?limit=10&offset=10&q=smith",
		"next":     "/api/v1/patients?limit=10&offset=20&q=smith",
		"previous": "/api/v1/patients?limit=10&offset=0&q=smith",
	}
	for _, l := range links {
		if want[l.Relation] != l.URL {
			t.Errorf("%s: expected %s, got %s", l.Relation, want[l.Relation], l.URL)
		}
	}

	first := Params{Limit: 10}.Links("/x", 5, nil)
	if len(first) != 1 || first[0].Relation != "self" {
		t.Errorf("expected only self link, got %+v", first)
	}
}

package pagination

import (
	"net/http/httptest"
	"testing"
)

func TestParseParams(t *testing.T) {
	tests := []struct {
		query    string
		wantPage int
		wantSize int
	}{
		{"", 1, 20},
		{"?page=3&size=10", 3, 10},
		{"?page=0&size=-4", 1, 20},
		{"?page=abc&size=500", 1, 100},
	}

	for _, tc := range tests {
		r := httptest.NewRequest("GET", "/api/v1/appointments/doctor"+tc.query, nil)
		p := ParseParams(r)
		if p.Page != tc.wantPage || p.Size != tc.wantSize {
			t.Errorf("ParseParams(%q) = %+v, want page=%d size=%d", tc.query, p, tc.wantPage, tc.wantSize)
		}
	}
}

func TestMeta(t *testing.T) {
	p := Params{Page: 2, Size: 10}
	m := p.Meta(25)

	if m.TotalPages != 3 || !m.HasNext || !m.HasPrevious {
		t.Errorf("unexpected meta %+v", m)
	}
	if p.Offset() != 10 {
		t.Errorf("Offset = %d", p.Offset())
	}

	empty := Params{Page: 1, Size: 10}.Meta(0)
	if empty.TotalPages != 1 || empty.HasNext {
		t.Errorf("unexpected empty meta %+v", empty)
	}
}

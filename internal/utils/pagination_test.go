package utils

import "testing"

func TestAtoiDefault(t *testing.T) {
	cases := []struct {
		s    string
		def  int
		want int
	}{
		{"", 10, 10},
		{"42", 0, 42},
		{"-13", 1, -13},
		{"0012", 99, 12},
		{"x", 5, 5},
		{" 42", 7, 7},
		{"999999999999999999999999", -1, -1},
	}
	for _, tc := range cases {
		if got := AtoiDefault(tc.s, tc.def); got != tc.want {
			t.Fatalf("AtoiDefault(%q, %d) = %d; want %d", tc.s, tc.def, got, tc.want)
		}
	}
}

func TestParsePage(t *testing.T) {
	cases := []struct {
		page, size         string
		wantPage, wantSize int
	}{
		{"", "", 1, DefaultPageSize},
		{"3", "10", 3, 10},
		{"0", "0", 1, 1},
		{"-2", "500", 1, MaxPageSize},
		{"x", "y", 1, DefaultPageSize},
	}
	for _, tc := range cases {
		p, s := ParsePage(tc.page, tc.size)
		if p != tc.wantPage || s != tc.wantSize {
			t.Errorf("ParsePage(%q, %q) = %d, %d; want %d, %d", tc.page, tc.size, p, s, tc.wantPage, tc.wantSize)
		}
	}
}

func TestNewPageMeta(t *testing.T) {
	cases := []struct {
		total        int64
		page, size   int
		wantLastPage int
	}{
		{0, 1, 20, 1},
		{20, 1, 20, 1},
		{21, 2, 20, 2},
		{7, 1, 3, 3},
	}
	for _, tc := range cases {
		m := NewPageMeta(tc.total, tc.page, tc.size)
		if m.LastPage != tc.wantLastPage || m.Total != tc.total || m.Page != tc.page {
			t.Errorf("NewPageMeta(%d, %d, %d) = %+v", tc.total, tc.page, tc.size, m)
		}
	}
}

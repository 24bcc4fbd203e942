package core

import "testing"

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1200", 1200, true},
		{"1,200", 1200, true},
		{"¥1,200", 1200, true},
		{"￥3、500", 3500, true},
		{"-500", 500, true},
		{" 42 ", 42, true},
		{"12.9", 12, true},
		{"0", 0, true},
		{"abc", 0, false},
		{"", 0, false},
		{"-", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got, err)
			}
		} else {
			if err == nil {
				t.Fatalf("%q expected error", tc.in)
			}
		}
	}
}

func TestFormatYen(t *testing.T) {
	cases := map[int64]string{
		0:       "¥0",
		999:     "¥999",
		1200:    "¥1,200",
		1234567: "¥1,234,567",
		-3000:   "-¥3,000",
	}
	for in, want := range cases {
		if got := FormatYen(in); got != want {
			t.Fatalf("FormatYen(%d) = %q, want %q", in, got, want)
		}
	}
}

package plugin

import "testing"

func TestParseVersion(t *testing.T) {
	cases := []struct {
		in      string
		want    Version
		wantErr bool
	}{
		{"1.2.3", Version{1, 2, 3}, false},
		{"1.2", Version{1, 2, 0}, false},
		{"0.18.0", Version{0, 18, 0}, false},
		{"bad", Version{}, true},
		{"1", Version{}, true},
	}
	for _, c := range cases {
		got, err := ParseVersion(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("ParseVersion(%q) expected error, got %v", c.in, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseVersion(%q) unexpected error: %v", c.in, err)
		}
		if got != c.want {
			t.Errorf("ParseVersion(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

// TestIsCompatibleWith ports §8's invariant I7 and scenario 2.
func TestIsCompatibleWith(t *testing.T) {
	cases := []struct {
		host, plugin Version
		want         bool
	}{
		{Version{0, 21, 5}, Version{0, 22, 0}, false},
		{Version{0, 21, 5}, Version{0, 20, 0}, true},
		{Version{1, 5, 0}, Version{1, 5, 9}, true},
		{Version{1, 5, 0}, Version{2, 0, 0}, false},
		{Version{1, 5, 0}, Version{1, 6, 0}, false},
	}
	for _, c := range cases {
		got := c.host.IsCompatibleWith(c.plugin)
		if got != c.want {
			t.Errorf("host=%v plugin=%v: got %v, want %v", c.host, c.plugin, got, c.want)
		}
	}
}

func TestVersionString(t *testing.T) {
	v := Version{1, 2, 3}
	if v.String() != "1.2.3" {
		t.Errorf("String() = %q, want %q", v.String(), "1.2.3")
	}
}

package colors

import "testing"

func TestHex(t *testing.T) {
	r := NewResolver(nil)
	tests := []struct {
		in   string
		want string
	}{
		{"red", "#FF0000"},
		{"Red", "#FF0000"},
		{"Light Blue", "#BDD7EE"},
		{"light-green", "#C6EFCE"},
		{"#abc", "#AABBCC"},
		{"#4f81bd", "#4F81BD"},
		{"00FF00", "#00FF00"},
	}
	for _, tt := range tests {
		got, err := r.Hex(tt.in)
		if err != nil {
			t.Errorf("Hex(%q) returned error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Hex(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestHexUnknown(t *testing.T) {
	r := NewResolver(nil)
	for _, in := range []string{"", "ultraviolet", "#12345", "#GGGGGG"} {
		if _, err := r.Hex(in); err == nil {
			t.Errorf("Hex(%q) should fail", in)
		}
	}
}

func TestExtraEntriesOverride(t *testing.T) {
	r := NewResolver(map[string]string{"Brand": "#123456", "red": "#CC0000", "oops": "nope"})
	if got, _ := r.Hex("brand"); got != "#123456" {
		t.Errorf("expected brand color, got %q", got)
	}
	if got, _ := r.Hex("red"); got != "#CC0000" {
		t.Errorf("expected override, got %q", got)
	}
	if _, err := r.Hex("oops"); err == nil {
		t.Error("invalid extra entry should be ignored")
	}
}

// Package colors maps human color names to hex codes.
package colors

import (
	"fmt"
	"strings"
)

// named is the built-in palette. Keys are lowercase with spaces removed.
var named = map[string]string{
	"black":       "#000000",
	"white":       "#FFFFFF",
	"red":         "#FF0000",
	"darkred":     "#8B0000",
	"lightred":    "#FFC7CE",
	"green":       "#00B050",
	"darkgreen":   "#006100",
	"lightgreen":  "#C6EFCE",
	"lime":        "#00FF00",
	"blue":        "#0070C0",
	"darkblue":    "#002060",
	"lightblue":   "#BDD7EE",
	"navy":        "#000080",
	"yellow":      "#FFFF00",
	"lightyellow": "#FFEB9C",
	"gold":        "#FFC000",
	"orange":      "#FFA500",
	"purple":      "#7030A0",
	"violet":      "#EE82EE",
	"pink":        "#FFC0CB",
	"brown":       "#A52A2A",
	"gray":        "#808080",
	"grey":        "#808080",
	"lightgray":   "#D9D9D9",
	"lightgrey":   "#D9D9D9",
	"darkgray":    "#595959",
	"darkgrey":    "#595959",
	"silver":      "#C0C0C0",
	"cyan":        "#00FFFF",
	"aqua":        "#00FFFF",
	"teal":        "#008080",
	"magenta":     "#FF00FF",
	"olive":       "#808000",
	"maroon":      "#800000",
	"indigo":      "#4B0082",
	"header":      "#4F81BD",
}

// Resolver turns color names or hex literals into "#RRGGBB" codes.
type Resolver struct {
	table map[string]string
}

// NewResolver returns a resolver over the built-in palette plus any extra
// entries. Extra entries override built-ins.
func NewResolver(extra map[string]string) *Resolver {
	t := make(map[string]string, len(named)+len(extra))
	for k, v := range named {
		t[k] = v
	}
	for k, v := range extra {
		if hex, ok := parseHex(v); ok {
			t[key(k)] = hex
		}
	}
	return &Resolver{table: t}
}

// Hex resolves a color. Accepted inputs are palette names ("red", "Light Blue"),
// "#RGB", "#RRGGBB" and bare "RRGGBB".
func (r *Resolver) Hex(name string) (string, error) {
	s := strings.TrimSpace(name)
	if s == "" {
		return "", fmt.Errorf("empty color")
	}
	if hex, ok := r.table[key(s)]; ok {
		return hex, nil
	}
	if hex, ok := parseHex(s); ok {
		return hex, nil
	}
	return "", fmt.Errorf("unknown color %q", name)
}

// Names lists the palette keys.
func (r *Resolver) Names() []string {
	out := make([]string, 0, len(r.table))
	for k := range r.table {
		out = append(out, k)
	}
	return out
}

func key(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "-", "")
	return strings.ReplaceAll(s, "_", "")
}

func parseHex(s string) (string, bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 3 && len(s) != 6 {
		return "", false
	}
	for _, c := range s {
		if !strings.ContainsRune("0123456789abcdefABCDEF", c) {
			return "", false
		}
	}
	s = strings.ToUpper(s)
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	return "#" + s, true
}

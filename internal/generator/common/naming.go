package common

import (
	"sort"
	"strconv"
	"strings"
)

// initialisms are rendered all-caps inside exported Go names, so a
// "url" segment in a flat symbol becomes "URL" rather than "Url".
var initialisms = map[string]string{
	"api":  "API",
	"http": "HTTP",
	"id":   "ID",
	"json": "JSON",
	"ui":   "UI",
	"url":  "URL",
	"uuid": "UUID",
	"xml":  "XML",
}

var goKeywords = map[string]bool{
	"break": true, "case": true, "chan": true, "const": true,
	"continue": true, "default": true, "defer": true, "else": true,
	"fallthrough": true, "for": true, "func": true, "go": true,
	"goto": true, "if": true, "import": true, "interface": true,
	"map": true, "package": true, "range": true, "return": true,
	"select": true, "struct": true, "switch": true, "type": true,
	"var": true,
}

// ExportName turns a lowercase flat-symbol segment into an exported Go
// identifier: underscore-separated words become PascalCase, known
// initialisms go all-caps, and a leading digit gains a "Num" prefix.
// Examples: "set_x" => "SetX", "draw_i32" => "DrawI32", "url" => "URL".
func ExportName(s string) string {
	var b strings.Builder
	for _, word := range strings.Split(s, "_") {
		if word == "" {
			continue
		}
		if up, ok := initialisms[word]; ok {
			b.WriteString(up)
			continue
		}
		b.WriteString(strings.ToUpper(word[:1]))
		b.WriteString(word[1:])
	}
	name := b.String()
	if name == "" {
		return "X"
	}
	if name[0] >= '0' && name[0] <= '9' {
		name = "Num" + name
	}
	return name
}

// ToSnakeCase lowers a CamelCase or mixed name to snake_case, keeping
// acronym runs together ("XMLParser" => "xml_parser").
func ToSnakeCase(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		isUpper := r >= 'A' && r <= 'Z'

		if i > 0 && isUpper {
			prevIsLower := runes[i-1] >= 'a' && runes[i-1] <= 'z'
			nextIsLower := i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z'
			if prevIsLower || nextIsLower {
				b.WriteByte('_')
			}
		}
		b.WriteRune(r)
	}
	return strings.ToLower(b.String())
}

// ParamName returns a Go parameter name for the i-th declared parameter.
// Missing names fall back to positional ones; names that collide with a
// Go keyword gain a trailing underscore.
func ParamName(declared string, i int) string {
	name := strings.TrimSpace(declared)
	if name == "" {
		return "a" + strconv.Itoa(i)
	}
	if goKeywords[name] {
		return name + "_"
	}
	return name
}

// SortedKeys returns the sorted string keys of a map, fixing iteration
// order for deterministic emission.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

package common

import (
	"reflect"
	"testing"
)

func TestExportName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"width", "Width"},
		{"set_x", "SetX"},
		{"draw_i32", "DrawI32"},
		{"connect_clicked", "ConnectClicked"},
		{"f1_c", "F1C"},
		{"url", "URL"},
		{"parse_json", "ParseJSON"},
		{"2d_point", "Num2dPoint"},
		{"", "X"},
	}
	for _, tc := range tests {
		if got := ExportName(tc.in); got != tc.want {
			t.Errorf("ExportName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestToSnakeCase(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"AlignLeft", "align_left"},
		{"XMLParser", "xml_parser"},
		{"top", "top"},
		{"TopLeft2", "top_left2"},
		{"", ""},
	}
	for _, tc := range tests {
		if got := ToSnakeCase(tc.in); got != tc.want {
			t.Errorf("ToSnakeCase(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestParamName(t *testing.T) {
	tests := []struct {
		declared string
		i        int
		want     string
	}{
		{"width", 0, "width"},
		{"", 0, "a0"},
		{"", 3, "a3"},
		{"type", 1, "type_"},
		{"range", 2, "range_"},
		{"  ", 1, "a1"},
	}
	for _, tc := range tests {
		if got := ParamName(tc.declared, tc.i); got != tc.want {
			t.Errorf("ParamName(%q, %d) = %q, want %q", tc.declared, tc.i, got, tc.want)
		}
	}
}

func TestSortedKeys(t *testing.T) {
	m := map[string]int{"b": 2, "a": 1, "c": 3}
	want := []string{"a", "b", "c"}
	if got := SortedKeys(m); !reflect.DeepEqual(got, want) {
		t.Errorf("SortedKeys = %v, want %v", got, want)
	}
}

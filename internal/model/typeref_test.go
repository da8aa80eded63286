package model

import (
	"testing"
)

func TestParseTypeRef(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		canonical string
		kind      TypeKind
	}{
		{name: "void", input: "void", canonical: "void", kind: KindVoid},
		{name: "int", input: "int", canonical: "int", kind: KindPrimitive},
		{name: "bool", input: "bool", canonical: "bool", kind: KindPrimitive},
		{name: "double", input: "double", canonical: "double", kind: KindPrimitive},
		{name: "unsigned short", input: "unsigned short", canonical: "unsigned short", kind: KindPrimitive},
		{name: "unsigned short int", input: "unsigned short int", canonical: "unsigned short", kind: KindPrimitive},
		{name: "bare unsigned", input: "unsigned", canonical: "unsigned int", kind: KindPrimitive},
		{name: "long long", input: "long long", canonical: "long long", kind: KindPrimitive},
		{name: "long int", input: "long int", canonical: "long", kind: KindPrimitive},
		{name: "signed char", input: "signed char", canonical: "signed char", kind: KindPrimitive},
		{name: "signed int", input: "signed int", canonical: "int", kind: KindPrimitive},
		{name: "long double", input: "long double", canonical: "long double", kind: KindPrimitive},
		{name: "class", input: "QPoint", canonical: "QPoint", kind: KindNamed},
		{name: "qualified class", input: "app::Widget", canonical: "app::Widget", kind: KindNamed},
		{name: "const value", input: "const QPoint", canonical: "const QPoint", kind: KindNamed},
		{name: "pointer", input: "int *", canonical: "int *", kind: KindPointer},
		{name: "pointer no space", input: "int*", canonical: "int *", kind: KindPointer},
		{name: "pointer to const", input: "const char *", canonical: "const char *", kind: KindPointer},
		{name: "const pointer", input: "char * const", canonical: "char * const", kind: KindPointer},
		{name: "pointer to pointer", input: "char **", canonical: "char * *", kind: KindPointer},
		{name: "reference", input: "QPoint &", canonical: "QPoint &", kind: KindReference},
		{name: "const reference", input: "const QPoint &", canonical: "const QPoint &", kind: KindReference},
		{name: "template", input: "QVector<int>", canonical: "QVector<int>", kind: KindTemplate},
		{name: "template two args", input: "QMap<int, QString>", canonical: "QMap<int, QString>", kind: KindTemplate},
		{name: "nested template", input: "QVector<QVector<double>>", canonical: "QVector<QVector<double>>", kind: KindTemplate},
		{name: "template ref", input: "const QVector<int> &", canonical: "const QVector<int> &", kind: KindReference},
		{name: "alias", input: "uint32_t", canonical: "uint32_t", kind: KindNamed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, err := ParseTypeRef(tt.input)
			if err != nil {
				t.Fatalf("ParseTypeRef(%q): %v", tt.input, err)
			}
			if ref.Kind != tt.kind {
				t.Errorf("ParseTypeRef(%q).Kind = %v, want %v", tt.input, ref.Kind, tt.kind)
			}
			if got := ref.String(); got != tt.canonical {
				t.Errorf("ParseTypeRef(%q).String() = %q, want %q", tt.input, got, tt.canonical)
			}
			// The canonical form must parse back to an equal value, otherwise
			// it cannot serve as a structural identity key.
			again, err := ParseTypeRef(ref.String())
			if err != nil {
				t.Fatalf("reparse %q: %v", ref.String(), err)
			}
			if !ref.Equal(again) {
				t.Errorf("reparse of %q is not structurally equal", ref.String())
			}
		})
	}
}

func TestParseTypeRefErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "empty", input: ""},
		{name: "dangling const", input: "const"},
		{name: "unclosed template", input: "QVector<int"},
		{name: "trailing garbage", input: "int int"},
		{name: "reference to reference", input: "int & &"},
		{name: "bad identifier", input: "9lives"},
		{name: "empty template args", input: "QVector<>"},
		{name: "long char", input: "long char"},
		{name: "signed unsigned", input: "signed unsigned int"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseTypeRef(tt.input); err == nil {
				t.Errorf("ParseTypeRef(%q) succeeded, want error", tt.input)
			}
		})
	}
}

func TestTypeRefIndirect(t *testing.T) {
	ref := MustParseTypeRef("const QPoint &")
	if !ref.Indirect() {
		t.Errorf("reference should be indirect")
	}
	if target := ref.Target(); target.Name != "QPoint" || !target.Const {
		t.Errorf("Target() = %v, want const QPoint", target)
	}
	if MustParseTypeRef("int").Indirect() {
		t.Errorf("value type should not be indirect")
	}
	deep := MustParseTypeRef("const char * *")
	if got := deep.Target().String(); got != "const char" {
		t.Errorf("Target() through two pointers = %q, want %q", got, "const char")
	}
}

package platform

import (
	"fmt"
	"sort"
)

// lp64 is the alias layout shared by Linux and macOS on 64-bit targets.
func lp64() map[string]string {
	return map[string]string{
		"int8_t":    "signed char",
		"uint8_t":   "unsigned char",
		"int16_t":   "short",
		"uint16_t":  "unsigned short",
		"int32_t":   "int",
		"uint32_t":  "unsigned int",
		"int64_t":   "long",
		"uint64_t":  "unsigned long",
		"intptr_t":  "long",
		"uintptr_t": "unsigned long",
		"size_t":    "unsigned long",
		"ssize_t":   "long",
		"ptrdiff_t": "long",
		"wchar_t":   "int",
	}
}

// llp64 is the Windows 64-bit layout: long stays 32 bits, so the 64-bit
// aliases land on long long instead.
func llp64() map[string]string {
	return map[string]string{
		"int8_t":    "signed char",
		"uint8_t":   "unsigned char",
		"int16_t":   "short",
		"uint16_t":  "unsigned short",
		"int32_t":   "int",
		"uint32_t":  "unsigned int",
		"int64_t":   "long long",
		"uint64_t":  "unsigned long long",
		"intptr_t":  "long long",
		"uintptr_t": "unsigned long long",
		"size_t":    "unsigned long long",
		"ssize_t":   "long long",
		"ptrdiff_t": "long long",
		"wchar_t":   "unsigned short",
	}
}

var builtins = map[string]func() *Profile{
	"linux-amd64": func() *Profile {
		return &Profile{Name: "linux-amd64", PointerWidth: 8, Aliases: lp64()}
	},
	"linux-arm64": func() *Profile {
		return &Profile{Name: "linux-arm64", PointerWidth: 8, Aliases: lp64()}
	},
	"darwin-arm64": func() *Profile {
		return &Profile{Name: "darwin-arm64", PointerWidth: 8, Aliases: lp64()}
	},
	"windows-amd64": func() *Profile {
		return &Profile{Name: "windows-amd64", PointerWidth: 8, LongWidth: 4, Aliases: llp64()}
	},
}

// DefaultName is the profile used when none is requested.
const DefaultName = "linux-amd64"

// Builtin returns a fresh copy of a built-in profile.
func Builtin(name string) (*Profile, error) {
	mk, ok := builtins[name]
	if !ok {
		return nil, fmt.Errorf("unknown platform %q (built in: %v)", name, BuiltinNames())
	}
	return mk(), nil
}

// BuiltinNames lists the built-in profiles in sorted order.
func BuiltinNames() []string {
	names := make([]string, 0, len(builtins))
	for n := range builtins {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

package probe

import (
	"strconv"
	"strings"
	"text/template"

	"github.com/binderylabs/bindery/internal/model"
	"github.com/binderylabs/bindery/internal/registry"
)

// Request names one type the probe must measure. Fields lists the data
// members whose byte offsets are wanted.
type Request struct {
	// Name is the C++ spelling, namespace-qualified, and keys the fact in
	// the table.
	Name   string
	Fields []string
}

// Requests lists every type the pipeline needs layout facts for: concrete
// classes in index walk order, then template instances in allocation
// order.
func Requests(ix *model.Index, instances []*registry.Instance) []Request {
	var out []Request
	for _, c := range ix.ClassList {
		if c.IsGeneric() {
			continue
		}
		out = append(out, classRequest(ix, c, c.QualifiedName()))
	}
	for _, in := range instances {
		out = append(out, classRequest(ix, in.Concrete, in.CppName()))
	}
	return out
}

// classRequest asks for field offsets only where offsetof stands on solid
// ground: no bases and no virtual dispatch.
func classRequest(ix *model.Index, c *model.Class, name string) Request {
	r := Request{Name: name}
	if len(c.Bases) > 0 || ix.Polymorphic(c) {
		return r
	}
	for _, f := range c.Fields {
		if f.Static || !f.Visibility.Accessible() {
			continue
		}
		r.Fields = append(r.Fields, f.Name)
	}
	return r
}

// Each measured type gets a using-alias; offsetof is a macro, and a bare
// template-instance spelling with commas would split its argument list.
const programTmpl = `// Generated layout probe. One fact per line: kind, type, [field,] value.
#include <cstdio>
#include <cstddef>
{{range .Headers}}#include {{quote .}}
{{end}}
{{- range $i, $r := .Requests}}
using probe_t{{$i}} = {{$r.Name}};
{{- end}}

int main() {
{{- range $i, $r := .Requests}}
    std::printf("size\t%s\t%zu\n", {{quote $r.Name}}, sizeof(probe_t{{$i}}));
    std::printf("align\t%s\t%zu\n", {{quote $r.Name}}, alignof(probe_t{{$i}}));
{{- range $r.Fields}}
    std::printf("offset\t%s\t%s\t%zu\n", {{quote $r.Name}}, {{quote .}}, offsetof(probe_t{{$i}}, {{.}}));
{{- end}}
{{- end}}
    return 0;
}
`

var programTemplate = template.Must(template.New("probe.cpp").Funcs(template.FuncMap{
	"quote": strconv.Quote,
}).Parse(programTmpl))

type programData struct {
	Headers  []string
	Requests []Request
}

// Program renders the probe translation unit for one batch of requests.
func Program(headers []string, reqs []Request) (string, error) {
	var b strings.Builder
	if err := programTemplate.Execute(&b, programData{Headers: headers, Requests: reqs}); err != nil {
		return "", err
	}
	return b.String(), nil
}

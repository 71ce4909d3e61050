package rules

import (
	"io"
	"strings"

	"github.com/valyala/fasttemplate"
)

// ResolveVariables maps each template variable to the text found at its
// payload path. Missing paths resolve to the empty string.
func ResolveVariables(mapping map[string]string, payload map[string]any) map[string]string {
	vars := make(map[string]string, len(mapping))
	for name, path := range mapping {
		v, found := Lookup(payload, path)
		if !found {
			vars[name] = ""
			continue
		}
		vars[name] = stringify(v)
	}
	return vars
}

// Render substitutes {{name}} placeholders. Unknown names render empty.
func Render(text string, vars map[string]string) string {
	if !strings.Contains(text, "{{") {
		return text
	}
	return fasttemplate.ExecuteFuncString(text, "{{", "}}", func(w io.Writer, tag string) (int, error) {
		return io.WriteString(w, vars[strings.TrimSpace(tag)])
	})
}

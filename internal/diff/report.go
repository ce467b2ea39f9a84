package diff

import (
	"fmt"
	"strings"
)

// Report renders the result as the plain text report sent to operators.
func (r *Result) Report() string {
	var out strings.Builder
	fmt.Fprintf(&out, "Configuration diff\n")
	fmt.Fprintf(&out, "Added       : %d\n", len(r.Added))
	fmt.Fprintf(&out, "Removed     : %d\n", len(r.Removed))
	fmt.Fprintf(&out, "Changed     : %d\n", len(r.Changed))
	fmt.Fprintf(&out, "\n")

	for _, c := range r.Changed {
		fmt.Fprintf(&out, "%s\n%s\n", c.ID, c.Text)
	}

	fmt.Fprintf(&out, "New entities: %s\n", list(r.Added))
	fmt.Fprintf(&out, "Removed entities: %s\n", list(r.Removed))

	if r.VariablesCompared {
		if r.Variables == "" {
			fmt.Fprintf(&out, "Variables: unchanged\n")
		} else {
			fmt.Fprintf(&out, "Variables diff:\n%s\n", r.Variables)
		}
	}
	return out.String()
}

func list(ids []string) string {
	if len(ids) == 0 {
		return "<none>"
	}
	return "[" + strings.Join(ids, ", ") + "]"
}

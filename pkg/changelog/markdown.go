package changelog

import (
	"fmt"
	"strings"
)

// Markdown renders the changelog the way the web UI lays it out: one heading
// per non-empty section, one bullet per entry.
func (cl *Changelog) Markdown(title string) string {
	var b strings.Builder
	if title != "" {
		fmt.Fprintf(&b, "# %s\n\n", title)
	}
	if cl == nil || cl.EntryCount() == 0 {
		b.WriteString("_No customer-facing changes._\n")
		return b.String()
	}

	for _, s := range cl.Sections {
		if len(s.Changes) == 0 {
			continue
		}
		fmt.Fprintf(&b, "## %s\n\n", s.Type)
		for _, e := range s.Changes {
			fmt.Fprintf(&b, "- **%s**", e.Title)
			if e.PRNumber > 0 {
				if e.PRURL != "" {
					fmt.Fprintf(&b, " ([#%d](%s))", e.PRNumber, e.PRURL)
				} else {
					fmt.Fprintf(&b, " (#%d)", e.PRNumber)
				}
			}
			if e.MergedAt != nil {
				fmt.Fprintf(&b, " _%s_", e.MergedAt.Format("2006-01-02"))
			}
			b.WriteString("  \n")
			if e.Description != "" {
				fmt.Fprintf(&b, "  %s  \n", e.Description)
			}
			if e.ActionRequired != "" {
				fmt.Fprintf(&b, "  **Action Required**: %s\n", e.ActionRequired)
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

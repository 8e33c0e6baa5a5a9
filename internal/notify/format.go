// Package notify delivers completed reports: rendered locally, shared to
// Telegram, mailed over SMTP or opened in a browser.
package notify

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aviary-ai/aviary/internal/report"
)

// FormatReport renders a completed run as plain text, one section per
// result in key order.
func FormatReport(snap report.Snapshot) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Report %s (%s, %d/%d)\n", snap.ID, snap.Status, snap.Completed, snap.Total)
	fmt.Fprintf(&sb, "Prompt: %s\n", snap.Prompt)

	keys := make([]string, 0, len(snap.Results))
	for k := range snap.Results {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		res := snap.Results[k]
		sb.WriteString("\n--- ")
		sb.WriteString(k)
		fmt.Fprintf(&sb, " (%s/%s)", res.Provider, res.Model)
		sb.WriteString(" ---\n")
		if res.OK {
			sb.WriteString(res.Response)
			sb.WriteString("\n")
		} else {
			fmt.Fprintf(&sb, "failed: %s\n", res.Err)
		}
	}
	return sb.String()
}

package audit

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

const separator = "──────────────────────────────────────────────────────────────────"

// FormatTimeline renders a ReplayResult as a human-readable timeline.
func FormatTimeline(result *ReplayResult) string {
	label := result.SessionID
	if label == "" {
		label = "all sessions"
	}
	if len(result.Entries) == 0 {
		return fmt.Sprintf("Session: %s | No entries found.\n", label)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Session: %s | %s–%s UTC\n", label,
		formatDateTime(result.Summary.FirstTimestamp), formatTimeOnly(result.Summary.LastTimestamp))
	b.WriteString(separator + "\n")

	for _, e := range result.Entries {
		peer := e.Peer
		if peer == "" {
			peer = "local"
		}
		tag := ""
		if e.Pattern != "" {
			tag = "  [+" + truncate(e.Pattern, 30) + "]"
		}
		fmt.Fprintf(&b, "%-10s %-22s %-12s %-12s %-40s%s\n",
			formatTimeOnly(e.Timestamp),
			strings.ToUpper(e.Result),
			truncate(peer, 12),
			truncate(e.Tool, 12),
			truncate(e.Summary, 40),
			tag)
	}

	b.WriteString(separator + "\n")
	b.WriteString(formatSummary(result.Summary))
	return b.String()
}

// FormatJSON renders a ReplayResult as indented JSON.
func FormatJSON(result *ReplayResult) (string, error) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal replay result: %w", err)
	}
	return string(data), nil
}

func formatDateTime(ts string) string {
	t, err := time.Parse(TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format("2006-01-02 15:04:05")
}

func formatTimeOnly(ts string) string {
	t, err := time.Parse(TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format("15:04:05")
}

func formatSummary(s ReplaySummary) string {
	names := make([]string, 0, len(s.Results))
	for name := range s.Results {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%d %s", s.Results[name], name))
	}
	return fmt.Sprintf("Summary: %s | Patterns added: %d | Peers: %d\n",
		strings.Join(parts, ", "), s.PatternsAdded, s.Peers)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

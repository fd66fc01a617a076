package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// ReplayFilter selects entries for replay. Zero fields match everything.
type ReplayFilter struct {
	SessionID string
	Peer      string
	From      time.Time
	To        time.Time
}

// ReplaySummary holds decision counts for the replayed entries.
type ReplaySummary struct {
	Total          int            `json:"total"`
	Results        map[string]int `json:"results"`
	PatternsAdded  int            `json:"patterns_added"`
	Peers          int            `json:"peers"`
	FirstTimestamp string         `json:"first_timestamp"`
	LastTimestamp  string         `json:"last_timestamp"`
}

// ReplayResult holds filtered entries and their summary.
type ReplayResult struct {
	SessionID string        `json:"session_id,omitempty"`
	Entries   []Entry       `json:"entries"`
	Summary   ReplaySummary `json:"summary"`
}

// Replay reads the log at path and returns the entries matching filter.
// Malformed lines are skipped; use VerifyChain to detect them.
func Replay(path string, filter ReplayFilter) (*ReplayResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	result := &ReplayResult{
		SessionID: filter.SessionID,
		Summary:   ReplaySummary{Results: map[string]int{}},
	}
	peers := map[string]struct{}{}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLine)
	for scanner.Scan() {
		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		if !filter.match(entry) {
			continue
		}
		result.Entries = append(result.Entries, entry)
		updateSummary(&result.Summary, entry)
		if entry.Peer != "" {
			peers[entry.Peer] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}
	result.Summary.Peers = len(peers)
	return result, nil
}

func (f ReplayFilter) match(e Entry) bool {
	if f.SessionID != "" && e.SessionID != f.SessionID {
		return false
	}
	if f.Peer != "" && e.Peer != f.Peer {
		return false
	}
	if f.From.IsZero() && f.To.IsZero() {
		return true
	}
	ts, err := time.Parse(TimestampFormat, e.Timestamp)
	if err != nil {
		return false
	}
	if !f.From.IsZero() && ts.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && ts.After(f.To) {
		return false
	}
	return true
}

func updateSummary(s *ReplaySummary, e Entry) {
	s.Total++
	s.Results[e.Result]++
	if e.Pattern != "" {
		s.PatternsAdded++
	}
	if s.FirstTimestamp == "" {
		s.FirstTimestamp = e.Timestamp
	}
	s.LastTimestamp = e.Timestamp
}

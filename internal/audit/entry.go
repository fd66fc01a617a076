package audit

// Entry is one line in the hash-chained JSONL decision log.
// All fields are plain strings so json.Marshal output is deterministic and
// the chain hashes are reproducible.
type Entry struct {
	Timestamp string `json:"ts"`
	SessionID string `json:"session_id"`
	Peer      string `json:"peer,omitempty"`
	Tool      string `json:"tool"`
	Summary   string `json:"summary"`
	Result    string `json:"result"`
	Pattern   string `json:"pattern,omitempty"`
	PrevHash  string `json:"prev_hash"`
}

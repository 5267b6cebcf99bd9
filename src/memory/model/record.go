package model

// Record is a vector plus its metadata, addressed by a string id.
type Record struct {
	ID       string
	Vector   []float32
	Metadata Metadata
}

// Match is a single query hit. Score semantics are backend-defined; higher is better.
type Match struct {
	ID       string
	Score    float64
	Metadata Metadata
}

// Contents extracts Metadata.Content from matches, preserving order.
func Contents(matches []Match) []string {
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.Metadata.Content)
	}
	return out
}

package index

// Record is one occurrence of Key at Line (1-based) of SourceID.
type Record struct {
	SourceID string
	Line     int
	Key      string
}

// Occurrence locates one appearance of a key.
type Occurrence struct {
	SourceID string `json:"source"`
	Line     int    `json:"line"`
}

// Entry is a key with its occurrences in append order.
type Entry struct {
	Key         string       `json:"key"`
	Occurrences []Occurrence `json:"occurrences"`
}

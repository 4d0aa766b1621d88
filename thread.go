package imap

// ThreadAlgorithm represents a threading algorithm.
type ThreadAlgorithm string

const (
	ThreadAlgorithmOrderedSubject ThreadAlgorithm = "ORDEREDSUBJECT"
	ThreadAlgorithmReferences     ThreadAlgorithm = "REFERENCES"
)

// Thread represents a single thread in the response.
type Thread struct {
	// Num is the message sequence number or UID at this node.
	Num uint32
	// Children are sub-threads branching from this message.
	Children []Thread
}

// Flatten returns every message number reachable from t, in depth-first
// order starting with t.Num itself.
func (t Thread) Flatten() []uint32 {
	out := []uint32{t.Num}
	for _, c := range t.Children {
		out = append(out, c.Flatten()...)
	}
	return out
}

// ThreadData represents the result of a THREAD command.
type ThreadData struct {
	Threads []Thread
}

// Flatten returns every message number across all threads in d, in
// depth-first order.
func (d *ThreadData) Flatten() []uint32 {
	var out []uint32
	for _, t := range d.Threads {
		out = append(out, t.Flatten()...)
	}
	return out
}

package constants

import "fmt"

// JobStatus is the canonical status for rows in intake_jobs.
type JobStatus string

// Stable values (store these exact strings in DB).
const (
	JobStatusQueued    JobStatus = "QUEUED"    // created by the upload handler
	JobStatusOCR       JobStatus = "OCR"       // claimed, text extraction in progress
	JobStatusExtract   JobStatus = "EXTRACT"   // text persisted, classification next
	JobStatusSummarise JobStatus = "SUMMARISE" // type persisted, structured extraction next
	JobStatusReady     JobStatus = "READY"     // terminal success
	JobStatusFailed    JobStatus = "FAILED"    // terminal failure
)

// happyPath is the forward order of the state graph.
var happyPath = []JobStatus{
	JobStatusQueued,
	JobStatusOCR,
	JobStatusExtract,
	JobStatusSummarise,
	JobStatusReady,
}

// ActiveStatuses are the statuses a claimed, unfinished job can be in.
var ActiveStatuses = []JobStatus{JobStatusOCR, JobStatusExtract, JobStatusSummarise}

func (s JobStatus) String() string { return string(s) }

func (s JobStatus) Valid() bool {
	return s == JobStatusFailed || s.rank() >= 0
}

func (s JobStatus) IsTerminal() bool {
	return s == JobStatusReady || s == JobStatusFailed
}

// Next returns the status that follows s on the happy path.
func (s JobStatus) Next() (JobStatus, bool) {
	r := s.rank()
	if r < 0 || r+1 >= len(happyPath) {
		return "", false
	}
	return happyPath[r+1], true
}

func (s JobStatus) rank() int {
	for i, st := range happyPath {
		if st == s {
			return i
		}
	}
	return -1
}

// CanTransition reports whether from -> to is an edge of the job state graph:
// one step forward, or to FAILED from any non-terminal status.
func CanTransition(from, to JobStatus) bool {
	if !from.Valid() || from.IsTerminal() {
		return false
	}
	if to == JobStatusFailed {
		return true
	}
	next, ok := from.Next()
	return ok && next == to
}

func ParseJobStatus(s string) (JobStatus, error) {
	st := JobStatus(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown job status %q", s)
	}
	return st, nil
}

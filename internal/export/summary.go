package export

import "time"

const (
	ScopeDatabase = "database"
	ScopeServer   = "server"
)

// ObjectFailure records one object that could not be rendered or written. The
// object is counted as skipped and the run continues.
type ObjectFailure struct {
	Database string  `json:"database,omitempty"`
	Tag      TypeTag `json:"type"`
	Name     string  `json:"name"`
	Error    string  `json:"error"`
}

// DatabaseResult is the per-database slice of a database-scoped run.
type DatabaseResult struct {
	Name       string `json:"name"`
	Discovered int    `json:"discovered"`
	Written    int    `json:"written"`
	Skipped    int    `json:"skipped"`
	Failed     bool   `json:"failed"`
	Error      string `json:"error,omitempty"`
}

// RunSummary is the outcome of one export call. Files written before a
// failure stay on disk; there is no rollback.
type RunSummary struct {
	Instance   string    `json:"instance"`
	Scope      string    `json:"scope"`
	OutputRoot string    `json:"output_root"`
	Timestamp  string    `json:"timestamp,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	Duration   string    `json:"duration"`

	Discovered int `json:"discovered"`
	Written    int `json:"written"`
	Skipped    int `json:"skipped"`

	Databases        []DatabaseResult  `json:"databases,omitempty"`
	CategoryFailures []CategoryFailure `json:"category_failures,omitempty"`
	ObjectFailures   []ObjectFailure   `json:"object_failures,omitempty"`

	// Error carries the single-target failure of a server-scoped run that
	// stopped the object loop. It is reported here rather than escalated.
	Error string `json:"error,omitempty"`
}

// FailedDatabases lists the databases that were marked failed.
func (s *RunSummary) FailedDatabases() []string {
	var names []string
	for _, db := range s.Databases {
		if db.Failed {
			names = append(names, db.Name)
		}
	}
	return names
}

package harness

import (
	"github.com/roach88/ruletrace/internal/graph"
	"github.com/roach88/ruletrace/internal/schema"
)

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if all expect clauses match.
	Pass bool `json:"pass"`

	// ArtifactID is the content hash of the applied artifact, if it loaded.
	ArtifactID string `json:"artifact_id,omitempty"`

	// Columns holds every party's output column names.
	Columns map[schema.Party][]string `json:"columns,omitempty"`

	// Dumps holds every party's serving dump as read back from the store.
	Dumps map[schema.Party]*graph.Dump `json:"-"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Columns: make(map[schema.Party][]string),
		Dumps:   make(map[schema.Party]*graph.Dump),
		Errors:  []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

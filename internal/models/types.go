// Package models holds the domain types shared by the evolution loop.
// Values here carry no behavior beyond small accessors; persistence and
// orchestration live in adapters and app.
package models

import "time"

// Slot names one lineage of evolving prompts (e.g. "A", "B", "C").
type Slot string

// DefaultSlots are the slots used when the config does not name any.
var DefaultSlots = []Slot{"A", "B", "C"}

// TaskInstance is one benchmark task. Patch is the reference fix and must
// only ever be shown to the judge, never to a coder agent.
type TaskInstance struct {
	ID               string `json:"instance_id"`
	Repo             string `json:"repo"`
	ProblemStatement string `json:"problem_statement"`
	TestPatch        string `json:"test_patch"`
	Patch            string `json:"patch"`
	BaseCommit       string `json:"base_commit,omitempty"`
}

// AgentRecord is one immutable prompt in the population.
type AgentRecord struct {
	ID         int64
	Slot       Slot
	Prompt     string
	Generation int
	ParentID   int64 // 0 for seeded agents
	CreatedAt  time.Time
}

// IsSeed reports whether the record was seeded rather than evolved.
func (a AgentRecord) IsSeed() bool {
	return a.ParentID == 0
}

// DiffStats summarizes a unified diff.
type DiffStats struct {
	Files   int `json:"files"`
	Added   int `json:"added"`
	Deleted int `json:"deleted"`
}

// PatchProposal is one agent's answer for one task instance.
type PatchProposal struct {
	InstanceID      string
	ModelPatch      string
	ModelNameOrPath string
	Err             error
	Stats           DiffStats
}

// Failed reports whether the proposal carries an error tag.
func (p PatchProposal) Failed() bool {
	return p.Err != nil
}

// Prediction is the wire shape consumed by the harness and the judge.
type Prediction struct {
	InstanceID      string `json:"instance_id"`
	ModelPatch      string `json:"model_patch"`
	ModelNameOrPath string `json:"model_name_or_path"`
	Error           string `json:"error,omitempty"`
}

// Prediction converts the proposal to its submission format.
func (p PatchProposal) Prediction() Prediction {
	pred := Prediction{
		InstanceID:      p.InstanceID,
		ModelPatch:      p.ModelPatch,
		ModelNameOrPath: p.ModelNameOrPath,
	}
	if p.Err != nil {
		pred.Error = p.Err.Error()
	}
	return pred
}

// DistinctProposals keeps the first proposal for each instance, in order.
// The harness evaluates one prediction per instance, so a batch sampled with
// repeats is submitted through this.
func DistinctProposals(proposals []PatchProposal) []PatchProposal {
	seen := make(map[string]bool, len(proposals))
	out := make([]PatchProposal, 0, len(proposals))
	for _, p := range proposals {
		if seen[p.InstanceID] {
			continue
		}
		seen[p.InstanceID] = true
		out = append(out, p)
	}
	return out
}

// EvaluationReport is the harness result for one slot's proposals.
type EvaluationReport struct {
	Slot          Slot
	RunID         string
	Total         int
	Submitted     int
	Completed     int
	Resolved      int
	ResolvedIDs   []string
	UnresolvedIDs []string
	ErrorIDs      []string
	EmptyPatchIDs []string
}

// ResolvedFraction is resolved/submitted, or 0 when nothing was submitted.
func (r EvaluationReport) ResolvedFraction() float64 {
	if r.Submitted == 0 {
		return 0
	}
	return float64(r.Resolved) / float64(r.Submitted)
}

// Passed reports whether the instance was resolved.
func (r EvaluationReport) Passed(instanceID string) bool {
	for _, id := range r.ResolvedIDs {
		if id == instanceID {
			return true
		}
	}
	return false
}

// FeedbackItem is a single improvement suggestion from the judge.
type FeedbackItem struct {
	Slot       Slot
	InstanceID string
	Text       string
}

// ConsolidatedFeedback is every suggestion gathered for one slot.
type ConsolidatedFeedback struct {
	Slot  Slot
	Items []FeedbackItem
}

// Texts returns the suggestion strings in order.
func (c ConsolidatedFeedback) Texts() []string {
	out := make([]string, len(c.Items))
	for i, item := range c.Items {
		out[i] = item.Text
	}
	return out
}

package models

// ProposalType enumerates the kinds of action proposals the model can emit.
type ProposalType string

const (
	ProposalCreateTask    ProposalType = "create_task"
	ProposalDraftFollowup ProposalType = "draft_followup"
	ProposalReminder      ProposalType = "reminder"
	ProposalSummary       ProposalType = "summary"
	ProposalRiskAlert     ProposalType = "risk_alert"
)

// TaskPriority enumerates task priority levels.
type TaskPriority string

const (
	PriorityHigh   TaskPriority = "high"
	PriorityMedium TaskPriority = "medium"
	PriorityLow    TaskPriority = "low"
)

// IsValid reports whether the priority is one of the known levels.
func (p TaskPriority) IsValid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// TaskSource tags where content came from.
type TaskSource string

const (
	SourceNotion TaskSource = "notion"
	SourceGitHub TaskSource = "github"
	SourceManual TaskSource = "manual"
)

// Proposal is a single model-generated, evidence-backed suggestion. It is
// never executed automatically; create_task proposals may be promoted into
// Tasks after extraction.
type Proposal struct {
	ID             string       `json:"id"`
	Type           ProposalType `json:"type"`
	Title          string       `json:"title"`
	Description    string       `json:"description"`
	Evidence       []string     `json:"evidence"`
	Rationale      string       `json:"rationale"`
	WhatWillHappen string       `json:"what_will_happen"`
	Owner          string       `json:"owner,omitempty"`
	Deadline       string       `json:"deadline,omitempty"`
	Priority       TaskPriority `json:"priority"`
}

// Normalize fills defaults for fields the model may omit. The engine never
// rejects a proposal for a missing optional field.
func (p *Proposal) Normalize() {
	if p.Type == "" {
		p.Type = ProposalCreateTask
	}
	if !p.Priority.IsValid() {
		p.Priority = PriorityMedium
	}
	if p.WhatWillHappen == "" {
		p.WhatWillHappen = "If approved, this will be saved to your task list for tracking"
	}
	if p.Evidence == nil {
		p.Evidence = []string{}
	}
}

// ExtractionResult is the outcome of one extraction call. Parse failures
// are reported through Success=false and Error, not through a Go error.
type ExtractionResult struct {
	Success         bool       `json:"success"`
	Source          TaskSource `json:"source"`
	ProposalBatchID string     `json:"proposal_batch_id,omitempty"`
	ProposalsCount  int        `json:"proposals_count"`
	Proposals       []Proposal `json:"proposals"`
	Error           string     `json:"error,omitempty"`
}

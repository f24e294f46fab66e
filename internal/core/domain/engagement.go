package domain

import "time"

type EngagementStatus string

const (
	EngagementCollecting EngagementStatus = "collecting"
	EngagementReady      EngagementStatus = "ready"
)

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

type ItemStatus string

const (
	ItemPending  ItemStatus = "pending"
	ItemReceived ItemStatus = "received"
	ItemComplete ItemStatus = "complete"
)

type ChecklistItem struct {
	ID       string     `json:"id"`
	Title    string     `json:"title"`
	Why      string     `json:"why"`
	Priority Priority   `json:"priority"`
	Status   ItemStatus `json:"status"`
	// DocumentIDs never holds duplicates.
	DocumentIDs []string `json:"document_ids"`
	// ExpectedDocumentType is empty when the item cannot be matched by type.
	ExpectedDocumentType string `json:"expected_document_type,omitempty"`
}

type ItemState struct {
	ItemID      string     `json:"item_id"`
	Status      ItemStatus `json:"status"`
	DocumentIDs []string   `json:"document_ids"`
}

type Reconciliation struct {
	CompletionPercentage int         `json:"completion_percentage"`
	ItemStatuses         []ItemState `json:"item_statuses"`
	Issues               []string    `json:"issues"`
	IsReady              bool        `json:"is_ready"`
	RanAt                time.Time   `json:"ran_at"`
}

type Engagement struct {
	ID             string           `json:"id"`
	ClientName     string           `json:"client_name"`
	ClientEmail    string           `json:"client_email"`
	TaxYear        int              `json:"tax_year"`
	Status         EngagementStatus `json:"status"`
	Checklist      []ChecklistItem  `json:"checklist"`
	Reconciliation *Reconciliation  `json:"reconciliation,omitempty"`
	Brief          string           `json:"brief,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

type TriggerKind string

const (
	TriggerDocumentAssessed TriggerKind = "document_assessed"
	TriggerManual           TriggerKind = "manual_reconciliation"
	TriggerCheckCompletion  TriggerKind = "check_completion"
)

type ReconcileTrigger struct {
	Kind       TriggerKind `json:"kind"`
	DocumentID string      `json:"document_id,omitempty"`
}

// IsFullScan reports whether the trigger re-evaluates every checklist item.
func (t ReconcileTrigger) IsFullScan() bool {
	return t.Kind != TriggerDocumentAssessed || t.DocumentID == ""
}

type AuditEntry struct {
	ID           string         `json:"id"`
	EngagementID string         `json:"engagement_id"`
	Action       string         `json:"action"`
	Trigger      TriggerKind    `json:"trigger"`
	Outcome      string         `json:"outcome"`
	Details      map[string]any `json:"details,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Intake is the questionnaire used to generate the initial checklist.
type Intake struct {
	Employers           []string `json:"employers"`
	HasContractIncome   bool     `json:"has_contract_income"`
	HasInterestIncome   bool     `json:"has_interest_income"`
	HasDividendIncome   bool     `json:"has_dividend_income"`
	HasMiscIncome       bool     `json:"has_misc_income"`
	HasRetirementPayout bool     `json:"has_retirement_payout"`
	HasMortgage         bool     `json:"has_mortgage"`
	HasTuition          bool     `json:"has_tuition"`
	ReturningClient     bool     `json:"returning_client"`
}

type CreateEngagementRequest struct {
	ClientName  string `json:"client_name"`
	ClientEmail string `json:"client_email"`
	TaxYear     int    `json:"tax_year"`
	Intake      Intake `json:"intake"`
}

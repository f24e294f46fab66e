package domain

import "time"

type ProcessingStatus string

const (
	StatusPending     ProcessingStatus = "pending"
	StatusDownloading ProcessingStatus = "downloading"
	StatusExtracting  ProcessingStatus = "extracting"
	StatusClassifying ProcessingStatus = "classifying"
	StatusClassified  ProcessingStatus = "classified"
	StatusError       ProcessingStatus = "error"
)

// Document types with special meaning outside the form registry.
const (
	TypePending = "PENDING"
	TypeOther   = "OTHER"
)

type Override struct {
	OriginalType string `json:"original_type"`
	Reason       string `json:"reason"`
}

type Document struct {
	ID           string `json:"id"`
	EngagementID string `json:"engagement_id"`
	FileName     string `json:"file_name"`
	MimeType     string `json:"mime_type"`
	StorageKey   string `json:"storage_key"`
	SizeBytes    int64  `json:"size_bytes"`

	DocumentType     string                    `json:"document_type"`
	Confidence       float64                   `json:"confidence"`
	TaxYear          *int                      `json:"tax_year,omitempty"`
	Issues           []string                  `json:"issues"`
	ExtractedFields  map[string]ExtractedField `json:"extracted_fields,omitempty"`
	NeedsHumanReview bool                      `json:"needs_human_review"`

	ProcessingStatus    ProcessingStatus `json:"processing_status"`
	ProcessingStartedAt *time.Time       `json:"processing_started_at,omitempty"`
	ProcessingError     string           `json:"processing_error,omitempty"`
	RetryCount          int              `json:"retry_count"`

	ApprovedAt *time.Time `json:"approved_at,omitempty"`
	Override   *Override  `json:"override,omitempty"`
	ArchivedAt *time.Time `json:"archived_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasUnresolvedIssues reports whether the document carries issues that no
// reviewer has approved yet.
func (d *Document) HasUnresolvedIssues() bool {
	return len(d.Issues) > 0 && d.ApprovedAt == nil
}

func (d *Document) IsArchived() bool {
	return d.ArchivedAt != nil
}

// ApplyClassification copies a terminal classification onto the document.
func (d *Document) ApplyClassification(result ClassificationResult) {
	d.DocumentType = result.DocumentType
	d.Confidence = result.Confidence
	d.TaxYear = result.TaxYear
	d.Issues = append([]string(nil), result.Issues...)
	d.ExtractedFields = result.ExtractedFields
	d.NeedsHumanReview = result.NeedsHumanReview
}

// FilePayload is a downloaded document body.
type FilePayload struct {
	Data     []byte
	MimeType string
	Size     int64
}

// DiscoveredFile is a file found by storage sync that is already in object
// storage under StorageKey.
type DiscoveredFile struct {
	FileName   string `json:"file_name"`
	MimeType   string `json:"mime_type"`
	StorageKey string `json:"storage_key"`
	SizeBytes  int64  `json:"size_bytes"`
}

// RecoveryReport summarizes one stuck-document recovery pass.
type RecoveryReport struct {
	Stuck     []string `json:"stuck"`
	Requeued  []string `json:"requeued"`
	Exhausted []string `json:"exhausted"`
	Failed    []string `json:"failed"`
}

package records

// Output is implemented by every typed stage output. A value stored in the
// pipeline state always reports Succeeded.
type Output interface {
	Succeeded() bool
	MarkSucceeded()
	Summary() map[string]any
}

// RecordSet groups loosely typed records by target table.
type RecordSet struct {
	Customers    []map[string]any `json:"customers"`
	Policies     []map[string]any `json:"policies"`
	Transactions []map[string]any `json:"transactions"`
	Tickets      []map[string]any `json:"tickets"`
}

// Count returns the total number of records across tables.
func (r RecordSet) Count() int {
	return len(r.Customers) + len(r.Policies) + len(r.Transactions) + len(r.Tickets)
}

// Section is one segment of the source document.
type Section struct {
	Type       string         `json:"type"`
	Page       int            `json:"page"`
	RawText    string         `json:"raw_text"`
	Confidence float64        `json:"confidence"`
	Fields     map[string]any `json:"fields"`
}

// Segmentation is the output of the segment stage.
type Segmentation struct {
	Sections          []Section `json:"sections"`
	ExtractedFields   RecordSet `json:"extracted_fields"`
	OverallConfidence float64   `json:"overall_confidence"`
	Warnings          []string  `json:"warnings,omitempty"`
	Success           bool      `json:"success"`
}

func (s *Segmentation) Succeeded() bool { return s != nil && s.Success }
func (s *Segmentation) MarkSucceeded()  { s.Success = true }

func (s *Segmentation) Summary() map[string]any {
	return map[string]any{
		"sections":           len(s.Sections),
		"records":            s.ExtractedFields.Count(),
		"overall_confidence": s.OverallConfidence,
		"warnings":           len(s.Warnings),
	}
}

// NormalizationIssue records one value the normalize stage rewrote.
type NormalizationIssue struct {
	RecordType string  `json:"record_type"`
	Field      string  `json:"field"`
	Original   any     `json:"original"`
	Normalized any     `json:"normalized"`
	Confidence float64 `json:"confidence"`
}

// Normalization is the output of the normalize stage.
type Normalization struct {
	NormalizedData      RecordSet            `json:"normalized_data"`
	NormalizationIssues []NormalizationIssue `json:"normalization_issues"`
	ValidationWarnings  []string             `json:"validation_warnings,omitempty"`
	OverallConfidence   float64              `json:"overall_confidence"`
	Success             bool                 `json:"success"`
}

func (n *Normalization) Succeeded() bool { return n != nil && n.Success }
func (n *Normalization) MarkSucceeded()  { n.Success = true }

func (n *Normalization) Summary() map[string]any {
	return map[string]any{
		"records":             n.NormalizedData.Count(),
		"issues":              len(n.NormalizationIssues),
		"validation_warnings": len(n.ValidationWarnings),
		"overall_confidence":  n.OverallConfidence,
	}
}

// SourceReference points back into the source document.
type SourceReference struct {
	Page    int    `json:"page"`
	Snippet string `json:"snippet,omitempty"`
}

// MappedRecord is one row ready for insertion into a target table.
type MappedRecord struct {
	ID              string          `json:"id"`
	SourceReference SourceReference `json:"source_reference"`
	Confidence      float64         `json:"confidence"`
	Fields          map[string]any  `json:"fields"`
}

// SchemaMapping is the output of the map-to-schema stage.
type SchemaMapping struct {
	Customers       []MappedRecord `json:"customers"`
	Policies        []MappedRecord `json:"policies"`
	Transactions    []MappedRecord `json:"transactions"`
	Tickets         []MappedRecord `json:"tickets"`
	MappingMetadata map[string]any `json:"mapping_metadata,omitempty"`
	Success         bool           `json:"success"`
}

func (m *SchemaMapping) Succeeded() bool { return m != nil && m.Success }
func (m *SchemaMapping) MarkSucceeded()  { m.Success = true }

// Table returns the mapped records for one record type.
func (m *SchemaMapping) Table(recordType RecordType) []MappedRecord {
	switch recordType {
	case Customer:
		return m.Customers
	case Policy:
		return m.Policies
	case Transaction:
		return m.Transactions
	case Ticket:
		return m.Tickets
	default:
		return nil
	}
}

// RecordCount returns the number of mapped records across all tables.
func (m *SchemaMapping) RecordCount() int {
	return len(m.Customers) + len(m.Policies) + len(m.Transactions) + len(m.Tickets)
}

// LowConfidence counts records whose confidence is below threshold.
func (m *SchemaMapping) LowConfidence(threshold float64) int {
	count := 0
	for _, recordType := range RecordTypes {
		for _, record := range m.Table(recordType) {
			if record.Confidence < threshold {
				count++
			}
		}
	}
	return count
}

func (m *SchemaMapping) Summary() map[string]any {
	return map[string]any{
		"customers":    len(m.Customers),
		"policies":     len(m.Policies),
		"transactions": len(m.Transactions),
		"tickets":      len(m.Tickets),
		"records":      m.RecordCount(),
	}
}

// Review recommendations.
const (
	RecommendApprove        = "APPROVE"
	RecommendReviewRequired = "REVIEW_REQUIRED"
	RecommendManualFix      = "MANUAL_FIX"
)

// ReviewSummary aggregates review findings.
type ReviewSummary struct {
	TotalRecords        int  `json:"total_records"`
	RecordsWithIssues   int  `json:"records_with_issues"`
	IssuesCount         int  `json:"issues_count"`
	RequiresHumanReview bool `json:"requires_human_review"`
}

// Evidence locates the text that triggered an issue.
type Evidence struct {
	Page    int    `json:"page"`
	Snippet string `json:"snippet,omitempty"`
}

// Issue is one finding that may need a human decision.
type Issue struct {
	ID               string   `json:"id"`
	Type             string   `json:"type"`
	Severity         string   `json:"severity"`
	RecordType       string   `json:"record_type,omitempty"`
	RecordID         string   `json:"record_id,omitempty"`
	Field            string   `json:"field,omitempty"`
	Confidence       *float64 `json:"confidence,omitempty"`
	Reason           string   `json:"reason"`
	Evidence         Evidence `json:"evidence"`
	Suggestion       string   `json:"suggestion,omitempty"`
	DecisionRequired bool     `json:"decision_required"`
}

// AutoFix is a correction the reviewer is confident enough to propose.
type AutoFix struct {
	IssueID      string  `json:"issue_id"`
	Field        string  `json:"field"`
	Original     any     `json:"original"`
	SuggestedFix any     `json:"suggested_fix"`
	Confidence   float64 `json:"confidence"`
}

// Review is the output of the review stage.
type Review struct {
	ReviewSummary        ReviewSummary `json:"review_summary"`
	Issues               []Issue       `json:"issues"`
	AutoFixes            []AutoFix     `json:"auto_fixes"`
	ReviewRecommendation string        `json:"review_recommendation"`
	Success              bool          `json:"success"`
}

func (r *Review) Succeeded() bool { return r != nil && r.Success }
func (r *Review) MarkSucceeded()  { r.Success = true }

func (r *Review) Summary() map[string]any {
	return map[string]any{
		"issues":                len(r.Issues),
		"auto_fixes":            len(r.AutoFixes),
		"requires_human_review": r.ReviewSummary.RequiresHumanReview,
		"recommendation":        r.ReviewRecommendation,
	}
}

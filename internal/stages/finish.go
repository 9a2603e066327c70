package stages

import (
	"encoding/json"
	"fmt"
	"strings"

	"docpipe/internal/records"
	"docpipe/internal/state"
)

var mappedTables = []string{"customers", "policies", "transactions", "tickets"}

var currencyFields = []string{"valuta", "currency"}

// assignMissingIDs gives every mapped record without an id a deterministic
// one derived from its fields.
func assignMissingIDs(obj map[string]any) {
	for _, table := range mappedTables {
		rows, ok := obj[table].([]any)
		if !ok {
			continue
		}
		for _, row := range rows {
			record, ok := row.(map[string]any)
			if !ok {
				continue
			}
			if id, ok := record["id"].(string); ok && strings.TrimSpace(id) != "" {
				continue
			}
			fields, err := json.Marshal(record["fields"])
			if err != nil {
				continue
			}
			record["id"] = records.DeterministicID(table + ":" + string(fields))
		}
	}
}

func finishNormalization(out records.Output, _ *state.State, domain records.Domain) {
	norm := out.(*records.Normalization)
	for _, rows := range [][]map[string]any{
		norm.NormalizedData.Customers,
		norm.NormalizedData.Policies,
		norm.NormalizedData.Transactions,
		norm.NormalizedData.Tickets,
	} {
		for _, row := range rows {
			for _, field := range currencyFields {
				value, ok := row[field].(string)
				if !ok {
					continue
				}
				if code, ok := domain.NormalizeCurrency(value); ok {
					row[field] = code
				}
			}
		}
	}
}

func finishMapping(out records.Output, _ *state.State, domain records.Domain) {
	mapping := out.(*records.SchemaMapping)
	for _, table := range [][]records.MappedRecord{
		mapping.Customers, mapping.Policies, mapping.Transactions, mapping.Tickets,
	} {
		for i := range table {
			ref := table[i].SourceReference
			table[i].SourceReference = records.SourceRef(ref.Page, ref.Snippet)
		}
	}
	if mapping.MappingMetadata == nil {
		mapping.MappingMetadata = map[string]any{}
	}
	mapping.MappingMetadata["records_processed"] = mapping.RecordCount()
	mapping.MappingMetadata["low_confidence_records"] = mapping.LowConfidence(domain.ConfidenceThreshold)
}

// finishReview reconciles the summary with the issue list and adds a
// missing_required issue for every required column the generator did not
// already flag.
func finishReview(out records.Output, st *state.State, domain records.Domain) {
	review := out.(*records.Review)
	if st != nil && st.SchemaMapping != nil {
		reported := make(map[string]bool, len(review.Issues))
		for _, issue := range review.Issues {
			reported[issue.RecordID+"/"+issue.Field] = true
		}
		for _, recordType := range records.RecordTypes {
			for _, record := range st.SchemaMapping.Table(recordType) {
				for _, field := range domain.MissingRequired(recordType, record.Fields) {
					if reported[record.ID+"/"+field] {
						continue
					}
					review.Issues = append(review.Issues, records.Issue{
						ID:               fmt.Sprintf("missing_%s_%s", record.ID, field),
						Type:             "missing_required",
						Severity:         "high",
						RecordType:       string(recordType),
						RecordID:         record.ID,
						Field:            field,
						Reason:           fmt.Sprintf("required field %q is missing", field),
						Evidence:         records.Evidence(record.SourceReference),
						DecisionRequired: true,
					})
				}
			}
		}
		if review.ReviewSummary.TotalRecords == 0 {
			review.ReviewSummary.TotalRecords = st.SchemaMapping.RecordCount()
		}
	}

	review.ReviewSummary.IssuesCount = max(review.ReviewSummary.IssuesCount, len(review.Issues))
	affected := make(map[string]struct{})
	for _, issue := range review.Issues {
		if issue.RecordID != "" {
			affected[issue.RecordID] = struct{}{}
		}
		if issue.DecisionRequired {
			review.ReviewSummary.RequiresHumanReview = true
		}
	}
	review.ReviewSummary.RecordsWithIssues = max(review.ReviewSummary.RecordsWithIssues, len(affected))
	if review.ReviewSummary.RequiresHumanReview && review.ReviewRecommendation == records.RecommendApprove {
		review.ReviewRecommendation = records.RecommendReviewRequired
	}
}

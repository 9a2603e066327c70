package stages

import (
	"encoding/json"
	"fmt"
	"strings"

	"docpipe/internal/records"
)

func segmentPrompt(domain records.Domain) string {
	var b strings.Builder
	b.WriteString("You are a structuring assistant for Italian business documents.\n\n")
	fmt.Fprintf(&b, "Segment the document into sections of these types: %s.\n", strings.Join(domain.SectionTypes, ", "))
	b.WriteString("For every section record its type, page, the original text, a confidence between 0 and 1, and the fields it contains as snake_case Italian keys.\n")
	b.WriteString("Fix obvious encoding and OCR errors and collapse whitespace in extracted values.\n\n")
	b.WriteString("Return one JSON object:\n")
	b.WriteString(`{"sections":[{"type":"...","page":1,"raw_text":"...","confidence":0.85,"fields":{}}],`)
	b.WriteString(`"extracted_fields":{"customers":[],"policies":[],"transactions":[],"tickets":[]},`)
	b.WriteString(`"overall_confidence":0.8,"warnings":[]}`)
	return b.String()
}

func normalizePrompt(domain records.Domain) string {
	codes := make(map[string]struct{})
	for _, code := range domain.CurrencyMap {
		codes[code] = struct{}{}
	}
	var b strings.Builder
	b.WriteString("You are a normalization assistant for Italian document data.\n\n")
	b.WriteString("Normalize dates to ISO 8601 (YYYY-MM-DD, first day of month when only month and year are known).\n")
	b.WriteString("Normalize amounts to a plain decimal with '.' as separator and two decimals (\"€ 1.200,00\" becomes \"1200.00\").\n")
	fmt.Fprintf(&b, "Normalize currencies to ISO codes (%d known codes, e.g. EUR, USD, GBP).\n", len(codes))
	b.WriteString("Negative amounts or words like rimborso, refund, storno mean the transaction type is \"refund\".\n")
	b.WriteString("Trim text, format phones as \"+39 XXX XXX XXXX\" and flag invalid emails as validation warnings.\n\n")
	b.WriteString("Return one JSON object:\n")
	b.WriteString(`{"normalized_data":{"customers":[],"policies":[],"transactions":[],"tickets":[]},`)
	b.WriteString(`"normalization_issues":[{"record_type":"transaction","field":"data","original":"13/01/24","normalized":"2024-01-13","confidence":0.95}],`)
	b.WriteString(`"validation_warnings":[],"overall_confidence":0.88}`)
	return b.String()
}

func mapPrompt(domain records.Domain) string {
	tables, _ := json.MarshalIndent(domain.Tables, "", "  ")
	var b strings.Builder
	b.WriteString("You map normalized data onto a relational database schema.\n\nDatabase schema:\n")
	b.Write(tables)
	b.WriteString("\n\nRules:\n")
	b.WriteString("- Each record has id, source_reference, confidence, fields.\n")
	b.WriteString("- id is a hash of the record's identifying fields.\n")
	b.WriteString("- source_reference is {\"page\": N, \"snippet\": \"short excerpt\"}.\n")
	b.WriteString("- confidence is the mean of the field confidences (0..1).\n")
	fmt.Fprintf(&b, "- Flag fields with confidence below %g in mapping_metadata.\n", domain.ConfidenceThreshold)
	b.WriteString("- Output only JSON. No markdown, no comments.\n\n")
	b.WriteString(`{"customers":[],"policies":[],"transactions":[],"tickets":[],"mapping_metadata":{}}`)
	return b.String()
}

func reviewPrompt(domain records.Domain) string {
	var b strings.Builder
	b.WriteString("You prepare a human review report for database-ready records.\n\n")
	fmt.Fprintf(&b, "Report records or fields with confidence below %g, missing required fields, invalid formats and inconsistencies.\n", domain.ConfidenceThreshold)
	b.WriteString("Each issue has id, type (low_confidence, missing_required, format_error, inconsistency), severity (high, medium, low), record_type, record_id, field, confidence, reason, evidence {page, snippet}, suggestion and decision_required.\n")
	b.WriteString("Propose auto_fixes only when confident.\n\n")
	b.WriteString("Return one JSON object:\n")
	b.WriteString(`{"review_summary":{"total_records":0,"records_with_issues":0,"issues_count":0,"requires_human_review":false},`)
	b.WriteString(`"issues":[],"auto_fixes":[{"issue_id":"issue_1","field":"telefono","original":"...","suggested_fix":"...","confidence":0.85}],`)
	b.WriteString(`"review_recommendation":"APPROVE|REVIEW_REQUIRED|MANUAL_FIX"}`)
	return b.String()
}

package records

// JSON Schemas checked against recovered generator output before it is
// decoded into the typed values above. They constrain shape, not content:
// numbers must be numbers and lists must be lists, so a typed decode cannot
// fail halfway.

func nullable(kind string) map[string]any {
	return map[string]any{"type": []string{kind, "null"}}
}

func arrayOf(item map[string]any) map[string]any {
	return map[string]any{"type": "array", "items": item}
}

func object(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{"type": "object", "properties": properties}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

var (
	fieldMap       = map[string]any{"type": "object"}
	stringList     = arrayOf(map[string]any{"type": "string"})
	successMarker  = map[string]any{"type": "boolean"}
	confidenceProp = map[string]any{"type": []string{"number", "null"}, "minimum": 0, "maximum": 1}
)

func recordSetSchema() map[string]any {
	records := arrayOf(fieldMap)
	return object(map[string]any{
		"customers":    records,
		"policies":     records,
		"transactions": records,
		"tickets":      records,
	})
}

// SegmentationSchema describes the segment stage output.
func SegmentationSchema() map[string]any {
	section := object(map[string]any{
		"type":       map[string]any{"type": "string"},
		"page":       nullable("integer"),
		"raw_text":   nullable("string"),
		"confidence": confidenceProp,
		"fields":     fieldMap,
	}, "type")
	return object(map[string]any{
		"sections":           arrayOf(section),
		"extracted_fields":   recordSetSchema(),
		"overall_confidence": confidenceProp,
		"warnings":           stringList,
		"success":            successMarker,
	}, "sections", "extracted_fields")
}

// NormalizationSchema describes the normalize stage output.
func NormalizationSchema() map[string]any {
	issue := object(map[string]any{
		"record_type": nullable("string"),
		"field":       nullable("string"),
		"confidence":  confidenceProp,
	})
	return object(map[string]any{
		"normalized_data":      recordSetSchema(),
		"normalization_issues": arrayOf(issue),
		"validation_warnings":  stringList,
		"overall_confidence":   confidenceProp,
		"success":              successMarker,
	}, "normalized_data")
}

// SchemaMappingSchema describes the map-to-schema stage output. At least one
// table must be present.
func SchemaMappingSchema() map[string]any {
	record := object(map[string]any{
		"id": map[string]any{"type": "string"},
		"source_reference": object(map[string]any{
			"page":    nullable("integer"),
			"snippet": nullable("string"),
		}),
		"confidence": confidenceProp,
		"fields":     fieldMap,
	}, "id", "fields")
	schema := object(map[string]any{
		"customers":        arrayOf(record),
		"policies":         arrayOf(record),
		"transactions":     arrayOf(record),
		"tickets":          arrayOf(record),
		"mapping_metadata": map[string]any{"type": "object"},
		"success":          successMarker,
	})
	schema["anyOf"] = []any{
		map[string]any{"required": []string{"customers"}},
		map[string]any{"required": []string{"policies"}},
		map[string]any{"required": []string{"transactions"}},
		map[string]any{"required": []string{"tickets"}},
	}
	return schema
}

// ReviewSchema describes the review stage output.
func ReviewSchema() map[string]any {
	summary := object(map[string]any{
		"total_records":         map[string]any{"type": "integer", "minimum": 0},
		"records_with_issues":   map[string]any{"type": "integer", "minimum": 0},
		"issues_count":          map[string]any{"type": "integer", "minimum": 0},
		"requires_human_review": map[string]any{"type": "boolean"},
	})
	issue := object(map[string]any{
		"id":                nullable("string"),
		"type":              nullable("string"),
		"severity":          nullable("string"),
		"record_id":         nullable("string"),
		"confidence":        confidenceProp,
		"evidence":          object(map[string]any{"page": nullable("integer"), "snippet": nullable("string")}),
		"decision_required": nullable("boolean"),
	})
	fix := object(map[string]any{
		"issue_id":   nullable("string"),
		"field":      nullable("string"),
		"confidence": confidenceProp,
	})
	return object(map[string]any{
		"review_summary": summary,
		"issues":         arrayOf(issue),
		"auto_fixes":     arrayOf(fix),
		"review_recommendation": map[string]any{
			"type": "string",
			"enum": []string{RecommendApprove, RecommendReviewRequired, RecommendManualFix},
		},
		"success": successMarker,
	}, "review_summary", "review_recommendation")
}

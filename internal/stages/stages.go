package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"docpipe/internal/config"
	"docpipe/internal/extract"
	"docpipe/internal/records"
	"docpipe/internal/services"
	"docpipe/internal/services/llm"
	"docpipe/internal/state"
)

// Generator produces raw completion text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt llm.Prompt) (string, error)
}

// Settings configures the handler set.
type Settings struct {
	Models    map[state.Stage]string
	MaxTokens int
	Domain    records.Domain
}

// SettingsFromConfig derives handler settings from the loaded configuration.
func SettingsFromConfig(cfg *config.Config) Settings {
	domain := records.DefaultDomain()
	domain.ConfidenceThreshold = cfg.Pipeline.ConfidenceThreshold
	return Settings{
		Models: map[state.Stage]string{
			state.StageSegment:     cfg.Models.Segment,
			state.StageNormalize:   cfg.Models.Normalize,
			state.StageMapToSchema: cfg.Models.MapToSchema,
			state.StageReview:      cfg.Models.Review,
		},
		MaxTokens: cfg.Generator.MaxTokens,
		Domain:    domain,
	}
}

// Handler runs one stage.
type Handler struct {
	Stage     state.Stage
	Model     string
	System    string
	Policy    extract.Policy
	Schema    *extract.Schema
	MaxTokens int

	domain    records.Domain
	instruct  string
	input     func(*state.State) (any, error)
	newOutput func() records.Output
	finish    func(records.Output, *state.State, records.Domain)
}

// Set holds the handlers in stage order.
type Set struct {
	handlers map[state.Stage]*Handler
	domain   records.Domain
}

// NewSet builds and compiles every stage handler.
func NewSet(settings Settings) (*Set, error) {
	specs := []struct {
		stage    state.Stage
		policy   extract.Policy
		schema   map[string]any
		system   string
		instruct string
		input    func(*state.State) (any, error)
		output   func() records.Output
		finish   func(records.Output, *state.State, records.Domain)
	}{
		{
			stage:    state.StageSegment,
			policy:   extract.Simple,
			schema:   records.SegmentationSchema(),
			system:   segmentPrompt(settings.Domain),
			instruct: "Segment this document and extract its fields.\n\nDOCUMENT TEXT:",
			input:    segmentInput,
			output:   func() records.Output { return &records.Segmentation{} },
		},
		{
			stage:    state.StageNormalize,
			policy:   extract.Simple,
			schema:   records.NormalizationSchema(),
			system:   normalizePrompt(settings.Domain),
			instruct: "Normalize this structured data.\n\nSTRUCTURED DATA:",
			input:    normalizeInput,
			output:   func() records.Output { return &records.Normalization{} },
			finish:   finishNormalization,
		},
		{
			stage:    state.StageMapToSchema,
			policy:   extract.Repair,
			schema:   records.SchemaMappingSchema(),
			system:   mapPrompt(settings.Domain),
			instruct: "Map this normalized data to the database schema.\n\nNORMALIZED DATA:",
			input:    mapInput,
			output:   func() records.Output { return &records.SchemaMapping{} },
			finish:   finishMapping,
		},
		{
			stage:    state.StageReview,
			policy:   extract.Simple,
			schema:   records.ReviewSchema(),
			system:   reviewPrompt(settings.Domain),
			instruct: fmt.Sprintf("Review this database-ready data and produce a review report.\n\nConfidence threshold: %g\n\nDATA:", settings.Domain.ConfidenceThreshold),
			input:    reviewInput,
			output:   func() records.Output { return &records.Review{} },
			finish:   finishReview,
		},
	}
	set := &Set{handlers: make(map[state.Stage]*Handler, len(specs)), domain: settings.Domain}
	for _, spec := range specs {
		schema, err := extract.CompileSchema(string(spec.stage), spec.schema)
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "stages", "compile schema", string(spec.stage), err)
		}
		model := strings.TrimSpace(settings.Models[spec.stage])
		if model == "" {
			return nil, services.Wrap(services.ErrConfiguration, "stages", "model", fmt.Sprintf("no model configured for %s", spec.stage), nil)
		}
		set.handlers[spec.stage] = &Handler{
			Stage:     spec.stage,
			Model:     model,
			System:    spec.system,
			Policy:    spec.policy,
			Schema:    schema,
			MaxTokens: settings.MaxTokens,
			domain:    settings.Domain,
			instruct:  spec.instruct,
			input:     spec.input,
			newOutput: spec.output,
			finish:    spec.finish,
		}
	}
	return set, nil
}

// For returns the handler for stage.
func (s *Set) For(stage state.Stage) (*Handler, bool) {
	if s == nil {
		return nil, false
	}
	handler, ok := s.handlers[stage]
	return handler, ok
}

// Domain returns the domain the handlers were built with.
func (s *Set) Domain() records.Domain {
	if s == nil {
		return records.DefaultDomain()
	}
	return s.domain
}

// Prompt builds the exchange for this stage from the state's previous output.
func (h *Handler) Prompt(st *state.State) (llm.Prompt, error) {
	payload, err := h.input(st)
	if err != nil {
		return llm.Prompt{}, err
	}
	var body string
	switch value := payload.(type) {
	case string:
		body = value
	default:
		encoded, err := json.MarshalIndent(value, "", "  ")
		if err != nil {
			return llm.Prompt{}, services.Wrap(services.ErrValidation, "stages", string(h.Stage), "encode input", err)
		}
		body = string(encoded)
	}
	user := h.instruct + "\n" + body + "\n\nReturn ONLY valid JSON as specified. No markdown, no explanations."
	return llm.Prompt{
		Model:     h.Model,
		System:    h.System,
		User:      user,
		MaxTokens: h.MaxTokens,
	}, nil
}

// Execute runs one attempt of the stage and returns the validated output with
// its success marker set. Recovered output that is unparseable, fails schema
// validation, or reports success=false is an error marked
// services.ErrMalformedOutput.
func (h *Handler) Execute(ctx context.Context, gen Generator, st *state.State) (records.Output, error) {
	prompt, err := h.Prompt(st)
	if err != nil {
		return nil, err
	}
	raw, err := gen.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	result := extract.Extract(h.Policy, raw)
	if result.Unrecoverable() {
		return nil, h.malformed("could not parse structured output: "+extract.Snippet(raw), nil)
	}
	if flag, ok := result.Object["success"].(bool); ok && !flag {
		reason, _ := result.Object["error"].(string)
		if reason == "" {
			reason = "no reason given"
		}
		return nil, h.malformed("generator reported failure: "+reason, nil)
	}
	if h.Stage == state.StageMapToSchema {
		assignMissingIDs(result.Object)
	}
	if err := h.Schema.Validate(result.Object); err != nil {
		return nil, h.malformed("schema validation failed", err)
	}

	output := h.newOutput()
	if err := decodeObject(result.Object, output); err != nil {
		return nil, h.malformed("decode output", err)
	}
	if h.finish != nil {
		h.finish(output, st, h.domain)
	}
	output.MarkSucceeded()
	return output, nil
}

func (h *Handler) malformed(message string, err error) error {
	return services.Wrap(services.ErrMalformedOutput, "stages", string(h.Stage), message, err)
}

func decodeObject(obj map[string]any, target any) error {
	encoded, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	return json.Unmarshal(encoded, target)
}

func segmentInput(st *state.State) (any, error) {
	if strings.TrimSpace(st.RawText) == "" {
		return nil, services.Wrap(services.ErrValidation, "stages", string(state.StageSegment), "raw text is empty", nil)
	}
	return st.RawText, nil
}

func normalizeInput(st *state.State) (any, error) {
	if !st.Segmentation.Succeeded() {
		return nil, missingInput(state.StageNormalize, state.StageSegment)
	}
	return st.Segmentation.ExtractedFields, nil
}

func mapInput(st *state.State) (any, error) {
	if !st.Normalization.Succeeded() {
		return nil, missingInput(state.StageMapToSchema, state.StageNormalize)
	}
	return st.Normalization.NormalizedData, nil
}

func reviewInput(st *state.State) (any, error) {
	if !st.SchemaMapping.Succeeded() {
		return nil, missingInput(state.StageReview, state.StageMapToSchema)
	}
	return st.SchemaMapping, nil
}

func missingInput(stage, previous state.Stage) error {
	return services.Wrap(services.ErrValidation, "stages", string(stage),
		fmt.Sprintf("requires a successful %s output", previous), nil)
}

package testsupport

import (
	"context"
	"fmt"
	"sync"

	"docpipe/internal/services"
	"docpipe/internal/services/llm"
)

// Canned stage outputs that pass schema validation.
const (
	SegmentJSON = `{"sections":[{"type":"ANAGRAFICA","page":1,"raw_text":"Cliente: Mario Rossi","confidence":0.9,"fields":{"nome":"Mario","cognome":"Rossi"}}],` +
		`"extracted_fields":{"customers":[{"nome":"Mario","cognome":"Rossi","codice_fiscale":"RSSMRA80A01H501U"}],"policies":[],"transactions":[{"data":"13/01/24","importo":"€ 1.200,00","tipo":"pagamento","valuta":"€"}],"tickets":[]},` +
		`"overall_confidence":0.88,"warnings":[]}`
	NormalizeJSON = `{"normalized_data":{"customers":[{"nome":"Mario","cognome":"Rossi","codice_fiscale":"RSSMRA80A01H501U"}],"policies":[],"transactions":[{"data":"2024-01-13","importo":"1200.00","tipo":"pagamento","valuta":"€"}],"tickets":[]},` +
		`"normalization_issues":[{"record_type":"transaction","field":"data","original":"13/01/24","normalized":"2024-01-13","confidence":0.95}],"validation_warnings":[],"overall_confidence":0.9}`
	MappingJSON = "```json\n" + `{"customers":[{"id":"c1","source_reference":{"page":1,"snippet":"Mario Rossi"},"confidence":0.9,"fields":{"nome":"Mario","cognome":"Rossi","codice_fiscale":"RSSMRA80A01H501U"}},],` +
		`"transactions":[{"source_reference":{"page":1},"confidence":0.6,"fields":{"data":"2024-01-13","importo":"1200.00"}}],` +
		`"mapping_metadata":{}}` + "\n```"
	ReviewJSON = `{"review_summary":{"total_records":2,"records_with_issues":1,"issues_count":1,"requires_human_review":true},` +
		`"issues":[{"id":"issue_1","type":"low_confidence","severity":"medium","record_type":"transaction","record_id":"t1","field":"importo","confidence":0.6,"reason":"amount unclear","evidence":{"page":1,"snippet":"1.200,00"},"suggestion":"check the amount","decision_required":true}],` +
		`"auto_fixes":[],"review_recommendation":"REVIEW_REQUIRED"}`
)

// Reply is one scripted generator response.
type Reply struct {
	Content string
	Err     error
}

// Fail scripts a failing reply.
func Fail(err error) Reply {
	return Reply{Err: err}
}

// OK scripts a successful reply.
func OK(content string) Reply {
	return Reply{Content: content}
}

// StubGenerator replays scripted replies per model and counts calls. When a
// model's script runs out, its last reply repeats.
type StubGenerator struct {
	mu      sync.Mutex
	scripts map[string][]Reply
	last    map[string]Reply
	calls   map[string]int
	prompts []llm.Prompt
}

// NewStubGenerator returns an empty stub.
func NewStubGenerator() *StubGenerator {
	return &StubGenerator{
		scripts: make(map[string][]Reply),
		last:    make(map[string]Reply),
		calls:   make(map[string]int),
	}
}

// HappyGenerator scripts a successful reply for every stage model.
func HappyGenerator() *StubGenerator {
	return NewStubGenerator().
		Script(ModelSegment, OK(SegmentJSON)).
		Script(ModelNormalize, OK(NormalizeJSON)).
		Script(ModelMapToSchema, OK(MappingJSON)).
		Script(ModelReview, OK(ReviewJSON))
}

// Script replaces the replies for model.
func (g *StubGenerator) Script(model string, replies ...Reply) *StubGenerator {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.scripts[model] = append([]Reply(nil), replies...)
	delete(g.last, model)
	return g
}

// Generate implements the stage generator contract.
func (g *StubGenerator) Generate(ctx context.Context, prompt llm.Prompt) (string, error) {
	return g.reply(ctx, prompt)
}

// Transcribe implements the OCR transcriber contract. The image bytes are
// recorded as the prompt's user content.
func (g *StubGenerator) Transcribe(ctx context.Context, model string, image []byte, _ string) (string, error) {
	return g.reply(ctx, llm.Prompt{Model: model, User: string(image)})
}

func (g *StubGenerator) reply(ctx context.Context, prompt llm.Prompt) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls[prompt.Model]++
	g.prompts = append(g.prompts, prompt)

	reply, ok := g.last[prompt.Model]
	if queue := g.scripts[prompt.Model]; len(queue) > 0 {
		reply, ok = queue[0], true
		g.scripts[prompt.Model] = queue[1:]
		g.last[prompt.Model] = reply
	}
	if !ok {
		return "", services.Wrap(services.ErrTransport, "stub", "generate", fmt.Sprintf("no script for model %q", prompt.Model), nil)
	}
	return reply.Content, reply.Err
}

// Calls returns how many times model was invoked.
func (g *StubGenerator) Calls(model string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[model]
}

// Prompts returns every prompt received, in order.
func (g *StubGenerator) Prompts() []llm.Prompt {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]llm.Prompt(nil), g.prompts...)
}

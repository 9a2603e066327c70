// Package llm provides the chat-completion client used by every pipeline
// stage and by the OCR front end.
//
// # Exchange
//
// Each call posts one request ({model, messages, max_tokens, tools?,
// tool_choice?}) to <base_url>/chat/completions and returns the decoded
// envelope. Response.Content reads choices[0].message.content and falls back
// to reasoning_content (then tool-call arguments); when nothing usable is
// present it returns an error marked services.ErrEmptyOutput.
//
// # Error mapping
//
//	401             services.ErrAuth       never retried
//	429             services.ErrRateLimit  retried by the transport policy
//	other >= 400    services.ErrTransport  retried
//	empty body      services.ErrTransport  retried
//	network errors  services.ErrTransport  retried
//
// Cancellation aborts immediately. Exhausting the transport policy yields an
// error marked services.ErrExhausted wrapping the last failure.
//
// # Entry Points
//
// NewClient: construct from Config.
// Client.Complete: one exchange with transport retry, returning the envelope.
// Client.Generate: system + user prompt to content text.
// Client.Transcribe: vision request used for page OCR.
// Client.HealthCheck: verify the key and a model.
package llm

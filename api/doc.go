// Package api defines the wire types of the RagLoop HTTP API.
//
// # API Overview
//
// RagLoop exposes a small REST surface for human-in-the-loop question
// answering over a private corpus:
//   - Document ingestion (chunk, embed, replace-write)
//   - Workflow start: retrieve context, then suspend for human review
//   - Workflow resume: inject the review decision, generate the answer
//   - Health monitoring and metrics
//
// # Interrupt protocol
//
// POST /ask/start answers 202 Accepted with an interrupt envelope when the
// thread suspends at the review node:
//
//	{"thread_id": "...", "interrupt": {"value": {"action": "review_context", ...}}}
//
// The caller inspects the context preview, then POSTs /ask/resume with a
// decision ({"approved": true} or {"approved": false, "edited_context": "..."}).
// The resume response carries the final answer, or a typed error
// (NOT_FOUND, INVALID_STATE, CONFLICT, VALIDATION, GENERATION_FAILURE).
//
// # Base URL
//
// The default base URL for the API is:
//
//	http://localhost:8080
//
// Handlers live in the api/handlers subpackage; this package holds only the
// request/response structures shared by handlers, clients, and tests.
package api

// Package api provides the JSON HTTP gateway for legalpg.
//
// # Endpoints
//
// Answers:
//   - POST /answer - Answer a question; body {"question": "...", "html": true}
//
// Sources:
//   - GET /sources - List configured sources
//   - GET /sources/{name}/documents - Stored articles of a source
//     (chapter, section, search, updated_since, limit, offset)
//
// Health:
//   - GET /healthz - Liveness probe
package api

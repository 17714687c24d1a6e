package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/youssefsiam38/legalpg/rag"
	"github.com/youssefsiam38/legalpg/storage"
)

const (
	maxRequestBytes   = 64 << 10
	maxQuestionLength = 4000
)

// Response wraps all API responses.
type Response struct {
	Data  any       `json:"data,omitempty"`
	Error *APIError `json:"error,omitempty"`
	Meta  *Meta     `json:"meta,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Meta contains pagination metadata.
type Meta struct {
	TotalCount int64 `json:"total_count"`
	HasMore    bool  `json:"has_more"`
	Limit      int   `json:"limit"`
	Offset     int   `json:"offset"`
}

// AnswerRequest is the body of POST /answer.
type AnswerRequest struct {
	Question string `json:"question"`
	// HTML adds the answer rendered as sanitized HTML.
	HTML bool `json:"html,omitempty"`
}

// AnswerResponse is the result of POST /answer.
type AnswerResponse struct {
	Answer  string      `json:"answer"`
	HTML    string      `json:"html,omitempty"`
	Sources []SourceRef `json:"sources"`
}

// SourceRef is one article chunk an answer was grounded on.
type SourceRef struct {
	Article  string  `json:"article"`
	URL      string  `json:"url"`
	Distance float64 `json:"distance"`
}

// SourceInfo describes a configured legal text.
type SourceInfo struct {
	Name       string     `json:"name"`
	Table      string     `json:"table"`
	Collection string     `json:"collection"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response{Data: data})
}

// writeJSONWithMeta writes a JSON response with metadata.
func writeJSONWithMeta(w http.ResponseWriter, status int, data any, meta *Meta) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response{Data: data, Meta: meta})
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response{
		Error: &APIError{Code: code, Message: message},
	})
}

// parseLimit parses a limit from a query parameter, clamped to
// [1, MaxPageSize].
func parseLimit(r *http.Request, key string, defaultVal int) int {
	i, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return defaultVal
	}
	return min(max(i, 1), MaxPageSize)
}

// parseOffset parses an offset from a query parameter with a default.
func parseOffset(r *http.Request, key string, defaultVal int) int {
	i, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return defaultVal
	}
	return max(i, 0)
}

// parseTime accepts RFC 3339 timestamps and plain dates.
func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, s)
}

// Answer handlers

func (rt *router) handleAnswer(w http.ResponseWriter, r *http.Request) {
	if rt.answerer == nil {
		writeError(w, http.StatusServiceUnavailable, "answers_disabled", "question answering is not configured")
		return
	}

	var req AnswerRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "invalid_question", "question is required")
		return
	}
	if len(req.Question) > maxQuestionLength {
		writeError(w, http.StatusBadRequest, "invalid_question", "question is too long")
		return
	}

	answer, err := rt.answerer.Answer(r.Context(), req.Question)
	if err != nil {
		rt.logger.Error("failed to answer question", "error", err)
		if errors.Is(err, rag.ErrEmptyAnswer) {
			writeError(w, http.StatusBadGateway, "empty_answer", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to answer question")
		return
	}

	resp := AnswerResponse{Answer: answer.Text, Sources: make([]SourceRef, len(answer.Sources))}
	for i, s := range answer.Sources {
		resp.Sources[i] = SourceRef{Article: s.Article, URL: s.URL, Distance: s.Distance}
	}
	if req.HTML {
		if resp.HTML, err = rag.RenderHTML(answer.Text); err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Source handlers

func (rt *router) handleListSources(w http.ResponseWriter, r *http.Request) {
	list := make([]SourceInfo, 0, len(rt.order))
	for _, name := range rt.order {
		src := rt.sources[name]
		info := SourceInfo{Name: src.Name, Table: src.TableName, Collection: src.CollectionName}
		if !src.UpdatedAt.IsZero() {
			updated := src.UpdatedAt
			info.UpdatedAt = &updated
		}
		list = append(list, info)
	}
	writeJSON(w, http.StatusOK, list)
}

func (rt *router) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	src, ok := rt.sources[r.PathValue("name")]
	if !ok {
		writeError(w, http.StatusNotFound, "source_not_found", "source not found")
		return
	}
	if rt.documents == nil {
		writeError(w, http.StatusServiceUnavailable, "documents_disabled", "document store is not configured")
		return
	}

	q := r.URL.Query()
	filter := storage.DocumentFilter{
		Chapter: q.Get("chapter"),
		Section: q.Get("section"),
		Search:  q.Get("search"),
		Limit:   parseLimit(r, "limit", rt.pageSize),
		Offset:  parseOffset(r, "offset", 0),
	}
	if since := q.Get("updated_since"); since != "" {
		t, err := parseTime(since)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_updated_since", "updated_since must be a date or RFC 3339 timestamp")
			return
		}
		filter.UpdatedSince = t
	}

	page, err := rt.documents.FindDocuments(r.Context(), src.TableName, filter)
	if err != nil {
		rt.logger.Error("failed to list documents", "source", src.Name, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list documents")
		return
	}

	docs := page.Documents
	if docs == nil {
		docs = []*storage.Document{}
	}
	writeJSONWithMeta(w, http.StatusOK, docs, &Meta{
		TotalCount: page.Total,
		HasMore:    int64(filter.Offset+len(page.Documents)) < page.Total,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	})
}

// Health handlers

func (rt *router) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

package web

import (
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"github.com/hpungsan/vouch/internal/candidate"
	"github.com/hpungsan/vouch/internal/config"
	"github.com/hpungsan/vouch/internal/db"
	"github.com/hpungsan/vouch/internal/errors"
	"github.com/hpungsan/vouch/internal/ops"
)

// Handlers contains HTTP route handlers for the review UI and webhook.
type Handlers struct {
	db       *sql.DB
	cfg      *config.Config
	renderer *Renderer
}

// HandleList handles GET /candidates, the review queue.
func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status == "" {
		status = string(candidate.StatusPending)
	}
	typ := r.URL.Query().Get("type")

	result, err := ops.List(h.db, ops.ListInput{
		Status: status,
		Type:   typ,
		Limit:  parseIntParam(r, "limit", 20),
		Offset: parseIntParam(r, "offset", 0),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		renderJSON(w, http.StatusOK, result)
		return
	}

	h.renderer.renderPage(w, r, "list", ListPageData{
		PageData: PageData{
			Title:   "Candidates",
			Version: h.renderer.version,
			Nav:     "candidates",
		},
		Result: result,
		Status: status,
		Type:   typ,
	})
}

// HandleDetail handles GET /candidates/{id}: full review context for one
// candidate: evidence, verification, gate, decision trail, and the
// advisory duplicate check.
func (h *Handlers) HandleDetail(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	fetched, err := ops.Fetch(h.db, h.cfg, ops.FetchInput{ID: id})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	dupes, err := ops.FindDuplicates(h.db, h.cfg, ops.DuplicatesInput{CandidateID: id})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		renderJSON(w, http.StatusOK, map[string]any{
			"candidate":  fetched,
			"duplicates": dupes,
		})
		return
	}

	h.renderer.renderPage(w, r, "detail", DetailPageData{
		PageData: PageData{
			Title:   fetched.Key,
			Version: h.renderer.version,
			Nav:     "candidates",
		},
		Candidate:    fetched,
		Duplicates:   dupes,
		EvidenceHTML: evidenceHTML(h.db, fetched),
		Decided:      fetched.Status.IsTerminal(),
	})
}

// HandleDecide handles POST /candidates/{id}/decide, a reviewer decision
// submitted from the UI form.
func (h *Handlers) HandleDecide(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}

	id := r.PathValue("id")
	input := ops.DecideInput{
		CandidateID:   id,
		Decision:      r.FormValue("decision"),
		Actor:         r.FormValue("actor"),
		Reasoning:     r.FormValue("reasoning"),
		SuggestedName: ptrString(r.FormValue("suggested_name")),
	}

	result, err := ops.Decide(h.db, input)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		renderJSON(w, http.StatusOK, result)
		return
	}

	http.Redirect(w, r, "/candidates/"+id, http.StatusSeeOther)
}

// reviewEventRequest is the webhook body from the external review tool.
type reviewEventRequest struct {
	EventID     string   `json:"event_id"`
	CandidateID string   `json:"candidate_id"`
	Decision    string   `json:"decision"`
	Actor       string   `json:"actor"`
	Reasoning   string   `json:"reasoning"`
	Confidence  *float64 `json:"confidence_override,omitempty"`
	Suggested   *string  `json:"suggested_name,omitempty"`
}

// HandleReviewEvent handles POST /api/review-events, the external review
// tool's delivery endpoint. Deliveries are at-least-once; replays return
// the original outcome with HTTP 200.
func (h *Handlers) HandleReviewEvent(w http.ResponseWriter, r *http.Request) {
	var req reviewEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderErrorJSON(w, errors.NewInvalidRequest("invalid JSON body"))
		return
	}

	result, err := ops.ApplyReview(h.db, ops.ApplyReviewInput{
		EventID:            req.EventID,
		CandidateID:        req.CandidateID,
		Decision:           req.Decision,
		Actor:              req.Actor,
		Reasoning:          req.Reasoning,
		ConfidenceOverride: req.Confidence,
		SuggestedName:      req.Suggested,
	})
	if err != nil {
		var vErr *errors.VouchError
		if !stderrors.As(err, &vErr) {
			vErr = errors.NewInternal(err)
		}
		renderErrorJSON(w, vErr)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	renderJSON(w, status, result)
}

// HandleStats handles GET /stats, aggregate counts for operators.
func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	result, err := ops.Stats(h.db)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		renderJSON(w, http.StatusOK, result)
		return
	}

	h.renderer.renderPage(w, r, "stats", StatsPageData{
		PageData: PageData{
			Title:   "Stats",
			Version: h.renderer.version,
			Nav:     "stats",
		},
		Stats: result,
	})
}

// evidenceHTML renders the evidence quote, as markdown when the snapshot
// was captured as markdown, otherwise escaped verbatim.
func evidenceHTML(database *sql.DB, fetched *ops.FetchOutput) template.HTML {
	snap, err := db.GetSnapshotByID(database, fetched.SnapshotID)
	if err == nil && snap.SourceKind == "markdown" {
		return renderMarkdown(fetched.EvidenceText)
	}
	return template.HTML("<pre>" + template.HTMLEscapeString(fetched.EvidenceText) + "</pre>")
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

// ptrString returns a pointer to s if non-empty, nil otherwise.
func ptrString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

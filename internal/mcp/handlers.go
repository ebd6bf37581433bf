package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/vouch/internal/candidate"
	"github.com/hpungsan/vouch/internal/config"
	"github.com/hpungsan/vouch/internal/errors"
	"github.com/hpungsan/vouch/internal/ops"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	db  *sql.DB
	cfg *config.Config
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(db *sql.DB, cfg *config.Config) *Handlers {
	return &Handlers{db: db, cfg: cfg}
}

// Request types for each tool

// SnapshotPutRequest represents the arguments for snapshot_put.
type SnapshotPutRequest struct {
	Locator    string `json:"locator"`
	Content    string `json:"content"`
	SourceKind string `json:"source_kind,omitempty"`
	CapturedAt int64  `json:"captured_at,omitempty"`
}

// SnapshotGetRequest represents the arguments for snapshot_get.
type SnapshotGetRequest struct {
	ID      string `json:"id,omitempty"`
	Locator string `json:"locator,omitempty"`
}

// StageRequest represents the arguments for candidate_stage.
type StageRequest struct {
	Type             string         `json:"type"`
	Key              string         `json:"key"`
	Payload          map[string]any `json:"payload,omitempty"`
	EvidenceText     string         `json:"evidence_text"`
	EvidenceType     string         `json:"evidence_type,omitempty"`
	OracleConfidence float64        `json:"oracle_confidence,omitempty"`

	SnapshotID      string `json:"snapshot_id,omitempty"`
	SnapshotLocator string `json:"snapshot_locator,omitempty"`

	RetryCount        int     `json:"retry_count,omitempty"`
	NeedsManualReview bool    `json:"needs_manual_review,omitempty"`
	ErrorLog          *string `json:"error_log,omitempty"`

	Epistemic *EpistemicRequest `json:"epistemic,omitempty"`
}

// EpistemicRequest carries optional who/how provenance for a staged claim.
type EpistemicRequest struct {
	Observer    string `json:"observer,omitempty"`
	Role        string `json:"role,omitempty"`
	ContactMode string `json:"contact_mode,omitempty"`
	ValidFrom   *int64 `json:"valid_from,omitempty"`
	ValidTo     *int64 `json:"valid_to,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

// GetRequest represents the arguments for candidate_get.
type GetRequest struct {
	ID string `json:"id"`
}

// PendingRequest represents the arguments for candidate_pending.
type PendingRequest struct {
	Status string `json:"status,omitempty"`
	Type   string `json:"type,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// DecideRequest represents the arguments for candidate_decide.
type DecideRequest struct {
	CandidateID        string   `json:"candidate_id"`
	Decision           string   `json:"decision"`
	Actor              string   `json:"actor"`
	Reasoning          string   `json:"reasoning"`
	ConfidenceOverride *float64 `json:"confidence_override,omitempty"`
	SuggestedName      *string  `json:"suggested_name,omitempty"`
}

// DuplicatesRequest represents the arguments for candidate_duplicates.
type DuplicatesRequest struct {
	CandidateID string `json:"candidate_id,omitempty"`
	Key         string `json:"key,omitempty"`
	Type        string `json:"type,omitempty"`
}

// PromoteRequest represents the arguments for candidate_promote.
type PromoteRequest struct {
	CandidateID       string `json:"candidate_id"`
	CanonicalName     string `json:"canonical_name,omitempty"`
	MergeWithEntityID string `json:"merge_with_entity_id,omitempty"`
	DryRun            bool   `json:"dry_run,omitempty"`
}

// ReviewRequest represents the arguments for candidate_review.
type ReviewRequest struct {
	EventID            string   `json:"event_id"`
	CandidateID        string   `json:"candidate_id"`
	Decision           string   `json:"decision"`
	Actor              string   `json:"actor"`
	Reasoning          string   `json:"reasoning"`
	ConfidenceOverride *float64 `json:"confidence_override,omitempty"`
	SuggestedName      *string  `json:"suggested_name,omitempty"`
}

// ReverifyRequest represents the arguments for candidate_reverify.
type ReverifyRequest struct {
	ID      string `json:"id,omitempty"`
	Workers int    `json:"workers,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

// StatsRequest represents the arguments for candidate_stats.
type StatsRequest struct{}

// Handler implementations

// HandleSnapshotPut handles the snapshot_put tool call.
func (h *Handlers) HandleSnapshotPut(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SnapshotPutRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.PutSnapshot(h.db, ops.PutSnapshotInput{
		Locator:    input.Locator,
		Content:    input.Content,
		SourceKind: input.SourceKind,
		CapturedAt: input.CapturedAt,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleSnapshotGet handles the snapshot_get tool call.
func (h *Handlers) HandleSnapshotGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SnapshotGetRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.GetSnapshot(h.db, ops.GetSnapshotInput{
		ID:      input.ID,
		Locator: input.Locator,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleStage handles the candidate_stage tool call.
func (h *Handlers) HandleStage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[StageRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	var epi *candidate.EpistemicRecord
	if input.Epistemic != nil {
		epi = &candidate.EpistemicRecord{
			Observer:    input.Epistemic.Observer,
			Role:        input.Epistemic.Role,
			ContactMode: input.Epistemic.ContactMode,
			ValidFrom:   input.Epistemic.ValidFrom,
			ValidTo:     input.Epistemic.ValidTo,
			Notes:       input.Epistemic.Notes,
		}
	}

	result, err := ops.Stage(h.db, h.cfg, ops.StageInput{
		Type:              input.Type,
		Key:               input.Key,
		Payload:           input.Payload,
		EvidenceText:      input.EvidenceText,
		EvidenceType:      input.EvidenceType,
		OracleConfidence:  input.OracleConfidence,
		SnapshotID:        input.SnapshotID,
		SnapshotLocator:   input.SnapshotLocator,
		RetryCount:        input.RetryCount,
		NeedsManualReview: input.NeedsManualReview,
		ErrorLog:          input.ErrorLog,
		Epistemic:         epi,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleGet handles the candidate_get tool call.
func (h *Handlers) HandleGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[GetRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Fetch(h.db, h.cfg, ops.FetchInput{ID: input.ID})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandlePending handles the candidate_pending tool call.
func (h *Handlers) HandlePending(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PendingRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	var result *ops.PendingOutput
	if input.Status != "" {
		result, err = ops.List(h.db, ops.ListInput{
			Status: input.Status,
			Type:   input.Type,
			Limit:  input.Limit,
			Offset: input.Offset,
		})
	} else {
		result, err = ops.Pending(h.db, ops.PendingInput{
			Type:   input.Type,
			Limit:  input.Limit,
			Offset: input.Offset,
		})
	}
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleDecide handles the candidate_decide tool call.
func (h *Handlers) HandleDecide(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[DecideRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Decide(h.db, ops.DecideInput{
		CandidateID:        input.CandidateID,
		Decision:           input.Decision,
		Actor:              input.Actor,
		Reasoning:          input.Reasoning,
		ConfidenceOverride: input.ConfidenceOverride,
		SuggestedName:      input.SuggestedName,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleDuplicates handles the candidate_duplicates tool call.
func (h *Handlers) HandleDuplicates(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[DuplicatesRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.FindDuplicates(h.db, h.cfg, ops.DuplicatesInput{
		CandidateID: input.CandidateID,
		Key:         input.Key,
		Type:        input.Type,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandlePromote handles the candidate_promote tool call.
func (h *Handlers) HandlePromote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PromoteRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Promote(h.db, ops.PromoteInput{
		CandidateID:       input.CandidateID,
		CanonicalName:     input.CanonicalName,
		MergeWithEntityID: input.MergeWithEntityID,
		DryRun:            input.DryRun,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleReview handles the candidate_review tool call.
func (h *Handlers) HandleReview(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ReviewRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.ApplyReview(h.db, ops.ApplyReviewInput{
		EventID:            input.EventID,
		CandidateID:        input.CandidateID,
		Decision:           input.Decision,
		Actor:              input.Actor,
		Reasoning:          input.Reasoning,
		ConfidenceOverride: input.ConfidenceOverride,
		SuggestedName:      input.SuggestedName,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleReverify handles the candidate_reverify tool call.
// With an id it re-verifies that one candidate; without, it drains the
// pending queue through the worker pool.
func (h *Handlers) HandleReverify(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ReverifyRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	if input.ID != "" {
		result, err := ops.ReverifyOne(h.db, h.cfg, input.ID)
		if err != nil {
			return errorResult(err), nil
		}
		return successResult(result)
	}

	result, err := ops.Reverify(ctx, h.db, h.cfg, ops.ReverifyInput{
		Workers: input.Workers,
		Limit:   input.Limit,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleStats handles the candidate_stats tool call.
func (h *Handlers) HandleStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := ops.Stats(h.db)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Note: Internal error details are not exposed to prevent leaking sensitive info.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	var vouchErr *errors.VouchError
	if stderrors.As(err, &vouchErr) {
		errorObj := map[string]any{
			"code": vouchErr.Code,
			// err.Error() keeps any wrapping context added by callers
			"message": err.Error(),
			"status":  vouchErr.Status,
		}
		// Only include details for non-internal errors to avoid leaking
		// sensitive info like file paths or SQL errors
		if vouchErr.Code != errors.ErrInternal && vouchErr.Details != nil {
			errorObj["details"] = vouchErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}

package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/sakif/mutual-radar/internal/apperror"
	"github.com/sakif/mutual-radar/internal/auth"
	"github.com/sakif/mutual-radar/internal/discovery"
	"github.com/sakif/mutual-radar/internal/model"
)

// maxBodyBytes bounds JSON request bodies. A seen set of MAX_SEEN IDs fits
// many times over.
const maxBodyBytes = 64 << 10

// noMoreMessage accompanies {"candidate": null}.
const noMoreMessage = "No new interactions found."

// CandidateRanker is batch discovery. *discovery.Ranker satisfies it.
type CandidateRanker interface {
	Rank(ctx context.Context, sess *model.Session, mode discovery.Mode) ([]model.Candidate, error)
}

// CandidateCursor is incremental discovery. *discovery.Cursor satisfies it.
type CandidateCursor interface {
	Next(ctx context.Context, sess *model.Session, seen []string) (*model.Candidate, error)
}

// DiscoveryHandler serves the discovery endpoints. All routes sit behind
// RequireSession.
type DiscoveryHandler struct {
	ranker   CandidateRanker
	cursor   CandidateCursor
	captions discovery.Captioner
	logger   *slog.Logger
}

// NewDiscoveryHandler creates a DiscoveryHandler.
func NewDiscoveryHandler(ranker CandidateRanker, cursor CandidateCursor, captions discovery.Captioner, logger *slog.Logger) *DiscoveryHandler {
	return &DiscoveryHandler{ranker: ranker, cursor: cursor, captions: captions, logger: logger}
}

// NextRequest is the body of POST /next-interaction.
type NextRequest struct {
	SeenUserIDs []string `json:"seenUserIds"`
}

// NextResponse is the reply of POST /next-interaction. Candidate is null
// when nothing new was found.
type NextResponse struct {
	Candidate *model.Candidate `json:"candidate"`
	Message   string           `json:"message,omitempty"`
}

// AnalyzeRequest is the body of POST /analyze. Tweets is accepted as an
// alias of Snippets for older clients.
type AnalyzeRequest struct {
	TargetUsername string   `json:"targetUsername"`
	Snippets       []string `json:"snippets"`
	Tweets         []string `json:"tweets"`
}

// AnalyzeResponse is the reply of POST /analyze.
type AnalyzeResponse struct {
	Caption string `json:"caption"`
}

// HandleMutuals returns the ranked, captioned top candidates.
//
// HTTP: GET /mutuals[?mode=batch|exhaustive]
func (h *DiscoveryHandler) HandleMutuals(w http.ResponseWriter, r *http.Request) {
	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeError(w, apperror.SessionAbsent())
		return
	}

	mode, ok := discovery.ParseMode(r.URL.Query().Get("mode"))
	if !ok {
		writeError(w, apperror.ValidationFailed("mode must be batch or exhaustive"))
		return
	}

	candidates, err := h.ranker.Rank(r.Context(), sess, mode)
	if err != nil {
		h.logger.Error("mutuals: ranking failed",
			slog.String("session", sess.ID),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}
	if candidates == nil {
		candidates = []model.Candidate{}
	}

	writeJSON(w, http.StatusOK, candidates)
}

// HandleNextInteraction returns the next unseen candidate.
//
// HTTP: POST /next-interaction
// Body: {"seenUserIds": ["123", ...]}
func (h *DiscoveryHandler) HandleNextInteraction(w http.ResponseWriter, r *http.Request) {
	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeError(w, apperror.SessionAbsent())
		return
	}

	var req NextRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.SeenUserIDs == nil {
		writeError(w, apperror.ValidationFailed("seenUserIds must be an array"))
		return
	}

	cand, err := h.cursor.Next(r.Context(), sess, req.SeenUserIDs)
	if err != nil {
		h.logger.Error("next-interaction: lookup failed",
			slog.String("session", sess.ID),
			slog.Int("seen", len(req.SeenUserIDs)),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}

	if cand == nil {
		writeJSON(w, http.StatusOK, NextResponse{Message: noMoreMessage})
		return
	}
	writeJSON(w, http.StatusOK, NextResponse{Candidate: cand})
}

// HandleAnalyze captions an arbitrary target and snippet list.
//
// HTTP: POST /analyze
// Body: {"targetUsername": "alice", "snippets": ["...", ...]}
//
// Always 200 once the body is valid; caption failures fall back.
func (h *DiscoveryHandler) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeError(w, apperror.SessionAbsent())
		return
	}

	var req AnalyzeRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	snippets := req.Snippets
	if snippets == nil {
		snippets = req.Tweets
	}
	if req.TargetUsername == "" || snippets == nil {
		writeError(w, apperror.ValidationFailed("targetUsername and snippets are required"))
		return
	}

	caption := h.captions.Caption(r.Context(), sess.User.Username, req.TargetUsername, snippets)
	writeJSON(w, http.StatusOK, AnalyzeResponse{Caption: caption})
}

// decodeBody reads exactly one JSON object from a size-limited body.
// Anything but whitespace after the object is rejected.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperror.ValidationFailed("request body too large")
		}
		return apperror.ValidationFailed("request body must be a JSON object")
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return apperror.ValidationFailed("request body must be a single JSON object")
	}
	return nil
}

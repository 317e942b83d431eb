package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/tolerancia/pkg/model"
	"github.com/m-mizutani/tolerancia/pkg/usecase/phrase"
	"github.com/m-mizutani/tolerancia/pkg/usecase/tutor"
	"github.com/m-mizutani/tolerancia/pkg/utils/logging"
)

var (
	errInvalidBody       = goerr.New("invalid request body", goerr.T(model.ErrTagValidation))
	errServiceNotEnabled = goerr.New("AI service is not configured")
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	decision, ok := s.consume(w, r, model.FeatureGenerate)
	if !ok {
		return
	}

	var req model.GenerateRequest
	if err := decodeBody(w, r, &req); err != nil {
		handleError(w, r, err)
		return
	}
	if err := phrase.ValidatePhrase(req.Phrase); err != nil {
		handleError(w, r, err)
		return
	}

	if s.generator == nil {
		handleError(w, r, errServiceNotEnabled)
		return
	}
	result, err := s.generator.Generate(ctx, req.Phrase)
	if err != nil {
		handleError(w, r, goerr.Wrap(err, "failed to generate transformation"))
		return
	}

	writeJSON(w, http.StatusOK, &model.GenerateResponse{
		Transformation: result,
		RateLimit:      decision.View(),
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	decision, ok := s.consume(w, r, model.FeatureChat)
	if !ok {
		return
	}

	var req model.ChatRequest
	if err := decodeBody(w, r, &req); err != nil {
		handleError(w, r, err)
		return
	}
	input := tutor.RespondInput{
		Message: req.Message,
		History: req.History,
		Track:   req.Day,
	}
	if err := input.Validate(); err != nil {
		handleError(w, r, err)
		return
	}

	if s.responder == nil {
		handleError(w, r, errServiceNotEnabled)
		return
	}
	reply, err := s.responder.Respond(ctx, input)
	if err != nil {
		handleError(w, r, goerr.Wrap(err, "failed to respond", goerr.V("track", req.Day)))
		return
	}

	view := decision.View()
	writeJSON(w, http.StatusOK, &model.ChatResponse{
		Response:  reply,
		RateLimit: &view,
	})
}

func (s *Server) handleQuota(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	feature := model.Feature(r.URL.Query().Get("feature"))
	if err := feature.Validate(); err != nil {
		handleError(w, r, goerr.Wrap(err, "invalid feature", goerr.V("feature", feature)))
		return
	}

	key := model.NewQuotaKey(userFrom(ctx), feature)
	decision, err := s.tracker.Peek(ctx, key, s.limits[feature])
	if err != nil {
		handleError(w, r, err)
		return
	}

	setRateLimitHeaders(w, decision)
	writeJSON(w, http.StatusOK, &model.QuotaResponse{
		Feature:   feature,
		RateLimit: decision.View(),
	})
}

// consume takes one slot of feature for the caller. When it returns false the
// response has already been written.
func (s *Server) consume(w http.ResponseWriter, r *http.Request, feature model.Feature) (*model.QuotaDecision, bool) {
	ctx := r.Context()
	key := model.NewQuotaKey(userFrom(ctx), feature)

	decision, err := s.tracker.Check(ctx, key, s.limits[feature])
	if err != nil {
		handleError(w, r, err)
		return nil, false
	}

	setRateLimitHeaders(w, decision)
	if !decision.Allowed {
		logging.From(ctx).Info("quota exceeded",
			"feature", feature,
			"limit", decision.Limit,
			"reset_at", decision.ResetAt)

		remaining := 0
		resetAt := decision.ResetAt
		writeJSON(w, http.StatusTooManyRequests, &model.ErrorResponse{
			Error:     "daily limit reached",
			Remaining: &remaining,
			Limit:     decision.Limit,
			ResetAt:   &resetAt,
		})
		return nil, false
	}

	return decision, true
}

func setRateLimitHeaders(w http.ResponseWriter, d *model.QuotaDecision) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	h.Set("X-RateLimit-Reset", d.ResetAt.UTC().Format(time.RFC3339))
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return goerr.Wrap(errInvalidBody, "failed to decode body", goerr.V("cause", err.Error()))
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func handleError(w http.ResponseWriter, r *http.Request, err error) {
	logger := logging.From(r.Context())

	switch {
	case goerr.HasTag(err, model.ErrTagUnauthorized):
		logger.Info("unauthorized request", logging.ErrAttr(err))
		writeJSON(w, http.StatusUnauthorized, &model.ErrorResponse{Error: "unauthorized"})

	case goerr.HasTag(err, model.ErrTagValidation):
		logger.Info("invalid request", logging.ErrAttr(err))
		writeJSON(w, http.StatusBadRequest, &model.ErrorResponse{Error: validationMessage(err)})

	default:
		logger.Error("request failed", logging.ErrAttr(err))
		msg := "internal server error"
		if errors.Is(err, errServiceNotEnabled) || errors.Is(err, phrase.ErrLLMNotConfigured) || errors.Is(err, tutor.ErrLLMNotConfigured) {
			msg = "AI service is not configured"
		}
		writeJSON(w, http.StatusInternalServerError, &model.ErrorResponse{Error: msg})
	}
}

// validationMessage returns the message of the innermost error, which is the
// sentinel describing the rejected input
func validationMessage(err error) string {
	inner := err
	for e := errors.Unwrap(err); e != nil; e = errors.Unwrap(e) {
		inner = e
	}
	return inner.Error()
}

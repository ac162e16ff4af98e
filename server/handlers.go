package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/petal-labs/botflow/generate"
	"github.com/petal-labs/botflow/loader"
	"github.com/petal-labs/botflow/normalize"
	"github.com/petal-labs/botflow/registry"
)

const defaultRunListLimit = 50

// FlowRequest is the body of the normalize and generate endpoints. Payload
// may be any JSON value; a JSON string is treated as raw model output.
type FlowRequest struct {
	Instruction string             `json:"instruction,omitempty"`
	Payload     json.RawMessage    `json:"payload,omitempty"`
	Options     *normalize.Options `json:"options,omitempty"`
}

// FlowResponse is a normalization result tagged with its stored run id.
type FlowResponse struct {
	RunID string `json:"run_id,omitempty"`
	*normalize.Result
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleNodeTypes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, registry.Global().All())
}

func (s *Server) handleNormalize(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeFlowRequest(w, r)
	if !ok {
		return
	}
	opts := s.mergeOptions(req.Options)

	res, _ := s.observer.Normalize(r.Context(), SourceNormalize, func(context.Context) (*normalize.Result, error) {
		payload, parseErr := decodePayload(req.Payload)
		res := normalize.Normalize(normalize.Input{
			Payload:     payload,
			Instruction: req.Instruction,
			Options:     opts,
		})
		if parseErr != nil {
			res.MarkUnparsable(parseErr)
		}
		return res, nil
	})

	writeJSON(w, http.StatusOK, FlowResponse{
		RunID:  s.recordRun(r.Context(), SourceNormalize, req, res),
		Result: res,
	})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if s.generator == nil {
		writeError(w, http.StatusServiceUnavailable, "GENERATOR_UNAVAILABLE", "no LLM provider is configured")
		return
	}
	req, ok := decodeFlowRequest(w, r)
	if !ok {
		return
	}
	if strings.TrimSpace(req.Instruction) == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "instruction is required")
		return
	}
	opts := s.mergeOptions(req.Options)

	res, err := s.observer.Normalize(r.Context(), SourceGenerate, func(ctx context.Context) (*normalize.Result, error) {
		return s.generator.Generate(ctx, req.Instruction, opts)
	})
	if err != nil {
		if errors.Is(err, generate.ErrEmptyInstruction) {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
			return
		}
		s.logger.Error("flow generation failed", "error", err)
		writeError(w, http.StatusBadGateway, "PROVIDER_ERROR", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, FlowResponse{
		RunID:  s.recordRun(r.Context(), SourceGenerate, req, res),
		Result: res,
	})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunListLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", fmt.Sprintf("invalid limit %q", raw))
			return
		}
		limit = n
	}

	records, err := s.store.List(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	for i := range records {
		records[i].Payload = nil
		records[i].Result = nil
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, ok, err := s.store.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("run %q not found", id))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.Delete(r.Context(), id); err != nil {
		if errors.Is(err, ErrRunNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("run %q not found", id))
			return
		}
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// recordRun stores the run and returns its id. Storage failures are logged
// and leave the id empty; the caller still gets its result.
func (s *Server) recordRun(ctx context.Context, source string, req FlowRequest, res *normalize.Result) string {
	result, err := json.Marshal(res)
	if err != nil {
		s.logger.Error("encoding run result", "error", err)
		return ""
	}
	rec := RunRecord{
		ID:           uuid.New().String(),
		Source:       source,
		Instruction:  req.Instruction,
		Payload:      req.Payload,
		Result:       result,
		NodeCount:    len(res.Flow.Nodes),
		WarningCount: len(res.Validation.Warnings),
		ErrorCount:   len(res.Validation.Errors),
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.Create(ctx, rec); err != nil {
		s.logger.Error("storing run", "run_id", rec.ID, "error", err)
		return ""
	}
	s.logger.Debug("run stored", "run_id", rec.ID, "source", source,
		"nodes", rec.NodeCount, "warnings", rec.WarningCount, "errors", rec.ErrorCount)
	return rec.ID
}

// mergeOptions layers request options over the server defaults.
func (s *Server) mergeOptions(override *normalize.Options) normalize.Options {
	opts := s.options
	if override == nil {
		return opts
	}
	if override.MaxNodes > 0 {
		opts.MaxNodes = override.MaxNodes
	}
	if len(override.AllowNodeTypes) > 0 {
		opts.AllowNodeTypes = override.AllowNodeTypes
	}
	if override.Complexity != "" {
		opts.Complexity = override.Complexity
	}
	return opts
}

func decodeFlowRequest(w http.ResponseWriter, r *http.Request) (FlowRequest, bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		if isMaxBytesError(err) {
			writeError(w, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "request body exceeds size limit")
			return FlowRequest{}, false
		}
		writeError(w, http.StatusBadRequest, "READ_ERROR", err.Error())
		return FlowRequest{}, false
	}
	var req FlowRequest
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
			return FlowRequest{}, false
		}
	}
	return req, true
}

// decodePayload turns the request payload into a JSON value. A string
// payload is searched for an embedded JSON document; when none is found the
// payload becomes an empty object and the error is returned.
func decodePayload(raw json.RawMessage) (any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return map[string]any{}, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return map[string]any{}, err
	}
	text, ok := v.(string)
	if !ok {
		return v, nil
	}
	extracted, err := loader.ExtractJSON(text)
	if err != nil {
		return map[string]any{}, err
	}
	return extracted, nil
}

// isMaxBytesError checks if the error is from http.MaxBytesReader.
func isMaxBytesError(err error) bool {
	var maxBytesErr *http.MaxBytesError
	return errors.As(err, &maxBytesErr)
}

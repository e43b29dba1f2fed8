package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/petrijr/pocketflow"
	"github.com/petrijr/pocketflow/internal/definition"
	"github.com/petrijr/pocketflow/internal/persistence"
	"github.com/petrijr/pocketflow/pkg/api"
)

const maxDefinitionBytes = 1 << 20

type nodeSummary struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

type routeSummary struct {
	From      string `json:"from"`
	Action    string `json:"action"`
	To        string `json:"to"`
	Condition string `json:"condition,omitempty"`
}

type flowSummary struct {
	Name            string         `json:"name"`
	Description     string         `json:"description,omitempty"`
	Start           string         `json:"start"`
	MaxSteps        int            `json:"max_steps"`
	TerminalActions []string       `json:"terminal_actions"`
	Nodes           []nodeSummary  `json:"nodes"`
	Routes          []routeSummary `json:"routes"`
}

func summarize(e entry) flowSummary {
	cfg := e.flow.Config()
	sum := flowSummary{
		Name:            e.def.Name,
		Description:     e.def.Description,
		Start:           cfg.StartNodeID,
		MaxSteps:        cfg.MaxSteps,
		TerminalActions: cfg.TerminalActions,
		Nodes:           []nodeSummary{},
		Routes:          []routeSummary{},
	}
	for _, id := range e.def.NodeIDs() {
		sum.Nodes = append(sum.Nodes, nodeSummary{ID: id, Type: e.def.Nodes[id].Type})
	}
	for _, r := range e.def.Routes {
		rs := routeSummary{From: r.From, Action: r.Action, To: r.To}
		if r.When != nil {
			if c, err := r.When.Condition(); err == nil {
				rs.Condition = c.String()
			}
		}
		sum.Routes = append(sum.Routes, rs)
	}
	return sum
}

func (s *Server) listFlows(w http.ResponseWriter, r *http.Request) {
	result := make([]flowSummary, 0)
	for _, name := range s.Names() {
		if e, ok := s.lookup(name); ok {
			result = append(result, summarize(e))
		}
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) getFlow(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookup(chi.URLParam(r, "name"))
	if !ok {
		writeError(w, http.StatusNotFound, "flow not found")
		return
	}
	writeJSON(w, http.StatusOK, summarize(e))
}

// createFlow registers a YAML definition sent as the request body.
func (s *Server) createFlow(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxDefinitionBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("flow definition exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	def, err := definition.Parse(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.Register(def); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	e, _ := s.lookup(def.Name)
	writeJSON(w, http.StatusCreated, summarize(e))
}

func (s *Server) deleteFlow(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	s.mu.Lock()
	_, ok := s.flows[name]
	delete(s.flows, name)
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "flow not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) validateFlow(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookup(chi.URLParam(r, "name"))
	if !ok {
		writeError(w, http.StatusNotFound, "flow not found")
		return
	}
	if err := e.flow.Validate(); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"valid": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": true})
}

type runRequest struct {
	Store  map[string]any `json:"store"`
	Start  string         `json:"start"`
	Shared bool           `json:"shared"`
	Async  bool           `json:"async"`
}

type runResponse struct {
	Result map[string]any `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`
	Kind   string         `json:"kind,omitempty"`
	Store  map[string]any `json:"store"`
}

func (s *Server) runFlow(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookup(chi.URLParam(r, "name"))
	if !ok {
		writeError(w, http.StatusNotFound, "flow not found")
		return
	}

	var body runRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid run request: "+err.Error())
			return
		}
	}

	if body.Async {
		s.enqueueRun(w, r, e, body)
		return
	}

	var store api.Store
	switch {
	case body.Shared && s.opts.SharedStore == nil:
		writeError(w, http.StatusBadRequest, "no shared store configured")
		return
	case body.Shared:
		store = s.opts.SharedStore
		for k, v := range body.Store {
			if err := store.Set(r.Context(), k, v); err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
		}
	default:
		store = persistence.NewInMemoryStoreFrom(body.Store)
	}

	ctx := r.Context()
	if s.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.RunTimeout)
		defer cancel()
	}

	res, runErr := s.opts.Runner.Run(ctx, pocketflow.RunRequest{Flow: e.flow, Store: store, StartNode: body.Start})

	snapshot, err := api.Snapshot(r.Context(), store)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runErr != nil {
		s.opts.Logger.Warn("server: run failed", "flow", e.def.Name, "error", runErr)
		writeJSON(w, http.StatusUnprocessableEntity, runResponse{Error: runErr.Error(), Kind: api.KindName(runErr), Store: snapshot})
		return
	}
	writeJSON(w, http.StatusOK, runResponse{Result: res.Record(), Store: snapshot})
}

func (s *Server) enqueueRun(w http.ResponseWriter, r *http.Request, e entry, body runRequest) {
	switch {
	case s.worker == nil:
		writeError(w, http.StatusBadRequest, "no task queue configured")
		return
	case body.Shared:
		writeError(w, http.StatusBadRequest, "queued runs cannot use the shared store")
		return
	}
	run, err := s.worker.Enqueue(r.Context(), e.def.Name, body.Start, body.Store)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	w.Header().Set("Location", "/api/runs/"+run.ID)
	writeJSON(w, http.StatusAccepted, run)
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	if s.worker == nil {
		writeError(w, http.StatusNotFound, "no task queue configured")
		return
	}
	run, ok, err := s.worker.Status(r.Context(), chi.URLParam(r, "id"))
	switch {
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	case !ok:
		writeError(w, http.StatusNotFound, "run not found")
	default:
		writeJSON(w, http.StatusOK, run)
	}
}

package api

import (
	"context"
	"net/http"

	"github.com/cuemby/ember/pkg/dispatcher"
	"github.com/cuemby/ember/pkg/types"
	"github.com/go-chi/chi/v5"
)

func (s *Server) submitTask(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "%v", err)
		return
	}

	origin := req.Origin
	if origin == "" {
		origin = clientAddress(r, s.proxies)
	}

	a, err := s.dispatcher.Submit(r.Context(), dispatcher.SubmitRequest{
		Environment: req.Environment,
		Origin:      types.ClientAddress(origin),
		ID:          req.ID,
		Weight:      req.Weight,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, assignmentResponse(a))
}

func (s *Server) completeTask(w http.ResponseWriter, r *http.Request) {
	s.retire(w, r, s.dispatcher.Complete)
}

func (s *Server) cancelTask(w http.ResponseWriter, r *http.Request) {
	s.retire(w, r, s.dispatcher.Cancel)
}

type retireFunc func(ctx context.Context, worker types.WorkerID, id types.TaskID) error

func (s *Server) retire(w http.ResponseWriter, r *http.Request, fn retireFunc) {
	worker := types.WorkerID(chi.URLParam(r, "id"))

	id, err := s.dispatcher.Lookup(r.Context(), worker, chi.URLParam(r, "task"))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := fn(r.Context(), worker, id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listWorkers(w http.ResponseWriter, r *http.Request) {
	state, err := s.dispatcher.State(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	workers := state.Workers()
	out := make([]WorkerResponse, 0, len(workers))
	for _, wk := range workers {
		out = append(out, workerResponse(wk, state.Cost().BacklogLoad(wk)))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getWorker(w http.ResponseWriter, r *http.Request) {
	state, err := s.dispatcher.State(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	id := chi.URLParam(r, "id")
	wk, ok := state.Worker(types.WorkerID(id))
	if !ok {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "worker not found: " + id, Kind: "worker_not_found"})
		return
	}
	writeJSON(w, http.StatusOK, workerResponse(wk, state.Cost().BacklogLoad(wk)))
}

func (s *Server) addWorker(w http.ResponseWriter, r *http.Request) {
	var req AddWorkerRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "%v", err)
		return
	}
	if req.ID == "" {
		badRequest(w, "worker id is required")
		return
	}

	var state types.WorkerState
	if req.State != nil {
		st, err := req.State.WorkerState()
		if err != nil {
			badRequest(w, "%v", err)
			return
		}
		state = st
	}

	id := types.WorkerID(req.ID)
	if err := s.dispatcher.AddWorker(r.Context(), id, req.Environment, state); err != nil {
		writeError(w, err)
		return
	}

	st, err := s.dispatcher.State(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	wk, _ := st.Worker(id)
	writeJSON(w, http.StatusCreated, workerResponse(wk, st.Cost().BacklogLoad(wk)))
}

func (s *Server) removeWorker(w http.ResponseWriter, r *http.Request) {
	res, err := s.dispatcher.RemoveWorker(r.Context(), types.WorkerID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reassignmentResponse(res))
}

func (s *Server) updateState(w http.ResponseWriter, r *http.Request) {
	var ref types.StateRef
	if err := decode(r, &ref); err != nil {
		badRequest(w, "%v", err)
		return
	}
	state, err := ref.WorkerState()
	if err != nil {
		badRequest(w, "%v", err)
		return
	}

	if err := s.dispatcher.UpdateState(r.Context(), types.WorkerID(chi.URLParam(r, "id")), state); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	state, err := s.dispatcher.State(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	h := state.History()
	writeJSON(w, http.StatusOK, HistoryResponse{Capacity: h.Capacity(), Records: h.Records()})
}

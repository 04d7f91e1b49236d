package api

import (
	"errors"
	"net/http"

	"github.com/cuemby/ember/pkg/manager"
	"github.com/go-chi/chi/v5"
)

func (s *Server) clusterInfo(w http.ResponseWriter, r *http.Request) {
	servers, err := s.cluster.Servers()
	if err != nil {
		writeError(w, err)
		return
	}

	out := ClusterResponse{
		NodeID:   s.cluster.NodeID(),
		IsLeader: s.cluster.IsLeader(),
		Leader:   s.cluster.LeaderAddr(),
		Servers:  make([]ServerResponse, 0, len(servers)),
	}
	for _, srv := range servers {
		out.Servers = append(out.Servers, ServerResponse{
			ID:       string(srv.ID),
			Address:  string(srv.Address),
			Suffrage: srv.Suffrage.String(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createJoinToken(w http.ResponseWriter, r *http.Request) {
	jt, err := s.cluster.GenerateJoinToken()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, jt)
}

func (s *Server) listJoinTokens(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cluster.JoinTokens())
}

func (s *Server) joinCluster(w http.ResponseWriter, r *http.Request) {
	var req JoinRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "%v", err)
		return
	}
	if req.NodeID == "" || req.Address == "" {
		badRequest(w, "node_id and address are required")
		return
	}

	if err := s.cluster.Join(req.Token, req.NodeID, req.Address); err != nil {
		if errors.Is(err, manager.ErrInvalidToken) || errors.Is(err, manager.ErrTokenExpired) {
			writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: err.Error(), Kind: "unauthorized"})
			return
		}
		writeError(w, err)
		return
	}

	s.logger.Info().Str("voter_id", req.NodeID).Str("address", req.Address).Msg("node joined cluster")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) removeServer(w http.ResponseWriter, r *http.Request) {
	if err := s.cluster.RemoveServer(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

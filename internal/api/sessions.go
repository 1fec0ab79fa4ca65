package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"sitegrade/internal/report"
	"sitegrade/internal/workflow"
)

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	var req StartSessionRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	id, err := s.sessions.StartSession(r.Context(), user, req.URL)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	state, err := s.sessions.State(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeOK(w, http.StatusCreated, FromSessionState(state))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	state, err := s.ownedSession(r, user)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeOK(w, http.StatusOK, FromSessionState(state))
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	state, err := s.ownedSession(r, user)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	outcome, err := s.sessions.Advance(r.Context(), state.ID)
	if err != nil {
		var phaseErr *workflow.PhaseError
		if errors.As(err, &phaseErr) {
			failed := FromPhaseResult(phaseErr.Result)
			s.writeErrorData(w, r, err, AdvanceResponse{Phase: phaseErr.Phase.String(), Result: &failed})
			return
		}
		s.writeError(w, r, err)
		return
	}
	if outcome.Stream == nil {
		s.writeOK(w, http.StatusOK, FromOutcome(outcome))
		return
	}
	s.streamNDJSON(w, r, outcome.Stream)
}

// streamNDJSON writes one event per line. A failed stream ends with a
// StreamError line instead of done.
func (s *Server) streamNDJSON(w http.ResponseWriter, r *http.Request, relay *workflow.Relay) {
	w.Header().Set("Content-Type", ndjsonContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	encoder := json.NewEncoder(w)

	for {
		select {
		case event, ok := <-relay.Events():
			if !ok {
				if err := relay.Err(); err != nil {
					_ = encoder.Encode(streamError(err))
					if flusher != nil {
						flusher.Flush()
					}
				}
				return
			}
			if err := encoder.Encode(event); err != nil {
				relay.Stop()
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		case <-r.Context().Done():
			relay.Stop()
			return
		}
	}
}

func streamError(err error) StreamError {
	body := errorBody(err)
	return StreamError{Type: "error", Code: body.Code, Message: body.Message, Retryable: body.Retryable}
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	state, err := s.ownedSession(r, user)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req ChatRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	reply, err := s.sessions.SubmitChatMessage(r.Context(), state.ID, req.Message)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeOK(w, http.StatusOK, ChatResponse{Message: reply.Message, Phase: reply.Phase.String()})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	state, err := s.ownedSession(r, user)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req ReportRequest
	if r.ContentLength != 0 {
		if err := decodeBody(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	format, err := report.ParseFormat(req.Format)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	handle, err := s.sessions.GenerateReport(r.Context(), state.ID, format)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeOK(w, http.StatusCreated, FromReportHandle(handle))
}

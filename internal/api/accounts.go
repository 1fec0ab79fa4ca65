package api

import (
	"net/http"

	"sitegrade/internal/ledger"
)

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	user, ok := s.ownAccount(w, r)
	if !ok {
		return
	}
	account, err := s.accounts.Balance(r.Context(), user)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeOK(w, http.StatusOK, FromAccount(account))
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	user, ok := s.ownAccount(w, r)
	if !ok {
		return
	}
	txns, err := s.accounts.Transactions(r.Context(), ledger.TransactionQuery{
		AccountID:    user,
		EvaluationID: r.URL.Query().Get("evaluation"),
		Limit:        listLimit(r),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	items := make([]Transaction, 0, len(txns))
	for _, txn := range txns {
		items = append(items, FromTransaction(txn))
	}
	s.writeOK(w, http.StatusOK, TransactionListResponse{Items: items})
}

func (s *Server) handleEvaluations(w http.ResponseWriter, r *http.Request) {
	user, ok := s.ownAccount(w, r)
	if !ok {
		return
	}
	evals, err := s.evaluations.ListEvaluations(r.Context(), user, listLimit(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	items := make([]Evaluation, 0, len(evals))
	for _, eval := range evals {
		items = append(items, FromEvaluation(eval))
	}
	s.writeOK(w, http.StatusOK, EvaluationListResponse{Items: items})
}

package api

import (
	"time"

	"sitegrade/internal/history"
	"sitegrade/internal/ledger"
	"sitegrade/internal/report"
	"sitegrade/internal/validator"
	"sitegrade/internal/workflow"
)

// FromSessionState converts a workflow session to its API representation.
func FromSessionState(state workflow.SessionState) Session {
	dto := Session{
		ID:           state.ID,
		UserID:       state.UserID,
		EvaluationID: state.EvaluationID,
		URL:          state.URL,
		CurrentPhase: state.CurrentPhase.String(),
		PhaseScores:  make(map[string]float64, len(state.PhaseScores)),
		OverallScore: state.OverallScore,
		Streaming:    state.Streaming,
		Complete:     state.Complete,
		Results:      make([]PhaseResult, 0, len(state.Results)),
		StartedAt:    formatTime(state.StartedAt),
		UpdatedAt:    formatTime(state.UpdatedAt),
	}
	if next, ok := state.NextPhase(); ok {
		dto.NextPhase = next.String()
	}
	for p, score := range state.PhaseScores {
		dto.PhaseScores[p.String()] = score
	}
	for _, result := range state.Results {
		dto.Results = append(dto.Results, FromPhaseResult(result))
	}
	return dto
}

// FromPhaseResult converts a recorded phase attempt.
func FromPhaseResult(result history.PhaseResult) PhaseResult {
	return PhaseResult{
		ID:        result.ID,
		Phase:     result.Phase.String(),
		Title:     result.Phase.Title(),
		Narrative: result.Narrative,
		Metrics:   result.Metrics,
		Ratings:   fromRatings(result.Ratings),
		Score:     result.Score,
		Error:     result.Error,
		CreatedAt: formatTime(result.CreatedAt),
	}
}

func fromRatings(ratings []validator.MetricRating) []Rating {
	if len(ratings) == 0 {
		return nil
	}
	out := make([]Rating, 0, len(ratings))
	for _, r := range ratings {
		out = append(out, Rating{
			Metric: r.Metric,
			Value:  r.Value,
			Rating: string(r.Rating),
			Target: r.Target,
		})
	}
	return out
}

// FromOutcome converts a non-streaming advance.
func FromOutcome(outcome workflow.Outcome) AdvanceResponse {
	resp := AdvanceResponse{Phase: outcome.Phase.String(), OverallScore: outcome.OverallScore}
	if outcome.Result != nil {
		result := FromPhaseResult(*outcome.Result)
		resp.Result = &result
	}
	return resp
}

// FromAccount converts a ledger account.
func FromAccount(account ledger.Account) Account {
	return Account{
		ID:               account.ID,
		Balance:          account.Balance.String(),
		PayAsYouGo:       account.PayAsYouGo,
		HasPaymentMethod: account.HasPaymentMethod,
		UpdatedAt:        formatTime(account.UpdatedAt),
	}
}

// FromTransaction converts a ledger entry.
func FromTransaction(txn ledger.Transaction) Transaction {
	dto := Transaction{
		ID:           txn.ID,
		Kind:         string(txn.Kind),
		Action:       string(txn.Action),
		Amount:       txn.Amount.String(),
		BalanceAfter: txn.BalanceAfter.String(),
		EvaluationID: txn.EvaluationID,
		RefundOf:     txn.RefundOf,
		CreatedAt:    formatTime(txn.CreatedAt),
	}
	if txn.Metered != 0 {
		dto.Metered = txn.Metered.String()
	}
	return dto
}

// FromEvaluation converts a persisted evaluation.
func FromEvaluation(eval history.Evaluation) Evaluation {
	return Evaluation{
		ID:            eval.ID,
		URL:           eval.URL,
		ScreenshotRef: eval.ScreenshotRef,
		CreatedAt:     formatTime(eval.CreatedAt),
	}
}

// FromReportHandle converts a generated report.
func FromReportHandle(handle report.Handle) Report {
	return Report{
		ID:           handle.ID,
		EvaluationID: handle.EvaluationID,
		Format:       string(handle.Format),
		Path:         handle.Path,
		Bytes:        handle.Bytes,
		CreatedAt:    formatTime(handle.CreatedAt),
	}
}

// FromStatusSummary converts workflow diagnostics.
func FromStatusSummary(summary workflow.StatusSummary) Health {
	checks := make([]HealthCheck, 0, len(summary.Health))
	for _, h := range summary.Health {
		checks = append(checks, HealthCheck{Name: h.Name, Ready: h.Ready, Detail: h.Detail})
	}
	return Health{
		Ready:          summary.Ready(),
		Running:        summary.Running,
		ActiveSessions: summary.ActiveSessions,
		LastError:      summary.LastError,
		Checks:         checks,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

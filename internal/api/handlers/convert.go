package handlers

import (
	"time"

	"github.com/eshaffer321/splitmatch/internal/api/dto"
	"github.com/eshaffer321/splitmatch/internal/domain/splitmatch"
)

func toRecordResponse(r *splitmatch.CandidateRecord) dto.RecordResponse {
	return dto.RecordResponse{
		ID:               r.ID,
		Kind:             string(r.Kind),
		AmountCents:      r.AmountCents,
		Amount:           dto.FormatCents(r.AmountCents),
		Date:             r.Date.Format(time.DateOnly),
		AllocationStatus: string(r.AllocationStatus),
		AllocatedTo:      r.AllocatedTo,
		Description:      r.Description,
	}
}

func toSuggestionResponse(rank int, s splitmatch.Suggestion) dto.SuggestionResponse {
	resp := dto.SuggestionResponse{
		Rank:                rank,
		MatchType:           string(s.MatchType),
		SourceTransactionID: s.SourceTransactionID,
		TargetAmountCents:   s.TargetAmountCents,
		MatchedAmountCents:  s.MatchedAmountCents,
		RemainderCents:      s.RemainderCents,
		TargetAmount:        dto.FormatCents(s.TargetAmountCents),
		MatchedAmount:       dto.FormatCents(s.MatchedAmountCents),
		Remainder:           dto.FormatCents(s.RemainderCents),
		Components:          make([]dto.ComponentResponse, 0, len(s.Components)),
	}
	for i, c := range s.Components {
		resp.Components = append(resp.Components, dto.ComponentResponse{
			CandidateRecordID: c.CandidateRecordID,
			Kind:              string(c.Kind),
			AmountCents:       c.AmountCents,
			Amount:            dto.FormatCents(c.AmountCents),
			Date:              c.Date.Format(time.DateOnly),
			Position:          i,
		})
	}
	return resp
}

func toSplitMatchResponse(m *splitmatch.SplitMatch) dto.SplitMatchResponse {
	resp := dto.SplitMatchResponse{
		ID:                  m.ID,
		SourceTransactionID: m.SourceTransactionID,
		MatchType:           string(m.MatchType),
		Status:              string(m.Status),
		TargetAmountCents:   m.TargetAmountCents,
		MatchedAmountCents:  m.MatchedAmountCents,
		RemainderCents:      m.RemainderCents,
		TargetAmount:        dto.FormatCents(m.TargetAmountCents),
		MatchedAmount:       dto.FormatCents(m.MatchedAmountCents),
		Remainder:           dto.FormatCents(m.RemainderCents),
		Components:          make([]dto.ComponentResponse, 0, len(m.Components)),
		CreatedAt:           m.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:           m.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if m.ConfirmedAt != nil {
		resp.ConfirmedAt = m.ConfirmedAt.UTC().Format(time.RFC3339)
	}
	for _, c := range m.Components {
		resp.Components = append(resp.Components, dto.ComponentResponse{
			CandidateRecordID: c.CandidateRecordID,
			AmountCents:       c.AmountCents,
			Amount:            dto.FormatCents(c.AmountCents),
			Position:          c.Position,
		})
	}
	return resp
}

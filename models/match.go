package models

import "time"

type MatchState string

const (
	// MatchStatePending means at least one slot is still TBD.
	MatchStatePending  MatchState = "pending"
	MatchStateOpen     MatchState = "open"
	MatchStateComplete MatchState = "complete"
)

// Match mirrors a provider match. Player IDs are provider participant IDs; nil means TBD.
type Match struct {
	ExternalID         int64      `json:"id"`
	InstanceExternalID int64      `json:"tournament_id"`
	Round              int        `json:"round"`
	Player1ID          *int64     `json:"player1_id,omitempty"`
	Player2ID          *int64     `json:"player2_id,omitempty"`
	State              MatchState `json:"state"`
	ScoresCSV          string     `json:"scores_csv,omitempty"`
	WinnerID           *int64     `json:"winner_id,omitempty"`
}

func (m *Match) HasPlayer(participantID int64) bool {
	return (m.Player1ID != nil && *m.Player1ID == participantID) ||
		(m.Player2ID != nil && *m.Player2ID == participantID)
}

func (m *Match) IsComplete() bool {
	return m.State == MatchStateComplete && m.WinnerID != nil
}

type ReportStatus string

const (
	ReportStatusPending             ReportStatus = "pending"
	ReportStatusPushed              ReportStatus = "pushed"
	ReportStatusNeedsReconciliation ReportStatus = "needs_reconciliation"
	ReportStatusResolved            ReportStatus = "resolved"
)

// MatchReport is the local commit record of a reported result. It is the only match data
// persisted locally and carries the reconciliation flag when the provider push is uncertain.
type MatchReport struct {
	ID                  string       `json:"id" db:"id"`
	InstanceID          int          `json:"instance_id" db:"instance_id"`
	MatchExternalID     int64        `json:"match_external_id" db:"match_external_id"`
	Round               int          `json:"round" db:"round"`
	WinnerParticipantID int          `json:"winner_participant_id" db:"winner_participant_id"`
	WinnerExternalID    int64        `json:"winner_external_id" db:"winner_external_id"`
	Player1Score        int          `json:"player1_score" db:"player1_score"`
	Player2Score        int          `json:"player2_score" db:"player2_score"`
	Status              ReportStatus `json:"status" db:"status"`
	LastError           *string      `json:"last_error,omitempty" db:"last_error"`
	CreatedAt           time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time    `json:"updated_at" db:"updated_at"`
}

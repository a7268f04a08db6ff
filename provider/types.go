package provider

import (
	"fmt"
	"strings"

	"github.com/Dosada05/league-orchestrator/models"
)

// TournamentState is the provider's own lifecycle vocabulary.
type TournamentState string

const (
	TournamentPending        TournamentState = "pending"
	TournamentUnderway       TournamentState = "underway"
	TournamentAwaitingReview TournamentState = "awaiting_review"
	TournamentComplete       TournamentState = "complete"
)

// InstanceState collapses the provider vocabulary onto the local state machine.
func (s TournamentState) InstanceState() models.InstanceState {
	switch s {
	case TournamentPending:
		return models.StatePending
	case TournamentComplete:
		return models.StateComplete
	default:
		return models.StateInProgress
	}
}

// ListState filters tournament listings.
type ListState string

const (
	ListAll        ListState = "all"
	ListPending    ListState = "pending"
	ListInProgress ListState = "in_progress"
	ListEnded      ListState = "ended"
)

// MatchFilter filters match listings.
type MatchFilter string

const (
	MatchesAll      MatchFilter = "all"
	MatchesOpen     MatchFilter = "open"
	MatchesPending  MatchFilter = "pending"
	MatchesComplete MatchFilter = "complete"
)

type Tournament struct {
	ID                int64           `json:"id"`
	Name              string          `json:"name"`
	URL               string          `json:"url"`
	State             TournamentState `json:"state"`
	Format            models.Format   `json:"format"`
	ParticipantsCount int             `json:"participants_count"`
	FullURL           string          `json:"full_url,omitempty"`
}

type Participant struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Seed      int    `json:"seed"`
	FinalRank *int   `json:"final_rank,omitempty"`
}

type CreateParams struct {
	Name        string
	URL         string
	Format      models.Format
	GameName    string
	Description string
}

// MatchUpdate carries a result already oriented to the match slots.
type MatchUpdate struct {
	ScoresCSV string
	WinnerID  int64
}

// ScoresCSV renders slot-oriented scores the way the provider stores them, e.g. "3-2".
func ScoresCSV(player1, player2 int) string {
	return fmt.Sprintf("%d-%d", player1, player2)
}

var formatWire = map[models.Format]string{
	models.FormatSingleElimination: "single elimination",
	models.FormatDoubleElimination: "double elimination",
	models.FormatRoundRobin:        "round robin",
	models.FormatSwiss:             "swiss",
}

func formatToWire(f models.Format) string {
	if w, ok := formatWire[f]; ok {
		return w
	}
	return formatWire[models.FormatSingleElimination]
}

func formatFromWire(w string) models.Format {
	w = strings.ToLower(strings.TrimSpace(w))
	for f, wire := range formatWire {
		if wire == w {
			return f
		}
	}
	return models.FormatSingleElimination
}

// Wire envelopes. Required fields are pointers so that a missing key is detectable.

type tournamentEnvelope struct {
	Tournament *tournamentWire `json:"tournament"`
}

type tournamentWire struct {
	ID                *int64  `json:"id"`
	Name              *string `json:"name"`
	URL               string  `json:"url"`
	State             *string `json:"state"`
	TournamentType    string  `json:"tournament_type"`
	ParticipantsCount int     `json:"participants_count"`
	FullChallongeURL  string  `json:"full_challonge_url"`
}

func (w *tournamentEnvelope) toTournament() (*Tournament, error) {
	t := w.Tournament
	if t == nil {
		return nil, fmt.Errorf("%w: missing tournament object", ErrDecode)
	}
	if t.ID == nil || t.Name == nil || t.State == nil {
		return nil, fmt.Errorf("%w: tournament requires id, name and state", ErrDecode)
	}
	return &Tournament{
		ID:                *t.ID,
		Name:              *t.Name,
		URL:               t.URL,
		State:             TournamentState(*t.State),
		Format:            formatFromWire(t.TournamentType),
		ParticipantsCount: t.ParticipantsCount,
		FullURL:           t.FullChallongeURL,
	}, nil
}

type participantEnvelope struct {
	Participant *participantWire `json:"participant"`
}

type participantWire struct {
	ID        *int64  `json:"id"`
	Name      *string `json:"name"`
	Seed      int     `json:"seed"`
	FinalRank *int    `json:"final_rank"`
}

func (w *participantEnvelope) toParticipant() (*Participant, error) {
	p := w.Participant
	if p == nil {
		return nil, fmt.Errorf("%w: missing participant object", ErrDecode)
	}
	if p.ID == nil || p.Name == nil {
		return nil, fmt.Errorf("%w: participant requires id and name", ErrDecode)
	}
	return &Participant{ID: *p.ID, Name: *p.Name, Seed: p.Seed, FinalRank: p.FinalRank}, nil
}

type matchEnvelope struct {
	Match *matchWire `json:"match"`
}

type matchWire struct {
	ID           *int64  `json:"id"`
	TournamentID int64   `json:"tournament_id"`
	Round        *int    `json:"round"`
	Player1ID    *int64  `json:"player1_id"`
	Player2ID    *int64  `json:"player2_id"`
	State        *string `json:"state"`
	ScoresCSV    *string `json:"scores_csv"`
	WinnerID     *int64  `json:"winner_id"`
}

func (w *matchEnvelope) toMatch() (*models.Match, error) {
	m := w.Match
	if m == nil {
		return nil, fmt.Errorf("%w: missing match object", ErrDecode)
	}
	if m.ID == nil || m.Round == nil || m.State == nil {
		return nil, fmt.Errorf("%w: match requires id, round and state", ErrDecode)
	}
	state := models.MatchState(*m.State)
	switch state {
	case models.MatchStateOpen, models.MatchStatePending, models.MatchStateComplete:
	default:
		return nil, fmt.Errorf("%w: unknown match state %q", ErrDecode, *m.State)
	}
	out := &models.Match{
		ExternalID:         *m.ID,
		InstanceExternalID: m.TournamentID,
		Round:              *m.Round,
		Player1ID:          m.Player1ID,
		Player2ID:          m.Player2ID,
		State:              state,
		WinnerID:           m.WinnerID,
	}
	if m.ScoresCSV != nil {
		out.ScoresCSV = *m.ScoresCSV
	}
	return out, nil
}

// apiErrors is the body of a rejected write.
type apiErrors struct {
	Errors []string `json:"errors"`
}

// Package provider talks to the external bracket host, which owns bracket topology and match state.
package provider

import (
	"context"

	"github.com/Dosada05/league-orchestrator/models"
)

// Provider is the typed surface of the bracket host. Implementations must not retry writes:
// a write that fails ambiguously returns an error wrapping ErrOutcomeUnknown.
type Provider interface {
	CreateTournament(ctx context.Context, params CreateParams) (*Tournament, error)
	ListTournaments(ctx context.Context, state ListState) ([]Tournament, error)
	ShowTournament(ctx context.Context, id int64) (*Tournament, error)
	// ShowTournamentByURL returns ErrNotFound when no tournament uses the slug.
	ShowTournamentByURL(ctx context.Context, url string) (*Tournament, error)
	DestroyTournament(ctx context.Context, id int64) error
	StartTournament(ctx context.Context, id int64) (*Tournament, error)
	FinalizeTournament(ctx context.Context, id int64) (*Tournament, error)
	ResetTournament(ctx context.Context, id int64) (*Tournament, error)
	RandomizeSeeds(ctx context.Context, id int64) error

	AddParticipant(ctx context.Context, tournamentID int64, name string) (*Participant, error)
	RemoveParticipant(ctx context.Context, tournamentID, participantID int64) error
	ListParticipants(ctx context.Context, tournamentID int64) ([]Participant, error)

	ListMatches(ctx context.Context, tournamentID int64, filter MatchFilter) ([]models.Match, error)
	UpdateMatch(ctx context.Context, tournamentID, matchID int64, update MatchUpdate) (*models.Match, error)
}

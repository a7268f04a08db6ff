package brackets

import (
	"context"

	"github.com/Dosada05/league-orchestrator/models"
)

// BracketMatch is one generated pairing. A nil participant slot is filled later from
// the winner of the referenced source match.
type BracketMatch struct {
	UID          string
	Round        int
	OrderInRound int

	Participant1ID *int64
	Participant2ID *int64

	SourceMatch1UID *string
	SourceMatch2UID *string

	IsPlaceholder bool
}

type GenerateBracketParams struct {
	// ParticipantIDs are in seed order.
	ParticipantIDs []int64
}

type BracketGenerator interface {
	GenerateBracket(ctx context.Context, params GenerateBracketParams) ([]*BracketMatch, error)

	GetName() string
}

// ForFormat returns the generator used for a bracket format. Double elimination is played as
// single elimination and swiss as a full round robin.
func ForFormat(f models.Format) BracketGenerator {
	if f.IsElimination() {
		return NewSingleEliminationGenerator()
	}
	return NewRoundRobinGenerator()
}

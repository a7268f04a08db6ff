package brackets

import (
	"context"
	"fmt"
)

type RoundRobinGenerator struct{}

func NewRoundRobinGenerator() BracketGenerator {
	return &RoundRobinGenerator{}
}

func (g *RoundRobinGenerator) GetName() string {
	return "RoundRobin"
}

// GenerateBracket pairs every participant with every other exactly once using the circle
// method, so that each participant plays at most one match per round. With an odd count
// one participant sits out each round.
func (g *RoundRobinGenerator) GenerateBracket(ctx context.Context, params GenerateBracketParams) ([]*BracketMatch, error) {
	if len(params.ParticipantIDs) < 2 {
		return nil, fmt.Errorf("RoundRobinGenerator: not enough participants (found %d, min 2 required)", len(params.ParticipantIDs))
	}

	const bye int64 = 0
	ring := make([]int64, len(params.ParticipantIDs))
	copy(ring, params.ParticipantIDs)
	if len(ring)%2 == 1 {
		ring = append(ring, bye)
	}
	n := len(ring)

	matches := make([]*BracketMatch, 0, n*(n-1)/2)
	for round := 1; round < n; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		order := 0
		for i := 0; i < n/2; i++ {
			p1, p2 := ring[i], ring[n-1-i]
			if p1 == bye || p2 == bye {
				continue
			}
			order++
			matches = append(matches, &BracketMatch{
				UID:            fmt.Sprintf("R%dM%d", round, order),
				Round:          round,
				OrderInRound:   order,
				Participant1ID: &p1,
				Participant2ID: &p2,
			})
		}
		// ring[0] stays fixed, the rest rotate clockwise.
		last := ring[n-1]
		copy(ring[2:], ring[1:n-1])
		ring[1] = last
	}

	return matches, nil
}

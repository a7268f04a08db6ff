package brackets

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
)

type node struct {
	participantID    *int64
	sourceMatchUID   *string
	isByePlaceholder bool
}

type SingleEliminationGenerator struct {
}

func NewSingleEliminationGenerator() BracketGenerator {
	return &SingleEliminationGenerator{}
}

func (g *SingleEliminationGenerator) GetName() string {
	return "SingleElimination"
}

// GenerateBracket builds the whole tree up front. Bye pairings are not emitted as matches:
// the seeded participant is placed straight into the next round.
func (g *SingleEliminationGenerator) GenerateBracket(ctx context.Context, params GenerateBracketParams) ([]*BracketMatch, error) {
	ids := params.ParticipantIDs
	n := len(ids)

	if n == 0 {
		return nil, errors.New("cannot generate bracket with zero participants")
	}
	if n < 2 {
		return nil, errors.New("not enough participants to generate a single elimination bracket (minimum 2)")
	}

	numRounds := int(math.Ceil(math.Log2(float64(n))))
	sizeOfFullBracket := 1 << uint(numRounds)
	half := sizeOfFullBracket / 2

	// Seed k meets seed k+half; top seeds receive the byes so two byes never meet.
	currentRoundNodes := make([]*node, sizeOfFullBracket)
	for k := 0; k < half; k++ {
		p1 := ids[k]
		currentRoundNodes[2*k] = &node{participantID: &p1}
		if k+half < n {
			p2 := ids[k+half]
			currentRoundNodes[2*k+1] = &node{participantID: &p2}
		} else {
			currentRoundNodes[2*k+1] = &node{isByePlaceholder: true}
		}
	}

	allGeneratedMatches := make([]*BracketMatch, 0, sizeOfFullBracket-1)

	for r := 1; r <= numRounds; r++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		nextRoundNodes := make([]*node, 0, len(currentRoundNodes)/2)
		matchesInThisRound := 0

		for i := 0; i < len(currentRoundNodes); i += 2 {
			node1 := currentRoundNodes[i]
			node2 := currentRoundNodes[i+1]

			if node2.isByePlaceholder {
				nextRoundNodes = append(nextRoundNodes, &node{participantID: node1.participantID})
				continue
			}
			if node1.isByePlaceholder {
				nextRoundNodes = append(nextRoundNodes, &node{participantID: node2.participantID})
				continue
			}

			currentMatchUID := fmt.Sprintf("R%dM%d", r, matchesInThisRound+1)
			bm := &BracketMatch{
				UID:          currentMatchUID,
				Round:        r,
				OrderInRound: matchesInThisRound + 1,
			}

			if node1.participantID != nil {
				bm.Participant1ID = node1.participantID
			} else {
				bm.SourceMatch1UID = node1.sourceMatchUID
				bm.IsPlaceholder = true
			}
			if node2.participantID != nil {
				bm.Participant2ID = node2.participantID
			} else {
				bm.SourceMatch2UID = node2.sourceMatchUID
				bm.IsPlaceholder = true
			}

			nextRoundNodes = append(nextRoundNodes, &node{sourceMatchUID: &currentMatchUID})
			allGeneratedMatches = append(allGeneratedMatches, bm)
			matchesInThisRound++
		}
		currentRoundNodes = nextRoundNodes
	}

	if len(currentRoundNodes) != 1 {
		return nil, fmt.Errorf("internal error: bracket did not converge to a single final (nodes left: %d)", len(currentRoundNodes))
	}

	sort.Slice(allGeneratedMatches, func(i, j int) bool {
		if allGeneratedMatches[i].Round != allGeneratedMatches[j].Round {
			return allGeneratedMatches[i].Round < allGeneratedMatches[j].Round
		}
		return allGeneratedMatches[i].OrderInRound < allGeneratedMatches[j].OrderInRound
	})

	return allGeneratedMatches, nil
}

package provider

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"

	"github.com/Dosada05/league-orchestrator/brackets"
	"github.com/Dosada05/league-orchestrator/models"
)

type memTournament struct {
	t            Tournament
	participants []Participant
	matches      []*models.Match
	// feeds maps a match id to the match and slot that receives its winner.
	feeds map[int64]memFeed
}

type memFeed struct {
	matchID int64
	slot    int
}

// MemoryProvider is an in-process bracket host used for offline mode and tests.
// Double elimination brackets are played as single elimination and swiss as round robin.
type MemoryProvider struct {
	mu          sync.Mutex
	nextID      int64
	tournaments map[int64]*memTournament
	rng         *rand.Rand
}

var _ Provider = (*MemoryProvider)(nil)

func NewMemoryProvider() *MemoryProvider {
	return NewMemoryProviderWithSeed(rand.Uint64())
}

// NewMemoryProviderWithSeed makes seed randomization deterministic.
func NewMemoryProviderWithSeed(seed uint64) *MemoryProvider {
	return &MemoryProvider{
		nextID:      1000,
		tournaments: make(map[int64]*memTournament),
		rng:         rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

func (m *MemoryProvider) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *MemoryProvider) lookup(op string, id int64) (*memTournament, error) {
	mt, ok := m.tournaments[id]
	if !ok {
		return nil, &APIError{Op: op, Method: "memory", Status: 404, Err: ErrNotFound}
	}
	return mt, nil
}

func rejected(op, msg string) error {
	return &APIError{Op: op, Method: "memory", Status: 422, Messages: []string{msg}, Err: ErrRejected}
}

func (m *MemoryProvider) CreateTournament(ctx context.Context, p CreateParams) (*Tournament, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if strings.TrimSpace(p.Name) == "" {
		return nil, rejected("create_tournament", "Name can't be blank")
	}
	for _, mt := range m.tournaments {
		if mt.t.URL == p.URL {
			return nil, rejected("create_tournament", "URL has already been taken")
		}
	}
	format := p.Format
	if !format.Valid() {
		format = models.FormatSingleElimination
	}
	mt := &memTournament{
		t: Tournament{
			ID:     m.id(),
			Name:   p.Name,
			URL:    p.URL,
			State:  TournamentPending,
			Format: format,
		},
		feeds: map[int64]memFeed{},
	}
	mt.t.FullURL = "memory://" + mt.t.URL
	m.tournaments[mt.t.ID] = mt
	t := mt.t
	return &t, nil
}

func (m *MemoryProvider) ListTournaments(ctx context.Context, state ListState) ([]Tournament, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Tournament, 0, len(m.tournaments))
	for _, mt := range m.tournaments {
		if !listMatches(state, mt.t.State) {
			continue
		}
		out = append(out, mt.t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func listMatches(filter ListState, s TournamentState) bool {
	switch filter {
	case ListPending:
		return s == TournamentPending
	case ListInProgress:
		return s == TournamentUnderway || s == TournamentAwaitingReview
	case ListEnded:
		return s == TournamentComplete
	default:
		return true
	}
}

func (m *MemoryProvider) ShowTournament(ctx context.Context, id int64) (*Tournament, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mt, err := m.lookup("show_tournament", id)
	if err != nil {
		return nil, err
	}
	t := mt.t
	return &t, nil
}

func (m *MemoryProvider) ShowTournamentByURL(ctx context.Context, slug string) (*Tournament, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, mt := range m.tournaments {
		if mt.t.URL == slug {
			t := mt.t
			return &t, nil
		}
	}
	return nil, &APIError{Op: "show_tournament", Method: "memory", Status: 404, Err: ErrNotFound}
}

func (m *MemoryProvider) DestroyTournament(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.lookup("destroy_tournament", id); err != nil {
		return err
	}
	delete(m.tournaments, id)
	return nil
}

func (m *MemoryProvider) RandomizeSeeds(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	mt, err := m.lookup("randomize_seeds", id)
	if err != nil {
		return err
	}
	if mt.t.State != TournamentPending {
		return rejected("randomize_seeds", "Seeds can only be randomized before the tournament starts")
	}
	m.rng.Shuffle(len(mt.participants), func(i, j int) {
		mt.participants[i], mt.participants[j] = mt.participants[j], mt.participants[i]
	})
	for i := range mt.participants {
		mt.participants[i].Seed = i + 1
	}
	return nil
}

func (m *MemoryProvider) StartTournament(ctx context.Context, id int64) (*Tournament, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mt, err := m.lookup("start_tournament", id)
	if err != nil {
		return nil, err
	}
	if mt.t.State != TournamentPending {
		return nil, rejected("start_tournament", "Tournament has already been started")
	}
	if len(mt.participants) < 2 {
		return nil, rejected("start_tournament", "Tournament needs at least 2 participants")
	}

	ids := make([]int64, len(mt.participants))
	for i, p := range mt.participants {
		ids[i] = p.ID
	}
	generated, err := brackets.ForFormat(mt.t.Format).GenerateBracket(ctx, brackets.GenerateBracketParams{ParticipantIDs: ids})
	if err != nil {
		return nil, rejected("start_tournament", err.Error())
	}

	byUID := make(map[string]int64, len(generated))
	mt.matches = make([]*models.Match, 0, len(generated))
	for _, bm := range generated {
		match := &models.Match{
			ExternalID:         m.id(),
			InstanceExternalID: mt.t.ID,
			Round:              bm.Round,
			Player1ID:          bm.Participant1ID,
			Player2ID:          bm.Participant2ID,
			State:              models.MatchStatePending,
		}
		if match.Player1ID != nil && match.Player2ID != nil {
			match.State = models.MatchStateOpen
		}
		byUID[bm.UID] = match.ExternalID
		mt.matches = append(mt.matches, match)
	}
	for i, bm := range generated {
		target := mt.matches[i].ExternalID
		if bm.SourceMatch1UID != nil {
			mt.feeds[byUID[*bm.SourceMatch1UID]] = memFeed{matchID: target, slot: 1}
		}
		if bm.SourceMatch2UID != nil {
			mt.feeds[byUID[*bm.SourceMatch2UID]] = memFeed{matchID: target, slot: 2}
		}
	}

	mt.t.State = TournamentUnderway
	t := mt.t
	return &t, nil
}

func (m *MemoryProvider) FinalizeTournament(ctx context.Context, id int64) (*Tournament, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mt, err := m.lookup("finalize_tournament", id)
	if err != nil {
		return nil, err
	}
	if mt.t.State == TournamentPending {
		return nil, rejected("finalize_tournament", "Tournament has not been started")
	}
	if mt.t.State == TournamentComplete {
		return nil, rejected("finalize_tournament", "Tournament is already complete")
	}
	for _, match := range mt.matches {
		if !match.IsComplete() {
			return nil, rejected("finalize_tournament", "All matches must be complete")
		}
	}

	mt.assignFinalRanks()
	mt.t.State = TournamentComplete
	t := mt.t
	return &t, nil
}

// assignFinalRanks ranks by match wins; in elimination the final's winner is always first.
func (mt *memTournament) assignFinalRanks() {
	wins := map[int64]int{}
	var champion int64
	lastRound := 0
	for _, match := range mt.matches {
		if match.WinnerID == nil {
			continue
		}
		wins[*match.WinnerID]++
		if match.Round >= lastRound {
			lastRound = match.Round
			champion = *match.WinnerID
		}
	}
	if mt.t.Format.IsElimination() && champion != 0 {
		wins[champion] += len(mt.matches)
	}

	order := make([]int, len(mt.participants))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return wins[mt.participants[order[a]].ID] > wins[mt.participants[order[b]].ID]
	})
	rank := 0
	prev := -1
	for pos, idx := range order {
		w := wins[mt.participants[idx].ID]
		if w != prev {
			rank = pos + 1
			prev = w
		}
		r := rank
		mt.participants[idx].FinalRank = &r
	}
}

func (m *MemoryProvider) ResetTournament(ctx context.Context, id int64) (*Tournament, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mt, err := m.lookup("reset_tournament", id)
	if err != nil {
		return nil, err
	}
	mt.matches = nil
	mt.feeds = map[int64]memFeed{}
	for i := range mt.participants {
		mt.participants[i].FinalRank = nil
	}
	mt.t.State = TournamentPending
	t := mt.t
	return &t, nil
}

func (m *MemoryProvider) AddParticipant(ctx context.Context, tournamentID int64, name string) (*Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mt, err := m.lookup("add_participant", tournamentID)
	if err != nil {
		return nil, err
	}
	if mt.t.State != TournamentPending {
		return nil, rejected("add_participant", "Participants cannot be added after the tournament starts")
	}
	for _, p := range mt.participants {
		if strings.EqualFold(p.Name, name) {
			return nil, rejected("add_participant", "Name has already been taken")
		}
	}
	p := Participant{ID: m.id(), Name: name, Seed: len(mt.participants) + 1}
	mt.participants = append(mt.participants, p)
	mt.t.ParticipantsCount = len(mt.participants)
	return &p, nil
}

func (m *MemoryProvider) RemoveParticipant(ctx context.Context, tournamentID, participantID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	mt, err := m.lookup("remove_participant", tournamentID)
	if err != nil {
		return err
	}
	for i, p := range mt.participants {
		if p.ID == participantID {
			mt.participants = append(mt.participants[:i], mt.participants[i+1:]...)
			mt.t.ParticipantsCount = len(mt.participants)
			return nil
		}
	}
	return &APIError{Op: "remove_participant", Method: "memory", Status: 404, Err: ErrNotFound}
}

func (m *MemoryProvider) ListParticipants(ctx context.Context, tournamentID int64) ([]Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mt, err := m.lookup("list_participants", tournamentID)
	if err != nil {
		return nil, err
	}
	out := make([]Participant, len(mt.participants))
	copy(out, mt.participants)
	return out, nil
}

func (m *MemoryProvider) ListMatches(ctx context.Context, tournamentID int64, filter MatchFilter) ([]models.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mt, err := m.lookup("list_matches", tournamentID)
	if err != nil {
		return nil, err
	}
	out := make([]models.Match, 0, len(mt.matches))
	for _, match := range mt.matches {
		if filter != "" && filter != MatchesAll && string(match.State) != string(filter) {
			continue
		}
		out = append(out, *match)
	}
	return out, nil
}

func (m *MemoryProvider) UpdateMatch(ctx context.Context, tournamentID, matchID int64, update MatchUpdate) (*models.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mt, err := m.lookup("update_match", tournamentID)
	if err != nil {
		return nil, err
	}
	var match *models.Match
	for _, candidate := range mt.matches {
		if candidate.ExternalID == matchID {
			match = candidate
			break
		}
	}
	if match == nil {
		return nil, &APIError{Op: "update_match", Method: "memory", Status: 404, Err: ErrNotFound}
	}
	if match.State == models.MatchStatePending {
		return nil, rejected("update_match", "Match is not open")
	}
	if !match.HasPlayer(update.WinnerID) {
		return nil, rejected("update_match", fmt.Sprintf("Winner %d is not a player in this match", update.WinnerID))
	}

	winner := update.WinnerID
	match.ScoresCSV = update.ScoresCSV
	match.WinnerID = &winner
	match.State = models.MatchStateComplete

	if feed, ok := mt.feeds[matchID]; ok {
		for _, next := range mt.matches {
			if next.ExternalID != feed.matchID {
				continue
			}
			if feed.slot == 1 {
				next.Player1ID = &winner
			} else {
				next.Player2ID = &winner
			}
			if next.Player1ID != nil && next.Player2ID != nil && next.State == models.MatchStatePending {
				next.State = models.MatchStateOpen
			}
		}
	}

	out := *match
	return &out, nil
}

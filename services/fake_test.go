package services

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Dosada05/league-orchestrator/metrics"
	"github.com/Dosada05/league-orchestrator/models"
	"github.com/Dosada05/league-orchestrator/provider"
	"github.com/Dosada05/league-orchestrator/repositories"
	"github.com/Dosada05/league-orchestrator/storage"
)

// ------------------------
// Fake Instance Repo
// ------------------------

type FakeInstanceRepo struct {
	mu     sync.Mutex
	tmu    sync.Mutex
	trace  []string
	nextID int
	rows   map[int]*models.Instance

	CreateFunc func(ctx context.Context, exec repositories.SQLExecutor, instance *models.Instance) error
}

func NewFakeInstanceRepo() *FakeInstanceRepo {
	return &FakeInstanceRepo{rows: map[int]*models.Instance{}}
}

func (f *FakeInstanceRepo) record(step string) {
	f.tmu.Lock()
	f.trace = append(f.trace, step)
	f.tmu.Unlock()
}

func (f *FakeInstanceRepo) Trace() []string {
	f.tmu.Lock()
	defer f.tmu.Unlock()
	return append([]string(nil), f.trace...)
}

func cloneInstance(i *models.Instance) *models.Instance {
	c := *i
	c.Winner = nil
	return &c
}

func (f *FakeInstanceRepo) Create(ctx context.Context, exec repositories.SQLExecutor, instance *models.Instance) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Create")
	if f.CreateFunc != nil {
		return f.CreateFunc(ctx, exec, instance)
	}
	for _, r := range f.rows {
		switch {
		case sameName(r.Name, instance.Name):
			return repositories.ErrInstanceNameConflict
		case r.URL == instance.URL:
			return repositories.ErrInstanceURLConflict
		case r.ExternalID == instance.ExternalID:
			return repositories.ErrInstanceExternalConflict
		}
	}
	f.nextID++
	instance.ID = f.nextID
	instance.CreatedAt = time.Unix(int64(f.nextID), 0)
	instance.UpdatedAt = instance.CreatedAt
	f.rows[instance.ID] = cloneInstance(instance)
	return nil
}

func (f *FakeInstanceRepo) GetByID(ctx context.Context, id int) (*models.Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetByID")
	r, ok := f.rows[id]
	if !ok {
		return nil, repositories.ErrInstanceNotFound
	}
	return cloneInstance(r), nil
}

func (f *FakeInstanceRepo) GetByExternalID(ctx context.Context, externalID int64) (*models.Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetByExternalID")
	for _, r := range f.rows {
		if r.ExternalID == externalID {
			return cloneInstance(r), nil
		}
	}
	return nil, repositories.ErrInstanceNotFound
}

func (f *FakeInstanceRepo) sorted() []*models.Instance {
	out := make([]*models.Instance, 0, len(f.rows))
	for _, r := range f.rows {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *FakeInstanceRepo) FindByName(ctx context.Context, name string, states []models.InstanceState) ([]*models.Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("FindByName")
	var out []*models.Instance
	for _, r := range f.sorted() {
		if sameName(r.Name, name) && stateIn(r.State, states) {
			out = append(out, cloneInstance(r))
		}
	}
	return out, nil
}

func (f *FakeInstanceRepo) NameExists(ctx context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("NameExists")
	for _, r := range f.rows {
		if sameName(r.Name, name) {
			return true, nil
		}
	}
	return false, nil
}

func (f *FakeInstanceRepo) URLExists(ctx context.Context, url string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("URLExists")
	for _, r := range f.rows {
		if r.URL == url {
			return true, nil
		}
	}
	return false, nil
}

func (f *FakeInstanceRepo) List(ctx context.Context, filter repositories.ListInstancesFilter) ([]*models.Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("List")
	out := make([]*models.Instance, 0)
	for _, r := range f.sorted() {
		if !stateIn(r.State, filter.States) {
			continue
		}
		if filter.SeasonNumber != nil && (r.SeasonNumber == nil || *r.SeasonNumber != *filter.SeasonNumber) {
			continue
		}
		out = append(out, cloneInstance(r))
	}
	return out, nil
}

func (f *FakeInstanceRepo) update(id int, fn func(r *models.Instance) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[id]
	if !ok {
		return repositories.ErrInstanceNotFound
	}
	return fn(r)
}

func (f *FakeInstanceRepo) UpdateState(ctx context.Context, exec repositories.SQLExecutor, id int, state models.InstanceState) error {
	f.record("UpdateState")
	return f.update(id, func(r *models.Instance) error { r.State = state; return nil })
}

func (f *FakeInstanceRepo) SetWinner(ctx context.Context, exec repositories.SQLExecutor, id int, winnerParticipantID *int) error {
	f.record("SetWinner")
	return f.update(id, func(r *models.Instance) error { r.WinnerParticipantID = winnerParticipantID; return nil })
}

func (f *FakeInstanceRepo) IncrementParticipantCount(ctx context.Context, exec repositories.SQLExecutor, id int) (int, error) {
	f.record("IncrementParticipantCount")
	var count int
	err := f.update(id, func(r *models.Instance) error {
		if r.ParticipantCount >= r.Capacity {
			return repositories.ErrInstanceFull
		}
		r.ParticipantCount++
		count = r.ParticipantCount
		return nil
	})
	return count, err
}

func (f *FakeInstanceRepo) DecrementParticipantCount(ctx context.Context, exec repositories.SQLExecutor, id int) (int, error) {
	f.record("DecrementParticipantCount")
	var count int
	err := f.update(id, func(r *models.Instance) error {
		if r.ParticipantCount == 0 {
			return repositories.ErrInstanceNotFound
		}
		r.ParticipantCount--
		count = r.ParticipantCount
		return nil
	})
	return count, err
}

func (f *FakeInstanceRepo) SetParticipantCount(ctx context.Context, exec repositories.SQLExecutor, id int, count int) error {
	f.record("SetParticipantCount")
	return f.update(id, func(r *models.Instance) error { r.ParticipantCount = count; return nil })
}

func (f *FakeInstanceRepo) Delete(ctx context.Context, id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Delete")
	if _, ok := f.rows[id]; !ok {
		return repositories.ErrInstanceNotFound
	}
	delete(f.rows, id)
	return nil
}

func (f *FakeInstanceRepo) snapshot() map[int]models.Instance {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[int]models.Instance, len(f.rows))
	for id, r := range f.rows {
		out[id] = *r
	}
	return out
}

func (f *FakeInstanceRepo) restore(snap map[int]models.Instance) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = make(map[int]*models.Instance, len(snap))
	for id, r := range snap {
		f.rows[id] = &r
	}
}

// ByName returns the stored row for assertions.
func (f *FakeInstanceRepo) ByName(name string) *models.Instance {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if sameName(r.Name, name) {
			return cloneInstance(r)
		}
	}
	return nil
}

var _ repositories.InstanceRepository = (*FakeInstanceRepo)(nil)

// ------------------------
// Fake Participant Repo
// ------------------------

type FakeParticipantRepo struct {
	mu     sync.Mutex
	nextID int
	rows   map[int]*models.Participant
}

func NewFakeParticipantRepo() *FakeParticipantRepo {
	return &FakeParticipantRepo{rows: map[int]*models.Participant{}}
}

func cloneParticipant(p *models.Participant) *models.Participant {
	c := *p
	if p.ExternalID != nil {
		ext := *p.ExternalID
		c.ExternalID = &ext
	}
	return &c
}

func (f *FakeParticipantRepo) Create(ctx context.Context, exec repositories.SQLExecutor, p *models.Participant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.InstanceID != p.InstanceID {
			continue
		}
		if r.CommunityID == p.CommunityID {
			return repositories.ErrParticipantConflict
		}
		if strings.EqualFold(r.DisplayName, p.DisplayName) {
			return repositories.ErrParticipantNameConflict
		}
	}
	f.nextID++
	p.ID = f.nextID
	p.CreatedAt = time.Unix(int64(f.nextID), 0)
	f.rows[p.ID] = cloneParticipant(p)
	return nil
}

func (f *FakeParticipantRepo) SetExternalID(ctx context.Context, exec repositories.SQLExecutor, id int, externalID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[id]
	if !ok {
		return repositories.ErrParticipantNotFound
	}
	r.ExternalID = &externalID
	return nil
}

func (f *FakeParticipantRepo) UpdateDisplayName(ctx context.Context, id int, displayName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[id]
	if !ok {
		return repositories.ErrParticipantNotFound
	}
	r.DisplayName = displayName
	return nil
}

func (f *FakeParticipantRepo) GetByID(ctx context.Context, id int) (*models.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[id]
	if !ok {
		return nil, repositories.ErrParticipantNotFound
	}
	return cloneParticipant(r), nil
}

func (f *FakeParticipantRepo) find(match func(r *models.Participant) bool) (*models.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if match(r) {
			return cloneParticipant(r), nil
		}
	}
	return nil, repositories.ErrParticipantNotFound
}

func (f *FakeParticipantRepo) GetByExternalID(ctx context.Context, instanceID int, externalID int64) (*models.Participant, error) {
	return f.find(func(r *models.Participant) bool {
		return r.InstanceID == instanceID && r.ExternalID != nil && *r.ExternalID == externalID
	})
}

func (f *FakeParticipantRepo) FindByCommunity(ctx context.Context, instanceID int, communityID string) (*models.Participant, error) {
	return f.find(func(r *models.Participant) bool {
		return r.InstanceID == instanceID && r.CommunityID == communityID
	})
}

func (f *FakeParticipantRepo) ListByInstance(ctx context.Context, instanceID int) ([]*models.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.Participant, 0)
	for _, r := range f.rows {
		if r.InstanceID == instanceID {
			out = append(out, cloneParticipant(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *FakeParticipantRepo) Delete(ctx context.Context, exec repositories.SQLExecutor, id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[id]; !ok {
		return repositories.ErrParticipantNotFound
	}
	delete(f.rows, id)
	return nil
}

func (f *FakeParticipantRepo) snapshot() map[int]models.Participant {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[int]models.Participant, len(f.rows))
	for id, r := range f.rows {
		out[id] = *cloneParticipant(r)
	}
	return out
}

func (f *FakeParticipantRepo) restore(snap map[int]models.Participant) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = make(map[int]*models.Participant, len(snap))
	for id, r := range snap {
		f.rows[id] = &r
	}
}

var _ repositories.ParticipantRepository = (*FakeParticipantRepo)(nil)

// ------------------------
// Fake Waitlist Repo
// ------------------------

type FakeWaitlistRepo struct {
	mu      sync.Mutex
	entries []*models.WaitlistEntry
}

func NewFakeWaitlistRepo() *FakeWaitlistRepo { return &FakeWaitlistRepo{} }

func (f *FakeWaitlistRepo) Add(ctx context.Context, e *models.WaitlistEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.entries {
		if existing.CommunityID == e.CommunityID {
			return repositories.ErrWaitlistConflict
		}
	}
	e.CreatedAt = time.Unix(int64(len(f.entries)+1), 0)
	c := *e
	f.entries = append(f.entries, &c)
	return nil
}

func (f *FakeWaitlistRepo) Remove(ctx context.Context, communityID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, e := range f.entries {
		if e.CommunityID == communityID {
			f.entries = append(f.entries[:i], f.entries[i+1:]...)
			return nil
		}
	}
	return repositories.ErrWaitlistEntryNotFound
}

func (f *FakeWaitlistRepo) List(ctx context.Context) ([]*models.WaitlistEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.WaitlistEntry, len(f.entries))
	for i, e := range f.entries {
		c := *e
		out[i] = &c
	}
	return out, nil
}

func (f *FakeWaitlistRepo) Count(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries), nil
}

func (f *FakeWaitlistRepo) RemoveMany(ctx context.Context, exec repositories.SQLExecutor, communityIDs []string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	drop := make(map[string]bool, len(communityIDs))
	for _, id := range communityIDs {
		drop[id] = true
	}
	kept := f.entries[:0]
	for _, e := range f.entries {
		if !drop[e.CommunityID] {
			kept = append(kept, e)
		}
	}
	n := int64(len(f.entries) - len(kept))
	f.entries = kept
	return n, nil
}

var _ repositories.WaitlistRepository = (*FakeWaitlistRepo)(nil)

// ------------------------
// Fake Report Repo
// ------------------------

type FakeReportRepo struct {
	mu    sync.Mutex
	order []string
	rows  map[string]*models.MatchReport
	now   func() time.Time
}

func NewFakeReportRepo() *FakeReportRepo {
	return &FakeReportRepo{rows: map[string]*models.MatchReport{}, now: time.Now}
}

func (f *FakeReportRepo) Create(ctx context.Context, exec repositories.SQLExecutor, r *models.MatchReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r.CreatedAt = f.now()
	r.UpdatedAt = r.CreatedAt
	c := *r
	f.rows[r.ID] = &c
	f.order = append(f.order, r.ID)
	return nil
}

func (f *FakeReportRepo) UpdateStatus(ctx context.Context, id string, status models.ReportStatus, lastError *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[id]
	if !ok {
		return repositories.ErrReportNotFound
	}
	r.Status = status
	r.LastError = lastError
	r.UpdatedAt = f.now()
	return nil
}

func (f *FakeReportRepo) GetByID(ctx context.Context, id string) (*models.MatchReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[id]
	if !ok {
		return nil, repositories.ErrReportNotFound
	}
	c := *r
	return &c, nil
}

func (f *FakeReportRepo) FindActive(ctx context.Context, instanceID int, matchExternalID int64) (*models.MatchReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.order) - 1; i >= 0; i-- {
		r, ok := f.rows[f.order[i]]
		if !ok || r.InstanceID != instanceID || r.MatchExternalID != matchExternalID {
			continue
		}
		if r.Status != models.ReportStatusResolved {
			c := *r
			return &c, nil
		}
	}
	return nil, repositories.ErrReportNotFound
}

func (f *FakeReportRepo) filter(keep func(r *models.MatchReport) bool, limit int) []*models.MatchReport {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.MatchReport, 0)
	for _, id := range f.order {
		r, ok := f.rows[id]
		if !ok || !keep(r) {
			continue
		}
		c := *r
		out = append(out, &c)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func (f *FakeReportRepo) ListByStatus(ctx context.Context, status models.ReportStatus, limit int) ([]*models.MatchReport, error) {
	return f.filter(func(r *models.MatchReport) bool { return r.Status == status }, limit), nil
}

func (f *FakeReportRepo) ListByInstance(ctx context.Context, instanceID int) ([]*models.MatchReport, error) {
	return f.filter(func(r *models.MatchReport) bool { return r.InstanceID == instanceID }, 0), nil
}

func (f *FakeReportRepo) DeleteByInstance(ctx context.Context, exec repositories.SQLExecutor, instanceID int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, r := range f.rows {
		if r.InstanceID == instanceID {
			delete(f.rows, id)
			n++
		}
	}
	return n, nil
}

var _ repositories.ReportRepository = (*FakeReportRepo)(nil)

// ------------------------
// Fake Tx
// ------------------------

// FakeTx restores the instance and participant fakes when fn fails.
type FakeTx struct {
	instances    *FakeInstanceRepo
	participants *FakeParticipantRepo
	mu           sync.Mutex
}

func (f *FakeTx) WithinTx(ctx context.Context, fn func(exec repositories.SQLExecutor) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	instSnap := f.instances.snapshot()
	partSnap := f.participants.snapshot()
	if err := fn(nil); err != nil {
		f.instances.restore(instSnap)
		f.participants.restore(partSnap)
		return err
	}
	return nil
}

// ------------------------
// Spy Provider
// ------------------------

// SpyProvider records every call and delegates to an in-memory bracket host unless a
// Func override is set.
type SpyProvider struct {
	mu    sync.Mutex
	trace []string
	inner *provider.MemoryProvider

	CreateTournamentFunc  func(ctx context.Context, params provider.CreateParams) (*provider.Tournament, error)
	StartTournamentFunc   func(ctx context.Context, id int64) (*provider.Tournament, error)
	AddParticipantFunc    func(ctx context.Context, tournamentID int64, name string) (*provider.Participant, error)
	RemoveParticipantFunc func(ctx context.Context, tournamentID, participantID int64) error
	ListMatchesFunc       func(ctx context.Context, tournamentID int64, filter provider.MatchFilter) ([]models.Match, error)
	UpdateMatchFunc       func(ctx context.Context, tournamentID, matchID int64, update provider.MatchUpdate) (*models.Match, error)
}

func NewSpyProvider() *SpyProvider {
	return &SpyProvider{inner: provider.NewMemoryProviderWithSeed(42)}
}

func (s *SpyProvider) record(step string) {
	s.mu.Lock()
	s.trace = append(s.trace, step)
	s.mu.Unlock()
}

func (s *SpyProvider) Trace() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.trace))
	copy(out, s.trace)
	return out
}

func (s *SpyProvider) ResetTrace() {
	s.mu.Lock()
	s.trace = nil
	s.mu.Unlock()
}

func (s *SpyProvider) Calls(step string) int {
	n := 0
	for _, t := range s.Trace() {
		if t == step {
			n++
		}
	}
	return n
}

func (s *SpyProvider) CreateTournament(ctx context.Context, params provider.CreateParams) (*provider.Tournament, error) {
	s.record("CreateTournament")
	if s.CreateTournamentFunc != nil {
		return s.CreateTournamentFunc(ctx, params)
	}
	return s.inner.CreateTournament(ctx, params)
}

func (s *SpyProvider) ListTournaments(ctx context.Context, state provider.ListState) ([]provider.Tournament, error) {
	s.record("ListTournaments")
	return s.inner.ListTournaments(ctx, state)
}

func (s *SpyProvider) ShowTournament(ctx context.Context, id int64) (*provider.Tournament, error) {
	s.record("ShowTournament")
	return s.inner.ShowTournament(ctx, id)
}

func (s *SpyProvider) ShowTournamentByURL(ctx context.Context, url string) (*provider.Tournament, error) {
	s.record("ShowTournamentByURL")
	return s.inner.ShowTournamentByURL(ctx, url)
}

func (s *SpyProvider) DestroyTournament(ctx context.Context, id int64) error {
	s.record("DestroyTournament")
	return s.inner.DestroyTournament(ctx, id)
}

func (s *SpyProvider) StartTournament(ctx context.Context, id int64) (*provider.Tournament, error) {
	s.record("StartTournament")
	if s.StartTournamentFunc != nil {
		return s.StartTournamentFunc(ctx, id)
	}
	return s.inner.StartTournament(ctx, id)
}

func (s *SpyProvider) FinalizeTournament(ctx context.Context, id int64) (*provider.Tournament, error) {
	s.record("FinalizeTournament")
	return s.inner.FinalizeTournament(ctx, id)
}

func (s *SpyProvider) ResetTournament(ctx context.Context, id int64) (*provider.Tournament, error) {
	s.record("ResetTournament")
	return s.inner.ResetTournament(ctx, id)
}

func (s *SpyProvider) RandomizeSeeds(ctx context.Context, id int64) error {
	s.record("RandomizeSeeds")
	return s.inner.RandomizeSeeds(ctx, id)
}

func (s *SpyProvider) AddParticipant(ctx context.Context, tournamentID int64, name string) (*provider.Participant, error) {
	s.record("AddParticipant")
	if s.AddParticipantFunc != nil {
		return s.AddParticipantFunc(ctx, tournamentID, name)
	}
	return s.inner.AddParticipant(ctx, tournamentID, name)
}

func (s *SpyProvider) RemoveParticipant(ctx context.Context, tournamentID, participantID int64) error {
	s.record("RemoveParticipant")
	if s.RemoveParticipantFunc != nil {
		return s.RemoveParticipantFunc(ctx, tournamentID, participantID)
	}
	return s.inner.RemoveParticipant(ctx, tournamentID, participantID)
}

func (s *SpyProvider) ListParticipants(ctx context.Context, tournamentID int64) ([]provider.Participant, error) {
	s.record("ListParticipants")
	return s.inner.ListParticipants(ctx, tournamentID)
}

func (s *SpyProvider) ListMatches(ctx context.Context, tournamentID int64, filter provider.MatchFilter) ([]models.Match, error) {
	s.record("ListMatches")
	if s.ListMatchesFunc != nil {
		return s.ListMatchesFunc(ctx, tournamentID, filter)
	}
	return s.inner.ListMatches(ctx, tournamentID, filter)
}

func (s *SpyProvider) UpdateMatch(ctx context.Context, tournamentID, matchID int64, update provider.MatchUpdate) (*models.Match, error) {
	s.record("UpdateMatch")
	if s.UpdateMatchFunc != nil {
		return s.UpdateMatchFunc(ctx, tournamentID, matchID, update)
	}
	return s.inner.UpdateMatch(ctx, tournamentID, matchID, update)
}

var _ provider.Provider = (*SpyProvider)(nil)

// ------------------------
// Fake Archiver
// ------------------------

type FakeArchiver struct {
	mu        sync.Mutex
	snapshots []*storage.StandingsSnapshot

	ArchiveFunc func(ctx context.Context, snapshot *storage.StandingsSnapshot) (*storage.UploadResult, error)
}

func (f *FakeArchiver) Archive(ctx context.Context, snapshot *storage.StandingsSnapshot) (*storage.UploadResult, error) {
	f.mu.Lock()
	f.snapshots = append(f.snapshots, snapshot)
	f.mu.Unlock()
	if f.ArchiveFunc != nil {
		return f.ArchiveFunc(ctx, snapshot)
	}
	key := "standings/" + itoa(snapshot.InstanceID) + ".json"
	return &storage.UploadResult{Key: key, Location: "https://archive.test/" + key}, nil
}

func (f *FakeArchiver) Snapshots() []*storage.StandingsSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*storage.StandingsSnapshot(nil), f.snapshots...)
}

// ------------------------
// Test environment
// ------------------------

type testEnv struct {
	instances    *FakeInstanceRepo
	participants *FakeParticipantRepo
	waitlist     *FakeWaitlistRepo
	reports      *FakeReportRepo
	provider     *SpyProvider
	archiver     *FakeArchiver
	metrics      *metrics.Metrics

	registry  RegistryService
	directory DirectoryService
	signup    SignupService
	report    ReportService
	standings StandingsService
	season    SeasonService
	reconcile ReconcileService
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T, settings LeagueSettings) *testEnv {
	t.Helper()

	env := &testEnv{
		instances:    NewFakeInstanceRepo(),
		participants: NewFakeParticipantRepo(),
		waitlist:     NewFakeWaitlistRepo(),
		reports:      NewFakeReportRepo(),
		provider:     NewSpyProvider(),
		archiver:     &FakeArchiver{},
		metrics:      metrics.New(),
	}
	logger := discardLogger()
	locks := NewInstanceLocks()
	tx := &FakeTx{instances: env.instances, participants: env.participants}

	env.registry = NewRegistryService(env.instances, env.participants, env.reports, env.provider, tx, locks, settings, logger)
	env.directory = NewDirectoryService(env.waitlist, env.participants, env.instances, logger)
	env.signup = NewSignupService(env.registry, env.metrics, logger)
	env.report = NewReportService(env.registry, env.directory, env.reports, env.provider, locks, env.metrics, logger)
	env.standings = NewStandingsService(env.registry, env.participants, env.provider, logger)
	env.season = NewSeasonService(env.registry, env.standings, env.waitlist, env.archiver, settings, env.metrics, logger)
	env.reconcile = NewReconcileService(env.reports, env.registry, env.provider, locks, env.metrics, logger)
	return env
}

// createStarted creates an instance, seats the named players and starts it.
func (e *testEnv) createStarted(t *testing.T, ctx context.Context, input CreateInstanceInput, players ...string) *models.Instance {
	t.Helper()
	if input.Capacity == 0 {
		input.Capacity = max(len(players), 2)
	}
	instance, err := e.registry.Create(ctx, input)
	if err != nil {
		t.Fatalf("create %q: %v", input.Name, err)
	}
	for i, name := range players {
		if _, _, err := e.registry.AddParticipant(ctx, instance.ID, "c-"+strings.ToLower(name)+"-"+itoa(i), name); err != nil {
			t.Fatalf("add %q: %v", name, err)
		}
	}
	started, err := e.registry.Start(ctx, instance.ID)
	if err != nil {
		t.Fatalf("start %q: %v", input.Name, err)
	}
	return started
}

// playOut completes every open match with player 1 winning 2-0 until none are left.
func (e *testEnv) playOut(t *testing.T, ctx context.Context, instance *models.Instance) {
	t.Helper()
	for range 64 {
		open, err := e.provider.inner.ListMatches(ctx, instance.ExternalID, provider.MatchesOpen)
		if err != nil {
			t.Fatalf("list matches: %v", err)
		}
		if len(open) == 0 {
			return
		}
		for _, m := range open {
			if _, err := e.provider.inner.UpdateMatch(ctx, instance.ExternalID, m.ExternalID, provider.MatchUpdate{
				ScoresCSV: "2-0",
				WinnerID:  *m.Player1ID,
			}); err != nil {
				t.Fatalf("update match: %v", err)
			}
		}
	}
	t.Fatalf("matches of %q never completed", instance.Name)
}

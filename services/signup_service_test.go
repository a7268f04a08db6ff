package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dosada05/league-orchestrator/models"
	"github.com/Dosada05/league-orchestrator/provider"
	"github.com/Dosada05/league-orchestrator/repositories"
)

func TestSignup_RolloverAtCapacity(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, LeagueSettings{DefaultCapacity: 2})

	_, err := env.registry.Create(ctx, CreateInstanceInput{Name: "T1"})
	require.NoError(t, err)

	alice, err := env.signup.Signup(ctx, "T1", "a", "Alice")
	require.NoError(t, err)
	assert.Equal(t, BranchJoined, alice.Branch)
	assert.Equal(t, 1, alice.Instance.ParticipantCount)
	assert.Nil(t, alice.Successor)

	bob, err := env.signup.Signup(ctx, "T1", "b", "Bob")
	require.NoError(t, err)
	assert.Equal(t, BranchRollover, bob.Branch)
	assert.False(t, bob.PendingRollover)
	require.NotNil(t, bob.Successor)
	assert.Equal(t, "T1-2", bob.Successor.Name)
	assert.Equal(t, models.StatePending, bob.Successor.State)
	assert.Equal(t, 2, bob.Successor.Capacity)

	t1 := env.instances.ByName("T1")
	assert.Equal(t, models.StateInProgress, t1.State)
	assert.Equal(t, 2, t1.ParticipantCount)
	assert.Equal(t, []string{"RandomizeSeeds", "StartTournament"}, filterTrace(env.provider.Trace(), "RandomizeSeeds", "StartTournament"))

	// later signups against the started name land in its successor
	carol, err := env.signup.Signup(ctx, "t1", "c", "Carol")
	require.NoError(t, err)
	assert.Equal(t, BranchJoined, carol.Branch)
	assert.Equal(t, "T1-2", carol.Instance.Name)
}

func TestSignup_LazilyCreatesInstance(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, LeagueSettings{DefaultCapacity: 4})

	res, err := env.signup.Signup(ctx, "Fresh Cup", "a", "Alice")
	require.NoError(t, err)
	assert.Equal(t, BranchCreated, res.Branch)
	assert.Equal(t, "Fresh Cup", res.Instance.Name)
	assert.Equal(t, 1, res.Instance.ParticipantCount)
	require.NotNil(t, res.Participant.ExternalID)
}

func TestSignup_DuplicateDisplayNameNeverMutates(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, LeagueSettings{DefaultCapacity: 4})

	first, err := env.signup.Signup(ctx, "Dupes", "a", "Alice")
	require.NoError(t, err)
	before := env.instances.ByName("Dupes")
	remoteBefore, err := env.provider.inner.ListParticipants(ctx, first.Instance.ExternalID)
	require.NoError(t, err)

	for _, name := range []string{"alice", "ALICE", "  Alice  "} {
		_, err := env.signup.Signup(ctx, "Dupes", "other-"+name, name)
		var conflict *ConflictError
		require.ErrorAs(t, err, &conflict, name)
		assert.ErrorIs(t, err, CodeDuplicateIGN)
	}

	after := env.instances.ByName("Dupes")
	assert.Equal(t, before.ParticipantCount, after.ParticipantCount)
	remoteAfter, err := env.provider.inner.ListParticipants(ctx, first.Instance.ExternalID)
	require.NoError(t, err)
	assert.Equal(t, remoteBefore, remoteAfter)
}

func TestSignup_SameCommunityTwice(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, LeagueSettings{DefaultCapacity: 4})

	_, err := env.signup.Signup(ctx, "Again", "a", "Alice")
	require.NoError(t, err)

	_, err = env.signup.Signup(ctx, "Again", "a", "Alicia")
	assert.ErrorIs(t, err, CodeAlreadyRegistered)
}

func TestSignup_Validation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, LeagueSettings{})

	_, err := env.signup.Signup(ctx, "", "a", "Alice")
	assert.ErrorIs(t, err, CodeInvalidInput)
	_, err = env.signup.Signup(ctx, "Cup", "", "Alice")
	assert.ErrorIs(t, err, CodeInvalidInput)
	_, err = env.signup.Signup(ctx, "Cup", "a", " ")
	assert.ErrorIs(t, err, CodeInvalidInput)
	assert.Empty(t, env.provider.Trace())
}

func TestSignup_CountMatchesSignups(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, LeagueSettings{DefaultCapacity: 8})

	for n := 1; n <= 7; n++ {
		res, err := env.signup.Signup(ctx, "Counter", fmt.Sprintf("c%d", n), fmt.Sprintf("Player %d", n))
		require.NoError(t, err)
		assert.Equal(t, n, res.Instance.ParticipantCount)
		assert.LessOrEqual(t, res.Instance.ParticipantCount, res.Instance.Capacity)
	}
}

func TestSignup_ConcurrentNeverExceedsCapacity(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, LeagueSettings{DefaultCapacity: 3})

	const players = 10
	var wg sync.WaitGroup
	errs := make([]error, players)
	for i := range players {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = env.signup.Signup(ctx, "Rush", fmt.Sprintf("c%d", i), fmt.Sprintf("Racer %d", i))
		}()
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	all, err := env.instances.List(ctx, repositories.ListInstancesFilter{})
	require.NoError(t, err)
	total := 0
	for _, inst := range all {
		assert.LessOrEqual(t, inst.ParticipantCount, inst.Capacity, inst.Name)
		total += inst.ParticipantCount
	}
	assert.Equal(t, players, total)

	// pools of 3: Rush, Rush-2 and Rush-3 are full and started, Rush-4 holds the last player
	assert.Equal(t, models.StateInProgress, env.instances.ByName("Rush-3").State)
	assert.Equal(t, 1, env.instances.ByName("Rush-4").ParticipantCount)
}

func TestSignup_FailedRolloverIsRetried(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, LeagueSettings{DefaultCapacity: 2})

	env.provider.StartTournamentFunc = func(ctx context.Context, id int64) (*provider.Tournament, error) {
		return nil, &provider.APIError{Op: "start_tournament", Status: 503, Err: provider.ErrUnavailable}
	}

	_, err := env.signup.Signup(ctx, "Sticky", "a", "Alice")
	require.NoError(t, err)
	res, err := env.signup.Signup(ctx, "Sticky", "b", "Bob")
	require.NoError(t, err, "a failed rollover does not fail the signup")
	assert.True(t, res.PendingRollover)
	assert.Equal(t, BranchJoined, res.Branch)
	assert.Equal(t, models.StatePending, env.instances.ByName("Sticky").State)

	env.provider.StartTournamentFunc = nil
	carol, err := env.signup.Signup(ctx, "Sticky", "c", "Carol")
	require.NoError(t, err)
	assert.Equal(t, "Sticky-2", carol.Instance.Name)
	assert.Equal(t, models.StateInProgress, env.instances.ByName("Sticky").State)
}

func filterTrace(trace []string, keep ...string) []string {
	out := []string{}
	for _, step := range trace {
		for _, k := range keep {
			if step == k {
				out = append(out, step)
			}
		}
	}
	return out
}

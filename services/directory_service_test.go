package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectory_RegisterAndUnregister(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, LeagueSettings{})

	entry, count, err := env.directory.Register(ctx, " member-1 ", " Alice ")
	require.NoError(t, err)
	assert.Equal(t, "member-1", entry.CommunityID)
	assert.Equal(t, "Alice", entry.DisplayName)
	assert.Equal(t, 1, count)

	_, count, err = env.directory.Register(ctx, "member-2", "Bob")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	_, _, err = env.directory.Register(ctx, "member-1", "Alicia")
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.ErrorIs(t, err, CodeAlreadyRegistered)

	count, err = env.directory.Unregister(ctx, "member-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = env.directory.Unregister(ctx, "member-1")
	assert.ErrorIs(t, err, CodeNotRegistered)

	list, err := env.directory.Waitlist(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Bob", list[0].DisplayName)
}

func TestDirectory_RegisterValidation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, LeagueSettings{})

	tests := []struct {
		name        string
		communityID string
		displayName string
	}{
		{"empty community id", "", "Alice"},
		{"blank display name", "member-1", "   "},
		{"display name too long", "member-1", strings.Repeat("x", 65)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := env.directory.Register(ctx, tt.communityID, tt.displayName)
			assert.ErrorIs(t, err, CodeInvalidInput)
		})
	}
	count, err := env.waitlist.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestDirectory_LookupByName(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, LeagueSettings{})

	instance, err := env.registry.Create(ctx, CreateInstanceInput{Name: "Lookup", Capacity: 4})
	require.NoError(t, err)
	_, _, err = env.registry.AddParticipant(ctx, instance.ID, "m-1", "Ärger Straße")
	require.NoError(t, err)

	for _, query := range []string{"Ärger Straße", "ärger strasse", "  ÄRGER STRASSE "} {
		p, err := env.directory.LookupByName(ctx, instance.ID, query)
		require.NoError(t, err, query)
		assert.Equal(t, "m-1", p.CommunityID)
	}

	_, err = env.directory.LookupByName(ctx, instance.ID, "Nobody")
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.ErrorIs(t, err, CodeParticipantNotFound)

	_, err = env.directory.LookupByName(ctx, 999, "Anyone")
	assert.ErrorIs(t, err, CodeNotFound)
}

func TestDirectory_RenameParticipant(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, LeagueSettings{})

	instance, err := env.registry.Create(ctx, CreateInstanceInput{Name: "Renames", Capacity: 4})
	require.NoError(t, err)
	_, _, err = env.registry.AddParticipant(ctx, instance.ID, "m-1", "Alice")
	require.NoError(t, err)
	_, _, err = env.registry.AddParticipant(ctx, instance.ID, "m-2", "Bob")
	require.NoError(t, err)

	renamed, err := env.directory.RenameParticipant(ctx, instance.ID, "m-1", "Alicia")
	require.NoError(t, err)
	assert.Equal(t, "Alicia", renamed.DisplayName)

	p, err := env.directory.LookupByName(ctx, instance.ID, "alicia")
	require.NoError(t, err)
	assert.Equal(t, renamed.ID, p.ID)

	// changing only the case of your own name is allowed
	_, err = env.directory.RenameParticipant(ctx, instance.ID, "m-1", "ALICIA")
	require.NoError(t, err)

	_, err = env.directory.RenameParticipant(ctx, instance.ID, "m-1", "bob")
	assert.ErrorIs(t, err, CodeDuplicateIGN)

	_, err = env.directory.RenameParticipant(ctx, instance.ID, "m-9", "Zed")
	assert.ErrorIs(t, err, CodeParticipantNotFound)
}

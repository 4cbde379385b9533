package access

import (
	"context"
	"sync"
	"testing"

	"workhub/models"
	"workhub/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddProjectMember(t *testing.T) {
	f := newFixture(t)
	members := NewMembers(f.db)
	ctx := context.Background()

	m, err := members.AddProjectMember(ctx, f.p2.ID, f.member.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.ProjectRoleMember, m.Role)

	ok, err := f.resolver.CanAccessProject(ctx, f.member.ID, f.p2.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = members.AddProjectMember(ctx, f.p2.ID, f.member.ID, models.ProjectRoleOwner)
	assert.ErrorIs(t, err, ErrConflict)

	_, err = members.AddProjectMember(ctx, "missing", f.member.ID, "")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = members.AddProjectMember(ctx, f.p2.ID, "missing", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAddTeamMemberConcurrently(t *testing.T) {
	f := newFixture(t)
	members := NewMembers(f.db)
	ctx := context.Background()

	const workers = 4
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = members.AddTeamMember(ctx, f.teamB.ID, f.other.ID)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrConflict)
	}
	assert.Equal(t, 1, succeeded)

	var count int64
	require.NoError(t, f.db.Model(&models.TeamMember{}).
		Where("team_id = ? AND user_id = ?", f.teamB.ID, f.other.ID).
		Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRemoveProjectMember(t *testing.T) {
	f := newFixture(t)
	members := NewMembers(f.db)
	ctx := context.Background()

	// other joins a team of p2, then leaves p2 entirely.
	testutil.AddTeamMember(t, f.db, f.teamB, f.other)
	require.NoError(t, members.RemoveProjectMember(ctx, f.p2.ID, f.other.ID))

	a, err := f.resolver.GetUserAccess(ctx, f.other.ID)
	require.NoError(t, err)
	assert.True(t, a.Projects.Empty())
	assert.True(t, a.Teams.Empty())

	err = members.RemoveProjectMember(ctx, f.p2.ID, f.other.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// Team memberships elsewhere survive.
	a, err = f.resolver.GetUserAccess(ctx, f.member.ID)
	require.NoError(t, err)
	assert.True(t, a.Teams.Contains(f.teamA.ID))
}

func TestTeamMembers(t *testing.T) {
	f := newFixture(t)
	members := NewMembers(f.db)
	ctx := context.Background()

	_, err := members.AddTeamMember(ctx, f.teamA.ID, f.member.ID)
	assert.ErrorIs(t, err, ErrConflict)

	_, err = members.AddTeamMember(ctx, "missing", f.member.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := members.ListTeamMembers(ctx, f.teamA.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.NotNil(t, list[0].User)
	assert.Equal(t, "mia", list[0].User.Username)

	require.NoError(t, members.RemoveTeamMember(ctx, f.teamA.ID, f.member.ID))
	assert.ErrorIs(t, members.RemoveTeamMember(ctx, f.teamA.ID, f.member.ID), ErrNotFound)

	list, err = members.ListTeamMembers(ctx, f.teamA.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestListProjectMembers(t *testing.T) {
	f := newFixture(t)
	members := NewMembers(f.db)

	list, err := members.ListProjectMembers(context.Background(), f.p1.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, f.member.ID, list[0].UserID)
	require.NotNil(t, list[0].User)
}

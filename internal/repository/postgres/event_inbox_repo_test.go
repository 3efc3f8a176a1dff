package postgres_test

import (
	"context"
	"testing"

	"github.com/riftbridge/custom-match-core/internal/domain"
	"github.com/riftbridge/custom-match-core/internal/repository/postgres"
	"github.com/riftbridge/custom-match-core/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestEventInboxExcludesOwnerAndProcessed(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := postgres.NewEventInboxRepository(db.DB)
	ctx := context.Background()

	mine := &domain.EventInbox{EventType: "match_linked", Data: datatypes.JSON(`{}`), MatchID: 1, BackendID: "backend-a"}
	theirs := &domain.EventInbox{EventType: "match_linked", Data: datatypes.JSON(`{}`), MatchID: 1, BackendID: "backend-b"}
	require.NoError(t, repo.Create(ctx, mine))
	require.NoError(t, repo.Create(ctx, theirs))

	rows, err := repo.GetUnprocessed(ctx, "backend-a", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1, "a backend only sees other backends' rows")
	assert.Equal(t, theirs.ID, rows[0].ID)

	require.NoError(t, repo.MarkProcessed(ctx, theirs.ID))

	rows, err = repo.GetUnprocessed(ctx, "backend-a", 10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

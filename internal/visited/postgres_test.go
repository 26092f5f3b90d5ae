package visited

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresMarkNewID(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewPostgresWithPool(mock, "visited_notes")
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO visited_notes").
		WithArgs("65f1a2b3").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	fresh, err := store.Mark(context.Background(), "65f1a2b3")
	require.NoError(t, err)
	assert.True(t, fresh)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMarkExistingIDIsNotNew(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewPostgresWithPool(mock, "visited_notes")
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO visited_notes").
		WithArgs("65f1a2b3").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	fresh, err := store.Mark(context.Background(), "65f1a2b3")
	require.NoError(t, err)
	assert.False(t, fresh)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSeen(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewPostgresWithPool(mock, "visited_notes")
	require.NoError(t, err)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("65f1a2b3").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	seen, err := store.Seen(context.Background(), "65f1a2b3")
	require.NoError(t, err)
	assert.True(t, seen)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRejectsInvalidTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewPostgresWithPool(mock, "visited; DROP TABLE notes")
	assert.Error(t, err)
}

func TestMemorySetMonotonic(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	set := NewMemory()

	fresh, err := set.Mark(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, err = set.Mark(ctx, "a1")
	require.NoError(t, err)
	assert.False(t, fresh)

	seen, err := set.Seen(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, seen)

	seen, err = set.Seen(ctx, "a2")
	require.NoError(t, err)
	assert.False(t, seen)

	assert.Equal(t, 1, set.Len())
}

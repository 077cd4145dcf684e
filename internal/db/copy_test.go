package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })
	return mock
}

func TestCopyFrom(t *testing.T) {
	mock := newMockPool(t)
	cols := []string{"cluster_id", "voxel_key", "lng", "lat"}

	mock.ExpectCopyFrom(pgx.Identifier{"voxels"}, cols).WillReturnResult(2)

	rows := [][]any{
		{int64(1), "v1", 13.41, 52.51},
		{int64(1), "v2", 13.42, 52.52},
	}
	n, err := CopyFrom(context.Background(), mock, "voxels", cols, rows)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFromEmptyIsNoop(t *testing.T) {
	mock := newMockPool(t)

	n, err := CopyFrom(context.Background(), mock, "voxels", []string{"voxel_key"}, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFromError(t *testing.T) {
	mock := newMockPool(t)
	cols := []string{"voxel_key"}

	mock.ExpectCopyFrom(pgx.Identifier{"voxels"}, cols).
		WillReturnError(errors.New("broken pipe"))

	_, err := CopyFrom(context.Background(), mock, "voxels", cols, [][]any{{"v1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO voxels")
}

package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tagyourcity/backend/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func ptr(f float64) *float64 { return &f }

func testSubmission() *model.NewSubmission {
	return &model.NewSubmission{
		UserID:              "anonymous",
		SessionTimestamp:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Location:            &model.LngLat{Lng: 13.4, Lat: 52.5},
		RadiusMeters:        1000,
		TotalDislikedVoxels: 3,
		TotalLikedVoxels:    1,
		GroundPolygons: []model.NewGroundPolygon{{
			Type:      "disliked_area",
			Geometry:  json.RawMessage(`{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}`),
			Area:      ptr(120.5),
			CenterLng: 13.4,
			CenterLat: 52.5,
		}},
		Clusters: []model.NewCluster{{
			ClusterID:  "c1",
			Type:       "disliked",
			VoxelCount: 2,
			Lng:        13.4,
			Lat:        52.5,
			Height:     6,
			Tags:       []string{"noise"},
			Comment:    "loud intersection",
			Voxels: []model.NewVoxel{
				{Key: "v1", Lng: 13.41, Lat: 52.51, Height: 3},
				{Key: "v2", Lng: 13.42, Lat: 52.52, Height: 6},
			},
		}},
	}
}

func TestPostgresStore_CreateSubmission(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	sub := testSubmission()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO submissions`).
		WithArgs(pgxmock.AnyArg(), "anonymous", sub.SessionTimestamp,
			pgxmock.AnyArg(), pgxmock.AnyArg(), 1000.0, 3, 1, 1, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO ground_polygons`).
		WithArgs(pgxmock.AnyArg(), "disliked_area", pgxmock.AnyArg(),
			pgxmock.AnyArg(), 13.4, 52.5).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(`INSERT INTO clusters`).
		WithArgs(pgxmock.AnyArg(), "c1", "disliked", 2, pgxmock.AnyArg(),
			13.4, 52.5, 6.0, pgxmock.AnyArg(), "loud intersection").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectCopyFrom(pgx.Identifier{"voxels"}, voxelColumns).WillReturnResult(2)
	mock.ExpectCommit()

	id, err := s.CreateSubmission(context.Background(), sub)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateSubmission_RollsBackOnClusterFailure(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	sub := testSubmission()
	sub.GroundPolygons = nil

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO submissions`).
		WithArgs(pgxmock.AnyArg(), "anonymous", sub.SessionTimestamp,
			pgxmock.AnyArg(), pgxmock.AnyArg(), 1000.0, 3, 1, 1, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(`INSERT INTO clusters`).
		WillReturnError(errors.New("constraint violation"))
	mock.ExpectRollback()

	_, err := s.CreateSubmission(context.Background(), sub)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert cluster c1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateSubmission_BeginFails(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin().WillReturnError(errors.New("pool exhausted"))

	_, err := s.CreateSubmission(context.Background(), testSubmission())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "begin submission")
}

func TestPostgresStore_GetSubmission_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM submissions`).
		WithArgs("missing-id").
		WillReturnError(pgx.ErrNoRows)

	detail, err := s.GetSubmission(context.Background(), "missing-id")
	require.NoError(t, err)
	assert.Nil(t, detail)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetSubmission(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	created := ts.Add(time.Minute)

	mock.ExpectQuery(`FROM submissions`).
		WithArgs("sub-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"submission_id", "user_id", "session_timestamp", "user_lng", "user_lat",
			"radius_meters", "total_disliked_voxels", "total_liked_voxels",
			"total_clusters", "session_metadata", "created_at",
		}).AddRow("sub-1", "anonymous", ts, ptr(13.4), ptr(52.5),
			1000.0, 3, 1, 1, json.RawMessage(`{"app":"1.2"}`), created))

	mock.ExpectQuery(`FROM clusters`).
		WithArgs("sub-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"cluster_id", "cluster_type", "voxel_count", "ground_area_m2",
			"centroid_lng", "centroid_lat", "centroid_height", "tags", "comment", "created_at",
		}).AddRow("c1", "disliked", 2, (*float64)(nil),
			13.4, 52.5, 6.0, []string{"noise"}, "loud intersection", created))

	mock.ExpectQuery(`FROM ground_polygons`).
		WithArgs("sub-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"polygon_type", "geometry_json", "area_m2", "center_lng", "center_lat",
		}).AddRow("disliked_area", json.RawMessage(`{"type":"Polygon"}`), ptr(120.5), 13.4, 52.5))

	detail, err := s.GetSubmission(context.Background(), "sub-1")
	require.NoError(t, err)
	require.NotNil(t, detail)

	assert.Equal(t, "sub-1", detail.Submission.SubmissionID)
	assert.Equal(t, 1, detail.Submission.TotalClusters)
	require.Len(t, detail.Clusters, 1)
	assert.Equal(t, []string{"noise"}, detail.Clusters[0].Tags)
	assert.Nil(t, detail.Clusters[0].GroundAreaM2)
	require.Len(t, detail.GroundPolygons, 1)
	assert.Equal(t, [2]float64{13.4, 52.5}, detail.GroundPolygons[0].Center)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListSubmissions(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`ORDER BY created_at DESC`).
		WithArgs(DefaultListLimit).
		WillReturnRows(pgxmock.NewRows([]string{
			"submission_id", "user_id", "session_timestamp", "user_lng", "user_lat",
			"radius_meters", "total_disliked_voxels", "total_liked_voxels",
			"total_clusters", "session_metadata", "created_at",
		}).
			AddRow("sub-2", "anonymous", ts, (*float64)(nil), (*float64)(nil),
				1000.0, 0, 0, 0, json.RawMessage(nil), ts.Add(2*time.Minute)).
			AddRow("sub-1", "u-9", ts, ptr(13.4), ptr(52.5),
				500.0, 3, 1, 1, json.RawMessage(nil), ts.Add(time.Minute)))

	subs, err := s.ListSubmissions(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, "sub-2", subs[0].SubmissionID)
	assert.Equal(t, "u-9", subs[1].UserID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Ping(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT now`).
		WillReturnRows(pgxmock.NewRows([]string{"now"}).AddRow(now))

	got, err := s.Ping(context.Background())
	require.NoError(t, err)
	assert.Equal(t, now, got)
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS submissions`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ExportClusters(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM clusters c`).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "submission_id", "cluster_id", "cluster_type", "voxel_count",
			"ground_area_m2", "centroid_lng", "centroid_lat", "centroid_height",
			"tags", "comment", "created_at",
			"user_id", "session_timestamp", "user_lng", "user_lat",
			"radius_meters", "s_created_at",
		}).AddRow(int64(7), "sub-1", "c1", "disliked", 2,
			ptr(120.5), 13.4, 52.5, 6.0,
			[]string{"noise", "traffic"}, "loud intersection", ts,
			"anonymous", ts, ptr(13.4), ptr(52.5),
			1000.0, ts))

	rows, err := s.ExportClusters(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(7), rows[0].ClusterDBID)
	assert.Equal(t, []string{"noise", "traffic"}, rows[0].Tags)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ExportAll(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.MatchExpectationsInOrder(false)
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM clusters c`).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "submission_id", "cluster_id", "cluster_type", "voxel_count",
			"ground_area_m2", "centroid_lng", "centroid_lat", "centroid_height",
			"tags", "comment", "created_at",
			"user_id", "session_timestamp", "user_lng", "user_lat",
			"radius_meters", "s_created_at",
		}))
	mock.ExpectQuery(`FROM voxels v`).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "cluster_id", "voxel_key", "lng", "lat", "height",
			"height_meters", "created_at",
			"submission_id", "c_cluster_id", "cluster_type", "tags", "comment",
			"user_id", "session_timestamp", "s_created_at",
		}).AddRow(int64(1), int64(7), "v1", 13.41, 52.51, 3.0,
			3.0, ts,
			"sub-1", "c1", "disliked", []string{"noise"}, "",
			"anonymous", ts, ts))
	mock.ExpectQuery(`FROM ground_polygons gp`).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "submission_id", "polygon_type", "geometry_json",
			"area_m2", "center_lng", "center_lat", "created_at",
			"user_id", "session_timestamp", "s_created_at",
		}))

	data, err := s.ExportAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, data.Clusters)
	require.Len(t, data.Voxels, 1)
	assert.Equal(t, "v1", data.Voxels[0].VoxelKey)
	assert.Empty(t, data.Polygons)
	assert.NoError(t, mock.ExpectationsWereMet())
}

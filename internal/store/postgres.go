package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/tagyourcity/backend/internal/db"
	"github.com/tagyourcity/backend/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS submissions (
	id                    BIGSERIAL PRIMARY KEY,
	submission_id         TEXT NOT NULL UNIQUE,
	user_id               TEXT NOT NULL DEFAULT 'anonymous',
	session_timestamp     TIMESTAMPTZ NOT NULL,
	user_lng              DOUBLE PRECISION,
	user_lat              DOUBLE PRECISION,
	radius_meters         DOUBLE PRECISION NOT NULL DEFAULT 1000,
	total_disliked_voxels INTEGER NOT NULL DEFAULT 0,
	total_liked_voxels    INTEGER NOT NULL DEFAULT 0,
	total_clusters        INTEGER NOT NULL DEFAULT 0,
	session_metadata      JSONB,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS ground_polygons (
	id            BIGSERIAL PRIMARY KEY,
	submission_id TEXT NOT NULL REFERENCES submissions(submission_id) ON DELETE CASCADE,
	polygon_type  TEXT NOT NULL,
	geometry_json JSONB NOT NULL,
	area_m2       DOUBLE PRECISION,
	center_lng    DOUBLE PRECISION NOT NULL,
	center_lat    DOUBLE PRECISION NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS clusters (
	id              BIGSERIAL PRIMARY KEY,
	submission_id   TEXT NOT NULL REFERENCES submissions(submission_id) ON DELETE CASCADE,
	cluster_id      TEXT NOT NULL,
	cluster_type    TEXT NOT NULL,
	voxel_count     INTEGER NOT NULL DEFAULT 0,
	ground_area_m2  DOUBLE PRECISION,
	centroid_lng    DOUBLE PRECISION NOT NULL,
	centroid_lat    DOUBLE PRECISION NOT NULL,
	centroid_height DOUBLE PRECISION NOT NULL DEFAULT 0,
	tags            TEXT[] NOT NULL DEFAULT '{}',
	comment         TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS voxels (
	id            BIGSERIAL PRIMARY KEY,
	cluster_id    BIGINT NOT NULL REFERENCES clusters(id) ON DELETE CASCADE,
	voxel_key     TEXT NOT NULL,
	lng           DOUBLE PRECISION NOT NULL,
	lat           DOUBLE PRECISION NOT NULL,
	height        DOUBLE PRECISION NOT NULL DEFAULT 0,
	height_meters DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_submissions_created_at ON submissions(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_ground_polygons_submission_id ON ground_polygons(submission_id);
CREATE INDEX IF NOT EXISTS idx_clusters_submission_id ON clusters(submission_id);
CREATE INDEX IF NOT EXISTS idx_voxels_cluster_id ON voxels(cluster_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) (time.Time, error) {
	var now time.Time
	if err := s.pool.QueryRow(ctx, `SELECT now()`).Scan(&now); err != nil {
		return time.Time{}, eris.Wrap(err, "postgres: ping")
	}
	return now, nil
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// voxelColumns is the COPY column list for voxel rows.
var voxelColumns = []string{"cluster_id", "voxel_key", "lng", "lat", "height", "height_meters"}

// CreateSubmission writes the full nested structure in one transaction.
// Parent rows are inserted before their children; sibling voxels within a
// cluster go through COPY, so their relative order is unspecified but they
// all land before commit. Any failure rolls the whole submission back.
func (s *PostgresStore) CreateSubmission(ctx context.Context, sub *model.NewSubmission) (string, error) {
	submissionID := uuid.New().String()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", eris.Wrap(err, "postgres: begin submission")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var userLng, userLat *float64
	if sub.Location != nil {
		userLng = &sub.Location.Lng
		userLat = &sub.Location.Lat
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO submissions (
			submission_id, user_id, session_timestamp, user_lng, user_lat,
			radius_meters, total_disliked_voxels, total_liked_voxels,
			total_clusters, session_metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		submissionID, sub.UserID, sub.SessionTimestamp, userLng, userLat,
		sub.RadiusMeters, sub.TotalDislikedVoxels, sub.TotalLikedVoxels,
		len(sub.Clusters), []byte(sub.Metadata),
	)
	if err != nil {
		return "", eris.Wrap(err, "postgres: insert submission")
	}

	zap.L().Info("created submission",
		zap.String("submission_id", submissionID),
		zap.String("user_id", sub.UserID),
	)

	for _, p := range sub.GroundPolygons {
		_, err = tx.Exec(ctx,
			`INSERT INTO ground_polygons (
				submission_id, polygon_type, geometry_json, area_m2, center_lng, center_lat
			) VALUES ($1, $2, $3, $4, $5, $6)`,
			submissionID, p.Type, []byte(p.Geometry), p.Area, p.CenterLng, p.CenterLat,
		)
		if err != nil {
			return "", eris.Wrap(err, "postgres: insert ground polygon")
		}
	}
	if len(sub.GroundPolygons) > 0 {
		zap.L().Info("inserted ground polygons",
			zap.String("submission_id", submissionID),
			zap.Int("count", len(sub.GroundPolygons)),
		)
	}

	for _, c := range sub.Clusters {
		var clusterDBID int64
		err = tx.QueryRow(ctx,
			`INSERT INTO clusters (
				submission_id, cluster_id, cluster_type, voxel_count, ground_area_m2,
				centroid_lng, centroid_lat, centroid_height, tags, comment
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING id`,
			submissionID, c.ClusterID, c.Type, c.VoxelCount, c.GroundAreaM2,
			c.Lng, c.Lat, c.Height, c.Tags, c.Comment,
		).Scan(&clusterDBID)
		if err != nil {
			return "", eris.Wrapf(err, "postgres: insert cluster %s", c.ClusterID)
		}

		zap.L().Info("inserted cluster",
			zap.String("submission_id", submissionID),
			zap.String("cluster_id", c.ClusterID),
			zap.String("cluster_type", c.Type),
			zap.Int("tags", len(c.Tags)),
			zap.Bool("has_comment", c.Comment != ""),
		)

		if len(c.Voxels) == 0 {
			continue
		}
		rows := make([][]any, 0, len(c.Voxels))
		for _, v := range c.Voxels {
			rows = append(rows, []any{clusterDBID, v.Key, v.Lng, v.Lat, v.Height, v.Height})
		}
		n, err := db.CopyFrom(ctx, tx, "voxels", voxelColumns, rows)
		if err != nil {
			return "", eris.Wrapf(err, "postgres: insert voxels for cluster %s", c.ClusterID)
		}
		zap.L().Info("inserted voxels",
			zap.String("cluster_id", c.ClusterID),
			zap.Int64("count", n),
		)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", eris.Wrap(err, "postgres: commit submission")
	}
	return submissionID, nil
}

const submissionColumns = `
	submission_id, user_id, session_timestamp, user_lng, user_lat,
	radius_meters, total_disliked_voxels, total_liked_voxels,
	total_clusters, session_metadata, created_at`

func scanSubmission(row pgx.Row, sub *model.Submission) error {
	return row.Scan(
		&sub.SubmissionID, &sub.UserID, &sub.SessionTimestamp, &sub.Lng, &sub.Lat,
		&sub.RadiusMeters, &sub.TotalDislikedVoxels, &sub.TotalLikedVoxels,
		&sub.TotalClusters, &sub.SessionMetadata, &sub.CreatedAt,
	)
}

func (s *PostgresStore) ListSubmissions(ctx context.Context, limit int) ([]model.Submission, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+submissionColumns+`
		 FROM submissions
		 ORDER BY created_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list submissions")
	}
	defer rows.Close()

	var subs []model.Submission
	for rows.Next() {
		var sub model.Submission
		if err := scanSubmission(rows, &sub); err != nil {
			return nil, eris.Wrap(err, "postgres: scan submission")
		}
		subs = append(subs, sub)
	}
	return subs, eris.Wrap(rows.Err(), "postgres: list submissions iterate")
}

func (s *PostgresStore) GetSubmission(ctx context.Context, submissionID string) (*model.SubmissionDetail, error) {
	var detail model.SubmissionDetail

	err := scanSubmission(s.pool.QueryRow(ctx,
		`SELECT `+submissionColumns+`
		 FROM submissions
		 WHERE submission_id = $1`,
		submissionID,
	), &detail.Submission)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get submission %s", submissionID)
	}

	clusterRows, err := s.pool.Query(ctx,
		`SELECT cluster_id, cluster_type, voxel_count, ground_area_m2,
		        centroid_lng, centroid_lat, centroid_height, tags, comment, created_at
		 FROM clusters
		 WHERE submission_id = $1
		 ORDER BY created_at`,
		submissionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get submission clusters")
	}
	defer clusterRows.Close()

	for clusterRows.Next() {
		var c model.Cluster
		if err := clusterRows.Scan(
			&c.ClusterID, &c.Type, &c.VoxelCount, &c.GroundAreaM2,
			&c.Lng, &c.Lat, &c.Height, &c.Tags, &c.Comment, &c.CreatedAt,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan cluster")
		}
		detail.Clusters = append(detail.Clusters, c)
	}
	if err := clusterRows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: get submission clusters iterate")
	}

	polygonRows, err := s.pool.Query(ctx,
		`SELECT polygon_type, geometry_json, area_m2, center_lng, center_lat
		 FROM ground_polygons
		 WHERE submission_id = $1`,
		submissionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get submission polygons")
	}
	defer polygonRows.Close()

	for polygonRows.Next() {
		var gp model.GroundPolygon
		if err := polygonRows.Scan(
			&gp.Type, &gp.Geometry, &gp.Area, &gp.Center[0], &gp.Center[1],
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan polygon")
		}
		detail.GroundPolygons = append(detail.GroundPolygons, gp)
	}
	if err := polygonRows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: get submission polygons iterate")
	}

	return &detail, nil
}

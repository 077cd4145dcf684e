package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/tagyourcity/backend/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It exists for
// local development and the shared store test suite; tags and metadata are
// stored as JSON text instead of native array/jsonb columns.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS submissions (
	id                    INTEGER PRIMARY KEY AUTOINCREMENT,
	submission_id         TEXT NOT NULL UNIQUE,
	user_id               TEXT NOT NULL DEFAULT 'anonymous',
	session_timestamp     DATETIME NOT NULL,
	user_lng              REAL,
	user_lat              REAL,
	radius_meters         REAL NOT NULL DEFAULT 1000,
	total_disliked_voxels INTEGER NOT NULL DEFAULT 0,
	total_liked_voxels    INTEGER NOT NULL DEFAULT 0,
	total_clusters        INTEGER NOT NULL DEFAULT 0,
	session_metadata      TEXT,
	created_at            DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS ground_polygons (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	submission_id TEXT NOT NULL REFERENCES submissions(submission_id) ON DELETE CASCADE,
	polygon_type  TEXT NOT NULL,
	geometry_json TEXT NOT NULL,
	area_m2       REAL,
	center_lng    REAL NOT NULL,
	center_lat    REAL NOT NULL,
	created_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS clusters (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	submission_id   TEXT NOT NULL REFERENCES submissions(submission_id) ON DELETE CASCADE,
	cluster_id      TEXT NOT NULL,
	cluster_type    TEXT NOT NULL,
	voxel_count     INTEGER NOT NULL DEFAULT 0,
	ground_area_m2  REAL,
	centroid_lng    REAL NOT NULL,
	centroid_lat    REAL NOT NULL,
	centroid_height REAL NOT NULL DEFAULT 0,
	tags            TEXT NOT NULL DEFAULT '[]',
	comment         TEXT NOT NULL DEFAULT '',
	created_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS voxels (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	cluster_id    INTEGER NOT NULL REFERENCES clusters(id) ON DELETE CASCADE,
	voxel_key     TEXT NOT NULL,
	lng           REAL NOT NULL,
	lat           REAL NOT NULL,
	height        REAL NOT NULL DEFAULT 0,
	height_meters REAL NOT NULL DEFAULT 0,
	created_at    DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_submissions_created_at ON submissions(created_at);
CREATE INDEX IF NOT EXISTS idx_ground_polygons_submission_id ON ground_polygons(submission_id);
CREATE INDEX IF NOT EXISTS idx_clusters_submission_id ON clusters(submission_id);
CREATE INDEX IF NOT EXISTS idx_voxels_cluster_id ON voxels(cluster_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) (time.Time, error) {
	if _, err := s.db.ExecContext(ctx, `SELECT 1`); err != nil {
		return time.Time{}, eris.Wrap(err, "sqlite: ping")
	}
	return time.Now().UTC(), nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateSubmission(ctx context.Context, sub *model.NewSubmission) (string, error) {
	submissionID := uuid.New().String()
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: begin submission")
	}
	defer tx.Rollback() //nolint:errcheck

	var userLng, userLat *float64
	if sub.Location != nil {
		userLng = &sub.Location.Lng
		userLat = &sub.Location.Lat
	}
	var metadata *string
	if sub.Metadata != nil {
		m := string(sub.Metadata)
		metadata = &m
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO submissions (
			submission_id, user_id, session_timestamp, user_lng, user_lat,
			radius_meters, total_disliked_voxels, total_liked_voxels,
			total_clusters, session_metadata, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		submissionID, sub.UserID, sub.SessionTimestamp, userLng, userLat,
		sub.RadiusMeters, sub.TotalDislikedVoxels, sub.TotalLikedVoxels,
		len(sub.Clusters), metadata, now,
	)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: insert submission")
	}

	for _, p := range sub.GroundPolygons {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO ground_polygons (
				submission_id, polygon_type, geometry_json, area_m2, center_lng, center_lat, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			submissionID, p.Type, string(p.Geometry), p.Area, p.CenterLng, p.CenterLat, now,
		)
		if err != nil {
			return "", eris.Wrap(err, "sqlite: insert ground polygon")
		}
	}

	for _, c := range sub.Clusters {
		tagsJSON, err := json.Marshal(c.Tags)
		if err != nil {
			return "", eris.Wrap(err, "sqlite: marshal tags")
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO clusters (
				submission_id, cluster_id, cluster_type, voxel_count, ground_area_m2,
				centroid_lng, centroid_lat, centroid_height, tags, comment, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			submissionID, c.ClusterID, c.Type, c.VoxelCount, c.GroundAreaM2,
			c.Lng, c.Lat, c.Height, string(tagsJSON), c.Comment, now,
		)
		if err != nil {
			return "", eris.Wrapf(err, "sqlite: insert cluster %s", c.ClusterID)
		}
		clusterDBID, err := res.LastInsertId()
		if err != nil {
			return "", eris.Wrap(err, "sqlite: cluster id")
		}

		for _, v := range c.Voxels {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO voxels (cluster_id, voxel_key, lng, lat, height, height_meters, created_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				clusterDBID, v.Key, v.Lng, v.Lat, v.Height, v.Height, now,
			)
			if err != nil {
				return "", eris.Wrapf(err, "sqlite: insert voxel for cluster %s", c.ClusterID)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", eris.Wrap(err, "sqlite: commit submission")
	}

	zap.L().Info("created submission",
		zap.String("submission_id", submissionID),
		zap.String("user_id", sub.UserID),
		zap.Int("clusters", len(sub.Clusters)),
		zap.Int("ground_polygons", len(sub.GroundPolygons)),
	)
	return submissionID, nil
}

const sqliteSubmissionColumns = `
	submission_id, user_id, session_timestamp, user_lng, user_lat,
	radius_meters, total_disliked_voxels, total_liked_voxels,
	total_clusters, session_metadata, created_at`

type sqliteScannable interface {
	Scan(dest ...any) error
}

func scanSQLiteSubmission(row sqliteScannable, sub *model.Submission) error {
	var lng, lat sql.NullFloat64
	var metadata sql.NullString

	err := row.Scan(
		&sub.SubmissionID, &sub.UserID, &sub.SessionTimestamp, &lng, &lat,
		&sub.RadiusMeters, &sub.TotalDislikedVoxels, &sub.TotalLikedVoxels,
		&sub.TotalClusters, &metadata, &sub.CreatedAt,
	)
	if err != nil {
		return err
	}
	if lng.Valid {
		sub.Lng = &lng.Float64
	}
	if lat.Valid {
		sub.Lat = &lat.Float64
	}
	if metadata.Valid {
		sub.SessionMetadata = json.RawMessage(metadata.String)
	}
	return nil
}

func (s *SQLiteStore) ListSubmissions(ctx context.Context, limit int) ([]model.Submission, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteSubmissionColumns+`
		 FROM submissions
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list submissions")
	}
	defer rows.Close()

	var subs []model.Submission
	for rows.Next() {
		var sub model.Submission
		if err := scanSQLiteSubmission(rows, &sub); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan submission")
		}
		subs = append(subs, sub)
	}
	return subs, eris.Wrap(rows.Err(), "sqlite: list submissions iterate")
}

func (s *SQLiteStore) GetSubmission(ctx context.Context, submissionID string) (*model.SubmissionDetail, error) {
	var detail model.SubmissionDetail

	err := scanSQLiteSubmission(s.db.QueryRowContext(ctx,
		`SELECT `+sqliteSubmissionColumns+` FROM submissions WHERE submission_id = ?`,
		submissionID,
	), &detail.Submission)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get submission %s", submissionID)
	}

	clusterRows, err := s.db.QueryContext(ctx,
		`SELECT cluster_id, cluster_type, voxel_count, ground_area_m2,
		        centroid_lng, centroid_lat, centroid_height, tags, comment, created_at
		 FROM clusters
		 WHERE submission_id = ?
		 ORDER BY created_at, id`,
		submissionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get submission clusters")
	}
	defer clusterRows.Close()

	for clusterRows.Next() {
		var c model.Cluster
		var area sql.NullFloat64
		var tagsJSON string
		if err := clusterRows.Scan(
			&c.ClusterID, &c.Type, &c.VoxelCount, &area,
			&c.Lng, &c.Lat, &c.Height, &tagsJSON, &c.Comment, &c.CreatedAt,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan cluster")
		}
		if area.Valid {
			c.GroundAreaM2 = &area.Float64
		}
		if err := json.Unmarshal([]byte(tagsJSON), &c.Tags); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal tags")
		}
		detail.Clusters = append(detail.Clusters, c)
	}
	if err := clusterRows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: get submission clusters iterate")
	}

	polygonRows, err := s.db.QueryContext(ctx,
		`SELECT polygon_type, geometry_json, area_m2, center_lng, center_lat
		 FROM ground_polygons
		 WHERE submission_id = ?`,
		submissionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get submission polygons")
	}
	defer polygonRows.Close()

	for polygonRows.Next() {
		var gp model.GroundPolygon
		var geometry string
		var area sql.NullFloat64
		if err := polygonRows.Scan(
			&gp.Type, &geometry, &area, &gp.Center[0], &gp.Center[1],
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan polygon")
		}
		gp.Geometry = json.RawMessage(geometry)
		if area.Valid {
			gp.Area = &area.Float64
		}
		detail.GroundPolygons = append(detail.GroundPolygons, gp)
	}
	if err := polygonRows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: get submission polygons iterate")
	}

	return &detail, nil
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/tagyourcity/backend/internal/model"
)

func (s *SQLiteStore) ExportClusters(ctx context.Context) ([]model.ClusterExportRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.submission_id, c.cluster_id, c.cluster_type, c.voxel_count,
		       c.ground_area_m2, c.centroid_lng, c.centroid_lat, c.centroid_height,
		       c.tags, c.comment, c.created_at,
		       s.user_id, s.session_timestamp, s.user_lng, s.user_lat,
		       s.radius_meters, s.created_at
		FROM clusters c
		JOIN submissions s ON c.submission_id = s.submission_id
		ORDER BY s.created_at DESC, c.id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: export clusters")
	}
	defer rows.Close()

	var out []model.ClusterExportRow
	for rows.Next() {
		var r model.ClusterExportRow
		var area, sessLng, sessLat sql.NullFloat64
		var tagsJSON string
		if err := rows.Scan(
			&r.ClusterDBID, &r.SubmissionID, &r.ClusterID, &r.Type, &r.VoxelCount,
			&area, &r.Lng, &r.Lat, &r.Height,
			&tagsJSON, &r.Comment, &r.CreatedAt,
			&r.UserID, &r.SessionTimestamp, &sessLng, &sessLat,
			&r.RadiusMeters, &r.SubmissionCreatedAt,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan cluster export row")
		}
		if area.Valid {
			r.GroundAreaM2 = &area.Float64
		}
		if sessLng.Valid {
			r.SessionLng = &sessLng.Float64
		}
		if sessLat.Valid {
			r.SessionLat = &sessLat.Float64
		}
		if err := json.Unmarshal([]byte(tagsJSON), &r.Tags); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal export tags")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: export clusters iterate")
}

func (s *SQLiteStore) exportVoxels(ctx context.Context) ([]model.VoxelExportRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT v.id, v.cluster_id, v.voxel_key, v.lng, v.lat, v.height,
		       v.height_meters, v.created_at,
		       c.submission_id, c.cluster_id, c.cluster_type, c.tags, c.comment,
		       s.user_id, s.session_timestamp, s.created_at
		FROM voxels v
		JOIN clusters c ON v.cluster_id = c.id
		JOIN submissions s ON c.submission_id = s.submission_id
		ORDER BY s.created_at DESC, v.id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: export voxels")
	}
	defer rows.Close()

	var out []model.VoxelExportRow
	for rows.Next() {
		var r model.VoxelExportRow
		var tagsJSON string
		if err := rows.Scan(
			&r.VoxelID, &r.ClusterDBID, &r.VoxelKey, &r.Lng, &r.Lat, &r.Height,
			&r.HeightMeters, &r.CreatedAt,
			&r.SubmissionID, &r.ClusterID, &r.ClusterType, &tagsJSON, &r.Comment,
			&r.UserID, &r.SessionTimestamp, &r.SubmissionCreatedAt,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan voxel export row")
		}
		if err := json.Unmarshal([]byte(tagsJSON), &r.Tags); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal export tags")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: export voxels iterate")
}

func (s *SQLiteStore) exportPolygons(ctx context.Context) ([]model.PolygonExportRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT gp.id, gp.submission_id, gp.polygon_type, gp.geometry_json,
		       gp.area_m2, gp.center_lng, gp.center_lat, gp.created_at,
		       s.user_id, s.session_timestamp, s.created_at
		FROM ground_polygons gp
		JOIN submissions s ON gp.submission_id = s.submission_id
		ORDER BY s.created_at DESC, gp.id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: export polygons")
	}
	defer rows.Close()

	var out []model.PolygonExportRow
	for rows.Next() {
		var r model.PolygonExportRow
		var geometry string
		var area sql.NullFloat64
		if err := rows.Scan(
			&r.PolygonID, &r.SubmissionID, &r.Type, &geometry,
			&area, &r.CenterLng, &r.CenterLat, &r.CreatedAt,
			&r.UserID, &r.SessionTimestamp, &r.SubmissionCreatedAt,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan polygon export row")
		}
		r.Geometry = json.RawMessage(geometry)
		if area.Valid {
			r.Area = &area.Float64
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: export polygons iterate")
}

// ExportAll runs the three joins sequentially; SQLite sees little benefit
// from concurrent readers on one file.
func (s *SQLiteStore) ExportAll(ctx context.Context) (*model.ExportData, error) {
	var data model.ExportData
	var err error

	if data.Clusters, err = s.ExportClusters(ctx); err != nil {
		return nil, err
	}
	if data.Voxels, err = s.exportVoxels(ctx); err != nil {
		return nil, err
	}
	if data.Polygons, err = s.exportPolygons(ctx); err != nil {
		return nil, err
	}
	return &data, nil
}

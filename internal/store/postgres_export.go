package store

import (
	"context"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/tagyourcity/backend/internal/model"
)

const clusterExportQuery = `
	SELECT c.id, c.submission_id, c.cluster_id, c.cluster_type, c.voxel_count,
	       c.ground_area_m2, c.centroid_lng, c.centroid_lat, c.centroid_height,
	       c.tags, c.comment, c.created_at,
	       s.user_id, s.session_timestamp, s.user_lng, s.user_lat,
	       s.radius_meters, s.created_at
	FROM clusters c
	JOIN submissions s ON c.submission_id = s.submission_id
	ORDER BY s.created_at DESC, c.id`

const voxelExportQuery = `
	SELECT v.id, v.cluster_id, v.voxel_key, v.lng, v.lat, v.height,
	       v.height_meters, v.created_at,
	       c.submission_id, c.cluster_id, c.cluster_type, c.tags, c.comment,
	       s.user_id, s.session_timestamp, s.created_at
	FROM voxels v
	JOIN clusters c ON v.cluster_id = c.id
	JOIN submissions s ON c.submission_id = s.submission_id
	ORDER BY s.created_at DESC, v.id`

const polygonExportQuery = `
	SELECT gp.id, gp.submission_id, gp.polygon_type, gp.geometry_json,
	       gp.area_m2, gp.center_lng, gp.center_lat, gp.created_at,
	       s.user_id, s.session_timestamp, s.created_at
	FROM ground_polygons gp
	JOIN submissions s ON gp.submission_id = s.submission_id
	ORDER BY s.created_at DESC, gp.id`

// ExportClusters returns every cluster joined to its submission, newest
// submission first.
func (s *PostgresStore) ExportClusters(ctx context.Context) ([]model.ClusterExportRow, error) {
	rows, err := s.pool.Query(ctx, clusterExportQuery)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: export clusters")
	}
	defer rows.Close()

	var out []model.ClusterExportRow
	for rows.Next() {
		var r model.ClusterExportRow
		if err := rows.Scan(
			&r.ClusterDBID, &r.SubmissionID, &r.ClusterID, &r.Type, &r.VoxelCount,
			&r.GroundAreaM2, &r.Lng, &r.Lat, &r.Height,
			&r.Tags, &r.Comment, &r.CreatedAt,
			&r.UserID, &r.SessionTimestamp, &r.SessionLng, &r.SessionLat,
			&r.RadiusMeters, &r.SubmissionCreatedAt,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan cluster export row")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: export clusters iterate")
}

func (s *PostgresStore) exportVoxels(ctx context.Context) ([]model.VoxelExportRow, error) {
	rows, err := s.pool.Query(ctx, voxelExportQuery)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: export voxels")
	}
	defer rows.Close()

	var out []model.VoxelExportRow
	for rows.Next() {
		var r model.VoxelExportRow
		if err := rows.Scan(
			&r.VoxelID, &r.ClusterDBID, &r.VoxelKey, &r.Lng, &r.Lat, &r.Height,
			&r.HeightMeters, &r.CreatedAt,
			&r.SubmissionID, &r.ClusterID, &r.ClusterType, &r.Tags, &r.Comment,
			&r.UserID, &r.SessionTimestamp, &r.SubmissionCreatedAt,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan voxel export row")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: export voxels iterate")
}

func (s *PostgresStore) exportPolygons(ctx context.Context) ([]model.PolygonExportRow, error) {
	rows, err := s.pool.Query(ctx, polygonExportQuery)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: export polygons")
	}
	defer rows.Close()

	var out []model.PolygonExportRow
	for rows.Next() {
		var r model.PolygonExportRow
		if err := rows.Scan(
			&r.PolygonID, &r.SubmissionID, &r.Type, &r.Geometry,
			&r.Area, &r.CenterLng, &r.CenterLat, &r.CreatedAt,
			&r.UserID, &r.SessionTimestamp, &r.SubmissionCreatedAt,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan polygon export row")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: export polygons iterate")
}

// ExportAll runs the three denormalizing joins concurrently; each query
// takes its own pooled connection.
func (s *PostgresStore) ExportAll(ctx context.Context) (*model.ExportData, error) {
	var data model.ExportData

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := s.ExportClusters(gctx)
		data.Clusters = rows
		return err
	})
	g.Go(func() error {
		rows, err := s.exportVoxels(gctx)
		data.Voxels = rows
		return err
	})
	g.Go(func() error {
		rows, err := s.exportPolygons(gctx)
		data.Polygons = rows
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &data, nil
}

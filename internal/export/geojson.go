// Package export reshapes denormalized store rows into the GeoJSON and CSV
// download formats.
package export

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/tagyourcity/backend/internal/model"
)

// Feature type discriminators carried in every feature's properties.
const (
	FeatureTypeClusterCentroid = "cluster_centroid"
	FeatureTypeVoxel           = "voxel"
	FeatureTypeGroundPolygon   = "ground_polygon"
)

const exportDescription = "Complete export with all voxels, clusters, ground polygons, tags, comments, and timestamps"

// Feature is one GeoJSON feature. Geometry is raw JSON: point geometries
// are encoded here, polygon geometries pass through exactly as stored.
type Feature struct {
	Type       string          `json:"type"`
	ID         string          `json:"id"`
	Geometry   json.RawMessage `json:"geometry"`
	Properties any             `json:"properties"`
}

// Metadata heads the FeatureCollection with totals.
type Metadata struct {
	GeneratedAt         time.Time `json:"generated_at"`
	TotalFeatures       int       `json:"total_features"`
	TotalClusters       int       `json:"total_clusters"`
	TotalVoxels         int       `json:"total_voxels"`
	TotalGroundPolygons int       `json:"total_ground_polygons"`
	Description         string    `json:"description"`
}

// FeatureCollection is the full GeoJSON export document.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Metadata Metadata  `json:"metadata"`
	Features []Feature `json:"features"`
}

// ClusterProperties carries the denormalized context for one cluster
// centroid feature.
type ClusterProperties struct {
	FeatureType         string    `json:"feature_type"`
	ClusterID           string    `json:"cluster_id"`
	ClusterDBID         int64     `json:"cluster_db_id"`
	SubmissionID        string    `json:"submission_id"`
	UserID              string    `json:"user_id"`
	ClusterType         string    `json:"cluster_type"`
	VoxelCount          int       `json:"voxel_count"`
	GroundAreaM2        *float64  `json:"ground_area_m2"`
	Tags                []string  `json:"tags"`
	Comment             string    `json:"comment"`
	SessionTimestamp    time.Time `json:"session_timestamp"`
	SessionLng          *float64  `json:"session_lng"`
	SessionLat          *float64  `json:"session_lat"`
	RadiusMeters        float64   `json:"radius_meters"`
	ClusterCreatedAt    time.Time `json:"cluster_created_at"`
	SubmissionCreatedAt time.Time `json:"submission_created_at"`
}

// VoxelProperties carries the denormalized context for one voxel feature.
type VoxelProperties struct {
	FeatureType         string    `json:"feature_type"`
	VoxelID             int64     `json:"voxel_id"`
	VoxelKey            string    `json:"voxel_key"`
	HeightMeters        float64   `json:"height_meters"`
	ClusterID           string    `json:"cluster_id"`
	ClusterDBID         int64     `json:"cluster_db_id"`
	ClusterType         string    `json:"cluster_type"`
	SubmissionID        string    `json:"submission_id"`
	UserID              string    `json:"user_id"`
	Tags                []string  `json:"tags"`
	Comment             string    `json:"comment"`
	SessionTimestamp    time.Time `json:"session_timestamp"`
	VoxelCreatedAt      time.Time `json:"voxel_created_at"`
	SubmissionCreatedAt time.Time `json:"submission_created_at"`
}

// PolygonProperties carries the denormalized context for one ground
// polygon feature.
type PolygonProperties struct {
	FeatureType         string    `json:"feature_type"`
	PolygonID           int64     `json:"polygon_id"`
	SubmissionID        string    `json:"submission_id"`
	UserID              string    `json:"user_id"`
	PolygonType         string    `json:"polygon_type"`
	AreaM2              *float64  `json:"area_m2"`
	CenterLng           float64   `json:"center_lng"`
	CenterLat           float64   `json:"center_lat"`
	SessionTimestamp    time.Time `json:"session_timestamp"`
	PolygonCreatedAt    time.Time `json:"polygon_created_at"`
	SubmissionCreatedAt time.Time `json:"submission_created_at"`
}

// pointGeometry encodes a 3D point as GeoJSON.
func pointGeometry(lng, lat, height float64) (json.RawMessage, error) {
	raw, err := geojson.Marshal(geom.NewPointFlat(geom.XYZ, []float64{lng, lat, height}))
	if err != nil {
		return nil, eris.Wrap(err, "export: encode point")
	}
	return raw, nil
}

// BuildFeatureCollection assembles one feature per cluster centroid, voxel,
// and ground polygon, in that category order, each category already sorted
// by submission recency then insertion order.
func BuildFeatureCollection(data *model.ExportData, generatedAt time.Time) (*FeatureCollection, error) {
	features := make([]Feature, 0, len(data.Clusters)+len(data.Voxels)+len(data.Polygons))

	for _, r := range data.Clusters {
		g, err := pointGeometry(r.Lng, r.Lat, r.Height)
		if err != nil {
			return nil, err
		}
		features = append(features, Feature{
			Type:     "Feature",
			ID:       fmt.Sprintf("cluster_%s", r.ClusterID),
			Geometry: g,
			Properties: ClusterProperties{
				FeatureType:         FeatureTypeClusterCentroid,
				ClusterID:           r.ClusterID,
				ClusterDBID:         r.ClusterDBID,
				SubmissionID:        r.SubmissionID,
				UserID:              r.UserID,
				ClusterType:         r.Type,
				VoxelCount:          r.VoxelCount,
				GroundAreaM2:        r.GroundAreaM2,
				Tags:                r.Tags,
				Comment:             r.Comment,
				SessionTimestamp:    r.SessionTimestamp,
				SessionLng:          r.SessionLng,
				SessionLat:          r.SessionLat,
				RadiusMeters:        r.RadiusMeters,
				ClusterCreatedAt:    r.CreatedAt,
				SubmissionCreatedAt: r.SubmissionCreatedAt,
			},
		})
	}

	for _, r := range data.Voxels {
		g, err := pointGeometry(r.Lng, r.Lat, r.Height)
		if err != nil {
			return nil, err
		}
		features = append(features, Feature{
			Type:     "Feature",
			ID:       fmt.Sprintf("voxel_%d", r.VoxelID),
			Geometry: g,
			Properties: VoxelProperties{
				FeatureType:         FeatureTypeVoxel,
				VoxelID:             r.VoxelID,
				VoxelKey:            r.VoxelKey,
				HeightMeters:        r.HeightMeters,
				ClusterID:           r.ClusterID,
				ClusterDBID:         r.ClusterDBID,
				ClusterType:         r.ClusterType,
				SubmissionID:        r.SubmissionID,
				UserID:              r.UserID,
				Tags:                r.Tags,
				Comment:             r.Comment,
				SessionTimestamp:    r.SessionTimestamp,
				VoxelCreatedAt:      r.CreatedAt,
				SubmissionCreatedAt: r.SubmissionCreatedAt,
			},
		})
	}

	for _, r := range data.Polygons {
		features = append(features, Feature{
			Type:     "Feature",
			ID:       fmt.Sprintf("ground_polygon_%d", r.PolygonID),
			Geometry: r.Geometry,
			Properties: PolygonProperties{
				FeatureType:         FeatureTypeGroundPolygon,
				PolygonID:           r.PolygonID,
				SubmissionID:        r.SubmissionID,
				UserID:              r.UserID,
				PolygonType:         r.Type,
				AreaM2:              r.Area,
				CenterLng:           r.CenterLng,
				CenterLat:           r.CenterLat,
				SessionTimestamp:    r.SessionTimestamp,
				PolygonCreatedAt:    r.CreatedAt,
				SubmissionCreatedAt: r.SubmissionCreatedAt,
			},
		})
	}

	return &FeatureCollection{
		Type: "FeatureCollection",
		Metadata: Metadata{
			GeneratedAt:         generatedAt,
			TotalFeatures:       len(features),
			TotalClusters:       len(data.Clusters),
			TotalVoxels:         len(data.Voxels),
			TotalGroundPolygons: len(data.Polygons),
			Description:         exportDescription,
		},
		Features: features,
	}, nil
}

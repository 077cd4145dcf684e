package export

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tagyourcity/backend/internal/model"
)

func ptr(f float64) *float64 { return &f }

func sampleExportData() *model.ExportData {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &model.ExportData{
		Clusters: []model.ClusterExportRow{{
			ClusterDBID:         7,
			SubmissionID:        "sub-1",
			ClusterID:           "c1",
			Type:                "disliked",
			VoxelCount:          2,
			Lng:                 13.4,
			Lat:                 52.5,
			Height:              6,
			Tags:                []string{"noise", "traffic"},
			Comment:             "loud intersection",
			CreatedAt:           ts,
			UserID:              "anonymous",
			SessionTimestamp:    ts,
			SessionLng:          ptr(13.4),
			SessionLat:          ptr(52.5),
			RadiusMeters:        1000,
			SubmissionCreatedAt: ts,
		}},
		Voxels: []model.VoxelExportRow{{
			VoxelID:             31,
			ClusterDBID:         7,
			VoxelKey:            "v_100_200_3",
			Lng:                 13.41,
			Lat:                 52.51,
			Height:              3,
			HeightMeters:        3,
			CreatedAt:           ts,
			SubmissionID:        "sub-1",
			ClusterID:           "c1",
			ClusterType:         "disliked",
			Tags:                []string{"noise"},
			UserID:              "anonymous",
			SessionTimestamp:    ts,
			SubmissionCreatedAt: ts,
		}},
		Polygons: []model.PolygonExportRow{{
			PolygonID:           5,
			SubmissionID:        "sub-1",
			Type:                "disliked_area",
			Geometry:            json.RawMessage(`{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}`),
			Area:                ptr(120.5),
			CenterLng:           13.4,
			CenterLat:           52.5,
			CreatedAt:           ts,
			UserID:              "anonymous",
			SessionTimestamp:    ts,
			SubmissionCreatedAt: ts,
		}},
	}
}

func TestBuildFeatureCollection(t *testing.T) {
	generated := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

	fc, err := BuildFeatureCollection(sampleExportData(), generated)
	require.NoError(t, err)

	assert.Equal(t, "FeatureCollection", fc.Type)
	assert.Equal(t, generated, fc.Metadata.GeneratedAt)
	assert.Equal(t, 3, fc.Metadata.TotalFeatures)
	assert.Equal(t, 1, fc.Metadata.TotalClusters)
	assert.Equal(t, 1, fc.Metadata.TotalVoxels)
	assert.Equal(t, 1, fc.Metadata.TotalGroundPolygons)
	require.Len(t, fc.Features, 3)

	// Clusters first, then voxels, then polygons
	assert.Equal(t, "cluster_c1", fc.Features[0].ID)
	assert.Equal(t, "voxel_31", fc.Features[1].ID)
	assert.Equal(t, "ground_polygon_5", fc.Features[2].ID)
}

func TestBuildFeatureCollectionClusterFeature(t *testing.T) {
	fc, err := BuildFeatureCollection(sampleExportData(), time.Now().UTC())
	require.NoError(t, err)

	f := fc.Features[0]
	assert.Equal(t, "Feature", f.Type)

	var g struct {
		Type        string    `json:"type"`
		Coordinates []float64 `json:"coordinates"`
	}
	require.NoError(t, json.Unmarshal(f.Geometry, &g))
	assert.Equal(t, "Point", g.Type)
	require.Len(t, g.Coordinates, 3)
	assert.InDelta(t, 13.4, g.Coordinates[0], 0.001)
	assert.InDelta(t, 52.5, g.Coordinates[1], 0.001)
	assert.InDelta(t, 6.0, g.Coordinates[2], 0.001)

	props, ok := f.Properties.(ClusterProperties)
	require.True(t, ok)
	assert.Equal(t, FeatureTypeClusterCentroid, props.FeatureType)
	assert.Equal(t, int64(7), props.ClusterDBID)
	assert.Equal(t, []string{"noise", "traffic"}, props.Tags)
	assert.Equal(t, "loud intersection", props.Comment)
	require.NotNil(t, props.SessionLng)
	assert.InDelta(t, 13.4, *props.SessionLng, 0.001)
}

func TestBuildFeatureCollectionPolygonPassthrough(t *testing.T) {
	data := sampleExportData()
	fc, err := BuildFeatureCollection(data, time.Now().UTC())
	require.NoError(t, err)

	f := fc.Features[2]
	assert.JSONEq(t, string(data.Polygons[0].Geometry), string(f.Geometry))

	props, ok := f.Properties.(PolygonProperties)
	require.True(t, ok)
	assert.Equal(t, FeatureTypeGroundPolygon, props.FeatureType)
	assert.Equal(t, "disliked_area", props.PolygonType)
	require.NotNil(t, props.AreaM2)
	assert.InDelta(t, 120.5, *props.AreaM2, 0.001)
}

func TestBuildFeatureCollectionPropertyKeys(t *testing.T) {
	fc, err := BuildFeatureCollection(sampleExportData(), time.Now().UTC())
	require.NoError(t, err)

	raw, err := json.Marshal(fc.Features[1].Properties)
	require.NoError(t, err)

	var keys map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &keys))
	for _, k := range []string{
		"feature_type", "voxel_id", "voxel_key", "height_meters",
		"cluster_id", "cluster_db_id", "cluster_type", "submission_id",
		"user_id", "tags", "comment", "session_timestamp",
		"voxel_created_at", "submission_created_at",
	} {
		assert.Contains(t, keys, k)
	}
}

func TestBuildFeatureCollectionEmpty(t *testing.T) {
	fc, err := BuildFeatureCollection(&model.ExportData{}, time.Now().UTC())
	require.NoError(t, err)

	assert.Zero(t, fc.Metadata.TotalFeatures)
	assert.NotNil(t, fc.Features)
	assert.Empty(t, fc.Features)
}

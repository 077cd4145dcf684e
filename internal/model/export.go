package model

import (
	"encoding/json"
	"time"
)

// ClusterExportRow is one cluster joined to its owning submission, as used
// by both the GeoJSON and CSV exports.
type ClusterExportRow struct {
	ClusterDBID         int64
	SubmissionID        string
	ClusterID           string
	Type                string
	VoxelCount          int
	GroundAreaM2        *float64
	Lng                 float64
	Lat                 float64
	Height              float64
	Tags                []string
	Comment             string
	CreatedAt           time.Time
	UserID              string
	SessionTimestamp    time.Time
	SessionLng          *float64
	SessionLat          *float64
	RadiusMeters        float64
	SubmissionCreatedAt time.Time
}

// VoxelExportRow is one voxel joined through its cluster to the owning
// submission.
type VoxelExportRow struct {
	VoxelID             int64
	ClusterDBID         int64
	VoxelKey            string
	Lng                 float64
	Lat                 float64
	Height              float64
	HeightMeters        float64
	CreatedAt           time.Time
	SubmissionID        string
	ClusterID           string
	ClusterType         string
	Tags                []string
	Comment             string
	UserID              string
	SessionTimestamp    time.Time
	SubmissionCreatedAt time.Time
}

// PolygonExportRow is one ground polygon joined to its owning submission.
type PolygonExportRow struct {
	PolygonID           int64
	SubmissionID        string
	Type                string
	Geometry            json.RawMessage
	Area                *float64
	CenterLng           float64
	CenterLat           float64
	CreatedAt           time.Time
	UserID              string
	SessionTimestamp    time.Time
	SubmissionCreatedAt time.Time
}

// ExportData is the full denormalized join set backing the GeoJSON export.
type ExportData struct {
	Clusters []ClusterExportRow
	Voxels   []VoxelExportRow
	Polygons []PolygonExportRow
}

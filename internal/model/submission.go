package model

import (
	"encoding/json"
	"time"
)

// LngLat is a geographic coordinate pair in WGS84 degrees.
type LngLat struct {
	Lng float64 `json:"lng"`
	Lat float64 `json:"lat"`
}

// ClientID is a client-assigned identifier that may arrive as either a
// JSON string or a JSON number.
type ClientID string

func (c *ClientID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = ClientID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*c = ClientID(n.String())
	return nil
}

// SubmissionRequest is the payload accepted by POST /api/submissions.
// Voxel-count arrays are opaque: only their lengths are persisted.
type SubmissionRequest struct {
	UserID           string                 `json:"userId"`
	SessionTimestamp time.Time              `json:"sessionTimestamp" validate:"required"`
	UserLocation     *LngLat                `json:"userLocation,omitempty"`
	RadiusMeters     *float64               `json:"radiusMeters,omitempty"`
	DislikedVoxels   []json.RawMessage      `json:"dislikedVoxels,omitempty"`
	LikedVoxels      []json.RawMessage      `json:"likedVoxels,omitempty"`
	GroundPolygons   []GroundPolygonPayload `json:"groundPolygons,omitempty" validate:"dive"`
	Clusters         []ClusterPayload       `json:"clusters,omitempty" validate:"dive"`
	SessionMetadata  json.RawMessage        `json:"sessionMetadata,omitempty"`
}

// GroundPolygonPayload is one painted 2D area in a submission.
type GroundPolygonPayload struct {
	Type     string          `json:"type" validate:"required"`
	Geometry json.RawMessage `json:"geometry" validate:"required"`
	Area     *float64        `json:"area,omitempty"`
	Center   []float64       `json:"center" validate:"required,len=2"`
}

// Centroid is a cluster's 3D center. Height defaults to 0 when omitted.
type Centroid struct {
	Lng    *float64 `json:"lng" validate:"required"`
	Lat    *float64 `json:"lat" validate:"required"`
	Height *float64 `json:"height,omitempty"`
}

// ClusterPayload is one labeled voxel group in a submission.
type ClusterPayload struct {
	ID           ClientID       `json:"id" validate:"required"`
	Type         string         `json:"type" validate:"required"`
	Centroid     Centroid       `json:"centroid"`
	GroundAreaM2 *float64       `json:"groundAreaM2,omitempty"`
	Tags         []string       `json:"tags,omitempty"`
	Comment      string         `json:"comment,omitempty"`
	Voxels       []VoxelPayload `json:"voxels,omitempty" validate:"dive"`
}

// VoxelPayload is one tagged grid cell inside a cluster.
type VoxelPayload struct {
	Key    string   `json:"key" validate:"required"`
	Lng    *float64 `json:"lng" validate:"required"`
	Lat    *float64 `json:"lat" validate:"required"`
	Height *float64 `json:"height,omitempty"`
}

// NewSubmission is a fully-defaulted submission ready for the store.
// All optional-field fallbacks from the request are applied exactly once,
// in Normalize.
type NewSubmission struct {
	UserID              string
	SessionTimestamp    time.Time
	Location            *LngLat
	RadiusMeters        float64
	TotalDislikedVoxels int
	TotalLikedVoxels    int
	Metadata            json.RawMessage // nil stores SQL NULL
	GroundPolygons      []NewGroundPolygon
	Clusters            []NewCluster
}

// NewGroundPolygon is a defaulted ground polygon row.
type NewGroundPolygon struct {
	Type      string
	Geometry  json.RawMessage
	Area      *float64 // nil stores SQL NULL
	CenterLng float64
	CenterLat float64
}

// NewCluster is a defaulted cluster row with its voxels.
type NewCluster struct {
	ClusterID    string
	Type         string
	VoxelCount   int
	GroundAreaM2 *float64
	Lng          float64
	Lat          float64
	Height       float64
	Tags         []string
	Comment      string
	Voxels       []NewVoxel
}

// NewVoxel is a defaulted voxel row.
type NewVoxel struct {
	Key    string
	Lng    float64
	Lat    float64
	Height float64
}

// SubmissionStats echoes the client-reported array lengths back to the
// caller after a successful ingest.
type SubmissionStats struct {
	DislikedVoxels int `json:"dislikedVoxels"`
	LikedVoxels    int `json:"likedVoxels"`
	GroundPolygons int `json:"groundPolygons"`
	Clusters       int `json:"clusters"`
}

// Normalize applies every optional-field default in one place. The
// fallbacks mirror the collector clients' loose semantics: a zero radius or
// zero area counts as absent, an empty user id becomes "anonymous", and a
// JSON null metadata value stores NULL rather than the literal "null".
func (r *SubmissionRequest) Normalize() *NewSubmission {
	s := &NewSubmission{
		UserID:              r.UserID,
		SessionTimestamp:    r.SessionTimestamp,
		Location:            r.UserLocation,
		RadiusMeters:        1000,
		TotalDislikedVoxels: len(r.DislikedVoxels),
		TotalLikedVoxels:    len(r.LikedVoxels),
	}
	if s.UserID == "" {
		s.UserID = "anonymous"
	}
	if r.RadiusMeters != nil && *r.RadiusMeters != 0 {
		s.RadiusMeters = *r.RadiusMeters
	}
	if len(r.SessionMetadata) > 0 && string(r.SessionMetadata) != "null" {
		s.Metadata = r.SessionMetadata
	}

	for _, p := range r.GroundPolygons {
		gp := NewGroundPolygon{
			Type:     p.Type,
			Geometry: p.Geometry,
			Area:     p.Area,
		}
		if gp.Area != nil && *gp.Area == 0 {
			gp.Area = nil
		}
		if len(p.Center) == 2 {
			gp.CenterLng = p.Center[0]
			gp.CenterLat = p.Center[1]
		}
		s.GroundPolygons = append(s.GroundPolygons, gp)
	}

	for _, c := range r.Clusters {
		nc := NewCluster{
			ClusterID:    string(c.ID),
			Type:         c.Type,
			VoxelCount:   len(c.Voxels),
			GroundAreaM2: c.GroundAreaM2,
			Tags:         c.Tags,
			Comment:      c.Comment,
		}
		if nc.GroundAreaM2 != nil && *nc.GroundAreaM2 == 0 {
			nc.GroundAreaM2 = nil
		}
		if nc.Tags == nil {
			nc.Tags = []string{}
		}
		if c.Centroid.Lng != nil {
			nc.Lng = *c.Centroid.Lng
		}
		if c.Centroid.Lat != nil {
			nc.Lat = *c.Centroid.Lat
		}
		if c.Centroid.Height != nil {
			nc.Height = *c.Centroid.Height
		}
		for _, v := range c.Voxels {
			nv := NewVoxel{Key: v.Key}
			if v.Lng != nil {
				nv.Lng = *v.Lng
			}
			if v.Lat != nil {
				nv.Lat = *v.Lat
			}
			if v.Height != nil {
				nv.Height = *v.Height
			}
			nc.Voxels = append(nc.Voxels, nv)
		}
		s.Clusters = append(s.Clusters, nc)
	}

	return s
}

// Stats reports the client-supplied array lengths.
func (r *SubmissionRequest) Stats() SubmissionStats {
	return SubmissionStats{
		DislikedVoxels: len(r.DislikedVoxels),
		LikedVoxels:    len(r.LikedVoxels),
		GroundPolygons: len(r.GroundPolygons),
		Clusters:       len(r.Clusters),
	}
}

// Submission is the stored summary row returned by list and lookup queries.
type Submission struct {
	SubmissionID        string          `json:"submission_id"`
	UserID              string          `json:"user_id"`
	SessionTimestamp    time.Time       `json:"session_timestamp"`
	Lng                 *float64        `json:"lng"`
	Lat                 *float64        `json:"lat"`
	RadiusMeters        float64         `json:"radius_meters"`
	TotalDislikedVoxels int             `json:"total_disliked_voxels"`
	TotalLikedVoxels    int             `json:"total_liked_voxels"`
	TotalClusters       int             `json:"total_clusters"`
	SessionMetadata     json.RawMessage `json:"session_metadata"`
	CreatedAt           time.Time       `json:"created_at"`
}

// Cluster is the stored cluster view used by the lookup endpoint.
type Cluster struct {
	ClusterID    string    `json:"cluster_id"`
	Type         string    `json:"cluster_type"`
	VoxelCount   int       `json:"voxel_count"`
	GroundAreaM2 *float64  `json:"ground_area_m2"`
	Lng          float64   `json:"lng"`
	Lat          float64   `json:"lat"`
	Height       float64   `json:"height"`
	Tags         []string  `json:"tags"`
	Comment      string    `json:"comment"`
	CreatedAt    time.Time `json:"created_at"`
}

// GroundPolygon is the unwrapped polygon view used by the lookup endpoint.
type GroundPolygon struct {
	Type     string          `json:"type"`
	Geometry json.RawMessage `json:"geometry"`
	Area     *float64        `json:"area"`
	Center   [2]float64      `json:"center"`
}

// SubmissionDetail is the composite view for GET /api/submissions/{id}.
type SubmissionDetail struct {
	Submission     Submission
	Clusters       []Cluster
	GroundPolygons []GroundPolygon
}

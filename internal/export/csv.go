package export

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/tagyourcity/backend/internal/model"
)

// CSVHeader is the fixed 15-column header of the cluster export. Voxels and
// ground polygons are deliberately not part of this export.
var CSVHeader = []string{
	"submission_id", "user_id", "session_timestamp", "session_lng", "session_lat",
	"cluster_id", "cluster_type", "voxel_count", "ground_area_m2",
	"centroid_lng", "centroid_lat", "centroid_height", "tags", "comment", "created_at",
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func formatNullFloat(f *float64) string {
	if f == nil {
		return ""
	}
	return formatFloat(*f)
}

// WriteClustersCSV serializes one row per cluster. encoding/csv applies
// standard quoting, so commas, quotes, and newlines in comments round-trip
// through any conforming reader.
func WriteClustersCSV(w io.Writer, rows []model.ClusterExportRow) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(CSVHeader); err != nil {
		return eris.Wrap(err, "export: write csv header")
	}

	for _, r := range rows {
		record := []string{
			r.SubmissionID,
			r.UserID,
			r.SessionTimestamp.UTC().Format(time.RFC3339),
			formatNullFloat(r.SessionLng),
			formatNullFloat(r.SessionLat),
			r.ClusterID,
			r.Type,
			strconv.Itoa(r.VoxelCount),
			formatNullFloat(r.GroundAreaM2),
			formatFloat(r.Lng),
			formatFloat(r.Lat),
			formatFloat(r.Height),
			strings.Join(r.Tags, "; "),
			r.Comment,
			r.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(record); err != nil {
			return eris.Wrap(err, "export: write csv row")
		}
	}

	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush csv")
}

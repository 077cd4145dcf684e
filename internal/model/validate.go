package model

import (
	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the payload shape before anything touches storage:
// required session timestamp, complete centroids and voxel coordinates,
// polygon type/geometry/center. Counts and geometry contents are not
// cross-checked; client-reported totals stay snapshots.
func (r *SubmissionRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return eris.Wrap(err, "submission payload")
	}
	return nil
}

// ProbeGeometry reports whether raw parses as a GeoJSON geometry. Callers
// use this for diagnostics only; malformed geometry is still stored opaquely.
func ProbeGeometry(raw []byte) error {
	var g geom.T
	if err := geojson.Unmarshal(raw, &g); err != nil {
		return eris.Wrap(err, "parse geometry")
	}
	return nil
}

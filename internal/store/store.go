// Package store persists tagging submissions and serves the aggregate
// queries behind the list, lookup, and export endpoints.
package store

import (
	"context"
	"time"

	"github.com/tagyourcity/backend/internal/model"
)

// DefaultListLimit caps the submission listing.
const DefaultListLimit = 100

// Store defines the persistence interface for tagging submissions.
type Store interface {
	// CreateSubmission writes one submission and all of its nested
	// polygons, clusters, and voxels atomically, returning the generated
	// submission identifier.
	CreateSubmission(ctx context.Context, sub *model.NewSubmission) (string, error)

	// ListSubmissions returns the most recent submissions, newest first.
	// A non-positive limit falls back to DefaultListLimit.
	ListSubmissions(ctx context.Context, limit int) ([]model.Submission, error)

	// GetSubmission returns the composite view for one submission, or
	// nil when no row matches.
	GetSubmission(ctx context.Context, submissionID string) (*model.SubmissionDetail, error)

	// ExportAll returns every cluster, voxel, and ground polygon joined
	// to its owning submission.
	ExportAll(ctx context.Context) (*model.ExportData, error)

	// ExportClusters returns the cluster/submission join backing the CSV
	// export.
	ExportClusters(ctx context.Context) ([]model.ClusterExportRow, error)

	// Ping verifies connectivity and returns the database's clock.
	Ping(ctx context.Context) (time.Time, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

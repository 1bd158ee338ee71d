package engine

import (
	"context"
	"sort"
)

// Engine defines the search engine operations the store is built on.
// Every component shares one Engine; implementations must be safe for
// concurrent use. Retries, if any, belong to the implementation's transport.
type Engine interface {
	// IndexDocument writes doc under id, replacing any previous version.
	// When index is an alias the write goes to its write index.
	// It returns the concrete index the document was written to.
	IndexDocument(ctx context.Context, index, id string, doc map[string]any) (string, error)

	// DeleteDocument removes the document with id from a concrete index.
	// It returns false, without error, when the document does not exist.
	DeleteDocument(ctx context.Context, index, id string) (bool, error)

	// Search runs q against an index or alias.
	Search(ctx context.Context, index string, q Query) (*SearchResult, error)

	// Count returns the number of documents matching every filter.
	Count(ctx context.Context, index string, filters ...Filter) (int64, error)

	// DeleteByQuery removes every document matching all filters and returns
	// how many were deleted. Documents removed concurrently are not errors.
	DeleteByQuery(ctx context.Context, index string, filters ...Filter) (int64, error)

	// PutIndexTemplate installs or replaces an index template.
	PutIndexTemplate(ctx context.Context, name string, body map[string]any) error

	// IndexExists reports whether a concrete index exists.
	IndexExists(ctx context.Context, index string) (bool, error)

	// CreateIndex creates an index. It returns an error matching
	// ErrAlreadyExists when the index is already present.
	CreateIndex(ctx context.Context, index string, body map[string]any) error

	// AliasExists reports whether an alias exists.
	AliasExists(ctx context.Context, alias string) (bool, error)

	// PutAlias points alias at index.
	PutAlias(ctx context.Context, index, alias string, writeIndex bool) error

	// GetAlias returns the indices an alias points to. It returns an empty
	// slice when the alias does not exist.
	GetAlias(ctx context.Context, alias string) ([]AliasTarget, error)

	// Rollover creates a new backing index for an alias when the conditions
	// are met and moves the alias's write index to it.
	Rollover(ctx context.Context, req RolloverRequest) (*RolloverResponse, error)

	// ClusterHealth returns the cluster health, scoped to index when given.
	ClusterHealth(ctx context.Context, index string) (*ClusterHealth, error)

	// IndexStats returns primary document and store statistics.
	IndexStats(ctx context.Context, index string) (*IndexStats, error)

	// CreateSnapshot starts a snapshot and returns the engine's raw report.
	CreateSnapshot(ctx context.Context, req SnapshotRequest) (map[string]any, error)

	// RestoreSnapshot starts a restore and returns the engine's raw report.
	RestoreSnapshot(ctx context.Context, req SnapshotRequest) (map[string]any, error)

	// DeleteSnapshot deletes a snapshot and returns the engine's raw report.
	DeleteSnapshot(ctx context.Context, repository, snapshot string) (map[string]any, error)
}

// Hit is a single search result.
type Hit struct {
	Index  string
	ID     string
	Score  *float64
	Source map[string]any
}

// SearchResult is the result of a search.
type SearchResult struct {
	// Total is the number of matching documents, which may exceed len(Hits).
	Total int64
	Hits  []Hit
}

// AliasTarget is an index behind an alias.
type AliasTarget struct {
	Index        string `json:"index"`
	IsWriteIndex bool   `json:"is_write_index"`
}

// RolloverRequest describes an alias rollover.
type RolloverRequest struct {
	Alias string
	// NewIndex names the new backing index. Empty lets the engine generate one.
	NewIndex   string
	Conditions map[string]any
	DryRun     bool
}

// RolloverResponse is the engine's report of a rollover.
type RolloverResponse struct {
	Acknowledged bool   `json:"acknowledged"`
	RolledOver   bool   `json:"rolled_over"`
	OldIndex     string `json:"old_index"`
	NewIndex     string `json:"new_index"`
	DryRun       bool   `json:"dry_run"`
}

// ClusterHealth is the engine's health classification.
type ClusterHealth struct {
	ClusterName      string `json:"cluster_name"`
	Status           string `json:"status"`
	TimedOut         bool   `json:"timed_out"`
	NumberOfNodes    int    `json:"number_of_nodes"`
	ActiveShards     int    `json:"active_shards"`
	UnassignedShards int    `json:"unassigned_shards"`
}

// IndexStats holds primary shard statistics for an index or alias.
type IndexStats struct {
	DocCount       int64
	StoreSizeBytes int64
}

// SnapshotRequest describes a snapshot create or restore.
type SnapshotRequest struct {
	Repository string
	Snapshot   string
	// Indices limits the operation. Empty means the engine's default.
	Indices []string
	// Wait blocks until the engine reports completion.
	Wait bool
}

// sortTargets orders alias targets by index name.
func sortTargets(targets []AliasTarget) {
	sort.Slice(targets, func(i, j int) bool {
		return targets[i].Index < targets[j].Index
	})
}

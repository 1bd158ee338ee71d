package model

// MigrationReport is returned by a schema migration.
type MigrationReport struct {
	// RolledOver reports whether the engine created a new backing index.
	RolledOver bool `json:"rolled_over"`

	// NewIndex is the backing index the alias now writes to, when rolled over.
	NewIndex *string `json:"new_index"`

	// OldIndex is the previous write index, when rolled over.
	OldIndex *string `json:"old_index,omitempty"`

	// Acknowledged mirrors the engine's acknowledgement of the rollover.
	Acknowledged bool `json:"acknowledged,omitempty"`
}

// SweepReport is returned by one TTL sweep batch.
type SweepReport struct {
	// Deleted is the number of expired items this batch removed.
	Deleted int64 `json:"deleted"`

	// Scanned is the number of expired items the batch selected.
	Scanned int `json:"scanned"`

	// HasMore reports whether expired items remain after this batch.
	HasMore bool `json:"has_more"`
}

// StatsReport summarises the stored data.
type StatsReport struct {
	// TotalItems is the number of live items visible through the data alias.
	TotalItems int64 `json:"total_items"`

	// TotalNamespaces is the number of namespace records.
	TotalNamespaces int64 `json:"total_namespaces"`

	// Alias is the data alias the counts were taken from.
	Alias string `json:"alias"`

	// Indices lists the backing indices behind the alias.
	Indices []string `json:"indices"`

	// WriteIndex is the backing index currently receiving writes.
	WriteIndex string `json:"write_index,omitempty"`

	// StoreSizeBytes is the on-disk size of the backing indices.
	StoreSizeBytes int64 `json:"store_size_bytes"`
}

// HealthReport is the engine's health classification for the data alias.
type HealthReport struct {
	// Status is the engine's green, yellow, or red classification.
	Status string `json:"status"`

	// ClusterName is the name of the cluster.
	ClusterName string `json:"cluster_name"`

	// NumberOfNodes is the number of nodes in the cluster.
	NumberOfNodes int `json:"number_of_nodes"`

	// ActiveShards is the number of active shards.
	ActiveShards int `json:"active_shards"`

	// UnassignedShards is the number of unassigned shards.
	UnassignedShards int `json:"unassigned_shards"`

	// TimedOut reports whether the engine timed out building the response.
	TimedOut bool `json:"timed_out"`
}

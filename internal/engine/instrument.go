package engine

import (
	"context"
	"strconv"
	"time"
)

// instrumented records metrics for every call to the wrapped Engine.
type instrumented struct {
	next    Engine
	metrics *Metrics
}

// Instrument wraps next so that every operation records duration, status and
// error metrics. A nil metrics returns next unchanged.
func Instrument(next Engine, metrics *Metrics) Engine {
	if metrics == nil {
		return next
	}
	return &instrumented{next: next, metrics: metrics}
}

func (i *instrumented) observe(op string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "failure"
		i.metrics.RecordError(op, errorKind(err))
	}
	i.metrics.RecordOperation(op, status, time.Since(start))
}

func (i *instrumented) IndexDocument(ctx context.Context, index, id string, doc map[string]any) (string, error) {
	start := time.Now()
	written, err := i.next.IndexDocument(ctx, index, id, doc)
	i.observe("index_document", start, err)
	return written, err
}

func (i *instrumented) DeleteDocument(ctx context.Context, index, id string) (bool, error) {
	start := time.Now()
	deleted, err := i.next.DeleteDocument(ctx, index, id)
	i.observe("delete_document", start, err)
	return deleted, err
}

func (i *instrumented) Search(ctx context.Context, index string, q Query) (*SearchResult, error) {
	start := time.Now()
	result, err := i.next.Search(ctx, index, q)
	i.observe("search", start, err)
	return result, err
}

func (i *instrumented) Count(ctx context.Context, index string, filters ...Filter) (int64, error) {
	start := time.Now()
	count, err := i.next.Count(ctx, index, filters...)
	i.observe("count", start, err)
	return count, err
}

func (i *instrumented) DeleteByQuery(ctx context.Context, index string, filters ...Filter) (int64, error) {
	start := time.Now()
	deleted, err := i.next.DeleteByQuery(ctx, index, filters...)
	i.observe("delete_by_query", start, err)
	return deleted, err
}

func (i *instrumented) PutIndexTemplate(ctx context.Context, name string, body map[string]any) error {
	start := time.Now()
	err := i.next.PutIndexTemplate(ctx, name, body)
	i.observe("put_index_template", start, err)
	return err
}

func (i *instrumented) IndexExists(ctx context.Context, index string) (bool, error) {
	start := time.Now()
	exists, err := i.next.IndexExists(ctx, index)
	i.observe("index_exists", start, err)
	return exists, err
}

func (i *instrumented) CreateIndex(ctx context.Context, index string, body map[string]any) error {
	start := time.Now()
	err := i.next.CreateIndex(ctx, index, body)
	i.observe("create_index", start, err)
	return err
}

func (i *instrumented) AliasExists(ctx context.Context, alias string) (bool, error) {
	start := time.Now()
	exists, err := i.next.AliasExists(ctx, alias)
	i.observe("alias_exists", start, err)
	return exists, err
}

func (i *instrumented) PutAlias(ctx context.Context, index, alias string, writeIndex bool) error {
	start := time.Now()
	err := i.next.PutAlias(ctx, index, alias, writeIndex)
	i.observe("put_alias", start, err)
	return err
}

func (i *instrumented) GetAlias(ctx context.Context, alias string) ([]AliasTarget, error) {
	start := time.Now()
	targets, err := i.next.GetAlias(ctx, alias)
	i.observe("get_alias", start, err)
	return targets, err
}

func (i *instrumented) Rollover(ctx context.Context, req RolloverRequest) (*RolloverResponse, error) {
	start := time.Now()
	res, err := i.next.Rollover(ctx, req)
	i.observe("rollover", start, err)
	if err == nil {
		i.metrics.RolloversTotal.WithLabelValues(strconv.FormatBool(res.RolledOver)).Inc()
	}
	return res, err
}

func (i *instrumented) ClusterHealth(ctx context.Context, index string) (*ClusterHealth, error) {
	start := time.Now()
	health, err := i.next.ClusterHealth(ctx, index)
	i.observe("cluster_health", start, err)
	return health, err
}

func (i *instrumented) IndexStats(ctx context.Context, index string) (*IndexStats, error) {
	start := time.Now()
	stats, err := i.next.IndexStats(ctx, index)
	i.observe("index_stats", start, err)
	return stats, err
}

func (i *instrumented) CreateSnapshot(ctx context.Context, req SnapshotRequest) (map[string]any, error) {
	start := time.Now()
	report, err := i.next.CreateSnapshot(ctx, req)
	i.observe("create_snapshot", start, err)
	i.metrics.RecordSnapshotOperation("create", snapshotStatus(err))
	return report, err
}

func (i *instrumented) RestoreSnapshot(ctx context.Context, req SnapshotRequest) (map[string]any, error) {
	start := time.Now()
	report, err := i.next.RestoreSnapshot(ctx, req)
	i.observe("restore_snapshot", start, err)
	i.metrics.RecordSnapshotOperation("restore", snapshotStatus(err))
	return report, err
}

func (i *instrumented) DeleteSnapshot(ctx context.Context, repository, snapshot string) (map[string]any, error) {
	start := time.Now()
	report, err := i.next.DeleteSnapshot(ctx, repository, snapshot)
	i.observe("delete_snapshot", start, err)
	i.metrics.RecordSnapshotOperation("delete", snapshotStatus(err))
	return report, err
}

func snapshotStatus(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

// Package enginetest provides an in-memory engine.Engine for tests.
//
// The fake keeps indices, aliases, templates and snapshots in maps and
// evaluates the subset of query semantics the store relies on: term, ids and
// range filters, negation, a token based free-text match, sorting and paging.
// Writes are visible immediately, as with a wait_for refresh policy.
package enginetest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/n3tuk/langgraph-opensearch-store/internal/engine"
)

// Engine is an in-memory engine.Engine.
type Engine struct {
	mu        sync.Mutex
	indices   map[string]*index
	aliases   map[string][]engine.AliasTarget
	templates map[string]map[string]any
	snapshots map[string]engine.SnapshotRequest
	calls     []string
	failures  map[string]error

	// HealthStatus is reported by ClusterHealth. Defaults to "green".
	HealthStatus string
}

type index struct {
	body map[string]any
	docs map[string]map[string]any
}

var _ engine.Engine = (*Engine)(nil)

// New returns an empty Engine.
func New() *Engine {
	return &Engine{
		indices:      make(map[string]*index),
		aliases:      make(map[string][]engine.AliasTarget),
		templates:    make(map[string]map[string]any),
		snapshots:    make(map[string]engine.SnapshotRequest),
		failures:     make(map[string]error),
		HealthStatus: "green",
	}
}

// Fail makes every later call to the named method return err.
// A nil err clears the failure.
func (e *Engine) Fail(method string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err == nil {
		delete(e.failures, method)
		return
	}
	e.failures[method] = err
}

// Calls returns the names of the methods called so far, in order.
func (e *Engine) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

// CallCount returns how many times the named method was called.
func (e *Engine) CallCount(method string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, c := range e.calls {
		if c == method {
			n++
		}
	}
	return n
}

// ResetCalls forgets recorded calls.
func (e *Engine) ResetCalls() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = nil
}

// Document returns a copy of a stored document.
func (e *Engine) Document(indexName, id string) (map[string]any, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	idx, ok := e.indices[indexName]
	if !ok {
		return nil, false
	}
	doc, ok := idx.docs[id]
	if !ok {
		return nil, false
	}
	return clone(doc), true
}

// DocumentCount returns the number of documents in a concrete index.
func (e *Engine) DocumentCount(indexName string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if idx, ok := e.indices[indexName]; ok {
		return len(idx.docs)
	}
	return 0
}

// Template returns an installed index template.
func (e *Engine) Template(name string) (map[string]any, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	body, ok := e.templates[name]
	return body, ok
}

// IndexBody returns the body an index was created with.
func (e *Engine) IndexBody(name string) (map[string]any, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	idx, ok := e.indices[name]
	if !ok {
		return nil, false
	}
	return idx.body, true
}

// Snapshot returns a recorded snapshot.
func (e *Engine) Snapshot(repository, snapshot string) (engine.SnapshotRequest, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	req, ok := e.snapshots[repository+"/"+snapshot]
	return req, ok
}

func (e *Engine) record(method string) error {
	e.calls = append(e.calls, method)
	return e.failures[method]
}

func (e *Engine) ensureIndex(name string) *index {
	idx, ok := e.indices[name]
	if !ok {
		idx = &index{docs: make(map[string]map[string]any)}
		e.indices[name] = idx
	}
	return idx
}

// resolve expands an alias or index name to concrete indices.
func (e *Engine) resolve(op, name string) ([]string, error) {
	if targets, ok := e.aliases[name]; ok {
		names := make([]string, 0, len(targets))
		for _, t := range targets {
			names = append(names, t.Index)
		}
		return names, nil
	}
	if _, ok := e.indices[name]; ok {
		return []string{name}, nil
	}
	return nil, notFound(op, name, "index_not_found_exception")
}

// writeIndex returns the concrete index a write to name goes to.
func (e *Engine) writeIndex(op, name string) (string, error) {
	targets, ok := e.aliases[name]
	if !ok {
		return name, nil
	}
	for _, t := range targets {
		if t.IsWriteIndex {
			return t.Index, nil
		}
	}
	if len(targets) == 1 {
		return targets[0].Index, nil
	}
	return "", &engine.ResponseError{
		Op:         op,
		Target:     name,
		StatusCode: http.StatusBadRequest,
		Type:       "illegal_argument_exception",
		Reason:     "no write index is defined for alias [" + name + "]",
	}
}

// IndexDocument implements engine.Engine.
func (e *Engine) IndexDocument(_ context.Context, indexName, id string, doc map[string]any) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.record("IndexDocument"); err != nil {
		return "", err
	}
	target, err := e.writeIndex("index document", indexName)
	if err != nil {
		return "", err
	}
	e.ensureIndex(target).docs[id] = clone(doc)
	return target, nil
}

// DeleteDocument implements engine.Engine.
func (e *Engine) DeleteDocument(_ context.Context, indexName, id string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.record("DeleteDocument"); err != nil {
		return false, err
	}
	target, err := e.writeIndex("delete document", indexName)
	if err != nil {
		return false, err
	}
	idx, ok := e.indices[target]
	if !ok {
		return false, notFound("delete document", indexName, "index_not_found_exception")
	}
	if _, ok := idx.docs[id]; !ok {
		return false, nil
	}
	delete(idx.docs, id)
	return true, nil
}

// Search implements engine.Engine.
func (e *Engine) Search(_ context.Context, indexName string, q engine.Query) (*engine.SearchResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.record("Search"); err != nil {
		return nil, err
	}
	names, err := e.resolve("search", indexName)
	if err != nil {
		return nil, err
	}

	queryTokens := tokens(q.Text)
	var hits []engine.Hit
	for _, name := range names {
		for id, doc := range e.indices[name].docs {
			if !matchesAll(id, doc, q.Filters) {
				continue
			}
			hit := engine.Hit{Index: name, ID: id, Source: clone(doc)}
			if len(queryTokens) > 0 {
				text, _ := doc[q.TextField].(string)
				score := relevance(queryTokens, tokens(text))
				if score == 0 {
					continue
				}
				hit.Score = &score
			}
			hits = append(hits, hit)
		}
	}

	sortHits(hits, q)

	result := &engine.SearchResult{Total: int64(len(hits))}
	from := q.From
	if from > len(hits) {
		from = len(hits)
	}
	to := from + q.Size
	if to > len(hits) {
		to = len(hits)
	}
	result.Hits = hits[from:to]
	return result, nil
}

// Count implements engine.Engine.
func (e *Engine) Count(_ context.Context, indexName string, filters ...engine.Filter) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.record("Count"); err != nil {
		return 0, err
	}
	names, err := e.resolve("count", indexName)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, name := range names {
		for id, doc := range e.indices[name].docs {
			if matchesAll(id, doc, filters) {
				n++
			}
		}
	}
	return n, nil
}

// DeleteByQuery implements engine.Engine.
func (e *Engine) DeleteByQuery(_ context.Context, indexName string, filters ...engine.Filter) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.record("DeleteByQuery"); err != nil {
		return 0, err
	}
	names, err := e.resolve("delete by query", indexName)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, name := range names {
		idx := e.indices[name]
		for id, doc := range idx.docs {
			if matchesAll(id, doc, filters) {
				delete(idx.docs, id)
				n++
			}
		}
	}
	return n, nil
}

// PutIndexTemplate implements engine.Engine.
func (e *Engine) PutIndexTemplate(_ context.Context, name string, body map[string]any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.record("PutIndexTemplate"); err != nil {
		return err
	}
	e.templates[name] = body
	return nil
}

// IndexExists implements engine.Engine.
func (e *Engine) IndexExists(_ context.Context, indexName string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.record("IndexExists"); err != nil {
		return false, err
	}
	_, ok := e.indices[indexName]
	return ok, nil
}

// CreateIndex implements engine.Engine.
func (e *Engine) CreateIndex(_ context.Context, indexName string, body map[string]any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.record("CreateIndex"); err != nil {
		return err
	}
	if _, ok := e.indices[indexName]; ok {
		return &engine.ResponseError{
			Op:         "create index",
			Target:     indexName,
			StatusCode: http.StatusBadRequest,
			Type:       "resource_already_exists_exception",
			Reason:     "index [" + indexName + "] already exists",
		}
	}
	e.ensureIndex(indexName).body = body
	return nil
}

// AliasExists implements engine.Engine.
func (e *Engine) AliasExists(_ context.Context, alias string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.record("AliasExists"); err != nil {
		return false, err
	}
	_, ok := e.aliases[alias]
	return ok, nil
}

// PutAlias implements engine.Engine.
func (e *Engine) PutAlias(_ context.Context, indexName, alias string, writeIndex bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.record("PutAlias"); err != nil {
		return err
	}
	if _, ok := e.indices[indexName]; !ok {
		return notFound("put alias", indexName, "index_not_found_exception")
	}

	targets := e.aliases[alias]
	kept := targets[:0]
	for _, t := range targets {
		if t.Index == indexName {
			continue
		}
		if writeIndex {
			t.IsWriteIndex = false
		}
		kept = append(kept, t)
	}
	e.aliases[alias] = append(kept, engine.AliasTarget{Index: indexName, IsWriteIndex: writeIndex})
	return nil
}

// GetAlias implements engine.Engine.
func (e *Engine) GetAlias(_ context.Context, alias string) ([]engine.AliasTarget, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.record("GetAlias"); err != nil {
		return nil, err
	}
	targets := append([]engine.AliasTarget{}, e.aliases[alias]...)
	sort.Slice(targets, func(i, j int) bool { return targets[i].Index < targets[j].Index })
	return targets, nil
}

// Rollover implements engine.Engine. Only the max_docs condition is evaluated.
func (e *Engine) Rollover(_ context.Context, req engine.RolloverRequest) (*engine.RolloverResponse, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.record("Rollover"); err != nil {
		return nil, err
	}
	if _, ok := e.aliases[req.Alias]; !ok {
		return nil, &engine.ResponseError{
			Op:         "rollover",
			Target:     req.Alias,
			StatusCode: http.StatusBadRequest,
			Type:       "illegal_argument_exception",
			Reason:     "rollover target [" + req.Alias + "] does not exist",
		}
	}
	oldIndex, err := e.writeIndex("rollover", req.Alias)
	if err != nil {
		return nil, err
	}

	newIndex := req.NewIndex
	if newIndex == "" {
		newIndex = nextIndexName(oldIndex)
	}

	res := &engine.RolloverResponse{
		Acknowledged: !req.DryRun,
		OldIndex:     oldIndex,
		NewIndex:     newIndex,
		DryRun:       req.DryRun,
	}

	conditionMet := true
	if maxDocs, ok := number(req.Conditions["max_docs"]); ok {
		conditionMet = float64(len(e.indices[oldIndex].docs)) >= maxDocs
	}
	if !conditionMet || req.DryRun {
		res.Acknowledged = false
		return res, nil
	}

	if _, exists := e.indices[newIndex]; exists {
		return nil, &engine.ResponseError{
			Op:         "rollover",
			Target:     req.Alias,
			StatusCode: http.StatusBadRequest,
			Type:       "resource_already_exists_exception",
			Reason:     "index [" + newIndex + "] already exists",
		}
	}
	e.ensureIndex(newIndex)

	targets := e.aliases[req.Alias]
	for i := range targets {
		targets[i].IsWriteIndex = false
	}
	e.aliases[req.Alias] = append(targets, engine.AliasTarget{Index: newIndex, IsWriteIndex: true})
	res.RolledOver = true
	return res, nil
}

// ClusterHealth implements engine.Engine.
func (e *Engine) ClusterHealth(_ context.Context, _ string) (*engine.ClusterHealth, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.record("ClusterHealth"); err != nil {
		return nil, err
	}
	return &engine.ClusterHealth{
		ClusterName:   "enginetest",
		Status:        e.HealthStatus,
		NumberOfNodes: 1,
		ActiveShards:  len(e.indices),
	}, nil
}

// IndexStats implements engine.Engine.
func (e *Engine) IndexStats(_ context.Context, indexName string) (*engine.IndexStats, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.record("IndexStats"); err != nil {
		return nil, err
	}
	names, err := e.resolve("index stats", indexName)
	if err != nil {
		return nil, err
	}
	stats := &engine.IndexStats{}
	for _, name := range names {
		for _, doc := range e.indices[name].docs {
			data, _ := json.Marshal(doc)
			stats.DocCount++
			stats.StoreSizeBytes += int64(len(data))
		}
	}
	return stats, nil
}

// CreateSnapshot implements engine.Engine.
func (e *Engine) CreateSnapshot(_ context.Context, req engine.SnapshotRequest) (map[string]any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.record("CreateSnapshot"); err != nil {
		return nil, err
	}
	key := req.Repository + "/" + req.Snapshot
	if _, ok := e.snapshots[key]; ok {
		return nil, &engine.ResponseError{
			Op:         "create snapshot",
			Target:     key,
			StatusCode: http.StatusBadRequest,
			Type:       "invalid_snapshot_name_exception",
			Reason:     "snapshot with the same name already exists",
		}
	}
	e.snapshots[key] = req
	if !req.Wait {
		return map[string]any{"accepted": true}, nil
	}
	return map[string]any{
		"snapshot": map[string]any{
			"snapshot": req.Snapshot,
			"indices":  stringsToAny(req.Indices),
			"state":    "SUCCESS",
		},
	}, nil
}

// RestoreSnapshot implements engine.Engine.
func (e *Engine) RestoreSnapshot(_ context.Context, req engine.SnapshotRequest) (map[string]any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.record("RestoreSnapshot"); err != nil {
		return nil, err
	}
	key := req.Repository + "/" + req.Snapshot
	if _, ok := e.snapshots[key]; !ok {
		return nil, notFound("restore snapshot", key, "snapshot_missing_exception")
	}
	if !req.Wait {
		return map[string]any{"accepted": true}, nil
	}
	return map[string]any{
		"snapshot": map[string]any{
			"snapshot": req.Snapshot,
			"indices":  stringsToAny(req.Indices),
		},
	}, nil
}

// DeleteSnapshot implements engine.Engine.
func (e *Engine) DeleteSnapshot(_ context.Context, repository, snapshot string) (map[string]any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.record("DeleteSnapshot"); err != nil {
		return nil, err
	}
	key := repository + "/" + snapshot
	if _, ok := e.snapshots[key]; !ok {
		return nil, notFound("delete snapshot", key, "snapshot_missing_exception")
	}
	delete(e.snapshots, key)
	return map[string]any{"acknowledged": true}, nil
}

func notFound(op, target, errType string) *engine.ResponseError {
	return &engine.ResponseError{
		Op:         op,
		Target:     target,
		StatusCode: http.StatusNotFound,
		Type:       errType,
		Reason:     "no such resource [" + target + "]",
	}
}

func matchesAll(id string, doc map[string]any, filters []engine.Filter) bool {
	for _, f := range filters {
		if !matches(id, doc, f) {
			return false
		}
	}
	return true
}

func matches(id string, doc map[string]any, f engine.Filter) bool {
	var ok bool
	switch f.Op {
	case engine.OpIDs:
		ok = containsEqual(f.Values, id)
	case engine.OpLTE:
		v, present := doc[f.Field]
		ok = present && v != nil && compare(v, f.Value) <= 0
	default:
		ok = fieldHas(doc[f.Field], f.Value)
	}
	if f.Not {
		return !ok
	}
	return ok
}

func fieldHas(field, want any) bool {
	if values, ok := field.([]any); ok {
		return containsEqual(values, want)
	}
	return field != nil && equal(field, want)
}

func containsEqual(values []any, want any) bool {
	for _, v := range values {
		if equal(v, want) {
			return true
		}
	}
	return false
}

func equal(a, b any) bool {
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// compare orders times, then numbers, then strings.
func compare(a, b any) int {
	if ta, ok := asTime(a); ok {
		if tb, ok := asTime(b); ok {
			return ta.Compare(tb)
		}
	}
	if na, ok := number(a); ok {
		if nb, ok := number(b); ok {
			switch {
			case na < nb:
				return -1
			case na > nb:
				return 1
			}
			return 0
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		return parsed, err == nil
	}
	return time.Time{}, false
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func sortHits(hits []engine.Hit, q engine.Query) {
	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.Score != nil && b.Score != nil {
			if *a.Score != *b.Score {
				return *a.Score > *b.Score
			}
			return a.ID < b.ID
		}
		for _, s := range q.Sort {
			va, okA := a.Source[s.Field]
			vb, okB := b.Source[s.Field]
			if !okA || !okB {
				if okA != okB {
					return okA
				}
				continue
			}
			c := compare(va, vb)
			if c == 0 {
				continue
			}
			if s.Desc {
				return c > 0
			}
			return c < 0
		}
		return a.ID < b.ID
	})
}

func tokens(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// relevance counts the distinct query tokens present in the document.
func relevance(query, doc []string) float64 {
	present := make(map[string]bool, len(doc))
	for _, t := range doc {
		present[t] = true
	}
	seen := make(map[string]bool, len(query))
	var score float64
	for _, t := range query {
		if present[t] && !seen[t] {
			score++
		}
		seen[t] = true
	}
	return score
}

// nextIndexName increments a numeric suffix the way the engine names rollover indices.
func nextIndexName(name string) string {
	if i := strings.LastIndex(name, "-"); i >= 0 {
		suffix := name[i+1:]
		if n, err := strconv.Atoi(suffix); err == nil {
			return fmt.Sprintf("%s-%0*d", name[:i], len(suffix), n+1)
		}
	}
	return name + "-000002"
}

func clone(doc map[string]any) map[string]any {
	data, err := json.Marshal(doc)
	if err != nil {
		panic(fmt.Sprintf("enginetest: document is not JSON encodable: %v", err))
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		panic(fmt.Sprintf("enginetest: %v", err))
	}
	return out
}

func stringsToAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

package engine

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
	"go.uber.org/zap"
)

// OpenSearch implements the Engine interface on an OpenSearch cluster.
type OpenSearch struct {
	config *ConnectionConfig
	logger *zap.Logger
	client *opensearch.Client
}

var _ Engine = (*OpenSearch)(nil)

// NewOpenSearch creates an OpenSearch engine from the connection configuration.
// It does not contact the cluster.
func NewOpenSearch(cfg *ConnectionConfig, logger *zap.Logger) (*OpenSearch, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid connection configuration: %w", err)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = cfg.RequestTimeout
	transport.TLSClientConfig = &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // opt-in for self-signed development clusters
	}

	clientCfg := opensearch.Config{
		Addresses:  cfg.Hosts,
		Transport:  transport,
		MaxRetries: cfg.MaxRetries,
	}
	switch cfg.AuthMode {
	case AuthBasic:
		clientCfg.Username = cfg.Username
		clientCfg.Password = cfg.Password
	case AuthToken:
		clientCfg.Header = http.Header{"Authorization": []string{"Bearer " + cfg.Token}}
	}

	client, err := opensearch.NewClient(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create opensearch client: %w", err)
	}

	logger.Info("OpenSearch engine configured",
		zap.Strings("hosts", cfg.Hosts),
		zap.String("auth_mode", cfg.AuthMode),
		zap.String("refresh", cfg.Refresh),
	)

	return &OpenSearch{config: cfg, logger: logger, client: client}, nil
}

// do performs req, decoding a successful body into out when out is non-nil.
func (o *OpenSearch) do(ctx context.Context, op, target string, req opensearchapi.Request, out any) error {
	start := time.Now()
	res, err := req.Do(ctx, o.client)
	if err != nil {
		return fmt.Errorf("%s %q: %w", op, target, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("%s %q: failed to read response: %w", op, target, err)
	}

	o.logger.Debug("OpenSearch request",
		zap.String("op", op),
		zap.String("target", target),
		zap.Int("status", res.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if res.IsError() {
		return parseResponseError(op, target, res.StatusCode, body)
	}
	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("%s %q: failed to decode response: %w", op, target, err)
		}
	}
	return nil
}

// IndexDocument writes doc under id.
func (o *OpenSearch) IndexDocument(ctx context.Context, index, id string, doc map[string]any) (string, error) {
	body, err := encode(doc)
	if err != nil {
		return "", err
	}

	var out struct {
		Index string `json:"_index"`
	}
	req := opensearchapi.IndexRequest{
		Index:      index,
		DocumentID: id,
		Body:       body,
		Refresh:    o.config.Refresh,
	}
	if err := o.do(ctx, "index document", index, req, &out); err != nil {
		return "", err
	}
	return out.Index, nil
}

// DeleteDocument removes a document from a concrete index.
func (o *OpenSearch) DeleteDocument(ctx context.Context, index, id string) (bool, error) {
	req := opensearchapi.DeleteRequest{
		Index:      index,
		DocumentID: id,
		Refresh:    o.config.Refresh,
	}
	err := o.do(ctx, "delete document", index, req, nil)
	if err == nil {
		return true, nil
	}

	// A missing document is a 404 with a result body; a missing index is a 404 with an error type.
	var rerr *ResponseError
	if errors.As(err, &rerr) && rerr.StatusCode == http.StatusNotFound && rerr.Type == "" {
		return false, nil
	}
	return false, err
}

// Search runs q against index.
func (o *OpenSearch) Search(ctx context.Context, index string, q Query) (*SearchResult, error) {
	body, err := encode(q.source())
	if err != nil {
		return nil, err
	}

	var out struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Index  string         `json:"_index"`
				ID     string         `json:"_id"`
				Score  *float64       `json:"_score"`
				Source map[string]any `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	req := opensearchapi.SearchRequest{
		Index: []string{index},
		Body:  body,
	}
	if err := o.do(ctx, "search", index, req, &out); err != nil {
		return nil, err
	}

	result := &SearchResult{
		Total: out.Hits.Total.Value,
		Hits:  make([]Hit, 0, len(out.Hits.Hits)),
	}
	for _, h := range out.Hits.Hits {
		result.Hits = append(result.Hits, Hit{Index: h.Index, ID: h.ID, Score: h.Score, Source: h.Source})
	}
	return result, nil
}

// Count returns the number of documents matching filters.
func (o *OpenSearch) Count(ctx context.Context, index string, filters ...Filter) (int64, error) {
	body, err := encode(map[string]any{"query": boolQuery(filters, "", "")})
	if err != nil {
		return 0, err
	}

	var out struct {
		Count int64 `json:"count"`
	}
	req := opensearchapi.CountRequest{
		Index: []string{index},
		Body:  body,
	}
	if err := o.do(ctx, "count", index, req, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

// DeleteByQuery removes every document matching filters.
func (o *OpenSearch) DeleteByQuery(ctx context.Context, index string, filters ...Filter) (int64, error) {
	body, err := encode(map[string]any{"query": boolQuery(filters, "", "")})
	if err != nil {
		return 0, err
	}

	var out struct {
		Deleted int64 `json:"deleted"`
	}
	req := opensearchapi.DeleteByQueryRequest{
		Index:     []string{index},
		Body:      body,
		Conflicts: "proceed",
		Refresh:   boolPtr(o.config.Refresh != RefreshNone),
	}
	if err := o.do(ctx, "delete by query", index, req, &out); err != nil {
		return 0, err
	}
	return out.Deleted, nil
}

// PutIndexTemplate installs or replaces a composable index template.
func (o *OpenSearch) PutIndexTemplate(ctx context.Context, name string, body map[string]any) error {
	r, err := encode(body)
	if err != nil {
		return err
	}
	req := opensearchapi.IndicesPutIndexTemplateRequest{
		Name: name,
		Body: r,
	}
	return o.do(ctx, "put index template", name, req, nil)
}

// IndexExists reports whether index exists.
func (o *OpenSearch) IndexExists(ctx context.Context, index string) (bool, error) {
	req := opensearchapi.IndicesExistsRequest{Index: []string{index}}
	return o.exists(o.do(ctx, "index exists", index, req, nil))
}

// CreateIndex creates index with body. A nil body sends no request body, so
// the index takes its settings from the matching template.
func (o *OpenSearch) CreateIndex(ctx context.Context, index string, body map[string]any) error {
	req := opensearchapi.IndicesCreateRequest{Index: index}
	if body != nil {
		r, err := encode(body)
		if err != nil {
			return err
		}
		req.Body = r
	}
	return o.do(ctx, "create index", index, req, nil)
}

// AliasExists reports whether alias exists.
func (o *OpenSearch) AliasExists(ctx context.Context, alias string) (bool, error) {
	req := opensearchapi.IndicesExistsAliasRequest{Name: []string{alias}}
	return o.exists(o.do(ctx, "alias exists", alias, req, nil))
}

// PutAlias points alias at index.
func (o *OpenSearch) PutAlias(ctx context.Context, index, alias string, writeIndex bool) error {
	r, err := encode(map[string]any{"is_write_index": writeIndex})
	if err != nil {
		return err
	}
	req := opensearchapi.IndicesPutAliasRequest{
		Index: []string{index},
		Name:  alias,
		Body:  r,
	}
	return o.do(ctx, "put alias", alias, req, nil)
}

// GetAlias returns the indices behind alias.
func (o *OpenSearch) GetAlias(ctx context.Context, alias string) ([]AliasTarget, error) {
	var out map[string]struct {
		Aliases map[string]struct {
			IsWriteIndex *bool `json:"is_write_index"`
		} `json:"aliases"`
	}
	req := opensearchapi.IndicesGetAliasRequest{Name: []string{alias}}
	if err := o.do(ctx, "get alias", alias, req, &out); err != nil {
		if errors.Is(err, ErrNotFound) {
			return []AliasTarget{}, nil
		}
		return nil, err
	}

	targets := make([]AliasTarget, 0, len(out))
	for index, entry := range out {
		a, ok := entry.Aliases[alias]
		if !ok {
			continue
		}
		targets = append(targets, AliasTarget{
			Index: index,
			// A sole index behind an alias without the flag is its write index.
			IsWriteIndex: (a.IsWriteIndex != nil && *a.IsWriteIndex) || (a.IsWriteIndex == nil && len(out) == 1),
		})
	}
	sortTargets(targets)
	return targets, nil
}

// Rollover rolls alias over to a new backing index.
func (o *OpenSearch) Rollover(ctx context.Context, rr RolloverRequest) (*RolloverResponse, error) {
	body, err := encode(map[string]any{"conditions": rr.Conditions})
	if err != nil {
		return nil, err
	}

	var out RolloverResponse
	req := opensearchapi.IndicesRolloverRequest{
		Alias:    rr.Alias,
		NewIndex: rr.NewIndex,
		Body:     body,
		DryRun:   boolPtr(rr.DryRun),
	}
	if err := o.do(ctx, "rollover", rr.Alias, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ClusterHealth returns cluster health scoped to index when given.
func (o *OpenSearch) ClusterHealth(ctx context.Context, index string) (*ClusterHealth, error) {
	var out ClusterHealth
	req := opensearchapi.ClusterHealthRequest{}
	if index != "" {
		req.Index = []string{index}
	}
	if err := o.do(ctx, "cluster health", index, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// IndexStats returns primary document and store statistics for index.
func (o *OpenSearch) IndexStats(ctx context.Context, index string) (*IndexStats, error) {
	var out struct {
		All struct {
			Primaries struct {
				Docs struct {
					Count int64 `json:"count"`
				} `json:"docs"`
				Store struct {
					SizeInBytes int64 `json:"size_in_bytes"`
				} `json:"store"`
			} `json:"primaries"`
		} `json:"_all"`
	}
	req := opensearchapi.IndicesStatsRequest{
		Index:  []string{index},
		Metric: []string{"docs", "store"},
	}
	if err := o.do(ctx, "index stats", index, req, &out); err != nil {
		return nil, err
	}
	return &IndexStats{
		DocCount:       out.All.Primaries.Docs.Count,
		StoreSizeBytes: out.All.Primaries.Store.SizeInBytes,
	}, nil
}

// CreateSnapshot creates a snapshot of the requested indices.
func (o *OpenSearch) CreateSnapshot(ctx context.Context, sr SnapshotRequest) (map[string]any, error) {
	payload := map[string]any{"include_global_state": false}
	if len(sr.Indices) > 0 {
		payload["indices"] = strings.Join(sr.Indices, ",")
	}
	body, err := encode(payload)
	if err != nil {
		return nil, err
	}

	out := map[string]any{}
	req := opensearchapi.SnapshotCreateRequest{
		Repository:        sr.Repository,
		Snapshot:          sr.Snapshot,
		Body:              body,
		WaitForCompletion: boolPtr(sr.Wait),
	}
	if err := o.do(ctx, "create snapshot", sr.Repository+"/"+sr.Snapshot, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// RestoreSnapshot restores the requested indices from a snapshot.
func (o *OpenSearch) RestoreSnapshot(ctx context.Context, sr SnapshotRequest) (map[string]any, error) {
	req := opensearchapi.SnapshotRestoreRequest{
		Repository:        sr.Repository,
		Snapshot:          sr.Snapshot,
		WaitForCompletion: boolPtr(sr.Wait),
	}
	if len(sr.Indices) > 0 {
		body, err := encode(map[string]any{"indices": strings.Join(sr.Indices, ",")})
		if err != nil {
			return nil, err
		}
		req.Body = body
	}

	out := map[string]any{}
	if err := o.do(ctx, "restore snapshot", sr.Repository+"/"+sr.Snapshot, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteSnapshot deletes a snapshot.
func (o *OpenSearch) DeleteSnapshot(ctx context.Context, repository, snapshot string) (map[string]any, error) {
	out := map[string]any{}
	req := opensearchapi.SnapshotDeleteRequest{
		Repository: repository,
		Snapshot:   []string{snapshot},
	}
	if err := o.do(ctx, "delete snapshot", repository+"/"+snapshot, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// exists maps the error of a HEAD request to a boolean.
func (o *OpenSearch) exists(err error) (bool, error) {
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return false, err
}

func encode(v any) (io.Reader, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}
	return bytes.NewReader(data), nil
}

func boolPtr(b bool) *bool {
	return &b
}

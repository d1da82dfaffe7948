package docstore

import (
	"bytes"
	"context"
	"net/url"
	"sort"

	"github.com/elastic/go-elasticsearch/v7/esapi"
	jsoniter "github.com/json-iterator/go"

	apperrors "github.com/Adithya-Monish-Kumar-K/configsync/pkg/errors"
)

// Projection selects what a search returns.
type Projection int

const (
	// ProjectionSources returns the _source of every hit.
	ProjectionSources Projection = iota
	// ProjectionIDs returns only the document ids.
	ProjectionIDs
	// ProjectionHits returns the raw hit objects (_id, _index, _type, _source).
	ProjectionHits
	// ProjectionCount returns only the total.
	ProjectionCount
)

// SearchRequest describes a query. Index and DocType are optional and narrow
// the search scope. Query is a field -> value map turned into match clauses,
// unless Raw is set, in which case it is sent as the query DSL verbatim.
type SearchRequest struct {
	Index      string
	DocType    string
	Query      map[string]any
	Raw        bool
	Projection Projection
	Size       int
	Offset     int
}

// SearchResult holds the total hit count and the projection that was asked
// for. A search whose total is absent or zero has Total 0 and nil slices,
// even when the engine returned hits.
type SearchResult struct {
	Total     int64
	Documents []map[string]any
	IDs       []string
	Hits      []map[string]any
}

// DateRangeRequest searches documents whose Field lies in [From, To]. From
// and To are ISO timestamps or engine date math ("now-1d"). Filters add exact
// match clauses.
type DateRangeRequest struct {
	Field      string
	From       string
	To         string
	Filters    map[string]any
	Index      string
	DocType    string
	Projection Projection
	Size       int
	Offset     int
}

// Search runs req. It never fails: transport errors, non-2xx responses and
// undecodable bodies are logged and produce an empty result.
func (c *Client) Search(ctx context.Context, req SearchRequest) SearchResult {
	query := req.Query
	if !req.Raw {
		query = matchQuery(req.Query)
	} else if query == nil {
		query = map[string]any{"match_all": map[string]any{}}
	}
	body := map[string]any{"query": query}
	if req.Size > 0 {
		body["size"] = req.Size
	}
	if req.Offset > 0 {
		body["from"] = req.Offset
	}
	switch req.Projection {
	case ProjectionIDs:
		body["_source"] = false
	case ProjectionCount:
		body["_source"] = false
		body["size"] = 0
	}
	reader, err := encode(body)
	if err != nil {
		c.logger.Error("unencodable search", "index", req.Index, "type", req.DocType, "error", err)
		return SearchResult{}
	}

	indices, types := searchScope(req.Index, req.DocType)
	status, data, err := c.perform(ctx, "search", esapi.SearchRequest{
		Index:        indices,
		DocumentType: types,
		Body:         reader,
	})
	if err != nil {
		c.logger.Error("search failed", "index", req.Index, "type", req.DocType, "error", err)
		return SearchResult{}
	}
	if status/100 != 2 {
		c.logger.Warn("search rejected", "index", req.Index, "type", req.DocType, "status", status, "body", truncate(data))
		return SearchResult{}
	}

	var resp struct {
		Hits struct {
			Total jsoniter.RawMessage `json:"total"`
			Hits  []map[string]any    `json:"hits"`
		} `json:"hits"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		c.logger.Warn("undecodable search response", "error", err, "body", truncate(data))
		return SearchResult{}
	}
	total := parseTotal(resp.Hits.Total)
	if total <= 0 {
		if len(resp.Hits.Hits) > 0 {
			c.logger.Debug("search response without a total, dropping hits", "hits", len(resp.Hits.Hits))
		}
		return SearchResult{}
	}
	return project(total, resp.Hits.Hits, req.Projection)
}

// SearchByDateRange searches for documents whose req.Field falls within
// [req.From, req.To]. A missing field or bound is ErrInvalidInput.
func (c *Client) SearchByDateRange(ctx context.Context, req DateRangeRequest) (SearchResult, error) {
	if req.Field == "" || req.From == "" || req.To == "" {
		return SearchResult{}, apperrors.Invalid("date range search requires field, from and to (got %q, %q, %q)", req.Field, req.From, req.To)
	}
	must := []any{
		map[string]any{"range": map[string]any{
			req.Field: map[string]any{"gte": req.From, "lte": req.To},
		}},
	}
	must = append(must, matchClauses(req.Filters)...)

	return c.Search(ctx, SearchRequest{
		Index:      req.Index,
		DocType:    req.DocType,
		Query:      map[string]any{"bool": map[string]any{"must": must}},
		Raw:        true,
		Projection: req.Projection,
		Size:       req.Size,
		Offset:     req.Offset,
	}), nil
}

// matchQuery turns a field map into a query: match_all when empty, a single
// match for one field, a bool of matches for several.
func matchQuery(fields map[string]any) map[string]any {
	switch len(fields) {
	case 0:
		return map[string]any{"match_all": map[string]any{}}
	case 1:
		return map[string]any{"match": fields}
	default:
		return map[string]any{"bool": map[string]any{"must": matchClauses(fields)}}
	}
}

// matchClauses returns one match clause per field, in field-name order.
func matchClauses(fields map[string]any) []any {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	clauses := make([]any, 0, len(keys))
	for _, k := range keys {
		clauses = append(clauses, map[string]any{"match": map[string]any{k: fields[k]}})
	}
	return clauses
}

// parseTotal accepts both total encodings: a bare number and {"value": n}.
func parseTotal(raw jsoniter.RawMessage) int64 {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0
	}
	if raw[0] == '{' {
		var t struct {
			Value int64 `json:"value"`
		}
		if err := json.Unmarshal(raw, &t); err != nil {
			return 0
		}
		return t.Value
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0
	}
	return n
}

func project(total int64, hits []map[string]any, p Projection) SearchResult {
	res := SearchResult{Total: total}
	switch p {
	case ProjectionCount:
	case ProjectionIDs:
		for _, h := range hits {
			if id, ok := h["_id"].(string); ok {
				res.IDs = append(res.IDs, id)
			}
		}
	case ProjectionHits:
		res.Hits = hits
	default:
		for _, h := range hits {
			if src, ok := h["_source"].(map[string]any); ok {
				res.Documents = append(res.Documents, src)
			}
		}
	}
	return res
}

// searchScope returns the escaped index and type lists of a search. A type
// without an index searches that type across every index.
func searchScope(index, docType string) (indices, types []string) {
	if index != "" {
		indices = []string{url.PathEscape(index)}
	}
	if docType != "" {
		types = []string{url.PathEscape(docType)}
		if index == "" {
			indices = []string{"_all"}
		}
	}
	return indices, types
}

package docstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/configsync/pkg/errors"
)

func seed(t *testing.T, c *Client, ids ...string) {
	t.Helper()
	for _, id := range ids {
		_, err := c.Upsert(context.Background(), "aws::ec2::instance", "us-east-1", id, instance(id))
		require.NoError(t, err)
	}
}

func TestSearchMatch(t *testing.T) {
	c, _, _ := newTestClient(t)
	seed(t, c, "i-1", "i-2")

	res := c.Search(context.Background(), SearchRequest{
		Index: "aws::ec2::instance",
		Query: map[string]any{"resourceId": "i-2"},
	})
	assert.EqualValues(t, 1, res.Total)
	require.Len(t, res.Documents, 1)
	assert.Equal(t, "i-2", res.Documents[0]["resourceId"])
}

func TestSearchProjections(t *testing.T) {
	c, _, _ := newTestClient(t)
	seed(t, c, "i-1", "i-2", "i-3")
	ctx := context.Background()

	ids := c.Search(ctx, SearchRequest{DocType: "us-east-1", Projection: ProjectionIDs})
	assert.Equal(t, []string{"i-1", "i-2", "i-3"}, ids.IDs)
	assert.Nil(t, ids.Documents)

	count := c.Search(ctx, SearchRequest{Projection: ProjectionCount})
	assert.EqualValues(t, 3, count.Total)
	assert.Nil(t, count.IDs)

	hits := c.Search(ctx, SearchRequest{Index: "aws::ec2::instance", DocType: "us-east-1", Projection: ProjectionHits, Size: 2, Offset: 1})
	assert.EqualValues(t, 3, hits.Total)
	require.Len(t, hits.Hits, 2)
	assert.Equal(t, "i-2", hits.Hits[0]["_id"])
	assert.Equal(t, "us-east-1", hits.Hits[0]["_type"])
}

func TestSearchNoHits(t *testing.T) {
	c, _, _ := newTestClient(t)
	seed(t, c, "i-1")

	res := c.Search(context.Background(), SearchRequest{Query: map[string]any{"resourceId": "nope"}})
	assert.Equal(t, SearchResult{}, res)
}

func TestSearchLegacyTotal(t *testing.T) {
	c, engine, _ := newTestClient(t)
	engine.legacyTotal = true
	seed(t, c, "i-1", "i-2")

	res := c.Search(context.Background(), SearchRequest{Projection: ProjectionCount})
	assert.EqualValues(t, 2, res.Total)
}

func TestSearchDegradesOnFailure(t *testing.T) {
	c, engine, _ := newTestClient(t)
	engine.failIndex = "aws::ec2::instance"
	assert.Equal(t, SearchResult{}, c.Search(context.Background(), SearchRequest{Index: "aws::ec2::instance"}))

	down := New("http://127.0.0.1:1")
	assert.Equal(t, SearchResult{}, down.Search(context.Background(), SearchRequest{}))
}

func TestSearchByDateRange(t *testing.T) {
	c, _, clock := newTestClient(t)
	ctx := context.Background()
	start := clock.t
	for i := 1; i <= 3; i++ {
		clock.t = start.Add(time.Duration(i) * time.Hour)
		seed(t, c, fmt.Sprintf("i-%d", i))
	}

	res, err := c.SearchByDateRange(ctx, DateRangeRequest{
		Field:      FieldUpdatedISO,
		From:       FormatISO(start.Add(90 * time.Minute)),
		To:         FormatISO(start.Add(3 * time.Hour)),
		Filters:    map[string]any{"awsRegion": "us-east-1"},
		Projection: ProjectionIDs,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"i-2", "i-3"}, res.IDs)

	_, err = c.SearchByDateRange(ctx, DateRangeRequest{From: "now-1d", To: "now"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestMatchQuery(t *testing.T) {
	assert.Equal(t, map[string]any{"match_all": map[string]any{}}, matchQuery(nil))
	assert.Equal(t, map[string]any{"match": map[string]any{"a": 1}}, matchQuery(map[string]any{"a": 1}))

	q := matchQuery(map[string]any{"b": 2, "a": 1})
	must := q["bool"].(map[string]any)["must"].([]any)
	assert.Equal(t, []any{
		map[string]any{"match": map[string]any{"a": 1}},
		map[string]any{"match": map[string]any{"b": 2}},
	}, must)
}

func TestParseTotal(t *testing.T) {
	assert.EqualValues(t, 7, parseTotal([]byte(`7`)))
	assert.EqualValues(t, 9, parseTotal([]byte(`{"value": 9, "relation": "eq"}`)))
	assert.EqualValues(t, 0, parseTotal(nil))
	assert.EqualValues(t, 0, parseTotal([]byte(`"x"`)))
}

func TestSearchScope(t *testing.T) {
	for _, tc := range []struct {
		index, docType string
		indices, types []string
	}{
		{"", "", nil, nil},
		{"idx", "", []string{"idx"}, nil},
		{"", "us-east-1", []string{"_all"}, []string{"us-east-1"}},
		{"idx", "us-east-1", []string{"idx"}, []string{"us-east-1"}},
	} {
		indices, types := searchScope(tc.index, tc.docType)
		assert.Equal(t, tc.indices, indices, "%q/%q", tc.index, tc.docType)
		assert.Equal(t, tc.types, types, "%q/%q", tc.index, tc.docType)
	}
}

func TestSearchWithoutTotalIsEmpty(t *testing.T) {
	c, engine, _ := newTestClient(t)
	engine.omitTotal = true
	seed(t, c, "i-1")

	res := c.Search(context.Background(), SearchRequest{Index: "aws::ec2::instance"})
	assert.Equal(t, SearchResult{}, res)
}

func TestSearchCountFetchesNoHits(t *testing.T) {
	c, engine, _ := newTestClient(t)
	seed(t, c, "i-1", "i-2")

	res := c.Search(context.Background(), SearchRequest{Projection: ProjectionCount, Size: 50})
	assert.EqualValues(t, 2, res.Total)
	require.NotNil(t, engine.lastSearch)
	assert.Equal(t, "0", fmt.Sprint(engine.lastSearch["size"]))
	assert.Equal(t, false, engine.lastSearch["_source"])
}

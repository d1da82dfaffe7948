package ingestion

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/configsync/internal/docstore"
)

type write struct {
	index, docType, id string
	doc                map[string]any
}

// fakeIndexer records writes and fails those whose id is in failIDs.
type fakeIndexer struct {
	mu      sync.Mutex
	writes  []write
	failIDs map[string]bool
	nextID  int
}

func (f *fakeIndexer) Upsert(_ context.Context, index, docType, id string, doc map[string]any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failIDs[id] {
		return "", errors.New("403 forbidden")
	}
	if id == "" {
		f.nextID++
		id = "generated"
	}
	f.writes = append(f.writes, write{index: index, docType: docType, id: id, doc: doc})
	return id, nil
}

func gzipBytes(t *testing.T, content string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func writeSnapshot(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "configsnapshot-1.json.gz")
	require.NoError(t, os.WriteFile(path, gzipBytes(t, content), 0o644))
	return path
}

var captured = time.Date(2016, 7, 1, 12, 0, 0, 0, time.UTC)

func newTestDriver(idx Indexer) *Driver {
	return NewDriver(idx, WithCaptureTime(captured))
}

func TestRunEmptyItems(t *testing.T) {
	for name, content := range map[string]string{
		"empty list": `{"fileVersion":"1.0","configurationItems":[]}`,
		"null list":  `{"fileVersion":"1.0","configurationItems":null}`,
		"no list":    `{"fileVersion":"1.0","configSnapshotId":"abc"}`,
	} {
		idx := &fakeIndexer{}
		sum, err := newTestDriver(idx).Run(context.Background(), writeSnapshot(t, content))
		require.NoError(t, err, name)
		assert.Zero(t, sum.Indexed, name)
		assert.Zero(t, sum.Failed, name)
		assert.Empty(t, idx.writes, name)
	}
}

func TestRunCountsBadRecords(t *testing.T) {
	idx := &fakeIndexer{}
	path := writeSnapshot(t, `{
		"fileVersion": "1.0",
		"configSnapshotId": "B-002",
		"configurationItems": [
			{"resourceType": "AWS::EC2::Instance", "awsRegion": "us-east-1", "resourceId": "i-1", "configuration": {"state": {"name": "running"}}},
			{"awsRegion": "us-east-1", "resourceId": "i-2"}
		]
	}`)

	sum, err := newTestDriver(idx).Run(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Indexed)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, map[Stage]int{StageValidate: 1}, sum.ByStage)

	require.Len(t, idx.writes, 1)
	w := idx.writes[0]
	assert.Equal(t, "aws::ec2::instance", w.index)
	assert.Equal(t, "us-east-1", w.docType)
	assert.Equal(t, "i-1", w.id)
	assert.Equal(t, docstore.FormatISO(captured), w.doc["snapshotTimeIso"])
}

func TestRunContinuesAfterWriteFailure(t *testing.T) {
	idx := &fakeIndexer{failIDs: map[string]bool{"b": true}}
	path := writeSnapshot(t, `{"configurationItems": [
		{"resourceType": "AWS::S3::Bucket", "awsRegion": "eu-west-1", "resourceId": "a"},
		{"resourceType": "AWS::S3::Bucket", "awsRegion": "eu-west-1", "resourceId": "b"},
		"not an object",
		{"resourceType": "AWS::S3::Bucket", "awsRegion": "eu-west-1"}
	]}`)

	sum, err := newTestDriver(idx).Run(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Indexed)
	assert.Equal(t, 2, sum.Failed)
	assert.Equal(t, map[Stage]int{StageWrite: 1, StageDecode: 1}, sum.ByStage)

	require.Len(t, idx.writes, 2)
	assert.Equal(t, "generated", idx.writes[1].id)
	assert.Equal(t, idx.writes[0].doc["snapshotTimeIso"], idx.writes[1].doc["snapshotTimeIso"])
}

func TestRunTruncatedFile(t *testing.T) {
	idx := &fakeIndexer{}
	path := writeSnapshot(t, `{"configurationItems": [{"resourceType": "AWS::IAM::Role", "awsRegion": "us-west-2", "resourceId": "r"}, {"resourceType": `)

	sum, err := newTestDriver(idx).Run(context.Background(), path)
	assert.Error(t, err)
	assert.Equal(t, 1, sum.Indexed)
}

func TestRunUnreadableFile(t *testing.T) {
	dir := t.TempDir()
	plain := filepath.Join(dir, "plain.json.gz")
	require.NoError(t, os.WriteFile(plain, []byte(`{"configurationItems":[]}`), 0o644))

	_, err := newTestDriver(&fakeIndexer{}).Run(context.Background(), plain)
	assert.Error(t, err)

	_, err = newTestDriver(&fakeIndexer{}).Run(context.Background(), filepath.Join(dir, "missing.json.gz"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = newTestDriver(&fakeIndexer{}).Run(context.Background(), writeSnapshot(t, `{"configurationItems": {"a": 1}}`))
	assert.Error(t, err)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	idx := &fakeIndexer{}
	path := writeSnapshot(t, `{"configurationItems": [
		{"resourceType": "AWS::S3::Bucket", "awsRegion": "eu-west-1", "resourceId": "a"},
		{"resourceType": "AWS::S3::Bucket", "awsRegion": "eu-west-1", "resourceId": "b"}
	]}`)

	sum, err := newTestDriver(idx).Run(ctx, path)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, sum.Indexed)
}

func TestSummaryObserve(t *testing.T) {
	var s Summary
	s.Observe(RecordResult{ID: "a"})
	s.Observe(RecordResult{Stage: StageWrite, Err: errors.New("x")})
	s.Observe(RecordResult{Stage: StageWrite, Err: errors.New("y")})
	assert.Equal(t, 1, s.Indexed)
	assert.Equal(t, 2, s.Failed)
	assert.Equal(t, 2, s.ByStage[StageWrite])
}

package docstore

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/elastic/go-elasticsearch/v7/esapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransportKeepsPrefixAndEscaping(t *testing.T) {
	var gotPath, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotMethod = r.URL.EscapedPath(), r.Method
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	res, err := esapi.GetRequest{
		Index:        "aws::ec2::instance",
		DocumentType: "us-east-1",
		DocumentID:   url.PathEscape("a/b c"),
	}.Do(context.Background(), newTransport(srv.URL+"/es/", http.DefaultClient))
	require.NoError(t, err)
	defer res.Body.Close()

	assert.Equal(t, http.MethodGet, gotMethod)
	assert.Equal(t, "/es/aws::ec2::instance/us-east-1/a%2Fb%20c", gotPath)
}

func TestTransportRejectsRelativeEndpoint(t *testing.T) {
	_, err := newTransport("search.internal", http.DefaultClient).Perform(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.ErrorContains(t, err, "needs a scheme and host")
}

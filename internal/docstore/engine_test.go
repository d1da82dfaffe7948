package docstore

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"
)

// fakeEngine is an in-memory stand-in for the index engine. It understands
// the document, search and template endpoints the client uses and a small
// query subset: match_all, match, bool.must and range.
type fakeEngine struct {
	mu        sync.Mutex
	docs      map[string]map[string]any // "index/type/id" -> source
	nextID    int
	requests  int
	templates map[string]map[string]any
	// legacyTotal renders hits.total as a bare number.
	legacyTotal bool
	// omitTotal leaves hits.total out of search responses.
	omitTotal bool
	// lastSearch is the body of the most recent search.
	lastSearch map[string]any
	// failIndex answers every request on that index with 500.
	failIndex string
}

func newFakeEngine(t *testing.T) (*fakeEngine, *httptest.Server) {
	t.Helper()
	e := &fakeEngine{
		docs:      make(map[string]map[string]any),
		templates: make(map[string]map[string]any),
	}
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return e, srv
}

func (e *fakeEngine) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.docs)
}

func (e *fakeEngine) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.requests++

	parts := strings.Split(strings.Trim(r.URL.EscapedPath(), "/"), "/")
	for i, p := range parts {
		if u, err := url.PathUnescape(p); err == nil {
			parts[i] = u
		}
	}
	if parts[0] == "" {
		parts = nil
	}
	if len(parts) > 0 && e.failIndex != "" && parts[0] == e.failIndex {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "shard failure"})
		return
	}

	switch {
	case len(parts) == 0 && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"tagline": "You Know, for Search"})
	case len(parts) == 2 && parts[0] == "_template" && r.Method == http.MethodPut:
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		e.templates[parts[1]] = body
		writeJSON(w, http.StatusOK, map[string]any{"acknowledged": true})
	case len(parts) > 0 && parts[len(parts)-1] == "_search":
		e.search(w, r, parts[:len(parts)-1])
	case len(parts) == 2 && r.Method == http.MethodPost:
		e.nextID++
		e.put(w, r, parts[0], parts[1], fmt.Sprintf("gen-%d", e.nextID))
	case len(parts) == 3 && r.Method == http.MethodPut:
		e.put(w, r, parts[0], parts[1], parts[2])
	case len(parts) == 3 && r.Method == http.MethodGet:
		src, ok := e.docs[strings.Join(parts, "/")]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]any{"_id": parts[2], "found": false})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"_id": parts[2], "found": true, "_source": src})
	case len(parts) == 3 && r.Method == http.MethodDelete:
		key := strings.Join(parts, "/")
		if _, ok := e.docs[key]; !ok {
			writeJSON(w, http.StatusNotFound, map[string]any{"result": "not_found"})
			return
		}
		delete(e.docs, key)
		writeJSON(w, http.StatusOK, map[string]any{"result": "deleted"})
	default:
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "unsupported " + r.Method + " " + r.URL.Path})
	}
}

func (e *fakeEngine) put(w http.ResponseWriter, r *http.Request, index, docType, id string) {
	var src map[string]any
	if err := json.NewDecoder(r.Body).Decode(&src); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	key := index + "/" + docType + "/" + id
	result, status := "created", http.StatusCreated
	if _, ok := e.docs[key]; ok {
		result, status = "updated", http.StatusOK
	}
	e.docs[key] = src
	writeJSON(w, status, map[string]any{"_index": index, "_type": docType, "_id": id, "result": result})
}

func (e *fakeEngine) search(w http.ResponseWriter, r *http.Request, scope []string) {
	var body struct {
		Query map[string]any `json:"query"`
		Size  int            `json:"size"`
		From  int            `json:"from"`
	}
	e.lastSearch = nil
	raw, err := io.ReadAll(r.Body)
	if err == nil {
		err = json.Unmarshal(raw, &body)
	}
	if err == nil {
		err = json.Unmarshal(raw, &e.lastSearch)
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}

	keys := make([]string, 0, len(e.docs))
	for k := range e.docs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var hits []any
	for _, k := range keys {
		p := strings.Split(k, "/")
		if len(scope) > 0 && scope[0] != "_all" && scope[0] != p[0] {
			continue
		}
		if len(scope) > 1 && scope[1] != p[1] {
			continue
		}
		if !matches(body.Query, e.docs[k]) {
			continue
		}
		hits = append(hits, map[string]any{"_index": p[0], "_type": p[1], "_id": p[2], "_source": e.docs[k]})
	}
	total := len(hits)
	if body.From > 0 {
		hits = hits[min(body.From, len(hits)):]
	}
	if body.Size > 0 && len(hits) > body.Size {
		hits = hits[:body.Size]
	}
	if hits == nil {
		hits = []any{}
	}

	resp := map[string]any{"hits": hits}
	switch {
	case e.omitTotal:
	case e.legacyTotal:
		resp["total"] = total
	default:
		resp["total"] = map[string]any{"value": total, "relation": "eq"}
	}
	writeJSON(w, http.StatusOK, map[string]any{"hits": resp})
}

func matches(q map[string]any, doc map[string]any) bool {
	if q == nil {
		return true
	}
	if _, ok := q["match_all"]; ok {
		return true
	}
	if m, ok := q["match"].(map[string]any); ok {
		for field, want := range m {
			if fmt.Sprint(doc[field]) != fmt.Sprint(want) {
				return false
			}
		}
		return true
	}
	if rg, ok := q["range"].(map[string]any); ok {
		for field, bounds := range rg {
			v, _ := doc[field].(string)
			b := bounds.(map[string]any)
			if gte, ok := b["gte"].(string); ok && v < gte {
				return false
			}
			if lte, ok := b["lte"].(string); ok && v > lte {
				return false
			}
		}
		return true
	}
	if b, ok := q["bool"].(map[string]any); ok {
		must, _ := b["must"].([]any)
		for _, clause := range must {
			if !matches(clause.(map[string]any), doc) {
				return false
			}
		}
		return true
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

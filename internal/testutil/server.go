// Package testutil provides fake-server helpers shared by component test
// suites. Every component in this tree resolves its base URL through
// apilookup first, so a test server has to answer the "/apis" path before
// it can serve the domain response the test actually cares about; this
// package centralizes that boilerplate instead of letting each package
// redefine it.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

// APIEntry is one entry of an apilookup "/apis" response: the named service
// (e.g. "query", "blob", "volatile-blob", "metadata", "stream") and the API
// version a test wants to pin.
type APIEntry struct {
	API     string
	Version string
}

// NewAPILookupServer starts an httptest.Server, routed through a chi.Router
// the same way the teacher wires its own HTTP entrypoints, that answers
// apilookup's "/apis" path with one baseURL entry per entry in apis, every
// one pointing back at the server itself, and delegates every other path to
// resource. The caller owns closing the returned server.
func NewAPILookupServer(t *testing.T, apis []APIEntry, resource http.HandlerFunc) *httptest.Server {
	t.Helper()
	var server *httptest.Server

	router := chi.NewRouter()
	router.Get("/*", func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/apis") {
			entries := make([]map[string]string, 0, len(apis))
			for _, a := range apis {
				entries = append(entries, map[string]string{"api": a.API, "version": a.Version, "baseURL": server.URL})
			}
			if err := json.NewEncoder(w).Encode(entries); err != nil {
				t.Errorf("encode apis response: %v", err)
			}
			return
		}
		resource(w, r)
	})

	server = httptest.NewServer(router)
	return server
}

//go:build e2e
// +build e2e

package e2e

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
)

// platform is an in-memory stand-in for the backend API: path-keyed JSON
// documents behind the subset of routes the SDK talks to. Entity ids are
// unique across names, so named reads resolve by id alone and "latest"
// follows the most recent create for the name.
type platform struct {
	mu      sync.Mutex
	objects map[string]map[string]any // "<type>/<id>"
	latest  map[string]string         // "<project>/<type>/<name>" -> id
}

func newPlatform() *platform {
	return &platform{
		objects: make(map[string]map[string]any),
		latest:  make(map[string]string),
	}
}

func (p *platform) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/{type}", p.handleCreate)
	mux.HandleFunc("GET /api/v1/{type}/{id}", p.handleGet)
	mux.HandleFunc("PUT /api/v1/{type}/{id}", p.handleUpdate)
	mux.HandleFunc("POST /api/v1/-/{project}/{type}", p.handleCreate)
	mux.HandleFunc("GET /api/v1/-/{project}/{type}/{name}/{id}", p.handleGetNamed)
	return mux
}

func (p *platform) handleCreate(w http.ResponseWriter, r *http.Request) {
	doc, ok := decodeDoc(w, r)
	if !ok {
		return
	}
	entityType := r.PathValue("type")
	project := r.PathValue("project")

	id, _ := doc["id"].(string)
	if id == "" {
		id = uuid.NewString()
		doc["id"] = id
	}

	p.mu.Lock()
	p.objects[entityType+"/"+id] = doc
	if project != "" {
		if name, _ := doc["name"].(string); name != "" {
			p.latest[project+"/"+entityType+"/"+name] = id
		}
	}
	p.mu.Unlock()

	writeDoc(w, http.StatusCreated, doc)
}

func (p *platform) handleGet(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	doc, ok := p.objects[r.PathValue("type")+"/"+r.PathValue("id")]
	p.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeDoc(w, http.StatusOK, doc)
}

func (p *platform) handleUpdate(w http.ResponseWriter, r *http.Request) {
	doc, ok := decodeDoc(w, r)
	if !ok {
		return
	}
	p.mu.Lock()
	p.objects[r.PathValue("type")+"/"+r.PathValue("id")] = doc
	p.mu.Unlock()
	writeDoc(w, http.StatusOK, doc)
}

func (p *platform) handleGetNamed(w http.ResponseWriter, r *http.Request) {
	entityType := r.PathValue("type")
	id := r.PathValue("id")

	p.mu.Lock()
	if id == "latest" {
		id = p.latest[r.PathValue("project")+"/"+entityType+"/"+r.PathValue("name")]
	}
	doc, ok := p.objects[entityType+"/"+id]
	p.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeDoc(w, http.StatusOK, doc)
}

func decodeDoc(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	var doc map[string]any
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}
	return doc, true
}

func writeDoc(w http.ResponseWriter, status int, doc map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(doc)
}

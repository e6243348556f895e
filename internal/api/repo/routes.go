// Package repo provides the repository browsing endpoints.
package repo

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stacklok/thv-git-api/internal/api/common"
	"github.com/stacklok/thv-git-api/internal/repository"
)

// Routes handles HTTP requests for repositories and objects.
type Routes struct {
	service repository.Service
}

// NewRoutes creates a new Routes instance with the given service.
func NewRoutes(svc repository.Service) *Routes {
	return &Routes{
		service: svc,
	}
}

// Router serves the /repo endpoints. Branch names are taken from the
// trailing wildcard, so they may contain "/".
func Router(svc repository.Service) http.Handler {
	routes := NewRoutes(svc)

	r := chi.NewRouter()
	r.Get("/all", routes.listRepositories)
	r.Get("/by-branch/{repo}/*", routes.treeByBranch)
	r.Get("/by-hash/{repo}/{hash}", routes.treeByObject)
	r.Get("/commit-log/{repo}/*", routes.commitLog)
	return r
}

// ObjectRouter serves the /object endpoints.
func ObjectRouter(svc repository.Service) http.Handler {
	routes := NewRoutes(svc)

	r := chi.NewRouter()
	r.Get("/by-hash/{repo}/{hash}", routes.objectContent)
	return r
}

// listRepositories handles GET /repo/all
func (routes *Routes) listRepositories(w http.ResponseWriter, r *http.Request) {
	list, err := routes.service.ListRepositories(r.Context())
	if err != nil {
		common.WriteServiceError(w, r, err)
		return
	}
	common.WriteJSONResponse(w, list, http.StatusOK)
}

// treeByBranch handles GET /repo/by-branch/{repo}/{branch}
func (routes *Routes) treeByBranch(w http.ResponseWriter, r *http.Request) {
	repo, branch, ok := repoAndBranch(w, r)
	if !ok {
		return
	}
	tree, err := routes.service.TreeByBranch(r.Context(), repo, branch)
	if err != nil {
		common.WriteServiceError(w, r, err)
		return
	}
	common.WriteJSONResponse(w, tree, http.StatusOK)
}

// treeByObject handles GET /repo/by-hash/{repo}/{hash}
func (routes *Routes) treeByObject(w http.ResponseWriter, r *http.Request) {
	repo, hash, ok := repoAndHash(w, r)
	if !ok {
		return
	}
	tree, err := routes.service.TreeByObject(r.Context(), repo, hash)
	if err != nil {
		common.WriteServiceError(w, r, err)
		return
	}
	common.WriteJSONResponse(w, tree, http.StatusOK)
}

// commitLog handles GET /repo/commit-log/{repo}/{branch}
func (routes *Routes) commitLog(w http.ResponseWriter, r *http.Request) {
	repo, branch, ok := repoAndBranch(w, r)
	if !ok {
		return
	}
	commits, err := routes.service.CommitLog(r.Context(), repo, branch)
	if err != nil {
		common.WriteServiceError(w, r, err)
		return
	}
	common.WriteJSONResponse(w, commits, http.StatusOK)
}

// objectContent handles GET /object/by-hash/{repo}/{hash}
func (routes *Routes) objectContent(w http.ResponseWriter, r *http.Request) {
	repo, hash, ok := repoAndHash(w, r)
	if !ok {
		return
	}
	object, err := routes.service.ObjectContent(r.Context(), repo, hash)
	if err != nil {
		common.WriteServiceError(w, r, err)
		return
	}
	common.WriteJSONResponse(w, object, http.StatusOK)
}

func repoAndBranch(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	repo, err := common.GetAndValidateURLParam(r, "repo")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return "", "", false
	}
	branch, err := common.GetAndValidateWildcard(r, "branch")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return "", "", false
	}
	return repo, branch, true
}

func repoAndHash(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	repo, err := common.GetAndValidateURLParam(r, "repo")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return "", "", false
	}
	hash, err := common.GetAndValidateURLParam(r, "hash")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return "", "", false
	}
	return repo, hash, true
}

package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"partymaker/internal/httpjson"
	"partymaker/internal/logging"
	"partymaker/internal/store"

	"github.com/go-chi/chi/v5"
)

// FirebaseProxy serves /api/firebase/* on top of a store.Tree.
type FirebaseProxy struct {
	tree store.Tree
	log  *slog.Logger
}

func NewFirebaseProxy(tree store.Tree) *FirebaseProxy {
	return &FirebaseProxy{tree: tree, log: logging.For("proxy")}
}

// Routes mounts the collection endpoints.
func (h *FirebaseProxy) Routes(r chi.Router) {
	for _, col := range []string{"Groups", "Users"} {
		r.Get("/"+col, h.list(col))
		r.Get("/"+col+"/{id}", h.get(col))
		r.Post("/"+col+"/{id}", h.set(col, http.StatusOK))
		r.Put("/"+col+"/{id}", h.update(col))
		r.Delete("/"+col+"/{id}", h.remove(col))
	}

	r.Get("/GroupsMessages", h.listMessages)
	r.Get("/GroupsMessages/{id}", h.get("GroupsMessages"))
	r.Post("/GroupsMessages/{id}", h.set("GroupsMessages", http.StatusCreated))
	r.Delete("/GroupsMessages/{id}", h.remove("GroupsMessages"))

	r.Get("/UserGroups/{id}", h.getOrEmpty("UserGroups"))
	r.Post("/UserGroups/{id}", h.set("UserGroups", http.StatusOK))

	r.Get("/data/*", h.raw)
	r.Post("/data/*", h.raw)
	r.Put("/data/*", h.raw)
	r.Delete("/data/*", h.raw)
	r.Get("/list/*", h.rawList)
}

func (h *FirebaseProxy) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, store.ErrBadPath) || errors.Is(err, store.ErrUnsupported) {
		httpjson.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	h.log.Error("store call failed", "method", r.Method, "path", r.URL.Path, "err", err)
	httpjson.Error(w, http.StatusInternalServerError, "Internal server error")
}

func idParam(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "id"))
}

func (h *FirebaseProxy) list(col string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := h.tree.Get(r.Context(), col)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		if v == nil {
			v = map[string]any{}
		}
		httpjson.Write(w, http.StatusOK, v)
	}
}

func (h *FirebaseProxy) get(col string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := idParam(r)
		if id == "" {
			httpjson.Error(w, http.StatusBadRequest, "ID cannot be empty")
			return
		}
		v, etag, err := h.tree.GetWithETag(r.Context(), col+"/"+id)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		if v == nil {
			httpjson.Error(w, http.StatusNotFound, col+" entry not found: "+id)
			return
		}
		if etag != "" {
			w.Header().Set("ETag", etag)
		}
		httpjson.Write(w, http.StatusOK, v)
	}
}

func (h *FirebaseProxy) getOrEmpty(col string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := h.tree.Get(r.Context(), col+"/"+idParam(r))
		if err != nil {
			h.fail(w, r, err)
			return
		}
		if v == nil {
			v = map[string]any{}
		}
		httpjson.Write(w, http.StatusOK, v)
	}
}

func (h *FirebaseProxy) set(col string, okStatus int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := idParam(r)
		if id == "" {
			httpjson.Error(w, http.StatusBadRequest, "ID cannot be empty")
			return
		}
		body, err := httpjson.ReadObject(r)
		if err != nil || body == nil {
			httpjson.Error(w, http.StatusBadRequest, "Data cannot be null")
			return
		}
		if err := h.tree.Set(r.Context(), col+"/"+id, body); err != nil {
			h.fail(w, r, err)
			return
		}
		w.WriteHeader(okStatus)
	}
}

// update applies a partial update. With If-Match it becomes a conditional
// replace of the merged node and answers 412 when the node moved on.
func (h *FirebaseProxy) update(col string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := idParam(r)
		if id == "" {
			httpjson.Error(w, http.StatusBadRequest, "ID cannot be empty")
			return
		}
		fields, err := httpjson.ReadObject(r)
		if err != nil || len(fields) == 0 {
			httpjson.Error(w, http.StatusBadRequest, "Updates cannot be empty")
			return
		}
		path := col + "/" + id

		ifMatch := r.Header.Get("If-Match")
		if ifMatch == "" {
			if err := h.tree.Update(r.Context(), path, fields); err != nil {
				h.fail(w, r, err)
				return
			}
			w.WriteHeader(http.StatusOK)
			return
		}

		cur, etag, err := h.tree.GetWithETag(r.Context(), path)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		if etag != ifMatch {
			httpjson.Error(w, http.StatusPreconditionFailed, "entry changed since it was read")
			return
		}
		merged, err := mergeChildren(cur, fields)
		if err != nil {
			httpjson.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		ok, err := h.tree.SetIfUnchanged(r.Context(), path, etag, merged)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		if !ok {
			httpjson.Error(w, http.StatusPreconditionFailed, "entry changed since it was read")
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func (h *FirebaseProxy) remove(col string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := idParam(r)
		if id == "" {
			httpjson.Error(w, http.StatusBadRequest, "ID cannot be empty")
			return
		}
		if err := h.tree.Delete(r.Context(), col+"/"+id); err != nil {
			h.fail(w, r, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// listMessages returns all messages, or with ?groupId= only that group's.
func (h *FirebaseProxy) listMessages(w http.ResponseWriter, r *http.Request) {
	v, err := h.tree.Get(r.Context(), "GroupsMessages")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	all, _ := v.(map[string]any)
	if all == nil {
		all = map[string]any{}
	}
	groupID := strings.TrimSpace(r.URL.Query().Get("groupId"))
	if groupID == "" {
		httpjson.Write(w, http.StatusOK, all)
		return
	}
	out := map[string]any{}
	for k, m := range all {
		if obj, ok := m.(map[string]any); ok && obj["groupId"] == groupID {
			out[k] = m
		}
	}
	httpjson.Write(w, http.StatusOK, out)
}

func (h *FirebaseProxy) raw(w http.ResponseWriter, r *http.Request) {
	path := chi.URLParam(r, "*")
	ctx := r.Context()
	switch r.Method {
	case http.MethodGet:
		v, err := h.tree.Get(ctx, path)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		httpjson.Write(w, http.StatusOK, v)
		return
	case http.MethodDelete:
		if err := h.tree.Delete(ctx, path); err != nil {
			h.fail(w, r, err)
			return
		}
		w.WriteHeader(http.StatusOK)
		return
	}

	body, err := httpjson.ReadObject(r)
	if err != nil {
		httpjson.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if r.Method == http.MethodPut {
		err = h.tree.Update(ctx, path, body)
	} else {
		err = h.tree.Set(ctx, path, body)
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// rawList returns the children of a node as an array ordered by key.
func (h *FirebaseProxy) rawList(w http.ResponseWriter, r *http.Request) {
	v, err := h.tree.Get(r.Context(), chi.URLParam(r, "*"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	node, _ := v.(map[string]any)
	keys := make([]string, 0, len(node))
	for k := range node {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]any, 0, len(keys))
	for _, k := range keys {
		out = append(out, node[k])
	}
	httpjson.Write(w, http.StatusOK, out)
}

// mergeChildren applies realtime-database update semantics to a copy of
// cur: each key, possibly a nested path, replaces that child; nil deletes.
func mergeChildren(cur any, fields map[string]any) (map[string]any, error) {
	base := map[string]any{}
	if m, ok := cur.(map[string]any); ok {
		for k, v := range m {
			base[k] = v
		}
	}
	for k, v := range fields {
		segs, err := store.Split(k)
		if err != nil {
			return nil, err
		}
		node := base
		for _, s := range segs[:len(segs)-1] {
			next, ok := node[s].(map[string]any)
			if !ok {
				next = map[string]any{}
			} else {
				next = cloneMap(next)
			}
			node[s] = next
			node = next
		}
		last := segs[len(segs)-1]
		if v == nil {
			delete(node, last)
		} else {
			node[last] = v
		}
	}
	return base, nil
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"diary/internal/auth"
	"diary/internal/diary"
	"diary/internal/http/response"
)

type TagHandler struct {
	Tags *diary.TagStore
	Log  *slog.Logger
}

type tagDTO struct {
	ID   uint64 `json:"id"`
	Name string `json:"name"`
}

type tagReq struct {
	Name *string `json:"name"`
}

// List serves GET /tags?name=..
func (h *TagHandler) List(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	tags, err := h.Tags.List(r.Context(), uid, strings.TrimSpace(r.URL.Query().Get("name")))
	if err != nil {
		fail(h.Log, w, r, err)
		return
	}

	out := make([]tagDTO, 0, len(tags))
	for _, t := range tags {
		out = append(out, tagDTO{ID: t.ID, Name: t.Name})
	}
	response.OK(w, out)
}

func (h *TagHandler) Create(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	name, err := h.decodeName(w, r)
	if err != nil {
		fail(h.Log, w, r, err)
		return
	}

	t, err := h.Tags.Create(r.Context(), uid, name)
	if err != nil {
		fail(h.Log, w, r, err)
		return
	}
	response.Created(w, tagDTO{ID: t.ID, Name: t.Name})
}

func (h *TagHandler) Get(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	id, err := pathID(r, diary.ErrTagNotFound)
	if err != nil {
		fail(h.Log, w, r, err)
		return
	}

	t, err := h.Tags.Get(r.Context(), uid, id)
	if err != nil {
		fail(h.Log, w, r, err)
		return
	}
	response.OK(w, tagDTO{ID: t.ID, Name: t.Name})
}

// Rename serves both PUT and PATCH; a tag has a single writable field.
func (h *TagHandler) Rename(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	id, err := pathID(r, diary.ErrTagNotFound)
	if err != nil {
		fail(h.Log, w, r, err)
		return
	}

	name, err := h.decodeName(w, r)
	if err != nil {
		fail(h.Log, w, r, err)
		return
	}

	t, err := h.Tags.Update(r.Context(), uid, id, name)
	if err != nil {
		fail(h.Log, w, r, err)
		return
	}
	response.OK(w, tagDTO{ID: t.ID, Name: t.Name})
}

func (h *TagHandler) Delete(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	id, err := pathID(r, diary.ErrTagNotFound)
	if err != nil {
		fail(h.Log, w, r, err)
		return
	}

	if err := h.Tags.Delete(r.Context(), uid, id); err != nil {
		fail(h.Log, w, r, err)
		return
	}
	response.NoContent(w)
}

func (h *TagHandler) decodeName(w http.ResponseWriter, r *http.Request) (string, error) {
	var req tagReq
	if err := decodeJSON(w, r, &req); err != nil {
		return "", err
	}
	if err := required(map[string]bool{"name": req.Name != nil}); err != nil {
		return "", err
	}
	return *req.Name, nil
}

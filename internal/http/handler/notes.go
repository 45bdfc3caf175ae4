package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"diary/internal/auth"
	"diary/internal/diary"
	"diary/internal/http/response"
)

type NoteHandler struct {
	Notes *diary.NoteStore
	Log   *slog.Logger
}

type noteDTO struct {
	ID        uint64    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Title     string    `json:"title"`
	Text      string    `json:"text"`
	Tags      []string  `json:"tags"`
}

func toNoteDTO(n *diary.Note) noteDTO {
	return noteDTO{
		ID:        n.ID,
		CreatedAt: n.CreatedAt,
		Title:     n.Title,
		Text:      n.Text,
		Tags:      n.TagNames(),
	}
}

type noteReq struct {
	Title *string   `json:"title"`
	Text  *string   `json:"text"`
	Tags  *[]string `json:"tags"`
}

func (req noteReq) requireAll() error {
	return required(map[string]bool{
		"title": req.Title != nil,
		"text":  req.Text != nil,
		"tags":  req.Tags != nil,
	})
}

// List serves GET /notes?title=..&tags=a&tags=b.
func (h *NoteHandler) List(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	q := r.URL.Query()
	filter := diary.NoteFilter{TitleContains: strings.TrimSpace(q.Get("title"))}
	for _, v := range q["tags"] {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				filter.TagNames = append(filter.TagNames, name)
			}
		}
	}

	notes, err := h.Notes.List(r.Context(), uid, filter)
	if err != nil {
		fail(h.Log, w, r, err)
		return
	}

	out := make([]noteDTO, 0, len(notes))
	for i := range notes {
		out = append(out, toNoteDTO(&notes[i]))
	}
	response.OK(w, out)
}

func (h *NoteHandler) Create(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	var req noteReq
	if err := decodeJSON(w, r, &req); err != nil {
		fail(h.Log, w, r, err)
		return
	}
	if err := req.requireAll(); err != nil {
		fail(h.Log, w, r, err)
		return
	}

	n, err := h.Notes.Create(r.Context(), uid, diary.NoteInput{
		Title: *req.Title,
		Text:  *req.Text,
		Tags:  *req.Tags,
	})
	if err != nil {
		fail(h.Log, w, r, err)
		return
	}
	response.Created(w, toNoteDTO(n))
}

func (h *NoteHandler) Get(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	id, err := pathID(r, diary.ErrNoteNotFound)
	if err != nil {
		fail(h.Log, w, r, err)
		return
	}

	n, err := h.Notes.Get(r.Context(), uid, id)
	if err != nil {
		fail(h.Log, w, r, err)
		return
	}
	response.OK(w, toNoteDTO(n))
}

// Replace serves PUT: every field must be present.
func (h *NoteHandler) Replace(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, true)
}

// Patch serves PATCH: absent fields are left alone.
func (h *NoteHandler) Patch(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, false)
}

func (h *NoteHandler) update(w http.ResponseWriter, r *http.Request, full bool) {
	uid, _ := auth.UserIDFromContext(r.Context())

	id, err := pathID(r, diary.ErrNoteNotFound)
	if err != nil {
		fail(h.Log, w, r, err)
		return
	}

	var req noteReq
	if err := decodeJSON(w, r, &req); err != nil {
		fail(h.Log, w, r, err)
		return
	}
	if full {
		if err := req.requireAll(); err != nil {
			fail(h.Log, w, r, err)
			return
		}
	}

	n, err := h.Notes.Update(r.Context(), uid, id, diary.NoteUpdate{
		Title: req.Title,
		Text:  req.Text,
		Tags:  req.Tags,
	})
	if err != nil {
		fail(h.Log, w, r, err)
		return
	}
	response.OK(w, toNoteDTO(n))
}

func (h *NoteHandler) Delete(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	id, err := pathID(r, diary.ErrNoteNotFound)
	if err != nil {
		fail(h.Log, w, r, err)
		return
	}

	if err := h.Notes.Delete(r.Context(), uid, id); err != nil {
		fail(h.Log, w, r, err)
		return
	}
	response.NoContent(w)
}

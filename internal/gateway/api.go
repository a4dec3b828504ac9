package gateway

import (
	"net/http"
	"strconv"

	ctxengine "github.com/flemzord/writenow/internal/context"
	"github.com/flemzord/writenow/internal/conversation"
	"github.com/flemzord/writenow/internal/engine"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func projectParam(r *http.Request) string {
	return chi.URLParam(r, "project")
}

// refreshParam reads ?refresh=; anything unparsable counts as false.
func refreshParam(r *http.Request) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))
	return v
}

func (g *Gateway) handleListProjects() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string][]string{"projects": g.engine.Projects()})
	}
}

func (g *Gateway) handleRules() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := g.engine.Rules(r.Context(), projectParam(r), refreshParam(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func (g *Gateway) handleSettings() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := g.engine.Settings(r.Context(), projectParam(r), refreshParam(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func (g *Gateway) handleCharacters() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := g.engine.Characters(r.Context(), projectParam(r), refreshParam(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func (g *Gateway) handleWatchStart() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := g.engine.WatchStart(r.Context(), projectParam(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

func (g *Gateway) handleWatchStop() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := g.engine.WatchStop(r.Context(), projectParam(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

func (g *Gateway) handleEditorChanged() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var editor ctxengine.EditorContext
		if err := decodeJSON(r, &editor); err != nil {
			writeError(w, err)
			return
		}
		st, err := g.engine.EditorChanged(r.Context(), projectParam(r), editor)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, st)
	}
}

func (g *Gateway) handleEntityStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := g.engine.EntityStatus(r.Context(), projectParam(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

func (g *Gateway) handleAssemble() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in engine.AssembleInput
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, err)
			return
		}
		in.ProjectID = projectParam(r)
		if in.RequestID == "" {
			in.RequestID = middleware.GetReqID(r.Context())
		}
		out, err := g.engine.AssembleContext(r.Context(), in)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// saveResponse mirrors conversations:save -> {index}.
type saveResponse struct {
	Index conversation.IndexItem `json:"index"`
}

type listResponse struct {
	Items []conversation.IndexItem `json:"items"`
}

func (g *Gateway) handleSaveConversation() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var rec conversation.Record
		if err := decodeJSON(r, &rec); err != nil {
			writeError(w, err)
			return
		}
		item, err := g.engine.SaveConversation(r.Context(), projectParam(r), rec)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, saveResponse{Index: item})
	}
}

func (g *Gateway) handleListConversations() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		limit := 0
		if v := q.Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				writeError(w, ctxengine.Errorf(ctxengine.CodeInvalidArgument, "limit must be an integer, got %q", v))
				return
			}
			limit = n
		}
		items, err := g.engine.ListConversations(r.Context(), projectParam(r), q.Get("articleId"), limit)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, listResponse{Items: items})
	}
}

func (g *Gateway) handleGetConversation() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := g.engine.GetConversation(r.Context(), projectParam(r), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

// handleGenerateSummary summarizes the posted input, or the stored record
// when the body is empty.
func (g *Gateway) handleGenerateSummary() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var in conversation.SummaryInput
		if r.ContentLength != 0 {
			if err := decodeJSON(r, &in); err != nil {
				writeError(w, err)
				return
			}
		}
		if len(in.Messages) == 0 && in.OriginalText == "" && in.SuggestedText == "" {
			rec, err := g.engine.GetConversation(r.Context(), projectParam(r), id)
			if err != nil {
				writeError(w, err)
				return
			}
			in = conversation.InputFromRecord(rec)
		}
		in.ConversationID = id

		sum, err := g.engine.GenerateSummary(r.Context(), projectParam(r), in)
		switch {
		case err != nil && sum.SummaryQuality == "":
			writeError(w, err)
			return
		case err != nil:
			// The summary itself is still good; only the index lagged.
			g.logger.Warn("summary index update failed", "conversation", id, "error", err)
		}
		writeJSON(w, http.StatusOK, sum)
	}
}

func (g *Gateway) handleMemoryPreview() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := g.engine.MemoryPreview(r.Context(), projectParam(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

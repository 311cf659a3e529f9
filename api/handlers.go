package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"potluck"
	"potluck/match"
	"potluck/session"
)

type handler struct {
	sessions Sessions
	friends  FriendSearcher
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// createSession handles POST /potluck
func (h *handler) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	hostID, err := actingAs(r, req.HostID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	id, err := h.sessions.Create(r.Context(), session.CreateInput{
		Name:         req.Name,
		Date:         req.Date,
		HostID:       hostID,
		Participants: req.Participants,
		Ingredients:  req.Ingredients,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Location", "/potluck/"+id)
	writeJSON(w, r, http.StatusCreated, map[string]string{"id": id})
}

// getSession handles GET /potluck/{id}. Polling clients send If-None-Match
// with the last ETag and get a 304 while nothing has changed.
func (h *handler) getSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	etag := ETag(sess.Version)
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set(HeaderPollInterval, pollIntervalSeconds)

	if etagMatches(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeJSON(w, r, http.StatusOK, sess)
}

func (h *handler) listByHost(w http.ResponseWriter, r *http.Request) {
	out, err := h.sessions.ListByHost(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"sessions": out})
}

func (h *handler) listByParticipant(w http.ResponseWriter, r *http.Request) {
	out, err := h.sessions.ListByParticipant(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"sessions": out})
}

// addParticipants handles PUT /potluck/{id}/participants
func (h *handler) addParticipants(w http.ResponseWriter, r *http.Request) {
	var req participantsRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	sess, err := h.sessions.AddParticipants(r.Context(), chi.URLParam(r, "id"), req.UserIDs)
	h.respondSession(w, r, sess, err)
}

// removeParticipants handles DELETE /potluck/{id}/participants
func (h *handler) removeParticipants(w http.ResponseWriter, r *http.Request) {
	var req participantsRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	sess, err := h.sessions.RemoveParticipants(r.Context(), chi.URLParam(r, "id"), req.UserIDs)
	h.respondSession(w, r, sess, err)
}

// addIngredients handles PUT /potluck/{id}/ingredients
func (h *handler) addIngredients(w http.ResponseWriter, r *http.Request) {
	var req ingredientsRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	participantID, err := actingAs(r, req.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	sess, err := h.sessions.AddIngredients(r.Context(), chi.URLParam(r, "id"), participantID, req.Ingredients)
	h.respondSession(w, r, sess, err)
}

// removeIngredients handles DELETE /potluck/{id}/ingredients
func (h *handler) removeIngredients(w http.ResponseWriter, r *http.Request) {
	var req ingredientsRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	participantID, err := actingAs(r, req.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	sess, err := h.sessions.RemoveIngredients(r.Context(), chi.URLParam(r, "id"), participantID, req.Ingredients)
	h.respondSession(w, r, sess, err)
}

func (h *handler) aggregate(w http.ResponseWriter, r *http.Request) {
	agg, err := h.sessions.Aggregate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"ingredients": agg})
}

// generateRecipes handles PUT /potluck/AI/{id}
func (h *handler) generateRecipes(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decodeOptional(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	recipes, err := h.sessions.Generate(r.Context(), chi.URLParam(r, "id"), req.Cuisine, req.Preferences)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"recipes": recipes})
}

func (h *handler) endSession(w http.ResponseWriter, r *http.Request) {
	requester, err := requesterID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	sess, err := h.sessions.End(r.Context(), chi.URLParam(r, "id"), requester)
	h.respondSession(w, r, sess, err)
}

func (h *handler) leaveSession(w http.ResponseWriter, r *http.Request) {
	requester, err := requesterID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	sess, err := h.sessions.Leave(r.Context(), chi.URLParam(r, "id"), requester)
	h.respondSession(w, r, sess, err)
}

func (h *handler) deleteSession(w http.ResponseWriter, r *http.Request) {
	requester, err := requesterID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.sessions.Delete(r.Context(), chi.URLParam(r, "id"), requester); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) searchCuisines(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{"cuisines": match.SearchCuisines(r.URL.Query().Get("q"))})
}

func (h *handler) searchFriends(w http.ResponseWriter, r *http.Request) {
	friends, err := h.friends.SearchFriends(r.Context(), chi.URLParam(r, "userId"), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"friends": friends})
}

// respondSession writes a mutated session along with its new ETag.
func (h *handler) respondSession(w http.ResponseWriter, r *http.Request, sess potluck.Session, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("ETag", ETag(sess.Version))
	writeJSON(w, r, http.StatusOK, sess)
}

func requesterID(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.Header.Get(HeaderUserID))
	if id == "" {
		return "", potluck.NewForbidden(HeaderUserID + " header is required")
	}
	return id, nil
}

// actingAs resolves who a request acts for. The header wins; a body id is
// accepted on its own but must agree with the header when both are present.
func actingAs(r *http.Request, bodyID string) (string, error) {
	header := strings.TrimSpace(r.Header.Get(HeaderUserID))
	bodyID = strings.TrimSpace(bodyID)
	switch {
	case header == "" && bodyID == "":
		return "", potluck.NewValidation(fmt.Sprintf("%s header or a user id in the body is required", HeaderUserID))
	case header == "":
		return bodyID, nil
	case bodyID != "" && bodyID != header:
		return "", potluck.NewForbidden("cannot act on behalf of another user")
	default:
		return header, nil
	}
}

// ETag renders a session version as a strong entity tag.
func ETag(version int64) string {
	return `"` + strconv.FormatInt(version, 10) + `"`
}

func etagMatches(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}

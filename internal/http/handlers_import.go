package http

import (
	"fmt"
	"net/http"
	"strings"

	"kakeibo/internal/services"
	"kakeibo/internal/storage"
)

// suggestionsPerLabel is how many candidate categories an unmapped label
// gets in import responses.
const suggestionsPerLabel = 3

// ImportView is a session snapshot plus ranked candidates for each
// unmapped label.
type ImportView struct {
	services.SessionView
	Suggestions map[string][]services.Suggestion `json:"suggestions"`
}

func (s *Server) session(r *http.Request) (*services.ImportSession, error) {
	id := r.PathValue("id")
	sess, ok := s.app.Sessions.Get(id)
	if !ok {
		return nil, fmt.Errorf("import session %s: %w", id, storage.ErrNotFound)
	}
	return sess, nil
}

func (s *Server) importView(r *http.Request, sess *services.ImportSession) (ImportView, error) {
	view := ImportView{SessionView: sess.View(), Suggestions: map[string][]services.Suggestion{}}
	for _, label := range view.Unmapped {
		sug, err := s.app.Importer.Suggest(r.Context(), label, suggestionsPerLabel)
		if err != nil {
			return view, err
		}
		view.Suggestions[label] = sug
	}
	return view, nil
}

// handleCreateImport starts a session from a CSV request body.
func (s *Server) handleCreateImport(w http.ResponseWriter, r *http.Request) {
	sess := s.app.Importer.NewSession()
	if err := sess.Load(r.Context(), http.MaxBytesReader(w, r.Body, maxBodyBytes)); err != nil {
		writeError(w, r, err)
		return
	}
	s.app.Sessions.Put(sess)

	view, err := s.importView(r, sess)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/imports/"+sess.ID).
		Body(view).
		Write(w)
}

func (s *Server) handleGetImport(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	view, err := s.importView(r, sess)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// MappingRequest resolves labels to existing categories and creates new
// categories for others.
type MappingRequest struct {
	Mappings map[string]string `json:"mappings"`
	Create   []NewCategoryFor  `json:"create"`
}

type NewCategoryFor struct {
	Label     string `json:"label"`
	MajorName string `json:"major_name"`
	MinorName string `json:"minor_name"`
}

func (s *Server) handleImportMappings(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req MappingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	for label, categoryID := range req.Mappings {
		if err := sess.Resolve(r.Context(), label, categoryID); err != nil {
			writeError(w, r, err)
			return
		}
	}
	for _, c := range req.Create {
		if strings.TrimSpace(c.Label) == "" {
			writeError(w, r, badRequest("label is required"))
			return
		}
		if _, err := sess.CreateCategory(r.Context(), c.Label, sanitizeInput(c.MajorName), sanitizeInput(c.MinorName)); err != nil {
			writeError(w, r, err)
			return
		}
	}

	view, err := s.importView(r, sess)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// ConfirmRequest is optional; without a body the default payment method is
// used and duplicates are skipped.
type ConfirmRequest struct {
	PaymentMethodID string `json:"payment_method_id"`
	SkipDuplicates  *bool  `json:"skip_duplicates"`
}

// handleConfirmImport imports the session's rows and forgets the session.
func (s *Server) handleConfirmImport(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req ConfirmRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
	}
	skip := req.SkipDuplicates == nil || *req.SkipDuplicates

	res, err := sess.Confirm(r.Context(), req.PaymentMethodID, skip)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.app.Sessions.Delete(sess.ID)
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCancelImport(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	sess.Reset()
	s.app.Sessions.Delete(sess.ID)
	w.WriteHeader(http.StatusNoContent)
}

// handleSuggestCategories ranks active categories against ?label=.
func (s *Server) handleSuggestCategories(w http.ResponseWriter, r *http.Request) {
	label := strings.TrimSpace(r.URL.Query().Get("label"))
	if label == "" {
		writeError(w, r, badRequest("label is required"))
		return
	}
	limit, err := parseLimit(r, 5)
	if err != nil {
		writeError(w, r, err)
		return
	}
	sug, err := s.app.Importer.Suggest(r.Context(), label, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(sug))
}

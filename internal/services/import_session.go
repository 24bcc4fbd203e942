package services

import (
	"context"
	"fmt"
	"io"
	"sync"

	"kakeibo/internal/core"
	"kakeibo/internal/csvio"
	"kakeibo/internal/log"
)

// ImportSession drives one file through upload, mapping, confirm and done.
// Transitions only go forward; Reset returns to upload from any state.
type ImportSession struct {
	ID string

	im *Importer

	mu      sync.Mutex
	state   ImportState
	parsed  csvio.ParseResult
	mapping map[string]string
	result  *ImportResult
}

// SessionView is a read-only snapshot of a session.
type SessionView struct {
	ID         string            `json:"id"`
	State      ImportState       `json:"state"`
	Rows       int               `json:"rows"`
	Categories []string          `json:"categories"`
	Mapping    map[string]string `json:"mapping"`
	Unmapped   []string          `json:"unmapped"`
	Result     *ImportResult     `json:"result,omitempty"`
}

func (im *Importer) NewSession() *ImportSession {
	return &ImportSession{ID: core.NewID(), im: im, state: StateUpload, mapping: map[string]string{}}
}

func (s *ImportSession) State() ImportState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *ImportSession) View() SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := make(map[string]string, len(s.mapping))
	for k, v := range s.mapping {
		m[k] = v
	}
	cats := s.parsed.Categories
	if cats == nil {
		cats = []string{}
	}
	return SessionView{
		ID:         s.ID,
		State:      s.state,
		Rows:       len(s.parsed.Rows),
		Categories: cats,
		Mapping:    m,
		Unmapped:   s.unmapped(),
		Result:     s.result,
	}
}

func (s *ImportSession) expect(states ...ImportState) error {
	for _, st := range states {
		if s.state == st {
			return nil
		}
	}
	return fmt.Errorf("%w: session is %s", ErrInvalidState, s.state)
}

// Load parses r and moves to mapping. Labels with a persisted mapping are
// resolved straight away. A file without usable rows leaves the session in
// upload.
func (s *ImportSession) Load(ctx context.Context, r io.Reader) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.expect(StateUpload); err != nil {
		return err
	}

	parsed, err := csvio.Parse(r)
	if err != nil {
		return err
	}
	if len(parsed.Rows) == 0 {
		return ErrNoImportRows
	}

	known, err := s.im.Mappings(ctx)
	if err != nil {
		return err
	}
	byLabel := make(map[string]string, len(known))
	for _, m := range known {
		byLabel[m.CSVCategory] = m.CategoryID
	}
	mapping := map[string]string{}
	for _, label := range parsed.Categories {
		if id, ok := byLabel[label]; ok {
			mapping[label] = id
		}
	}

	s.parsed, s.mapping, s.state = parsed, mapping, StateMapping
	s.im.logger.InfoContext(ctx, "Import file loaded",
		log.FieldSessionID, s.ID,
		log.FieldCount, len(parsed.Rows),
		"labels", len(parsed.Categories),
		"premapped", len(mapping))
	return nil
}

// Resolve maps label to an existing category and persists the mapping.
func (s *ImportSession) Resolve(ctx context.Context, label, categoryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.expect(StateMapping); err != nil {
		return err
	}
	if err := s.im.SaveMapping(ctx, label, categoryID); err != nil {
		return err
	}
	s.mapping[label] = categoryID
	return nil
}

// CreateCategory adds a new category for label and maps label to it.
func (s *ImportSession) CreateCategory(ctx context.Context, label, major, minor string) (core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.expect(StateMapping); err != nil {
		return core.Category{}, err
	}
	cat, err := s.im.CreateCategoryFor(ctx, label, major, minor)
	if err != nil {
		return cat, err
	}
	s.mapping[label] = cat.ID
	return cat, nil
}

func (s *ImportSession) unmapped() []string {
	out := []string{}
	for _, label := range s.parsed.Categories {
		if _, ok := s.mapping[label]; !ok {
			out = append(out, label)
		}
	}
	return out
}

// Ready reports whether every distinct label has a category.
func (s *ImportSession) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateMapping && len(s.unmapped()) == 0
}

// Proceed moves from mapping to confirm once every label is mapped.
func (s *ImportSession) Proceed() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proceed()
}

func (s *ImportSession) proceed() error {
	if err := s.expect(StateMapping); err != nil {
		return err
	}
	if missing := s.unmapped(); len(missing) > 0 {
		return fmt.Errorf("%w: %v", ErrUnmappedLabels, missing)
	}
	s.state = StateConfirm
	return nil
}

// Confirm imports the loaded rows and finishes the session. Called from
// mapping it passes through confirm first. An empty paymentMethodID picks
// the default payment method. A failed import leaves the session in confirm
// so it can be retried.
func (s *ImportSession) Confirm(ctx context.Context, paymentMethodID string, skipDuplicates bool) (ImportResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateMapping {
		if err := s.proceed(); err != nil {
			return ImportResult{}, err
		}
	}
	if err := s.expect(StateConfirm); err != nil {
		return ImportResult{}, err
	}

	if paymentMethodID == "" {
		pm, err := s.im.methods.Default(ctx)
		if err != nil {
			return ImportResult{}, err
		}
		paymentMethodID = pm.ID
	}

	mapping := make(map[string]string, len(s.mapping))
	for k, v := range s.mapping {
		mapping[k] = v
	}
	res, err := s.im.ImportExpenses(ctx, s.parsed.Rows, mapping, paymentMethodID, skipDuplicates)
	if err != nil {
		return res, err
	}
	s.result, s.state = &res, StateDone
	return res, nil
}

// Reset discards everything and returns to upload.
func (s *ImportSession) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateUpload
	s.parsed = csvio.ParseResult{}
	s.mapping = map[string]string{}
	s.result = nil
}

// SessionStore keeps in-flight import sessions by id.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*ImportSession
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: map[string]*ImportSession{}}
}

func (st *SessionStore) Put(s *ImportSession) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sessions[s.ID] = s
}

func (st *SessionStore) Get(id string) (*ImportSession, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[id]
	return s, ok
}

func (st *SessionStore) Delete(id string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sessions, id)
}

package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"finquery/internal/config"
	"finquery/internal/store"
)

// TitleGenerator names a session from its first question. Optional: a nil
// generator just leaves sessions untitled.
type TitleGenerator interface {
	GenerateSessionTitle(ctx context.Context, seed string) (string, error)
}

// Session is the explicit context object owning one uploaded batch: the
// structured transaction table and the vector index. Both are mutated only by
// ingestion and reset; the query path reads. Sessions are independent, so
// several can coexist.
type Session struct {
	ID        string
	Title     *string
	CreatedAt time.Time

	mu           sync.RWMutex
	transactions []store.Transaction
	index        *VectorIndex
	ready        atomic.Bool

	// One question at a time against this session's data.
	askMu sync.Mutex
}

// Transactions returns a snapshot of the session's transaction table.
func (s *Session) Transactions() []store.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot := make([]store.Transaction, len(s.transactions))
	copy(snapshot, s.transactions)
	return snapshot
}

func (s *Session) Index() *VectorIndex { return s.index }

// Ready reports whether batch ingestion has completed. Questions before that
// are rejected rather than answered from partial data.
func (s *Session) Ready() bool { return s.ready.Load() }

// SessionStore is the persistence surface the manager needs.
type SessionStore interface {
	CreateSession(title *string) (*store.Session, error)
	UpdateSessionTitle(sessionID, title string) error
	DeleteSession(sessionID string) error
	InsertTransactions(sessionID string, txs []store.Transaction) error
	CreateMessage(msg *store.Message) error
	GetMessagesBySession(sessionID string, limit, offset int) ([]store.Message, error)
}

// SessionManager creates, resolves and resets sessions, and drives the
// ingestion pipeline: validate → categorize → embed/index → ready.
type SessionManager struct {
	db          SessionStore
	categorizer *Categorizer
	embedder    Embedder
	titles      TitleGenerator
	queries     *QueryService
	cfg         config.Config
	log         zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewSessionManager(db SessionStore, categorizer *Categorizer, embedder Embedder, titles TitleGenerator, queries *QueryService, cfg config.Config, log zerolog.Logger) *SessionManager {
	return &SessionManager{
		db:          db,
		categorizer: categorizer,
		embedder:    embedder,
		titles:      titles,
		queries:     queries,
		cfg:         cfg,
		log:         log,
		sessions:    make(map[string]*Session),
	}
}

// CreateSession validates and normalizes the uploaded records, categorizes
// them, indexes them on a bounded pool and persists the result. The session
// only becomes ready once every transaction is categorized and either indexed
// or recorded as an indexing failure.
func (m *SessionManager) CreateSession(ctx context.Context, records []store.TransactionRecord) (*Session, error) {
	if len(records) == 0 {
		return nil, &store.ValidationError{Field: "transactions", Reason: "batch must not be empty"}
	}

	txs := make([]store.Transaction, 0, len(records))
	seen := make(map[string]bool, len(records))
	for _, rec := range records {
		t, err := store.NormalizeRecord(rec)
		if err != nil {
			return nil, err
		}
		if seen[t.ID] {
			return nil, &store.ValidationError{TransactionID: t.ID, Field: "id", Reason: "duplicate id in batch"}
		}
		seen[t.ID] = true
		txs = append(txs, t)
	}

	row, err := m.db.CreateSession(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	sess := &Session{
		ID:        row.ID,
		CreatedAt: row.CreatedAt,
		index:     NewVectorIndex(m.embedder, m.cfg.EmbeddingDim, m.log),
	}
	m.mu.Lock()
	m.sessions[sess.ID] = sess
	m.mu.Unlock()

	m.categorizer.CategorizeBatch(ctx, txs)

	// Indexing units are independent; run them on a bounded pool and continue
	// past per-item embedding failures. A transaction that fails to embed is
	// still part of the structured table, it just cannot be retrieved
	// semantically.
	var indexFailures atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.IndexWorkers)
	for _, t := range txs {
		g.Go(func() error {
			if err := sess.index.Index(gctx, t); err != nil {
				indexFailures.Add(1)
				m.log.Warn().Err(err).Str("transaction_id", t.ID).Msg("failed to index transaction")
			}
			return nil
		})
	}
	_ = g.Wait()

	if n := indexFailures.Load(); n > 0 {
		m.log.Warn().Int64("failed", n).Int("total", len(txs)).Str("session_id", sess.ID).
			Msg("session indexed with failures; semantic recall is reduced")
	}

	if err := m.db.InsertTransactions(sess.ID, txs); err != nil {
		// A session that never persisted must not linger half-created: drop
		// the registration and its row so the id is not resolvable later.
		m.mu.Lock()
		delete(m.sessions, sess.ID)
		m.mu.Unlock()
		if derr := m.db.DeleteSession(sess.ID); derr != nil {
			m.log.Warn().Err(derr).Str("session_id", sess.ID).Msg("failed to clean up session after persist error")
		}
		return nil, fmt.Errorf("failed to persist transactions for session %s: %w", sess.ID, err)
	}

	sess.mu.Lock()
	sess.transactions = txs
	sess.mu.Unlock()
	sess.ready.Store(true)

	m.log.Info().Str("session_id", sess.ID).Int("transactions", len(txs)).
		Int("indexed", sess.index.Len()).Msg("session ready")
	return sess, nil
}

func (m *SessionManager) Get(sessionID string) (*Session, error) {
	m.mu.RLock()
	sess, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Ask answers one question against a ready session and records both sides of
// the exchange.
func (m *SessionManager) Ask(ctx context.Context, sessionID, question string) (*Answer, error) {
	sess, err := m.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.Ready() {
		return nil, ErrSessionIndexing
	}

	sess.askMu.Lock()
	defer sess.askMu.Unlock()

	userMsg := store.Message{SessionID: sessionID, Sender: "user", Content: question}
	if err := m.db.CreateMessage(&userMsg); err != nil {
		m.log.Warn().Err(err).Str("session_id", sessionID).Msg("failed to store user message")
	}

	answer, err := m.queries.Answer(ctx, sess, question)
	if err != nil {
		return nil, err
	}

	modelMsg := store.Message{
		SessionID: sessionID,
		Sender:    "model",
		Content:   answer.Text,
		CitedIDs:  answer.TransactionIDs,
	}
	if err := m.db.CreateMessage(&modelMsg); err != nil {
		m.log.Warn().Err(err).Str("session_id", sessionID).Msg("failed to store model message")
	}

	sess.mu.RLock()
	untitled := sess.Title == nil
	sess.mu.RUnlock()
	if untitled && m.titles != nil {
		go m.generateAndSaveTitle(sess, question)
	}
	return answer, nil
}

func (m *SessionManager) generateAndSaveTitle(sess *Session, seed string) {
	ctx, cancel := context.WithTimeout(context.Background(), capabilityTimeout)
	defer cancel()

	title, err := m.titles.GenerateSessionTitle(ctx, seed)
	if err != nil {
		m.log.Debug().Err(err).Str("session_id", sess.ID).Msg("session title generation failed")
		return
	}
	if err := m.db.UpdateSessionTitle(sess.ID, title); err != nil {
		m.log.Warn().Err(err).Str("session_id", sess.ID).Msg("failed to save session title")
		return
	}
	sess.mu.Lock()
	sess.Title = &title
	sess.mu.Unlock()
}

func (m *SessionManager) Messages(sessionID string) ([]store.Message, error) {
	if _, err := m.Get(sessionID); err != nil {
		return nil, err
	}
	return m.db.GetMessagesBySession(sessionID, 100, 0)
}

// Delete clears the session's index and drops its persisted rows. Used when a
// new file replaces the old analysis.
func (m *SessionManager) Delete(sessionID string) error {
	sess, err := m.Get(sessionID)
	if err != nil {
		return err
	}

	sess.index.Clear()
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()

	if err := m.db.DeleteSession(sessionID); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", sessionID, err)
	}
	return nil
}

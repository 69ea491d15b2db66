package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS sessions (
        id TEXT PRIMARY KEY, -- UUID
        title TEXT,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );

    CREATE TABLE IF NOT EXISTS transactions (
        id TEXT NOT NULL,
        session_id TEXT NOT NULL,
        date DATETIME NOT NULL,
        description TEXT NOT NULL,
        amount TEXT NOT NULL, -- decimal string, sign convention: negative = expense
        category TEXT NOT NULL DEFAULT '',
        confidence REAL NOT NULL DEFAULT 0,
        raw_json TEXT,
        PRIMARY KEY (id, session_id),
        FOREIGN KEY (session_id) REFERENCES sessions (id)
    );

    CREATE TABLE IF NOT EXISTS messages (
        id TEXT PRIMARY KEY, -- UUID
        session_id TEXT NOT NULL,
        sender TEXT NOT NULL CHECK (sender IN ('user', 'model')),
        content TEXT NOT NULL,
        cited_ids_json TEXT,
        timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
        FOREIGN KEY (session_id) REFERENCES sessions (id)
    );
    `
	_, err := s.db.Exec(schema)
	return err
}

// Session methods

func (s *SQLiteStore) CreateSession(title *string) (*Session, error) {
	sessionID := uuid.NewString()
	stmt, err := s.db.Prepare("INSERT INTO sessions (id, title, created_at) VALUES (?, ?, ?)")
	if err != nil {
		return nil, fmt.Errorf("failed to prepare session insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	if _, err = stmt.Exec(sessionID, title, now); err != nil {
		return nil, fmt.Errorf("failed to execute session insert: %w", err)
	}
	return &Session{ID: sessionID, Title: title, CreatedAt: now}, nil
}

func (s *SQLiteStore) GetSessionByID(sessionID string) (*Session, error) {
	var sess Session
	var title sql.NullString
	err := s.db.QueryRow("SELECT id, title, created_at FROM sessions WHERE id = ?", sessionID).Scan(&sess.ID, &title, &sess.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if title.Valid {
		sess.Title = &title.String
	}
	return &sess, nil
}

func (s *SQLiteStore) UpdateSessionTitle(sessionID string, title string) error {
	res, err := s.db.Exec("UPDATE sessions SET title = ? WHERE id = ?", title, sessionID)
	if err != nil {
		return fmt.Errorf("failed to update session title: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("session not found, title not updated")
	}
	return nil
}

// DeleteSession drops the session row and everything hanging off it.
func (s *SQLiteStore) DeleteSession(sessionID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin delete transaction: %w", err)
	}
	defer tx.Rollback()

	for _, q := range []string{
		"DELETE FROM messages WHERE session_id = ?",
		"DELETE FROM transactions WHERE session_id = ?",
		"DELETE FROM sessions WHERE id = ?",
	} {
		if _, err := tx.Exec(q, sessionID); err != nil {
			return fmt.Errorf("failed to delete session data: %w", err)
		}
	}
	return tx.Commit()
}

// Transaction methods

// InsertTransactions writes a categorized batch in one database transaction.
// Re-inserting an id within the same session overwrites the prior row.
func (s *SQLiteStore) InsertTransactions(sessionID string, txs []Transaction) error {
	dbTx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin insert transaction: %w", err)
	}
	defer dbTx.Rollback()

	stmt, err := dbTx.Prepare(`
        INSERT OR REPLACE INTO transactions (id, session_id, date, description, amount, category, confidence, raw_json)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare transaction insert: %w", err)
	}
	defer stmt.Close()

	for _, t := range txs {
		var rawJSON []byte
		if len(t.Raw) > 0 {
			if rawJSON, err = json.Marshal(t.Raw); err != nil {
				return fmt.Errorf("failed to marshal raw fields for transaction %s: %w", t.ID, err)
			}
		}
		_, err = stmt.Exec(t.ID, sessionID, t.Date, t.Description, t.Amount.String(), t.Category, t.Confidence, string(rawJSON))
		if err != nil {
			return fmt.Errorf("failed to insert transaction %s: %w", t.ID, err)
		}
	}
	return dbTx.Commit()
}

func (s *SQLiteStore) GetTransactionsBySession(sessionID string) ([]Transaction, error) {
	rows, err := s.db.Query(`
        SELECT id, date, description, amount, category, confidence, raw_json
        FROM transactions WHERE session_id = ? ORDER BY date ASC, id ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txs []Transaction
	for rows.Next() {
		var t Transaction
		var amountStr string
		var rawJSON sql.NullString
		if err := rows.Scan(&t.ID, &t.Date, &t.Description, &amountStr, &t.Category, &t.Confidence, &rawJSON); err != nil {
			return nil, fmt.Errorf("failed to scan transaction row: %w", err)
		}
		if t.Amount, err = decimal.NewFromString(amountStr); err != nil {
			return nil, fmt.Errorf("corrupt amount %q for transaction %s: %w", amountStr, t.ID, err)
		}
		if rawJSON.Valid && rawJSON.String != "" {
			if err := json.Unmarshal([]byte(rawJSON.String), &t.Raw); err != nil {
				return nil, fmt.Errorf("corrupt raw fields for transaction %s: %w", t.ID, err)
			}
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

func (s *SQLiteStore) ClearTransactions(sessionID string) error {
	if _, err := s.db.Exec("DELETE FROM transactions WHERE session_id = ?", sessionID); err != nil {
		return fmt.Errorf("failed to clear transactions: %w", err)
	}
	return nil
}

// Message methods

func (s *SQLiteStore) CreateMessage(msg *Message) error {
	msg.ID = uuid.NewString()
	msg.Timestamp = time.Now()

	var citedJSON []byte
	if len(msg.CitedIDs) > 0 {
		var err error
		if citedJSON, err = json.Marshal(msg.CitedIDs); err != nil {
			return fmt.Errorf("failed to marshal cited ids: %w", err)
		}
	}

	stmt, err := s.db.Prepare("INSERT INTO messages (id, session_id, sender, content, cited_ids_json, timestamp) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare message insert: %w", err)
	}
	defer stmt.Close()

	_, err = stmt.Exec(msg.ID, msg.SessionID, msg.Sender, msg.Content, string(citedJSON), msg.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to execute message insert: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetMessagesBySession(sessionID string, limit int, offset int) ([]Message, error) {
	query := "SELECT id, session_id, sender, content, cited_ids_json, timestamp FROM messages WHERE session_id = ? ORDER BY timestamp ASC LIMIT ? OFFSET ?"
	rows, err := s.db.Query(query, sessionID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (s *SQLiteStore) GetLastNMessagesBySession(sessionID string, n int) ([]Message, error) {
	query := `
        SELECT id, session_id, sender, content, cited_ids_json, timestamp
        FROM messages
        WHERE session_id = ?
        ORDER BY timestamp DESC
        LIMIT ?
    `
	rows, err := s.db.Query(query, sessionID, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func scanMessages(rows *sql.Rows) ([]Message, error) {
	var messages []Message
	for rows.Next() {
		var msg Message
		var citedJSON sql.NullString
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Sender, &msg.Content, &citedJSON, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		if citedJSON.Valid && citedJSON.String != "" {
			if err := json.Unmarshal([]byte(citedJSON.String), &msg.CitedIDs); err != nil {
				return nil, fmt.Errorf("corrupt cited ids for message %s: %w", msg.ID, err)
			}
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

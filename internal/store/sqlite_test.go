package store

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to open in-memory store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testTx(id, date, description, amount, category string) Transaction {
	parsed, err := time.Parse("2006-01-02", date)
	if err != nil {
		panic(err)
	}
	return Transaction{
		ID:          id,
		Date:        parsed,
		Description: description,
		Amount:      decimal.RequireFromString(amount),
		Category:    category,
		Confidence:  0.9,
	}
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestStore(t)

	sess, err := s.CreateSession(nil)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if sess.ID == "" {
		t.Fatal("session id not assigned")
	}
	if sess.Title != nil {
		t.Fatalf("new session should be untitled, got %q", *sess.Title)
	}

	got, err := s.GetSessionByID(sess.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got == nil || got.ID != sess.ID {
		t.Fatalf("got %+v", got)
	}

	if err := s.UpdateSessionTitle(sess.ID, "January spending"); err != nil {
		t.Fatalf("update title: %v", err)
	}
	got, err = s.GetSessionByID(sess.ID)
	if err != nil {
		t.Fatalf("get session after title: %v", err)
	}
	if got.Title == nil || *got.Title != "January spending" {
		t.Fatalf("title = %v", got.Title)
	}

	missing, err := s.GetSessionByID("nope")
	if err != nil {
		t.Fatalf("lookup of unknown session should not error: %v", err)
	}
	if missing != nil {
		t.Fatalf("unknown session returned %+v", missing)
	}
}

func TestInsertAndGetTransactions(t *testing.T) {
	s := newTestStore(t)
	sess, err := s.CreateSession(nil)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	txs := []Transaction{
		testTx("b", "2024-01-10", "SHELL GAS", "-40.00", "Transportation"),
		testTx("a", "2024-01-05", "STARBUCKS #123", "-5.75", "Food & Dining"),
	}
	txs[1].Raw = map[string]string{"memo": "card 4421"}
	if err := s.InsertTransactions(sess.ID, txs); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := s.GetTransactionsBySession(sess.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d transactions", len(got))
	}
	// Ordered by date, so "a" comes back first.
	if got[0].ID != "a" || got[1].ID != "b" {
		t.Fatalf("order = %s, %s", got[0].ID, got[1].ID)
	}
	if !got[0].Amount.Equal(decimal.RequireFromString("-5.75")) {
		t.Fatalf("amount round trip = %s", got[0].Amount)
	}
	if got[0].Category != "Food & Dining" || got[0].Confidence != 0.9 {
		t.Fatalf("category round trip = %+v", got[0])
	}
	if got[0].Raw["memo"] != "card 4421" {
		t.Fatalf("raw round trip = %v", got[0].Raw)
	}
}

func TestInsertTransactions_ReplaceOnSameID(t *testing.T) {
	s := newTestStore(t)
	sess, err := s.CreateSession(nil)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	first := testTx("a", "2024-01-05", "STARBUCKS #123", "-5.75", "")
	if err := s.InsertTransactions(sess.ID, []Transaction{first}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	second := testTx("a", "2024-01-05", "STARBUCKS #123", "-5.75", "Food & Dining")
	if err := s.InsertTransactions(sess.ID, []Transaction{second}); err != nil {
		t.Fatalf("reinsert: %v", err)
	}

	got, err := s.GetTransactionsBySession(sess.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected replace, got %d rows", len(got))
	}
	if got[0].Category != "Food & Dining" {
		t.Fatalf("replaced row category = %q", got[0].Category)
	}
}

func TestMessagesRoundTrip(t *testing.T) {
	s := newTestStore(t)
	sess, err := s.CreateSession(nil)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	user := Message{SessionID: sess.ID, Sender: "user", Content: "How much did I spend?"}
	if err := s.CreateMessage(&user); err != nil {
		t.Fatalf("create user message: %v", err)
	}
	model := Message{SessionID: sess.ID, Sender: "model", Content: "You spent $5.75.", CitedIDs: []string{"a", "b"}}
	if err := s.CreateMessage(&model); err != nil {
		t.Fatalf("create model message: %v", err)
	}

	got, err := s.GetMessagesBySession(sess.ID, 10, 0)
	if err != nil {
		t.Fatalf("get messages: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d messages", len(got))
	}
	if got[0].Sender != "user" || got[1].Sender != "model" {
		t.Fatalf("order = %s, %s", got[0].Sender, got[1].Sender)
	}
	if len(got[1].CitedIDs) != 2 || got[1].CitedIDs[0] != "a" {
		t.Fatalf("cited ids = %v", got[1].CitedIDs)
	}
	if len(got[0].CitedIDs) != 0 {
		t.Fatalf("user message should carry no citations: %v", got[0].CitedIDs)
	}
}

func TestCreateMessage_RejectsUnknownSender(t *testing.T) {
	s := newTestStore(t)
	sess, err := s.CreateSession(nil)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	msg := Message{SessionID: sess.ID, Sender: "system", Content: "x"}
	if err := s.CreateMessage(&msg); err == nil {
		t.Fatal("expected sender check to reject")
	}
}

func TestDeleteSession_RemovesEverything(t *testing.T) {
	s := newTestStore(t)
	sess, err := s.CreateSession(nil)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := s.InsertTransactions(sess.ID, []Transaction{testTx("a", "2024-01-05", "STARBUCKS #123", "-5.75", "Food & Dining")}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	msg := Message{SessionID: sess.ID, Sender: "user", Content: "hi"}
	if err := s.CreateMessage(&msg); err != nil {
		t.Fatalf("create message: %v", err)
	}

	if err := s.DeleteSession(sess.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	gone, err := s.GetSessionByID(sess.ID)
	if err != nil || gone != nil {
		t.Fatalf("session survived delete: %v, %+v", err, gone)
	}
	txs, err := s.GetTransactionsBySession(sess.ID)
	if err != nil || len(txs) != 0 {
		t.Fatalf("transactions survived delete: %v, %v", err, txs)
	}
	msgs, err := s.GetMessagesBySession(sess.ID, 10, 0)
	if err != nil || len(msgs) != 0 {
		t.Fatalf("messages survived delete: %v, %v", err, msgs)
	}
}

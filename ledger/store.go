package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Account is one user's balance plus their open positions and pending
// orders. Escrowed margin lives inside a position or order, never in USD
// at the same time.
type Account struct {
	USD       float64     `json:"usd"`
	Positions []*Position `json:"positions"`
	Orders    []*Order    `json:"orders"`
}

type document struct {
	Users  map[string]*Account `json:"users"`
	NextID int64               `json:"next_id"`
}

// Store holds every account and the shared position ID counter, backed by
// a single JSON document on disk. It is not safe for concurrent use; the
// engine serializes access.
type Store struct {
	path   string
	users  map[string]*Account
	nextID int64
}

// Load reads the document at path, creating an empty store when the file
// does not exist. Legacy records missing a position_id or timestamp are
// backfilled from the shared counter and the current time, and the repair
// is flushed immediately.
func Load(path string) (*Store, error) {
	s := &Store{
		path:   path,
		users:  make(map[string]*Account),
		nextID: 1,
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger %s: %w", path, err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse ledger %s: %w", path, err)
	}
	if doc.Users != nil {
		s.users = doc.Users
	}
	if doc.NextID > s.nextID {
		s.nextID = doc.NextID
	}
	for _, acct := range s.users {
		if acct.Positions == nil {
			acct.Positions = []*Position{}
		}
		if acct.Orders == nil {
			acct.Orders = []*Order{}
		}
	}

	if s.backfill(time.Now().UTC()) {
		if err := s.Save(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// backfill assigns IDs and timestamps to legacy records and reports
// whether anything changed. Only records whose persisted document carried
// no position_id at all are renumbered; an explicit 0 is a real ID.
func (s *Store) backfill(now time.Time) bool {
	changed := false
	for _, acct := range s.users {
		for _, p := range acct.Positions {
			if !p.idSet {
				p.ID = s.NextID()
				p.idSet = true
				changed = true
			}
			if p.OpenedAt.IsZero() {
				p.OpenedAt = now
				changed = true
			}
		}
		for _, o := range acct.Orders {
			if !o.idSet {
				o.ID = s.NextID()
				o.idSet = true
				changed = true
			}
			if o.CreatedAt.IsZero() {
				o.CreatedAt = now
				changed = true
			}
		}
	}
	return changed
}

// Save writes the whole document atomically: a temp file in the same
// directory, then rename.
func (s *Store) Save() error {
	doc := document{Users: s.users, NextID: s.nextID}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal ledger: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".ledger-*.json")
	if err != nil {
		return fmt.Errorf("create ledger temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close ledger temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace ledger %s: %w", s.path, err)
	}
	return nil
}

// Ensure returns the account for user, creating an empty one on first
// contact.
func (s *Store) Ensure(user string) *Account {
	acct, ok := s.users[user]
	if !ok {
		acct = &Account{Positions: []*Position{}, Orders: []*Order{}}
		s.users[user] = acct
	}
	return acct
}

// Account returns the account for user, or nil when unknown.
func (s *Store) Account(user string) *Account {
	return s.users[user]
}

// NextID allocates the next position ID from the shared counter.
func (s *Store) NextID() int64 {
	id := s.nextID
	s.nextID++
	return id
}

// UserIDs returns every known user in sorted order. The sweeper iterates
// in this order so settlement is stable across runs.
func (s *Store) UserIDs() []string {
	ids := make([]string, 0, len(s.users))
	for id := range s.users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

package recordstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	"chatcore/internal/cerrors"
)

// Document is one versioned record. Version starts at 1 on first write
// and increments on every committed change; 0 means "absent at read
// time" inside a transaction.
type Document struct {
	ID      string
	Data    json.RawMessage
	Version int64
}

// ErrVersionConflict is the internal retry signal a backend returns when
// a commit observes a record whose version moved since it was read. It
// never escapes Transact; exhausted retries surface cerrors.ErrTxAborted.
var ErrVersionConflict = errors.New("record version conflict")

// Backend is a raw versioned record backend: snapshot reads plus an
// all-or-nothing conditional commit.
type Backend interface {
	// Get returns a single document, or cerrors.ErrNotFound.
	Get(ctx context.Context, id string) (*Document, error)

	// Load returns the current documents for ids; absent ids are simply
	// missing from the result map.
	Load(ctx context.Context, ids []string) (map[string]*Document, error)

	// Commit applies writes and deletes atomically iff every record in
	// readVersions still carries the version it was read at (version 0
	// meaning the record must still be absent). On a moved version it
	// returns ErrVersionConflict and applies nothing.
	Commit(ctx context.Context, readVersions map[string]int64, writes map[string]json.RawMessage, deletes map[string]struct{}) error

	Close() error
}

// Options tunes the compare-and-retry discipline.
type Options struct {
	// MaxRetries is the number of re-runs after the first conflicted
	// attempt before the transaction aborts.
	MaxRetries int
	// RetryBackoff is the initial backoff; it doubles per conflict with
	// jitter.
	RetryBackoff time.Duration
}

// DefaultOptions matches the config defaults.
func DefaultOptions() Options {
	return Options{MaxRetries: 5, RetryBackoff: 10 * time.Millisecond}
}

// Store is the engine's record store: single-document reads plus
// multi-document atomic transactions with compare-and-retry semantics.
// Every cross-record mutation in the engine goes through Transact so
// that partially-applied state is never observable.
type Store struct {
	backend Backend
	opts    Options
}

// New creates a Store over the given backend.
func New(backend Backend, opts Options) *Store {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultOptions().MaxRetries
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = DefaultOptions().RetryBackoff
	}
	return &Store{backend: backend, opts: opts}
}

// Get reads one document. Returns cerrors.ErrNotFound if absent.
func (s *Store) Get(ctx context.Context, id string) (*Document, error) {
	return s.backend.Get(ctx, id)
}

// GetJSON reads one document and decodes it into out.
func (s *Store) GetJSON(ctx context.Context, id string, out any) error {
	doc, err := s.backend.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(doc.Data, out); err != nil {
		return fmt.Errorf("decode record %s: %w", id, err)
	}
	return nil
}

// Transact reads the current values of all named records, applies fn and
// commits every write atomically iff no involved record changed since it
// was read. On a version conflict it re-reads, re-runs fn and backs off
// exponentially, up to the retry ceiling, after which the caller sees
// cerrors.ErrTxAborted. Errors returned by fn abort immediately and are
// passed through unchanged; nothing is applied.
func (s *Store) Transact(ctx context.Context, ids []string, fn func(tx *Tx) error) error {
	backoff := s.opts.RetryBackoff
	for attempt := 0; ; attempt++ {
		docs, err := s.backend.Load(ctx, ids)
		if err != nil {
			return err
		}
		tx := newTx(ids, docs)
		if err := fn(tx); err != nil {
			return err
		}
		err = s.backend.Commit(ctx, tx.readVersions(), tx.writes, tx.deletes)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return err
		}
		if attempt >= s.opts.MaxRetries {
			return cerrors.TxAbortedf("gave up after %d conflicted attempts over %d records", attempt+1, len(ids))
		}
		log.Printf("recordstore: version conflict on attempt %d/%d, retrying", attempt+1, s.opts.MaxRetries)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(jitter(backoff)):
		}
		backoff *= 2
	}
}

// jitter spreads concurrent retries over [d/2, d).
func jitter(d time.Duration) time.Duration {
	return d/2 + time.Duration(rand.Int63n(int64(d/2)+1))
}

// Tx is the mutable view handed to a transaction function. All reads see
// the snapshot taken at transaction start overlaid with the transaction's
// own writes; Put and Delete stage changes that Commit applies atomically.
type Tx struct {
	now     time.Time
	ids     map[string]struct{}
	docs    map[string]*Document
	writes  map[string]json.RawMessage
	deletes map[string]struct{}
}

func newTx(ids []string, docs map[string]*Document) *Tx {
	idSet := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		idSet[id] = struct{}{}
	}
	return &Tx{
		now:     time.Now().UTC(),
		ids:     idSet,
		docs:    docs,
		writes:  make(map[string]json.RawMessage),
		deletes: make(map[string]struct{}),
	}
}

// Now is the timestamp all records written in this transaction share.
func (tx *Tx) Now() time.Time { return tx.now }

// Exists reports whether id currently has a value in the transaction's
// view (snapshot plus staged writes and deletes).
func (tx *Tx) Exists(id string) bool {
	if _, ok := tx.deletes[id]; ok {
		return false
	}
	if _, ok := tx.writes[id]; ok {
		return true
	}
	_, ok := tx.docs[id]
	return ok
}

// Get decodes the record into out, observing staged writes. Returns
// cerrors.ErrNotFound if the record is absent or deleted in this
// transaction. Reading an id outside the transaction set is a bug and
// fails loudly.
func (tx *Tx) Get(id string, out any) error {
	if _, ok := tx.ids[id]; !ok {
		return fmt.Errorf("record %s is not part of this transaction", id)
	}
	if _, ok := tx.deletes[id]; ok {
		return cerrors.NotFoundf("record %s", id)
	}
	if data, ok := tx.writes[id]; ok {
		return json.Unmarshal(data, out)
	}
	doc, ok := tx.docs[id]
	if !ok {
		return cerrors.NotFoundf("record %s", id)
	}
	return json.Unmarshal(doc.Data, out)
}

// Put stages v as the new value of id.
func (tx *Tx) Put(id string, v any) error {
	if _, ok := tx.ids[id]; !ok {
		return fmt.Errorf("record %s is not part of this transaction", id)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", id, err)
	}
	delete(tx.deletes, id)
	tx.writes[id] = data
	return nil
}

// Delete stages removal of id.
func (tx *Tx) Delete(id string) {
	delete(tx.writes, id)
	tx.deletes[id] = struct{}{}
}

// readVersions maps every id in the transaction set to the version it
// was read at, 0 for records absent at read time. Commit validates the
// full set, reads included, so a decision taken on a record that moved
// meanwhile can never commit.
func (tx *Tx) readVersions() map[string]int64 {
	versions := make(map[string]int64, len(tx.ids))
	for id := range tx.ids {
		if doc, ok := tx.docs[id]; ok {
			versions[id] = doc.Version
		} else {
			versions[id] = 0
		}
	}
	return versions
}

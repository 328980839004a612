// Package peerbook keeps a persistent record of the peers a node has tried,
// how each attempt ended, and which alternates other peers suggested.
package peerbook

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const keyPrefix = "peer/"

// OutcomeSuccess is the outcome recorded for a completed handshake.
const OutcomeSuccess = "success"

// ErrNotFound is returned for addresses the book has never seen.
var ErrNotFound = errors.New("peer not found")

// Record is everything known about one address.
type Record struct {
	Addr        string    `json:"addr"`
	PeerID      string    `json:"peer_id,omitempty"`
	Attempts    int       `json:"attempts"`
	Successes   int       `json:"successes"`
	LastOutcome string    `json:"last_outcome,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	LastAttempt time.Time `json:"last_attempt,omitempty"`
	SuggestedBy string    `json:"suggested_by,omitempty"`
	Suggested   time.Time `json:"suggested,omitempty"`
}

// Book is a peer book backed by LevelDB. It is safe for concurrent use.
type Book struct {
	db    *leveldb.DB
	clock clock.Clock
}

// Open opens or creates a peer book in the directory path.
func Open(path string, clk clock.Clock) (*Book, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open peer book %s: %w", path, err)
	}
	return newBook(db, clk), nil
}

// OpenMemory opens a peer book that lives only in memory.
func OpenMemory(clk clock.Clock) (*Book, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("open in-memory peer book: %w", err)
	}
	return newBook(db, clk), nil
}

func newBook(db *leveldb.DB, clk clock.Clock) *Book {
	if clk == nil {
		clk = clock.New()
	}
	return &Book{db: db, clock: clk}
}

// Close releases the database.
func (b *Book) Close() error {
	return b.db.Close()
}

// Get returns the record for addr.
func (b *Book) Get(addr string) (*Record, error) {
	data, err := b.db.Get([]byte(keyPrefix+addr), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, addr)
	}
	if err != nil {
		return nil, err
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", addr, err)
	}
	return &rec, nil
}

func (b *Book) put(rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return b.db.Put([]byte(keyPrefix+rec.Addr), data, nil)
}

func (b *Book) getOrNew(addr string) (*Record, error) {
	rec, err := b.Get(addr)
	if errors.Is(err, ErrNotFound) {
		return &Record{Addr: addr}, nil
	}
	return rec, err
}

// RecordAttempt stores the outcome of one handshake attempt with addr.
// peerID may be empty when the handshake did not get far enough to learn it.
func (b *Book) RecordAttempt(addr, outcome, peerID string, attemptErr error) error {
	rec, err := b.getOrNew(addr)
	if err != nil {
		return err
	}

	rec.Attempts++
	rec.LastOutcome = outcome
	rec.LastAttempt = b.clock.Now().UTC()
	rec.LastError = ""
	if attemptErr != nil {
		rec.LastError = attemptErr.Error()
	}
	if outcome == OutcomeSuccess {
		rec.Successes++
	}
	if peerID != "" {
		rec.PeerID = peerID
	}

	logrus.WithFields(logrus.Fields{
		"function": "RecordAttempt",
		"address":  addr,
		"outcome":  outcome,
		"attempts": rec.Attempts,
	}).Debug("Peer attempt recorded")
	return b.put(rec)
}

// AddSuggested stores addresses suggested by from. Known addresses are left
// untouched. It returns the number of new records.
func (b *Book) AddSuggested(from string, addrs []string) (int, error) {
	batch := new(leveldb.Batch)
	added := 0
	now := b.clock.Now().UTC()

	for _, addr := range addrs {
		ok, err := b.db.Has([]byte(keyPrefix+addr), nil)
		if err != nil {
			return 0, err
		}
		if ok {
			continue
		}
		data, err := json.Marshal(&Record{Addr: addr, SuggestedBy: from, Suggested: now})
		if err != nil {
			return 0, err
		}
		batch.Put([]byte(keyPrefix+addr), data)
		added++
	}

	if added == 0 {
		return 0, nil
	}
	if err := b.db.Write(batch, nil); err != nil {
		return 0, err
	}

	logrus.WithFields(logrus.Fields{
		"function": "AddSuggested",
		"from":     from,
		"added":    added,
	}).Debug("Suggested peers stored")
	return added, nil
}

// List returns every record in address order.
func (b *Book) List() ([]Record, error) {
	iter := b.db.NewIterator(util.BytesPrefix([]byte(keyPrefix)), nil)
	defer iter.Release()

	var records []Record
	for iter.Next() {
		var rec Record
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return nil, fmt.Errorf("decode record %s: %w", iter.Key(), err)
		}
		records = append(records, rec)
	}
	return records, iter.Error()
}

// Candidates returns up to limit addresses worth trying: peers that
// succeeded before, most successes first, then suggested peers never tried.
// A limit of zero or less means no limit.
func (b *Book) Candidates(limit int) ([]string, error) {
	records, err := b.List()
	if err != nil {
		return nil, err
	}

	var good, fresh []Record
	for _, rec := range records {
		switch {
		case rec.Successes > 0 && rec.LastOutcome == OutcomeSuccess:
			good = append(good, rec)
		case rec.Attempts == 0:
			fresh = append(fresh, rec)
		}
	}
	sort.SliceStable(good, func(i, j int) bool {
		return good[i].Successes > good[j].Successes
	})
	sort.SliceStable(fresh, func(i, j int) bool {
		return fresh[i].Suggested.Before(fresh[j].Suggested)
	})

	var out []string
	for _, rec := range append(good, fresh...) {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, rec.Addr)
	}
	return out, nil
}

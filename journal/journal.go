// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package journal

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/blinklabs-io/lyrebird/event"
	badger "github.com/dgraph-io/badger/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var ErrClosed = errors.New("journal is closed")

// Entry is one archived event. Data holds the event payload as JSON.
type Entry struct {
	Timestamp time.Time       `json:"timestamp"`
	Type      event.EventType `json:"type"`
	Data      json.RawMessage `json:"data"`
	Seq       uint64          `json:"seq"`
}

type JournalConfig struct {
	EventBus     *event.EventBus
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
	// DataDir holds the on-disk journal; empty means in-memory
	DataDir string
	// EventTypes lists the event types to archive when an EventBus is
	// configured
	EventTypes []event.EventType
}

// Journal is a durable, append-only archive of domain events backed by
// badger. Entries are keyed by a big-endian sequence number so iteration
// order matches append order. It implements event.Subscriber and archives
// every event type it is registered for.
type Journal struct {
	config   JournalConfig
	db       *badger.DB
	logger   *slog.Logger
	lastSeq  uint64
	closed   bool
	gcTicker *time.Ticker
	gcStopCh chan struct{}
	gcWg     sync.WaitGroup
	metrics  struct {
		entriesTotal prometheus.Counter
		lastSeq      prometheus.Gauge
	}
	sync.Mutex
}

func NewJournal(config JournalConfig) (*Journal, error) {
	j := &Journal{
		config: config,
	}
	if config.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		j.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	} else {
		j.logger = config.Logger.With("component", "journal")
	}
	var db *badger.DB
	var err error
	if config.DataDir == "" {
		// No dataDir, use in-memory config
		badgerOpts := badger.DefaultOptions("").
			WithLogger(newBadgerLogger(j.logger)).
			// The default INFO logging is a bit verbose
			WithLoggingLevel(badger.WARNING).
			WithInMemory(true)
		db, err = badger.Open(badgerOpts)
		if err != nil {
			return nil, err
		}
	} else {
		// Make sure that we can read data dir, and create if it doesn't exist
		if _, err := os.Stat(config.DataDir); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read data dir: %w", err)
			}
			if err := os.MkdirAll(config.DataDir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create data dir: %w", err)
			}
		}
		journalDir := filepath.Join(config.DataDir, "journal")
		badgerOpts := badger.DefaultOptions(journalDir).
			WithLogger(newBadgerLogger(j.logger)).
			WithLoggingLevel(badger.WARNING)
		db, err = badger.Open(badgerOpts)
		if err != nil {
			return nil, err
		}
		j.gcTicker = time.NewTicker(5 * time.Minute)
		j.gcStopCh = make(chan struct{})
		j.gcWg.Add(1)
		go j.valueLogGc(j.gcTicker, j.gcStopCh)
	}
	j.db = db
	promautoFactory := promauto.With(config.PromRegistry)
	j.metrics.entriesTotal = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "lyrebird_journal_entries_total",
			Help: "total events archived",
		},
	)
	j.metrics.lastSeq = promautoFactory.NewGauge(
		prometheus.GaugeOpts{
			Name: "lyrebird_journal_last_seq",
			Help: "sequence number of the newest archived event",
		},
	)
	if err := j.loadLastSeq(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if config.EventBus != nil {
		for _, eventType := range config.EventTypes {
			config.EventBus.RegisterSubscriber(eventType, j)
		}
	}
	return j, nil
}

func (j *Journal) valueLogGc(t *time.Ticker, stop <-chan struct{}) {
	defer j.gcWg.Done()
	for {
		select {
		case <-t.C:
		again:
			err := j.db.RunValueLogGC(0.5)
			if err != nil {
				if !errors.Is(err, badger.ErrNoRewrite) {
					j.logger.Warn(
						fmt.Sprintf("journal DB: GC failure: %s", err),
					)
				}
			} else {
				// Run it again if it just ran successfully
				goto again
			}
		case <-stop:
			return
		}
	}
}

// loadLastSeq resumes the sequence counter from the newest stored key
func (j *Journal) loadLastSeq() error {
	return j.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Reverse = true
		iterOpts.PrefetchValues = false
		iter := txn.NewIterator(iterOpts)
		defer iter.Close()
		iter.Seek(seqKey(^uint64(0)))
		if iter.Valid() {
			j.lastSeq = binary.BigEndian.Uint64(iter.Item().Key())
			j.metrics.lastSeq.Set(float64(j.lastSeq))
		}
		return nil
	})
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

// Append archives an event and returns its assigned sequence number
func (j *Journal) Append(evt event.Event) (uint64, error) {
	data, err := json.Marshal(evt.Data)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal event data: %w", err)
	}
	j.Lock()
	defer j.Unlock()
	if j.closed {
		return 0, ErrClosed
	}
	seq := j.lastSeq + 1
	entry := Entry{
		Seq:       seq,
		Timestamp: evt.Timestamp,
		Type:      evt.Type,
		Data:      data,
	}
	encoded, err := json.Marshal(entry)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal journal entry: %w", err)
	}
	err = j.db.Update(func(txn *badger.Txn) error {
		return txn.Set(seqKey(seq), encoded)
	})
	if err != nil {
		return 0, err
	}
	j.lastSeq = seq
	j.metrics.entriesTotal.Inc()
	j.metrics.lastSeq.Set(float64(seq))
	return seq, nil
}

// Deliver implements event.Subscriber
func (j *Journal) Deliver(evt event.Event) error {
	_, err := j.Append(evt)
	return err
}

// Seq returns the sequence number of the newest archived event; zero means
// the journal is empty
func (j *Journal) Seq() uint64 {
	j.Lock()
	defer j.Unlock()
	return j.lastSeq
}

// Read returns up to limit entries with sequence numbers strictly greater
// than afterSeq, in append order. A limit of zero or less means no limit.
func (j *Journal) Read(afterSeq uint64, limit int) ([]Entry, error) {
	j.Lock()
	if j.closed {
		j.Unlock()
		return nil, ErrClosed
	}
	j.Unlock()
	var entries []Entry
	err := j.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iter := txn.NewIterator(iterOpts)
		defer iter.Close()
		for iter.Seek(seqKey(afterSeq + 1)); iter.Valid(); iter.Next() {
			if limit > 0 && len(entries) >= limit {
				break
			}
			var entry Entry
			err := iter.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			})
			if err != nil {
				return err
			}
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Close stops the journal and the underlying database. Idempotent so the
// EventBus can call it during shutdown.
func (j *Journal) Close() {
	j.Lock()
	if j.closed {
		j.Unlock()
		return
	}
	j.closed = true
	j.Unlock()
	if j.gcTicker != nil {
		j.gcTicker.Stop()
		close(j.gcStopCh)
		j.gcWg.Wait()
		j.gcTicker = nil
	}
	if err := j.db.Close(); err != nil {
		j.logger.Error("failed to close journal DB", "error", err)
	}
}

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

package provenance

import (
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/blinklabs-io/lyrebird/access"
	"github.com/blinklabs-io/lyrebird/database"
	"github.com/blinklabs-io/lyrebird/database/models"
	"github.com/blinklabs-io/lyrebird/event"
	"github.com/blinklabs-io/lyrebird/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	RegisteredEventType event.EventType = "provenance.registered"
	LinkedEventType     event.EventType = "provenance.linked"
)

var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrAlreadyExists = errors.New("provenance record already exists")
	ErrNotFound      = errors.New("provenance record not found")
	ErrEmptyParents  = errors.New("empty parent list")
	ErrAlreadyLinked = errors.New("record already has parents")
)

// Record is an immutable description of how a digital artifact was produced.
// Core fields are fixed at registration; ParentHashes is set at most once by
// LinkDerivation.
type Record struct {
	Timestamp     time.Time
	Creator       types.Principal
	Collaborators []types.Principal
	ParentHashes  []types.Hash
	Hash          types.Hash
	ModelHash     types.Hash
	PromptHash    types.Hash
}

func (r Record) copy() Record {
	ret := r
	ret.Collaborators = slices.Clone(r.Collaborators)
	ret.ParentHashes = slices.Clone(r.ParentHashes)
	return ret
}

type RegisteredEvent struct {
	Record Record
}

type LinkedEvent struct {
	Child   types.Hash
	Parents []types.Hash
}

type RegistryConfig struct {
	Database     *database.Database
	EventBus     *event.EventBus
	Access       *access.Table
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
	Clock        func() time.Time
}

// Registry owns the append-only DAG of creation records. Records are never
// updated or deleted after registration; derivation links are write-once per
// child.
type Registry struct {
	config     RegistryConfig
	records    map[types.Hash]Record
	linked     map[types.Hash]bool
	childIndex map[types.Hash][]types.Hash
	logger     *slog.Logger
	clock      func() time.Time
	metrics    struct {
		recordsTotal prometheus.Gauge
		linksTotal   prometheus.Counter
	}
	sync.RWMutex
}

func NewRegistry(config RegistryConfig) (*Registry, error) {
	r := &Registry{
		config:     config,
		records:    make(map[types.Hash]Record),
		linked:     make(map[types.Hash]bool),
		childIndex: make(map[types.Hash][]types.Hash),
	}
	if config.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		r.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	} else {
		r.logger = config.Logger.With("component", "provenance")
	}
	r.clock = config.Clock
	if r.clock == nil {
		r.clock = time.Now
	}
	promautoFactory := promauto.With(config.PromRegistry)
	r.metrics.recordsTotal = promautoFactory.NewGauge(
		prometheus.GaugeOpts{
			Name: "lyrebird_provenance_records",
			Help: "registered provenance records",
		},
	)
	r.metrics.linksTotal = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "lyrebird_provenance_links_total",
			Help: "total derivation link operations",
		},
	)
	if config.Database != nil {
		if err := r.load(); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// load seeds the in-memory DAG from the database at startup
func (r *Registry) load() error {
	records, collaborators, parents, err := r.config.Database.LoadProvenance()
	if err != nil {
		return err
	}
	collabsByHash := make(map[types.Hash][]types.Principal)
	for _, c := range collaborators {
		hash, err := types.HashFromBytes(c.RecordHash)
		if err != nil {
			return err
		}
		collabsByHash[hash] = append(
			collabsByHash[hash],
			types.Principal(c.Principal),
		)
	}
	for _, rec := range records {
		hash, err := types.HashFromBytes(rec.Hash)
		if err != nil {
			return err
		}
		modelHash, err := types.HashFromBytes(rec.ModelHash)
		if err != nil {
			return err
		}
		promptHash, err := types.HashFromBytes(rec.PromptHash)
		if err != nil {
			return err
		}
		r.records[hash] = Record{
			Hash:          hash,
			ModelHash:     modelHash,
			PromptHash:    promptHash,
			Creator:       types.Principal(rec.Creator),
			Collaborators: collabsByHash[hash],
			Timestamp:     rec.Timestamp,
		}
		r.linked[hash] = rec.Linked
	}
	for _, edge := range parents {
		childHash, err := types.HashFromBytes(edge.ChildHash)
		if err != nil {
			return err
		}
		parentHash, err := types.HashFromBytes(edge.ParentHash)
		if err != nil {
			return err
		}
		child, ok := r.records[childHash]
		if !ok {
			return ErrNotFound
		}
		child.ParentHashes = append(child.ParentHashes, parentHash)
		r.records[childHash] = child
		r.childIndex[parentHash] = append(
			r.childIndex[parentHash],
			childHash,
		)
	}
	r.metrics.recordsTotal.Set(float64(len(r.records)))
	return nil
}

// Register creates a new provenance record. The caller needs the registrar
// role. The record's core fields are fixed permanently; there is no API path
// that updates an existing record.
func (r *Registry) Register(
	caller types.Principal,
	hash types.Hash,
	modelHash types.Hash,
	promptHash types.Hash,
	creator types.Principal,
	collaborators []types.Principal,
) (Record, error) {
	if r.config.Access != nil {
		if err := r.config.Access.Require(caller, access.RoleRegistrar); err != nil {
			return Record{}, err
		}
	}
	if hash.IsZero() || modelHash.IsZero() || promptHash.IsZero() {
		return Record{}, ErrInvalidInput
	}
	if creator.IsZero() {
		return Record{}, ErrInvalidInput
	}
	for _, c := range collaborators {
		if c.IsZero() {
			return Record{}, ErrInvalidInput
		}
	}
	r.Lock()
	defer r.Unlock()
	if _, ok := r.records[hash]; ok {
		return Record{}, ErrAlreadyExists
	}
	record := Record{
		Hash:          hash,
		ModelHash:     modelHash,
		PromptHash:    promptHash,
		Creator:       creator,
		Collaborators: slices.Clone(collaborators),
		Timestamp:     r.clock(),
	}
	if r.config.Database != nil {
		collabRows := make(
			[]models.ProvenanceCollaborator,
			0,
			len(record.Collaborators),
		)
		for i, c := range record.Collaborators {
			collabRows = append(collabRows, models.ProvenanceCollaborator{
				RecordHash: hash.Bytes(),
				Principal:  c.String(),
				Idx:        i,
			})
		}
		err := r.config.Database.AddProvenanceRecord(
			models.ProvenanceRecord{
				Hash:       hash.Bytes(),
				ModelHash:  modelHash.Bytes(),
				PromptHash: promptHash.Bytes(),
				Creator:    creator.String(),
				Timestamp:  record.Timestamp,
			},
			collabRows,
			nil,
		)
		if err != nil {
			return Record{}, err
		}
	}
	r.records[hash] = record
	r.metrics.recordsTotal.Inc()
	r.logger.Info(
		"provenance registered",
		"hash", hash.String(),
		"creator", creator.String(),
	)
	if r.config.EventBus != nil {
		r.config.EventBus.Publish(
			RegisteredEventType,
			event.NewEvent(
				RegisteredEventType,
				RegisteredEvent{Record: record.copy()},
			),
		)
	}
	return record.copy(), nil
}

// LinkDerivation sets the parent hashes of a child record. The field is
// write-once: linking an already-linked child fails with ErrAlreadyLinked.
// Every referenced hash must already be registered.
func (r *Registry) LinkDerivation(
	caller types.Principal,
	child types.Hash,
	parents []types.Hash,
) error {
	if r.config.Access != nil {
		if err := r.config.Access.Require(caller, access.RoleRegistrar); err != nil {
			return err
		}
	}
	if child.IsZero() {
		return ErrInvalidInput
	}
	if len(parents) == 0 {
		return ErrEmptyParents
	}
	// Deduplicate while preserving order
	parentSet := make([]types.Hash, 0, len(parents))
	seen := make(map[types.Hash]struct{}, len(parents))
	for _, p := range parents {
		if p.IsZero() {
			return ErrInvalidInput
		}
		if p == child {
			return ErrInvalidInput
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		parentSet = append(parentSet, p)
	}
	r.Lock()
	defer r.Unlock()
	if _, ok := r.records[child]; !ok {
		return ErrNotFound
	}
	for _, p := range parentSet {
		if _, ok := r.records[p]; !ok {
			return ErrNotFound
		}
	}
	if r.linked[child] {
		return ErrAlreadyLinked
	}
	if r.config.Database != nil {
		edges := make([]models.ProvenanceParent, 0, len(parentSet))
		for _, p := range parentSet {
			edges = append(edges, models.ProvenanceParent{
				ChildHash:  child.Bytes(),
				ParentHash: p.Bytes(),
			})
		}
		err := r.config.Database.SetProvenanceParents(
			child.Bytes(),
			edges,
			nil,
		)
		if err != nil {
			return err
		}
	}
	record := r.records[child]
	record.ParentHashes = parentSet
	r.records[child] = record
	r.linked[child] = true
	for _, p := range parentSet {
		r.childIndex[p] = append(r.childIndex[p], child)
	}
	r.metrics.linksTotal.Inc()
	r.logger.Info(
		"derivation linked",
		"child", child.String(),
		"parents", len(parentSet),
	)
	if r.config.EventBus != nil {
		r.config.EventBus.Publish(
			LinkedEventType,
			event.NewEvent(
				LinkedEventType,
				LinkedEvent{
					Child:   child,
					Parents: slices.Clone(parentSet),
				},
			),
		)
	}
	return nil
}

// GetProvenance returns a copy of the record for a hash
func (r *Registry) GetProvenance(hash types.Hash) (Record, error) {
	r.RLock()
	defer r.RUnlock()
	record, ok := r.records[hash]
	if !ok {
		return Record{}, ErrNotFound
	}
	return record.copy(), nil
}

// AncestryChain returns the full transitive closure of ancestors for a hash.
// Traversal uses an explicit worklist so deep chains cannot exhaust the
// stack; a diamond-shaped DAG yields each ancestor exactly once. The result
// is a point-in-time snapshot.
func (r *Registry) AncestryChain(hash types.Hash) ([]types.Hash, error) {
	r.RLock()
	defer r.RUnlock()
	if _, ok := r.records[hash]; !ok {
		return nil, ErrNotFound
	}
	var ancestry []types.Hash
	visited := map[types.Hash]struct{}{hash: {}}
	worklist := slices.Clone(r.records[hash].ParentHashes)
	for len(worklist) > 0 {
		next := worklist[0]
		worklist = worklist[1:]
		if _, ok := visited[next]; ok {
			continue
		}
		visited[next] = struct{}{}
		ancestry = append(ancestry, next)
		worklist = append(worklist, r.records[next].ParentHashes...)
	}
	return ancestry, nil
}

// ChildHashes returns the reverse index entry for a hash: every registered
// record that lists it as a parent
func (r *Registry) ChildHashes(hash types.Hash) ([]types.Hash, error) {
	r.RLock()
	defer r.RUnlock()
	if _, ok := r.records[hash]; !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(r.childIndex[hash]), nil
}

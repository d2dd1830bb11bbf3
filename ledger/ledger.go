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

package ledger

import (
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/blinklabs-io/lyrebird/access"
	"github.com/blinklabs-io/lyrebird/database"
	"github.com/blinklabs-io/lyrebird/database/models"
	"github.com/blinklabs-io/lyrebird/event"
	"github.com/blinklabs-io/lyrebird/provenance"
	"github.com/blinklabs-io/lyrebird/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	MintedEventType      event.EventType = "ledger.minted"
	TransferredEventType event.EventType = "ledger.transferred"
)

var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrNotFound             = errors.New("asset not found")
	ErrProvenanceNotFound   = errors.New("provenance record not found for asset")
	ErrCollaboratorMismatch = errors.New("collaborator not in provenance record")
)

// Asset is an issued asset and its current ownership state
type Asset struct {
	Owner          types.Principal
	Approved       types.Principal
	TokenURI       string
	ProvenanceHash types.Hash
	ID             types.AssetID
}

type MintedEvent struct {
	Owner          types.Principal
	TokenURI       string
	ProvenanceHash types.Hash
	AssetID        types.AssetID
}

type TransferredEvent struct {
	From    types.Principal
	To      types.Principal
	AssetID types.AssetID
}

type LedgerConfig struct {
	Database     *database.Database
	EventBus     *event.EventBus
	Access       *access.Table
	Provenance   *provenance.Registry
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
}

// Ledger issues assets and tracks ownership. Asset ids are sequential and
// never reused, including across restarts.
type Ledger struct {
	config  LedgerConfig
	assets  map[types.AssetID]Asset
	nextId  types.AssetID
	logger  *slog.Logger
	metrics struct {
		assetsTotal    prometheus.Gauge
		transfersTotal prometheus.Counter
	}
	sync.RWMutex
}

func NewLedger(config LedgerConfig) (*Ledger, error) {
	l := &Ledger{
		config: config,
		assets: make(map[types.AssetID]Asset),
		nextId: 1,
	}
	if config.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		l.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	} else {
		l.logger = config.Logger.With("component", "ledger")
	}
	promautoFactory := promauto.With(config.PromRegistry)
	l.metrics.assetsTotal = promautoFactory.NewGauge(
		prometheus.GaugeOpts{
			Name: "lyrebird_ledger_assets",
			Help: "issued assets",
		},
	)
	l.metrics.transfersTotal = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "lyrebird_ledger_transfers_total",
			Help: "total ownership transfers",
		},
	)
	if config.Database != nil {
		if err := l.load(); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// load seeds in-memory assets from the database at startup. The id counter
// resumes past the highest stored id so ids are never reused.
func (l *Ledger) load() error {
	assets, err := l.config.Database.LoadAssets()
	if err != nil {
		return err
	}
	for _, row := range assets {
		var provenanceHash types.Hash
		if len(row.ProvenanceHash) > 0 {
			provenanceHash, err = types.HashFromBytes(row.ProvenanceHash)
			if err != nil {
				return err
			}
		}
		assetId := types.AssetID(row.AssetID)
		l.assets[assetId] = Asset{
			ID:             assetId,
			Owner:          types.Principal(row.Owner),
			Approved:       types.Principal(row.Approved),
			TokenURI:       row.TokenURI,
			ProvenanceHash: provenanceHash,
		}
		if assetId >= l.nextId {
			l.nextId = assetId + 1
		}
	}
	l.metrics.assetsTotal.Set(float64(len(l.assets)))
	return nil
}

// Mint issues a new asset to an owner. The caller needs the minter role. A
// non-zero provenance hash must reference an existing registry record.
func (l *Ledger) Mint(
	caller types.Principal,
	owner types.Principal,
	tokenURI string,
	provenanceHash types.Hash,
) (types.AssetID, error) {
	return l.mint(caller, owner, tokenURI, provenanceHash, nil)
}

// MintCollaborative issues a new asset whose listed collaborators must each
// appear in the referenced provenance record, either as its creator or in
// its collaborator list
func (l *Ledger) MintCollaborative(
	caller types.Principal,
	owner types.Principal,
	tokenURI string,
	provenanceHash types.Hash,
	collaborators []types.Principal,
) (types.AssetID, error) {
	if provenanceHash.IsZero() || len(collaborators) == 0 {
		return 0, ErrInvalidInput
	}
	return l.mint(caller, owner, tokenURI, provenanceHash, collaborators)
}

func (l *Ledger) mint(
	caller types.Principal,
	owner types.Principal,
	tokenURI string,
	provenanceHash types.Hash,
	collaborators []types.Principal,
) (types.AssetID, error) {
	if l.config.Access != nil {
		if err := l.config.Access.Require(caller, access.RoleMinter); err != nil {
			return 0, err
		}
	}
	if owner.IsZero() {
		return 0, ErrInvalidInput
	}
	if !provenanceHash.IsZero() && l.config.Provenance != nil {
		record, err := l.config.Provenance.GetProvenance(provenanceHash)
		if err != nil {
			return 0, ErrProvenanceNotFound
		}
		for _, collaborator := range collaborators {
			if collaborator != record.Creator &&
				!slices.Contains(record.Collaborators, collaborator) {
				return 0, ErrCollaboratorMismatch
			}
		}
	}
	l.Lock()
	defer l.Unlock()
	assetId := l.nextId
	asset := Asset{
		ID:             assetId,
		Owner:          owner,
		TokenURI:       tokenURI,
		ProvenanceHash: provenanceHash,
	}
	if l.config.Database != nil {
		var hashBytes []byte
		if !provenanceHash.IsZero() {
			hashBytes = provenanceHash.Bytes()
		}
		err := l.config.Database.AddAsset(
			models.Asset{
				AssetID:        uint64(assetId),
				Owner:          owner.String(),
				TokenURI:       tokenURI,
				ProvenanceHash: hashBytes,
			},
			nil,
		)
		if err != nil {
			return 0, err
		}
	}
	l.nextId++
	l.assets[assetId] = asset
	l.metrics.assetsTotal.Inc()
	l.logger.Info(
		"asset minted",
		"asset_id", uint64(assetId),
		"owner", owner.String(),
	)
	if l.config.EventBus != nil {
		l.config.EventBus.Publish(
			MintedEventType,
			event.NewEvent(
				MintedEventType,
				MintedEvent{
					AssetID:        assetId,
					Owner:          owner,
					TokenURI:       tokenURI,
					ProvenanceHash: provenanceHash,
				},
			),
		)
	}
	return assetId, nil
}

// OwnerOf returns the current owner of an asset
func (l *Ledger) OwnerOf(assetId types.AssetID) (types.Principal, error) {
	l.RLock()
	defer l.RUnlock()
	asset, ok := l.assets[assetId]
	if !ok {
		return "", ErrNotFound
	}
	return asset.Owner, nil
}

// Get returns the full asset record
func (l *Ledger) Get(assetId types.AssetID) (Asset, error) {
	l.RLock()
	defer l.RUnlock()
	asset, ok := l.assets[assetId]
	if !ok {
		return Asset{}, ErrNotFound
	}
	return asset, nil
}

// Approve sets the approved operator for an asset. Only the owner may set
// it; a zero operator clears any prior approval.
func (l *Ledger) Approve(
	caller types.Principal,
	assetId types.AssetID,
	operator types.Principal,
) error {
	l.Lock()
	defer l.Unlock()
	asset, ok := l.assets[assetId]
	if !ok {
		return ErrNotFound
	}
	if caller != asset.Owner {
		return access.ErrUnauthorized
	}
	if l.config.Database != nil {
		err := l.config.Database.UpdateAssetOwner(
			uint64(assetId),
			asset.Owner.String(),
			operator.String(),
			nil,
		)
		if err != nil {
			return err
		}
	}
	asset.Approved = operator
	l.assets[assetId] = asset
	return nil
}

// Transfer moves ownership of an asset. The caller must be the owner or the
// approved operator; any approval is cleared by the transfer.
func (l *Ledger) Transfer(
	caller types.Principal,
	assetId types.AssetID,
	to types.Principal,
) error {
	if to.IsZero() {
		return ErrInvalidInput
	}
	l.Lock()
	defer l.Unlock()
	asset, ok := l.assets[assetId]
	if !ok {
		return ErrNotFound
	}
	if caller != asset.Owner &&
		(asset.Approved.IsZero() || caller != asset.Approved) {
		return access.ErrUnauthorized
	}
	if l.config.Database != nil {
		err := l.config.Database.UpdateAssetOwner(
			uint64(assetId),
			to.String(),
			"",
			nil,
		)
		if err != nil {
			return err
		}
	}
	from := asset.Owner
	asset.Owner = to
	asset.Approved = ""
	l.assets[assetId] = asset
	l.metrics.transfersTotal.Inc()
	l.logger.Info(
		"asset transferred",
		"asset_id", uint64(assetId),
		"from", from.String(),
		"to", to.String(),
	)
	if l.config.EventBus != nil {
		l.config.EventBus.Publish(
			TransferredEventType,
			event.NewEvent(
				TransferredEventType,
				TransferredEvent{AssetID: assetId, From: from, To: to},
			),
		)
	}
	return nil
}

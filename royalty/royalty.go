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

package royalty

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/blinklabs-io/lyrebird/access"
	"github.com/blinklabs-io/lyrebird/bank"
	"github.com/blinklabs-io/lyrebird/database"
	"github.com/blinklabs-io/lyrebird/database/models"
	"github.com/blinklabs-io/lyrebird/event"
	"github.com/blinklabs-io/lyrebird/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	ConfiguredEventType event.EventType = "royalty.configured"
	PaidEventType       event.EventType = "royalty.paid"
)

// maxSalePrice bounds prices so bps computations cannot overflow uint64
const maxSalePrice = math.MaxUint64 / types.BpsDenominator

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrNotFound            = errors.New("royalty config not found")
	ErrBoundsExceeded      = errors.New("royalty bps above maximum")
	ErrSharesInvalid       = errors.New("shares must match recipients and sum to 10000")
	ErrInsufficientPayment = errors.New("payment below required royalty")
	ErrReentrant           = errors.New("reentrant call rejected")
)

// Config is an asset's royalty configuration. RoyaltyBps and ParentRoyaltyBps
// are bounded independently; they are not summed against a combined cap.
type Config struct {
	Recipients       []types.Principal
	ShareBps         []uint
	ParentAssetIds   []types.AssetID
	RoyaltyBps       uint
	ParentRoyaltyBps uint
}

func (c Config) copy() Config {
	ret := c
	ret.Recipients = slices.Clone(c.Recipients)
	ret.ShareBps = slices.Clone(c.ShareBps)
	ret.ParentAssetIds = slices.Clone(c.ParentAssetIds)
	return ret
}

// Payout is a single computed royalty obligation
type Payout struct {
	To     types.Principal
	Amount uint64
}

// Breakdown is the full set of obligations due on a sale: the asset's own
// royalty plus any ancestor royalty. Sum(Own) == OwnTotal and
// Sum(Parent) == ParentTotal always hold exactly.
type Breakdown struct {
	Own         []Payout
	Parent      []Payout
	OwnTotal    uint64
	ParentTotal uint64
}

// Required returns the minimum payment that covers every obligation
func (b Breakdown) Required() uint64 {
	return b.OwnTotal + b.ParentTotal
}

type ConfiguredEvent struct {
	AssetID types.AssetID
	Config  Config
}

type PaidEvent struct {
	Payer     types.Principal
	Payouts   []Payout
	AssetID   types.AssetID
	SalePrice uint64
}

type SplitterConfig struct {
	Database     *database.Database
	EventBus     *event.EventBus
	Access       *access.Table
	Bank         *bank.Bank
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
}

// Splitter owns per-asset royalty configurations and performs atomic royalty
// distribution through the bank
type Splitter struct {
	config  SplitterConfig
	configs map[types.AssetID]Config
	logger  *slog.Logger
	busy    atomic.Bool
	metrics struct {
		configsTotal prometheus.Gauge
		payoutsTotal prometheus.Counter
		paidVolume   prometheus.Counter
	}
	sync.RWMutex
}

func NewSplitter(config SplitterConfig) (*Splitter, error) {
	s := &Splitter{
		config:  config,
		configs: make(map[types.AssetID]Config),
	}
	if config.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		s.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	} else {
		s.logger = config.Logger.With("component", "royalty")
	}
	promautoFactory := promauto.With(config.PromRegistry)
	s.metrics.configsTotal = promautoFactory.NewGauge(
		prometheus.GaugeOpts{
			Name: "lyrebird_royalty_configs",
			Help: "configured royalty assets",
		},
	)
	s.metrics.payoutsTotal = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "lyrebird_royalty_payouts_total",
			Help: "total royalty distribution operations",
		},
	)
	s.metrics.paidVolume = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "lyrebird_royalty_paid_volume_total",
			Help: "total value distributed as royalties",
		},
	)
	if config.Database != nil {
		if err := s.load(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// load seeds in-memory configs from the database at startup
func (s *Splitter) load() error {
	configs, recipients, parents, err := s.config.Database.LoadRoyaltyConfigs()
	if err != nil {
		return err
	}
	assetByConfigId := make(map[uint]types.AssetID)
	loaded := make(map[types.AssetID]Config)
	for _, row := range configs {
		assetId := types.AssetID(row.AssetID)
		assetByConfigId[row.ID] = assetId
		loaded[assetId] = Config{
			RoyaltyBps:       row.RoyaltyBps,
			ParentRoyaltyBps: row.ParentRoyaltyBps,
		}
	}
	for _, row := range recipients {
		assetId, ok := assetByConfigId[row.ConfigID]
		if !ok {
			return ErrNotFound
		}
		cfg := loaded[assetId]
		cfg.Recipients = append(cfg.Recipients, types.Principal(row.Principal))
		cfg.ShareBps = append(cfg.ShareBps, row.ShareBps)
		loaded[assetId] = cfg
	}
	for _, row := range parents {
		assetId, ok := assetByConfigId[row.ConfigID]
		if !ok {
			return ErrNotFound
		}
		cfg := loaded[assetId]
		cfg.ParentAssetIds = append(
			cfg.ParentAssetIds,
			types.AssetID(row.ParentAssetID),
		)
		loaded[assetId] = cfg
	}
	s.configs = loaded
	s.metrics.configsTotal.Set(float64(len(loaded)))
	return nil
}

// SetRoyalty configures the royalty for an asset, replacing any prior
// configuration. Restricted to configurators.
func (s *Splitter) SetRoyalty(
	caller types.Principal,
	assetId types.AssetID,
	recipients []types.Principal,
	shareBps []uint,
	royaltyBps uint,
) error {
	return s.setRoyalty(caller, assetId, Config{
		Recipients: slices.Clone(recipients),
		ShareBps:   slices.Clone(shareBps),
		RoyaltyBps: royaltyBps,
	})
}

// SetRoyaltyWithParents additionally records an ancestor obligation owed to
// the listed parent assets on every resale. Every parent asset must already
// have its own royalty configuration, since parent payouts are distributed
// to the parent's recipients.
func (s *Splitter) SetRoyaltyWithParents(
	caller types.Principal,
	assetId types.AssetID,
	recipients []types.Principal,
	shareBps []uint,
	royaltyBps uint,
	parentAssetIds []types.AssetID,
	parentRoyaltyBps uint,
) error {
	if len(parentAssetIds) == 0 {
		return ErrInvalidInput
	}
	return s.setRoyalty(caller, assetId, Config{
		Recipients:       slices.Clone(recipients),
		ShareBps:         slices.Clone(shareBps),
		RoyaltyBps:       royaltyBps,
		ParentAssetIds:   slices.Clone(parentAssetIds),
		ParentRoyaltyBps: parentRoyaltyBps,
	})
}

func (s *Splitter) setRoyalty(
	caller types.Principal,
	assetId types.AssetID,
	cfg Config,
) error {
	if s.config.Access != nil {
		if err := s.config.Access.Require(caller, access.RoleConfigurator); err != nil {
			return err
		}
	}
	if cfg.RoyaltyBps > types.MaxRoyaltyBps ||
		cfg.ParentRoyaltyBps > types.MaxRoyaltyBps {
		return ErrBoundsExceeded
	}
	if len(cfg.Recipients) == 0 ||
		len(cfg.Recipients) != len(cfg.ShareBps) {
		return ErrSharesInvalid
	}
	var shareSum uint
	for _, share := range cfg.ShareBps {
		// No single share may exceed the denominator; unbounded shares
		// could wrap the running sum back to a valid value
		if share > types.BpsDenominator {
			return ErrSharesInvalid
		}
		shareSum += share
	}
	if shareSum != types.BpsDenominator {
		return ErrSharesInvalid
	}
	for _, recipient := range cfg.Recipients {
		if recipient.IsZero() {
			return ErrInvalidInput
		}
	}
	for _, parent := range cfg.ParentAssetIds {
		if parent == assetId {
			return ErrInvalidInput
		}
	}
	s.Lock()
	defer s.Unlock()
	for _, parent := range cfg.ParentAssetIds {
		if _, ok := s.configs[parent]; !ok {
			return ErrNotFound
		}
	}
	if s.config.Database != nil {
		recipientRows := make(
			[]models.RoyaltyRecipient,
			0,
			len(cfg.Recipients),
		)
		for i, recipient := range cfg.Recipients {
			recipientRows = append(recipientRows, models.RoyaltyRecipient{
				Principal: recipient.String(),
				ShareBps:  cfg.ShareBps[i],
				Idx:       i,
			})
		}
		parentRows := make([]models.RoyaltyParent, 0, len(cfg.ParentAssetIds))
		for i, parent := range cfg.ParentAssetIds {
			parentRows = append(parentRows, models.RoyaltyParent{
				ParentAssetID: uint64(parent),
				Idx:           i,
			})
		}
		err := s.config.Database.SetRoyaltyConfig(
			models.RoyaltyConfig{
				AssetID:          uint64(assetId),
				RoyaltyBps:       cfg.RoyaltyBps,
				ParentRoyaltyBps: cfg.ParentRoyaltyBps,
				HasParents:       len(cfg.ParentAssetIds) > 0,
			},
			recipientRows,
			parentRows,
			nil,
		)
		if err != nil {
			return err
		}
	}
	if _, exists := s.configs[assetId]; !exists {
		s.metrics.configsTotal.Inc()
	}
	s.configs[assetId] = cfg
	s.logger.Info(
		"royalty configured",
		"asset_id", uint64(assetId),
		"royalty_bps", cfg.RoyaltyBps,
		"parents", len(cfg.ParentAssetIds),
	)
	if s.config.EventBus != nil {
		s.config.EventBus.Publish(
			ConfiguredEventType,
			event.NewEvent(
				ConfiguredEventType,
				ConfiguredEvent{AssetID: assetId, Config: cfg.copy()},
			),
		)
	}
	return nil
}

// GetRoyaltyConfig returns a copy of an asset's royalty configuration
func (s *Splitter) GetRoyaltyConfig(assetId types.AssetID) (Config, error) {
	s.RLock()
	defer s.RUnlock()
	cfg, ok := s.configs[assetId]
	if !ok {
		return Config{}, ErrNotFound
	}
	return cfg.copy(), nil
}

// HasConfig reports whether an asset has a royalty configuration
func (s *Splitter) HasConfig(assetId types.AssetID) bool {
	s.RLock()
	defer s.RUnlock()
	_, ok := s.configs[assetId]
	return ok
}

// splitByShares distributes total across recipients proportionally to their
// bps shares. The last recipient absorbs the integer-division remainder so
// the distributed sum always equals total exactly.
func splitByShares(
	total uint64,
	recipients []types.Principal,
	shareBps []uint,
) []Payout {
	payouts := make([]Payout, 0, len(recipients))
	var distributed uint64
	for i, recipient := range recipients {
		var amount uint64
		if i == len(recipients)-1 {
			amount = total - distributed
		} else {
			amount = total * uint64(shareBps[i]) / types.BpsDenominator
			distributed += amount
		}
		payouts = append(payouts, Payout{To: recipient, Amount: amount})
	}
	return payouts
}

// splitEvenly distributes total across n slots, with the last slot absorbing
// the remainder
func splitEvenly(total uint64, n int) []uint64 {
	slots := make([]uint64, n)
	each := total / uint64(n)
	var distributed uint64
	for i := range slots {
		if i == n-1 {
			slots[i] = total - distributed
		} else {
			slots[i] = each
			distributed += each
		}
	}
	return slots
}

// RoyaltyInfo computes the asset's own royalty obligation for a sale price.
// Pure computation; no state changes.
func (s *Splitter) RoyaltyInfo(
	assetId types.AssetID,
	salePrice uint64,
) ([]Payout, uint64, error) {
	s.RLock()
	defer s.RUnlock()
	cfg, ok := s.configs[assetId]
	if !ok {
		return nil, 0, ErrNotFound
	}
	if salePrice > maxSalePrice {
		return nil, 0, ErrInvalidInput
	}
	total := salePrice * uint64(cfg.RoyaltyBps) / types.BpsDenominator
	return splitByShares(total, cfg.Recipients, cfg.ShareBps), total, nil
}

// CompleteRoyaltyInfo computes the full obligation for a sale: the asset's
// own royalty plus the ancestor royalty. The ancestor total is split evenly
// across parent assets and each parent's slice is distributed to that
// parent's configured recipients by their own shares.
func (s *Splitter) CompleteRoyaltyInfo(
	assetId types.AssetID,
	salePrice uint64,
) (Breakdown, error) {
	s.RLock()
	defer s.RUnlock()
	return s.completeRoyaltyInfo(assetId, salePrice)
}

// completeRoyaltyInfo assumes the caller holds at least a read lock
func (s *Splitter) completeRoyaltyInfo(
	assetId types.AssetID,
	salePrice uint64,
) (Breakdown, error) {
	cfg, ok := s.configs[assetId]
	if !ok {
		return Breakdown{}, ErrNotFound
	}
	if salePrice > maxSalePrice {
		return Breakdown{}, ErrInvalidInput
	}
	breakdown := Breakdown{
		OwnTotal: salePrice * uint64(cfg.RoyaltyBps) / types.BpsDenominator,
	}
	breakdown.Own = splitByShares(
		breakdown.OwnTotal,
		cfg.Recipients,
		cfg.ShareBps,
	)
	if len(cfg.ParentAssetIds) > 0 {
		breakdown.ParentTotal = salePrice * uint64(cfg.ParentRoyaltyBps) / types.BpsDenominator
		slots := splitEvenly(breakdown.ParentTotal, len(cfg.ParentAssetIds))
		for i, parent := range cfg.ParentAssetIds {
			parentCfg, ok := s.configs[parent]
			if !ok {
				return Breakdown{}, ErrNotFound
			}
			breakdown.Parent = append(
				breakdown.Parent,
				splitByShares(
					slots[i],
					parentCfg.Recipients,
					parentCfg.ShareBps,
				)...,
			)
		}
	}
	return breakdown, nil
}

// ProcessRoyalty collects a royalty payment from the caller and distributes
// it to every configured recipient atomically. Payment must cover the full
// obligation; any excess stays with the caller. Distribution state is final
// before any receipt hook runs, and a single-entry guard rejects reentrant
// calls outright.
func (s *Splitter) ProcessRoyalty(
	caller types.Principal,
	assetId types.AssetID,
	salePrice uint64,
	payment uint64,
) (Breakdown, error) {
	if s.config.Bank == nil {
		return Breakdown{}, errors.New("no bank configured")
	}
	if caller.IsZero() {
		return Breakdown{}, ErrInvalidInput
	}
	if !s.busy.CompareAndSwap(false, true) {
		return Breakdown{}, ErrReentrant
	}
	defer s.busy.Store(false)
	s.Lock()
	breakdown, err := s.completeRoyaltyInfo(assetId, salePrice)
	if err != nil {
		s.Unlock()
		return Breakdown{}, err
	}
	if payment < breakdown.Required() {
		s.Unlock()
		return Breakdown{}, ErrInsufficientPayment
	}
	if payment == 0 {
		// Zero-bps config with no payment attached; nothing moves, but
		// the operation still publishes its event so indexers see every
		// completed distribution
		s.metrics.payoutsTotal.Inc()
		s.Unlock()
		s.publishPaid(assetId, caller, salePrice, breakdown)
		return breakdown, nil
	}
	hold, err := s.config.Bank.NewHold(caller, payment)
	if err != nil {
		s.Unlock()
		return Breakdown{}, err
	}
	payments := make(
		[]bank.Payment,
		0,
		len(breakdown.Own)+len(breakdown.Parent),
	)
	for _, payout := range breakdown.Own {
		payments = append(
			payments,
			bank.Payment{To: payout.To, Amount: payout.Amount},
		)
	}
	for _, payout := range breakdown.Parent {
		payments = append(
			payments,
			bank.Payment{To: payout.To, Amount: payout.Amount},
		)
	}
	s.metrics.payoutsTotal.Inc()
	s.metrics.paidVolume.Add(float64(breakdown.Required()))
	s.logger.Info(
		"royalty paid",
		"asset_id", uint64(assetId),
		"payer", caller.String(),
		"amount", breakdown.Required(),
	)
	// Release the lock before settling so receipt hooks observe final
	// state without deadlocking
	s.Unlock()
	if err := hold.Settle(payments...); err != nil {
		return Breakdown{}, err
	}
	s.publishPaid(assetId, caller, salePrice, breakdown)
	return breakdown, nil
}

func (s *Splitter) publishPaid(
	assetId types.AssetID,
	payer types.Principal,
	salePrice uint64,
	breakdown Breakdown,
) {
	if s.config.EventBus == nil {
		return
	}
	allPayouts := make(
		[]Payout,
		0,
		len(breakdown.Own)+len(breakdown.Parent),
	)
	allPayouts = append(allPayouts, breakdown.Own...)
	allPayouts = append(allPayouts, breakdown.Parent...)
	s.config.EventBus.Publish(
		PaidEventType,
		event.NewEvent(
			PaidEventType,
			PaidEvent{
				AssetID:   assetId,
				Payer:     payer,
				SalePrice: salePrice,
				Payouts:   allPayouts,
			},
		),
	)
}

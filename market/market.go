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

package market

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blinklabs-io/lyrebird/access"
	"github.com/blinklabs-io/lyrebird/bank"
	"github.com/blinklabs-io/lyrebird/database"
	"github.com/blinklabs-io/lyrebird/database/models"
	"github.com/blinklabs-io/lyrebird/event"
	"github.com/blinklabs-io/lyrebird/ledger"
	"github.com/blinklabs-io/lyrebird/royalty"
	"github.com/blinklabs-io/lyrebird/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	ListedEventType         event.EventType = "market.listed"
	CancelledEventType      event.EventType = "market.cancelled"
	SoldEventType           event.EventType = "market.sold"
	AuctionCreatedEventType event.EventType = "market.auction_created"
	BidEventType            event.EventType = "market.bid"
	SettledEventType        event.EventType = "market.settled"
)

const (
	// MaxFeeBps caps the marketplace fee at 10%
	MaxFeeBps = 1_000
	// DefaultPrincipal is the identity the marketplace uses to hold
	// transfer approvals
	DefaultPrincipal = types.Principal("marketplace")
)

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrInvalidPrice        = errors.New("price must be non-zero")
	ErrNotOwner            = errors.New("caller is not the owner or seller")
	ErrNotListed           = errors.New("no active listing for asset")
	ErrAlreadyListed       = errors.New("asset already has an active listing or auction")
	ErrInsufficientPayment = errors.New("payment below listed price")
	ErrAuctionNotActive    = errors.New("no active auction for asset")
	ErrAuctionStillActive  = errors.New("auction has not ended")
	ErrBidTooLow           = errors.New("bid not above current highest")
	ErrBoundsExceeded      = errors.New("fee bps above maximum")
	ErrPaused              = errors.New("marketplace is paused")
	ErrReentrant           = errors.New("reentrant call rejected")
)

// Listing is an active or completed direct-sale offer
type Listing struct {
	Seller  types.Principal
	Price   uint64
	AssetID types.AssetID
	Active  bool
}

// Auction is a timed auction. The highest bid is escrowed in the bank until
// the auction is settled or the bidder is outbid.
type Auction struct {
	EndTime       time.Time
	Seller        types.Principal
	HighestBidder types.Principal
	StartPrice    uint64
	HighestBid    uint64
	AssetID       types.AssetID
	Active        bool
	Settled       bool
}

type ListedEvent struct {
	Seller  types.Principal
	Price   uint64
	AssetID types.AssetID
}

type CancelledEvent struct {
	Seller  types.Principal
	AssetID types.AssetID
}

type SoldEvent struct {
	Seller types.Principal
	Buyer  types.Principal
	// Royalty is the combined own and ancestor royalty paid out of the
	// sale price
	Price   uint64
	Royalty uint64
	Fee     uint64
	AssetID types.AssetID
}

type AuctionCreatedEvent struct {
	EndTime    time.Time
	Seller     types.Principal
	StartPrice uint64
	AssetID    types.AssetID
}

type BidEvent struct {
	Bidder  types.Principal
	Amount  uint64
	AssetID types.AssetID
}

// SettledEvent is published for every settlement; Winner is zero when the
// auction ended without bids
type SettledEvent struct {
	Seller  types.Principal
	Winner  types.Principal
	Amount  uint64
	AssetID types.AssetID
}

type MarketplaceConfig struct {
	Database     *database.Database
	EventBus     *event.EventBus
	Access       *access.Table
	Bank         *bank.Bank
	Ledger       *ledger.Ledger
	Royalty      *royalty.Splitter
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
	Clock        func() time.Time
	// Principal identifies the marketplace itself; it holds the transfer
	// approval granted when an asset is listed
	Principal    types.Principal
	FeeRecipient types.Principal
	FeeBps       uint
}

// Marketplace runs direct sales and timed auctions over ledger assets. Every
// sale settles royalty, fee, and seller proceeds out of a single escrowed
// payment; either the whole settlement lands or nothing moves.
type Marketplace struct {
	config    MarketplaceConfig
	listings  map[types.AssetID]Listing
	auctions  map[types.AssetID]Auction
	bidHolds  map[types.AssetID]*bank.Hold
	feeBps    uint
	feeTo     types.Principal
	paused    bool
	clock     func() time.Time
	principal types.Principal
	logger    *slog.Logger
	busy      atomic.Bool
	metrics   struct {
		listingsActive prometheus.Gauge
		auctionsActive prometheus.Gauge
		salesTotal     prometheus.Counter
		saleVolume     prometheus.Counter
		bidsTotal      prometheus.Counter
	}
	sync.RWMutex
}

func NewMarketplace(config MarketplaceConfig) (*Marketplace, error) {
	if config.Bank == nil || config.Ledger == nil {
		return nil, errors.New("bank and ledger are required")
	}
	if config.FeeBps > MaxFeeBps {
		return nil, ErrBoundsExceeded
	}
	m := &Marketplace{
		config:    config,
		listings:  make(map[types.AssetID]Listing),
		auctions:  make(map[types.AssetID]Auction),
		bidHolds:  make(map[types.AssetID]*bank.Hold),
		feeBps:    config.FeeBps,
		feeTo:     config.FeeRecipient,
		clock:     config.Clock,
		principal: config.Principal,
	}
	if m.clock == nil {
		m.clock = time.Now
	}
	if m.principal.IsZero() {
		m.principal = DefaultPrincipal
	}
	if config.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		m.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	} else {
		m.logger = config.Logger.With("component", "market")
	}
	promautoFactory := promauto.With(config.PromRegistry)
	m.metrics.listingsActive = promautoFactory.NewGauge(
		prometheus.GaugeOpts{
			Name: "lyrebird_market_listings_active",
			Help: "currently active listings",
		},
	)
	m.metrics.auctionsActive = promautoFactory.NewGauge(
		prometheus.GaugeOpts{
			Name: "lyrebird_market_auctions_active",
			Help: "currently active auctions",
		},
	)
	m.metrics.salesTotal = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "lyrebird_market_sales_total",
			Help: "total completed sales including auction settlements",
		},
	)
	m.metrics.saleVolume = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "lyrebird_market_sale_volume_total",
			Help: "total value of completed sales",
		},
	)
	m.metrics.bidsTotal = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "lyrebird_market_bids_total",
			Help: "total accepted bids",
		},
	)
	if config.Database != nil {
		if err := m.load(); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// load restores settings, listings, and auctions from the database at
// startup. Escrow for the highest bid of each active auction is restored
// without touching balances; the persisted balances already reflect the
// original debit.
func (m *Marketplace) load() error {
	settings, err := m.config.Database.LoadMarketSettings()
	if err != nil {
		return err
	}
	if settings != nil {
		m.feeBps = settings.FeeBps
		m.feeTo = types.Principal(settings.FeeRecipient)
		m.paused = settings.Paused
	}
	listings, err := m.config.Database.LoadListings()
	if err != nil {
		return err
	}
	for _, row := range listings {
		assetId := types.AssetID(row.AssetID)
		m.listings[assetId] = Listing{
			AssetID: assetId,
			Seller:  types.Principal(row.Seller),
			Price:   row.Price,
			Active:  row.Active,
		}
		if row.Active {
			m.metrics.listingsActive.Inc()
		}
	}
	auctions, err := m.config.Database.LoadAuctions()
	if err != nil {
		return err
	}
	for _, row := range auctions {
		assetId := types.AssetID(row.AssetID)
		auction := Auction{
			AssetID:       assetId,
			Seller:        types.Principal(row.Seller),
			StartPrice:    row.StartPrice,
			EndTime:       row.EndTime,
			HighestBid:    row.HighestBid,
			HighestBidder: types.Principal(row.HighestBidder),
			Active:        row.Active,
			Settled:       row.Settled,
		}
		m.auctions[assetId] = auction
		if auction.Active {
			m.metrics.auctionsActive.Inc()
			if !auction.HighestBidder.IsZero() {
				hold, err := m.config.Bank.RestoreHold(
					auction.HighestBidder,
					auction.HighestBid,
				)
				if err != nil {
					return err
				}
				m.bidHolds[assetId] = hold
			}
		}
	}
	return nil
}

func (m *Marketplace) requireUnpaused() error {
	m.RLock()
	defer m.RUnlock()
	if m.paused {
		return ErrPaused
	}
	return nil
}

// hasActiveEntry reports whether the asset already has an active listing or
// auction. Caller must hold the lock.
func (m *Marketplace) hasActiveEntry(assetId types.AssetID) bool {
	if listing, ok := m.listings[assetId]; ok && listing.Active {
		return true
	}
	if auction, ok := m.auctions[assetId]; ok && auction.Active {
		return true
	}
	return false
}

// ListForSale creates an active listing for an asset. Only the current owner
// may list, and listing grants the marketplace a transfer approval so the
// eventual sale can move ownership.
func (m *Marketplace) ListForSale(
	seller types.Principal,
	assetId types.AssetID,
	price uint64,
) error {
	if err := m.requireUnpaused(); err != nil {
		return err
	}
	if price == 0 {
		return ErrInvalidPrice
	}
	owner, err := m.config.Ledger.OwnerOf(assetId)
	if err != nil {
		return err
	}
	if owner != seller {
		return ErrNotOwner
	}
	m.Lock()
	defer m.Unlock()
	if m.hasActiveEntry(assetId) {
		return ErrAlreadyListed
	}
	if err := m.config.Ledger.Approve(seller, assetId, m.principal); err != nil {
		return err
	}
	listing := Listing{
		AssetID: assetId,
		Seller:  seller,
		Price:   price,
		Active:  true,
	}
	if m.config.Database != nil {
		err := m.config.Database.SetListing(models.Listing{
			AssetID: uint64(assetId),
			Seller:  seller.String(),
			Price:   price,
			Active:  true,
		}, nil)
		if err != nil {
			return err
		}
	}
	m.listings[assetId] = listing
	m.metrics.listingsActive.Inc()
	m.logger.Info(
		"asset listed",
		"asset_id", uint64(assetId),
		"seller", seller.String(),
		"price", price,
	)
	m.publish(ListedEventType, ListedEvent{
		AssetID: assetId,
		Seller:  seller,
		Price:   price,
	})
	return nil
}

// CancelListing deactivates a listing. Restricted to the listing's seller.
func (m *Marketplace) CancelListing(
	seller types.Principal,
	assetId types.AssetID,
) error {
	if err := m.requireUnpaused(); err != nil {
		return err
	}
	m.Lock()
	defer m.Unlock()
	listing, ok := m.listings[assetId]
	if !ok || !listing.Active {
		return ErrNotListed
	}
	if listing.Seller != seller {
		return ErrNotOwner
	}
	listing.Active = false
	if m.config.Database != nil {
		err := m.config.Database.SetListing(models.Listing{
			AssetID: uint64(assetId),
			Seller:  listing.Seller.String(),
			Price:   listing.Price,
			Active:  false,
		}, nil)
		if err != nil {
			return err
		}
	}
	m.listings[assetId] = listing
	m.metrics.listingsActive.Dec()
	// Return the transfer approval if the seller still owns the asset
	if owner, err := m.config.Ledger.OwnerOf(assetId); err == nil &&
		owner == seller {
		_ = m.config.Ledger.Approve(seller, assetId, "")
	}
	m.publish(CancelledEventType, CancelledEvent{
		AssetID: assetId,
		Seller:  seller,
	})
	return nil
}

// saleProceeds computes the royalty breakdown, fee, and seller remainder for
// a sale price. An asset without a royalty configuration owes no royalty.
func (m *Marketplace) saleProceeds(
	assetId types.AssetID,
	price uint64,
) (royalty.Breakdown, uint64, uint64, error) {
	var breakdown royalty.Breakdown
	if m.config.Royalty != nil {
		var err error
		breakdown, err = m.config.Royalty.CompleteRoyaltyInfo(assetId, price)
		if err != nil && !errors.Is(err, royalty.ErrNotFound) {
			return royalty.Breakdown{}, 0, 0, err
		}
	}
	var fee uint64
	if !m.feeTo.IsZero() {
		fee = price * uint64(m.feeBps) / types.BpsDenominator
	}
	royaltyTotal := breakdown.Required()
	if royaltyTotal+fee > price {
		return royalty.Breakdown{}, 0, 0, ErrInvalidInput
	}
	return breakdown, fee, price - royaltyTotal - fee, nil
}

// settlePayments assembles the full payment set for a sale
func settlePayments(
	breakdown royalty.Breakdown,
	fee uint64,
	feeTo types.Principal,
	proceeds uint64,
	seller types.Principal,
) []bank.Payment {
	payments := make(
		[]bank.Payment,
		0,
		len(breakdown.Own)+len(breakdown.Parent)+2,
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
	if fee > 0 {
		payments = append(payments, bank.Payment{To: feeTo, Amount: fee})
	}
	payments = append(payments, bank.Payment{To: seller, Amount: proceeds})
	return payments
}

// Buy purchases a listed asset. Royalty, fee, seller proceeds, ownership
// transfer, and listing deactivation land as one unit; on any failure the
// listing stays active and the buyer keeps their funds. Excess payment never
// leaves the buyer.
func (m *Marketplace) Buy(
	buyer types.Principal,
	assetId types.AssetID,
	payment uint64,
) error {
	if !m.busy.CompareAndSwap(false, true) {
		return ErrReentrant
	}
	defer m.busy.Store(false)
	if err := m.requireUnpaused(); err != nil {
		return err
	}
	if buyer.IsZero() {
		return ErrInvalidInput
	}
	m.Lock()
	listing, ok := m.listings[assetId]
	if !ok || !listing.Active {
		m.Unlock()
		return ErrNotListed
	}
	if payment < listing.Price {
		m.Unlock()
		return ErrInsufficientPayment
	}
	breakdown, fee, proceeds, err := m.saleProceeds(assetId, listing.Price)
	if err != nil {
		m.Unlock()
		return err
	}
	hold, err := m.config.Bank.NewHold(buyer, payment)
	if err != nil {
		m.Unlock()
		return err
	}
	err = m.config.Ledger.Transfer(m.principal, assetId, buyer)
	if err != nil {
		_ = hold.Release()
		m.Unlock()
		return err
	}
	listing.Active = false
	if m.config.Database != nil {
		err := m.config.Database.SetListing(models.Listing{
			AssetID: uint64(assetId),
			Seller:  listing.Seller.String(),
			Price:   listing.Price,
			Active:  false,
		}, nil)
		if err != nil {
			m.logger.Error(
				"failed to persist listing deactivation",
				"asset_id", uint64(assetId),
				"error", err,
			)
		}
	}
	m.listings[assetId] = listing
	m.metrics.listingsActive.Dec()
	m.metrics.salesTotal.Inc()
	m.metrics.saleVolume.Add(float64(listing.Price))
	m.logger.Info(
		"asset sold",
		"asset_id", uint64(assetId),
		"seller", listing.Seller.String(),
		"buyer", buyer.String(),
		"price", listing.Price,
	)
	feeTo := m.feeTo
	// Release the lock before settlement so receipt hooks observe final
	// state without deadlocking
	m.Unlock()
	err = hold.Settle(settlePayments(
		breakdown,
		fee,
		feeTo,
		proceeds,
		listing.Seller,
	)...)
	if err != nil {
		return err
	}
	m.publish(SoldEventType, SoldEvent{
		AssetID: assetId,
		Seller:  listing.Seller,
		Buyer:   buyer,
		Price:   listing.Price,
		Royalty: breakdown.Required(),
		Fee:     fee,
	})
	return nil
}

// CreateAuction opens a timed auction for an asset. Only the current owner
// may create one.
func (m *Marketplace) CreateAuction(
	seller types.Principal,
	assetId types.AssetID,
	startPrice uint64,
	duration time.Duration,
) error {
	if err := m.requireUnpaused(); err != nil {
		return err
	}
	if startPrice == 0 {
		return ErrInvalidPrice
	}
	if duration <= 0 {
		return ErrInvalidInput
	}
	owner, err := m.config.Ledger.OwnerOf(assetId)
	if err != nil {
		return err
	}
	if owner != seller {
		return ErrNotOwner
	}
	m.Lock()
	defer m.Unlock()
	if m.hasActiveEntry(assetId) {
		return ErrAlreadyListed
	}
	if err := m.config.Ledger.Approve(seller, assetId, m.principal); err != nil {
		return err
	}
	auction := Auction{
		AssetID:    assetId,
		Seller:     seller,
		StartPrice: startPrice,
		EndTime:    m.clock().Add(duration),
		Active:     true,
	}
	if m.config.Database != nil {
		if err := m.persistAuction(auction); err != nil {
			return err
		}
	}
	m.auctions[assetId] = auction
	m.metrics.auctionsActive.Inc()
	m.logger.Info(
		"auction created",
		"asset_id", uint64(assetId),
		"seller", seller.String(),
		"start_price", startPrice,
	)
	m.publish(AuctionCreatedEventType, AuctionCreatedEvent{
		AssetID:    assetId,
		Seller:     seller,
		StartPrice: startPrice,
		EndTime:    auction.EndTime,
	})
	return nil
}

func (m *Marketplace) persistAuction(auction Auction) error {
	return m.config.Database.SetAuction(models.Auction{
		AssetID:       uint64(auction.AssetID),
		Seller:        auction.Seller.String(),
		StartPrice:    auction.StartPrice,
		EndTime:       auction.EndTime,
		HighestBid:    auction.HighestBid,
		HighestBidder: auction.HighestBidder.String(),
		Active:        auction.Active,
		Settled:       auction.Settled,
	}, nil)
}

// Bid places a bid on an active auction. The bid amount is escrowed; when
// outbid, the previous highest bidder is refunded in the same step that
// records the new bid.
func (m *Marketplace) Bid(
	bidder types.Principal,
	assetId types.AssetID,
	amount uint64,
) error {
	if !m.busy.CompareAndSwap(false, true) {
		return ErrReentrant
	}
	defer m.busy.Store(false)
	if err := m.requireUnpaused(); err != nil {
		return err
	}
	if bidder.IsZero() {
		return ErrInvalidInput
	}
	m.Lock()
	defer m.Unlock()
	auction, ok := m.auctions[assetId]
	if !ok || !auction.Active {
		return ErrAuctionNotActive
	}
	if !m.clock().Before(auction.EndTime) {
		return ErrAuctionNotActive
	}
	if auction.HighestBidder.IsZero() {
		if amount < auction.StartPrice {
			return ErrBidTooLow
		}
	} else if amount <= auction.HighestBid {
		return ErrBidTooLow
	}
	hold, err := m.config.Bank.NewHold(bidder, amount)
	if err != nil {
		return err
	}
	previous := auction.HighestBidder
	auction.HighestBid = amount
	auction.HighestBidder = bidder
	if m.config.Database != nil {
		if err := m.persistAuction(auction); err != nil {
			_ = hold.Release()
			return err
		}
	}
	// Refund the outbid bidder by releasing their escrow
	if prevHold, ok := m.bidHolds[assetId]; ok {
		_ = prevHold.Release()
	}
	m.bidHolds[assetId] = hold
	m.auctions[assetId] = auction
	m.metrics.bidsTotal.Inc()
	m.logger.Info(
		"bid accepted",
		"asset_id", uint64(assetId),
		"bidder", bidder.String(),
		"amount", amount,
		"outbid", previous.String(),
	)
	m.publish(BidEventType, BidEvent{
		AssetID: assetId,
		Bidder:  bidder,
		Amount:  amount,
	})
	return nil
}

// SettleAuction finalizes an ended auction. With a winner, the escrowed
// highest bid settles royalty, fee, and seller proceeds and ownership moves
// to the winner; without bids the auction simply closes and the seller keeps
// the asset. Callable by anyone once the end time has passed.
func (m *Marketplace) SettleAuction(assetId types.AssetID) error {
	if !m.busy.CompareAndSwap(false, true) {
		return ErrReentrant
	}
	defer m.busy.Store(false)
	if err := m.requireUnpaused(); err != nil {
		return err
	}
	m.Lock()
	auction, ok := m.auctions[assetId]
	if !ok || !auction.Active || auction.Settled {
		m.Unlock()
		return ErrAuctionNotActive
	}
	if m.clock().Before(auction.EndTime) {
		m.Unlock()
		return ErrAuctionStillActive
	}
	if auction.HighestBidder.IsZero() {
		// No bids: close out with no transfer and no funds movement
		auction.Active = false
		auction.Settled = true
		if m.config.Database != nil {
			if err := m.persistAuction(auction); err != nil {
				m.Unlock()
				return err
			}
		}
		m.auctions[assetId] = auction
		m.metrics.auctionsActive.Dec()
		if owner, err := m.config.Ledger.OwnerOf(assetId); err == nil &&
			owner == auction.Seller {
			_ = m.config.Ledger.Approve(auction.Seller, assetId, "")
		}
		m.Unlock()
		m.publish(SettledEventType, SettledEvent{
			AssetID: assetId,
			Seller:  auction.Seller,
		})
		return nil
	}
	breakdown, fee, proceeds, err := m.saleProceeds(
		assetId,
		auction.HighestBid,
	)
	if err != nil {
		m.Unlock()
		return err
	}
	hold, ok := m.bidHolds[assetId]
	if !ok {
		m.Unlock()
		return errors.New("missing escrow for auction")
	}
	err = m.config.Ledger.Transfer(
		m.principal,
		assetId,
		auction.HighestBidder,
	)
	if err != nil {
		m.Unlock()
		return err
	}
	auction.Active = false
	auction.Settled = true
	if m.config.Database != nil {
		if err := m.persistAuction(auction); err != nil {
			m.logger.Error(
				"failed to persist auction settlement",
				"asset_id", uint64(assetId),
				"error", err,
			)
		}
	}
	m.auctions[assetId] = auction
	delete(m.bidHolds, assetId)
	m.metrics.auctionsActive.Dec()
	m.metrics.salesTotal.Inc()
	m.metrics.saleVolume.Add(float64(auction.HighestBid))
	m.logger.Info(
		"auction settled",
		"asset_id", uint64(assetId),
		"seller", auction.Seller.String(),
		"winner", auction.HighestBidder.String(),
		"amount", auction.HighestBid,
	)
	feeTo := m.feeTo
	m.Unlock()
	err = hold.Settle(settlePayments(
		breakdown,
		fee,
		feeTo,
		proceeds,
		auction.Seller,
	)...)
	if err != nil {
		return err
	}
	m.publish(SettledEventType, SettledEvent{
		AssetID: assetId,
		Seller:  auction.Seller,
		Winner:  auction.HighestBidder,
		Amount:  auction.HighestBid,
	})
	return nil
}

// SetFee updates the marketplace fee. Restricted to admins; capped at
// MaxFeeBps.
func (m *Marketplace) SetFee(caller types.Principal, bps uint) error {
	if m.config.Access != nil {
		if err := m.config.Access.Require(caller, access.RoleAdmin); err != nil {
			return err
		}
	}
	if bps > MaxFeeBps {
		return ErrBoundsExceeded
	}
	m.Lock()
	defer m.Unlock()
	prev := m.feeBps
	m.feeBps = bps
	if err := m.persistSettings(); err != nil {
		m.feeBps = prev
		return err
	}
	return nil
}

// persistSettings writes the current fee, fee recipient, and paused state.
// Caller must hold the lock.
func (m *Marketplace) persistSettings() error {
	if m.config.Database == nil {
		return nil
	}
	return m.config.Database.SetMarketSettings(models.MarketSettings{
		FeeBps:       m.feeBps,
		FeeRecipient: m.feeTo.String(),
		Paused:       m.paused,
	}, nil)
}

// SetFeeRecipient updates where marketplace fees are paid. Restricted to
// admins. A zero recipient disables fee collection.
func (m *Marketplace) SetFeeRecipient(
	caller types.Principal,
	recipient types.Principal,
) error {
	if m.config.Access != nil {
		if err := m.config.Access.Require(caller, access.RoleAdmin); err != nil {
			return err
		}
	}
	m.Lock()
	defer m.Unlock()
	prev := m.feeTo
	m.feeTo = recipient
	if err := m.persistSettings(); err != nil {
		m.feeTo = prev
		return err
	}
	return nil
}

// Pause rejects all mutating operations until Unpause. Restricted to admins.
func (m *Marketplace) Pause(caller types.Principal) error {
	return m.setPaused(caller, true)
}

// Unpause resumes mutating operations. Restricted to admins.
func (m *Marketplace) Unpause(caller types.Principal) error {
	return m.setPaused(caller, false)
}

func (m *Marketplace) setPaused(caller types.Principal, paused bool) error {
	if m.config.Access != nil {
		if err := m.config.Access.Require(caller, access.RoleAdmin); err != nil {
			return err
		}
	}
	m.Lock()
	defer m.Unlock()
	prev := m.paused
	m.paused = paused
	if err := m.persistSettings(); err != nil {
		m.paused = prev
		return err
	}
	m.logger.Info("paused state changed", "paused", paused)
	return nil
}

// GetListing returns the current listing for an asset, active or not
func (m *Marketplace) GetListing(assetId types.AssetID) (Listing, error) {
	m.RLock()
	defer m.RUnlock()
	listing, ok := m.listings[assetId]
	if !ok {
		return Listing{}, ErrNotListed
	}
	return listing, nil
}

// IsListed reports whether the asset has an active listing
func (m *Marketplace) IsListed(assetId types.AssetID) bool {
	m.RLock()
	defer m.RUnlock()
	listing, ok := m.listings[assetId]
	return ok && listing.Active
}

// GetAuction returns the current auction for an asset, active or not
func (m *Marketplace) GetAuction(assetId types.AssetID) (Auction, error) {
	m.RLock()
	defer m.RUnlock()
	auction, ok := m.auctions[assetId]
	if !ok {
		return Auction{}, ErrAuctionNotActive
	}
	return auction, nil
}

func (m *Marketplace) publish(eventType event.EventType, data any) {
	if m.config.EventBus == nil {
		return
	}
	m.config.EventBus.Publish(eventType, event.NewEvent(eventType, data))
}

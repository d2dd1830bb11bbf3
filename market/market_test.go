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

package market_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/lyrebird/bank"
	"github.com/blinklabs-io/lyrebird/database"
	"github.com/blinklabs-io/lyrebird/ledger"
	"github.com/blinklabs-io/lyrebird/market"
	"github.com/blinklabs-io/lyrebird/royalty"
	"github.com/blinklabs-io/lyrebird/types"
)

const (
	seller   = types.Principal("seller")
	buyer    = types.Principal("buyer")
	rival    = types.Principal("rival")
	artist   = types.Principal("artist")
	treasury = types.Principal("treasury")
	admin    = types.Principal("admin")
)

// fakeClock lets tests move auction time forward deterministically
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	bank    *bank.Bank
	ledger  *ledger.Ledger
	royalty *royalty.Splitter
	market  *market.Marketplace
	clock   *fakeClock
	assetId types.AssetID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		clock: newFakeClock(),
	}
	var err error
	env.bank, err = bank.NewBank(bank.BankConfig{})
	require.NoError(t, err)
	env.ledger, err = ledger.NewLedger(ledger.LedgerConfig{})
	require.NoError(t, err)
	env.royalty, err = royalty.NewSplitter(royalty.SplitterConfig{
		Bank: env.bank,
	})
	require.NoError(t, err)
	env.market, err = market.NewMarketplace(market.MarketplaceConfig{
		Bank:         env.bank,
		Ledger:       env.ledger,
		Royalty:      env.royalty,
		Clock:        env.clock.Now,
		FeeRecipient: treasury,
		FeeBps:       500,
	})
	require.NoError(t, err)
	env.assetId, err = env.ledger.Mint("minter", seller, "uri", types.Hash{})
	require.NoError(t, err)
	// 10% royalty to the artist
	err = env.royalty.SetRoyalty(
		"configurator",
		env.assetId,
		[]types.Principal{artist},
		[]uint{10_000},
		1000,
	)
	require.NoError(t, err)
	return env
}

func TestListForSale(t *testing.T) {
	env := newTestEnv(t)

	err := env.market.ListForSale(buyer, env.assetId, 10_000)
	require.ErrorIs(t, err, market.ErrNotOwner)
	err = env.market.ListForSale(seller, env.assetId, 0)
	require.ErrorIs(t, err, market.ErrInvalidPrice)
	err = env.market.ListForSale(seller, 42, 10_000)
	require.ErrorIs(t, err, ledger.ErrNotFound)

	require.NoError(t, env.market.ListForSale(seller, env.assetId, 10_000))
	assert.True(t, env.market.IsListed(env.assetId))

	// One active listing or auction per asset
	err = env.market.ListForSale(seller, env.assetId, 20_000)
	require.ErrorIs(t, err, market.ErrAlreadyListed)
	err = env.market.CreateAuction(seller, env.assetId, 10_000, time.Hour)
	require.ErrorIs(t, err, market.ErrAlreadyListed)
}

func TestCancelListing(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.market.ListForSale(seller, env.assetId, 10_000))

	err := env.market.CancelListing(buyer, env.assetId)
	require.ErrorIs(t, err, market.ErrNotOwner)
	require.NoError(t, env.market.CancelListing(seller, env.assetId))
	assert.False(t, env.market.IsListed(env.assetId))
	err = env.market.CancelListing(seller, env.assetId)
	require.ErrorIs(t, err, market.ErrNotListed)

	// The asset can be listed again afterwards
	require.NoError(t, env.market.ListForSale(seller, env.assetId, 20_000))
}

func TestBuy(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.bank.Deposit(buyer, 50_000))
	require.NoError(t, env.market.ListForSale(seller, env.assetId, 10_000))

	err := env.market.Buy(buyer, env.assetId, 9_999)
	require.ErrorIs(t, err, market.ErrInsufficientPayment)
	err = env.market.Buy(buyer, 42, 10_000)
	require.ErrorIs(t, err, market.ErrNotListed)

	// Overpayment: price 10000 = 1000 royalty + 500 fee + 8500 seller;
	// the 2000 excess never leaves the buyer
	require.NoError(t, env.market.Buy(buyer, env.assetId, 12_000))
	assert.Equal(t, uint64(40_000), env.bank.Balance(buyer))
	assert.Equal(t, uint64(1_000), env.bank.Balance(artist))
	assert.Equal(t, uint64(500), env.bank.Balance(treasury))
	assert.Equal(t, uint64(8_500), env.bank.Balance(seller))

	owner, err := env.ledger.OwnerOf(env.assetId)
	require.NoError(t, err)
	assert.Equal(t, buyer, owner)
	assert.False(t, env.market.IsListed(env.assetId))

	// The listing is spent
	err = env.market.Buy(buyer, env.assetId, 12_000)
	require.ErrorIs(t, err, market.ErrNotListed)
}

func TestBuyInsufficientFundsLeavesListingActive(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.bank.Deposit(buyer, 5_000))
	require.NoError(t, env.market.ListForSale(seller, env.assetId, 10_000))

	err := env.market.Buy(buyer, env.assetId, 10_000)
	require.ErrorIs(t, err, bank.ErrInsufficientFunds)

	// Nothing moved and the listing survives
	assert.True(t, env.market.IsListed(env.assetId))
	assert.Equal(t, uint64(5_000), env.bank.Balance(buyer))
	assert.Equal(t, uint64(0), env.bank.Balance(seller))
	owner, err := env.ledger.OwnerOf(env.assetId)
	require.NoError(t, err)
	assert.Equal(t, seller, owner)
}

func TestBuyReentrancy(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.bank.Deposit(buyer, 50_000))
	require.NoError(t, env.bank.Deposit(artist, 50_000))
	require.NoError(t, env.market.ListForSale(seller, env.assetId, 10_000))

	// A recipient re-entering Buy from its receipt hook is rejected
	var hookErr error
	hookRan := false
	env.bank.OnReceive(artist, func(from types.Principal, amount uint64) {
		hookRan = true
		hookErr = env.market.Buy(artist, env.assetId, 10_000)
	})
	require.NoError(t, env.market.Buy(buyer, env.assetId, 10_000))
	require.True(t, hookRan)
	require.ErrorIs(t, hookErr, market.ErrReentrant)
	assert.Equal(t, uint64(40_000), env.bank.Balance(buyer))
	assert.Equal(t, uint64(51_000), env.bank.Balance(artist))
}

func TestAuctionLifecycle(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.bank.Deposit(buyer, 50_000))
	require.NoError(t, env.bank.Deposit(rival, 50_000))

	err := env.market.CreateAuction(buyer, env.assetId, 10_000, time.Hour)
	require.ErrorIs(t, err, market.ErrNotOwner)
	err = env.market.CreateAuction(seller, env.assetId, 0, time.Hour)
	require.ErrorIs(t, err, market.ErrInvalidPrice)
	require.NoError(
		t,
		env.market.CreateAuction(seller, env.assetId, 10_000, time.Hour),
	)

	// First bid must meet the start price
	err = env.market.Bid(buyer, env.assetId, 9_999)
	require.ErrorIs(t, err, market.ErrBidTooLow)
	require.NoError(t, env.market.Bid(buyer, env.assetId, 10_000))
	assert.Equal(t, uint64(40_000), env.bank.Balance(buyer))

	// Settling early fails
	err = env.market.SettleAuction(env.assetId)
	require.ErrorIs(t, err, market.ErrAuctionStillActive)

	// Later bids must strictly exceed the highest; the outbid bidder is
	// refunded in the same step
	err = env.market.Bid(rival, env.assetId, 10_000)
	require.ErrorIs(t, err, market.ErrBidTooLow)
	require.NoError(t, env.market.Bid(rival, env.assetId, 12_000))
	assert.Equal(t, uint64(50_000), env.bank.Balance(buyer))
	assert.Equal(t, uint64(38_000), env.bank.Balance(rival))

	// Bidding closes at the end time
	env.clock.Advance(2 * time.Hour)
	err = env.market.Bid(buyer, env.assetId, 15_000)
	require.ErrorIs(t, err, market.ErrAuctionNotActive)

	// Winner path: 12000 = 1200 royalty + 600 fee + 10200 seller
	require.NoError(t, env.market.SettleAuction(env.assetId))
	assert.Equal(t, uint64(1_200), env.bank.Balance(artist))
	assert.Equal(t, uint64(600), env.bank.Balance(treasury))
	assert.Equal(t, uint64(10_200), env.bank.Balance(seller))
	assert.Equal(t, uint64(38_000), env.bank.Balance(rival))
	owner, err := env.ledger.OwnerOf(env.assetId)
	require.NoError(t, err)
	assert.Equal(t, rival, owner)

	// Settling twice fails
	err = env.market.SettleAuction(env.assetId)
	require.ErrorIs(t, err, market.ErrAuctionNotActive)
}

func TestAuctionNoBids(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(
		t,
		env.market.CreateAuction(seller, env.assetId, 10_000, time.Hour),
	)
	env.clock.Advance(2 * time.Hour)
	require.NoError(t, env.market.SettleAuction(env.assetId))

	// Seller keeps the asset, nothing moved, and it can be relisted
	owner, err := env.ledger.OwnerOf(env.assetId)
	require.NoError(t, err)
	assert.Equal(t, seller, owner)
	assert.Equal(t, uint64(0), env.bank.Balance(seller))
	auction, err := env.market.GetAuction(env.assetId)
	require.NoError(t, err)
	assert.True(t, auction.Settled)
	require.NoError(t, env.market.ListForSale(seller, env.assetId, 10_000))
}

func TestPause(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.bank.Deposit(buyer, 50_000))
	require.NoError(t, env.market.ListForSale(seller, env.assetId, 10_000))
	require.NoError(t, env.market.Pause(admin))

	err := env.market.Buy(buyer, env.assetId, 10_000)
	require.ErrorIs(t, err, market.ErrPaused)
	err = env.market.CancelListing(seller, env.assetId)
	require.ErrorIs(t, err, market.ErrPaused)
	err = env.market.CreateAuction(seller, 2, 10_000, time.Hour)
	require.ErrorIs(t, err, market.ErrPaused)
	err = env.market.Bid(buyer, env.assetId, 10_000)
	require.ErrorIs(t, err, market.ErrPaused)
	err = env.market.SettleAuction(env.assetId)
	require.ErrorIs(t, err, market.ErrPaused)

	require.NoError(t, env.market.Unpause(admin))
	require.NoError(t, env.market.Buy(buyer, env.assetId, 10_000))
}

func TestSetFeeBounds(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.market.SetFee(admin, 1_000))
	err := env.market.SetFee(admin, 1_001)
	require.ErrorIs(t, err, market.ErrBoundsExceeded)
}

func TestNoFeeWithoutRecipient(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.bank.Deposit(buyer, 50_000))
	require.NoError(t, env.market.SetFeeRecipient(admin, ""))
	require.NoError(t, env.market.ListForSale(seller, env.assetId, 10_000))
	require.NoError(t, env.market.Buy(buyer, env.assetId, 10_000))

	// With no fee recipient, the fee share goes to the seller
	assert.Equal(t, uint64(9_000), env.bank.Balance(seller))
	assert.Equal(t, uint64(0), env.bank.Balance(treasury))
}

func TestMarketPersistenceReload(t *testing.T) {
	db, err := database.New("", nil)
	require.NoError(t, err)
	defer db.Close()

	env := newTestEnv(t)
	clock := newFakeClock()
	b, err := bank.NewBank(bank.BankConfig{Database: db})
	require.NoError(t, err)
	require.NoError(t, b.Deposit(buyer, 50_000))
	m, err := market.NewMarketplace(market.MarketplaceConfig{
		Bank:     b,
		Ledger:   env.ledger,
		Royalty:  env.royalty,
		Clock:    clock.Now,
		Database: db,
	})
	require.NoError(t, err)
	require.NoError(t, m.CreateAuction(seller, env.assetId, 10_000, time.Hour))
	require.NoError(t, m.Bid(buyer, env.assetId, 12_000))
	assert.Equal(t, uint64(38_000), b.Balance(buyer))

	// A fresh bank over the same database sees the post-escrow balance,
	// and a fresh marketplace restores the escrow without debiting the
	// bidder a second time
	freshBank, err := bank.NewBank(bank.BankConfig{Database: db})
	require.NoError(t, err)
	assert.Equal(t, uint64(38_000), freshBank.Balance(buyer))
	reloaded, err := market.NewMarketplace(market.MarketplaceConfig{
		Bank:     freshBank,
		Ledger:   env.ledger,
		Royalty:  env.royalty,
		Clock:    clock.Now,
		Database: db,
	})
	require.NoError(t, err)
	auction, err := reloaded.GetAuction(env.assetId)
	require.NoError(t, err)
	assert.Equal(t, uint64(12_000), auction.HighestBid)
	assert.Equal(t, buyer, auction.HighestBidder)
	assert.Equal(t, uint64(38_000), freshBank.Balance(buyer))

	// Settlement pays out of the restored escrow: 12000 = 1200 royalty
	// plus 10800 seller proceeds (no fee recipient configured)
	clock.Advance(2 * time.Hour)
	require.NoError(t, reloaded.SettleAuction(env.assetId))
	owner, err := env.ledger.OwnerOf(env.assetId)
	require.NoError(t, err)
	assert.Equal(t, buyer, owner)
	assert.Equal(t, uint64(38_000), freshBank.Balance(buyer))
	assert.Equal(t, uint64(1_200), freshBank.Balance(artist))
	assert.Equal(t, uint64(10_800), freshBank.Balance(seller))
}

func TestMarketSettingsPersistence(t *testing.T) {
	db, err := database.New(t.TempDir(), nil)
	require.NoError(t, err)
	defer db.Close()

	env := newTestEnv(t)
	m, err := market.NewMarketplace(market.MarketplaceConfig{
		Bank:     env.bank,
		Ledger:   env.ledger,
		Royalty:  env.royalty,
		Clock:    env.clock.Now,
		Database: db,
	})
	require.NoError(t, err)
	require.NoError(t, m.SetFee(admin, 750))
	require.NoError(t, m.SetFeeRecipient(admin, treasury))
	require.NoError(t, m.Pause(admin))

	// Admin changes survive a reload; the constructor config is only a
	// default for a database without a settings row
	reloaded, err := market.NewMarketplace(market.MarketplaceConfig{
		Bank:     env.bank,
		Ledger:   env.ledger,
		Royalty:  env.royalty,
		Clock:    env.clock.Now,
		Database: db,
	})
	require.NoError(t, err)
	err = reloaded.ListForSale(seller, env.assetId, 10_000)
	require.ErrorIs(t, err, market.ErrPaused)
	require.NoError(t, reloaded.Unpause(admin))

	// The persisted fee applies to sales: 10000 = 1000 royalty + 750 fee
	// + 8250 seller proceeds
	require.NoError(t, env.bank.Deposit(buyer, 10_000))
	require.NoError(t, reloaded.ListForSale(seller, env.assetId, 10_000))
	require.NoError(t, reloaded.Buy(buyer, env.assetId, 10_000))
	assert.Equal(t, uint64(750), env.bank.Balance(treasury))
	assert.Equal(t, uint64(8_250), env.bank.Balance(seller))
}

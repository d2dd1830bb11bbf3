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

package lyrebird_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/lyrebird"
	"github.com/blinklabs-io/lyrebird/access"
	"github.com/blinklabs-io/lyrebird/types"
)

// testClock lets tests move auction time forward deterministically
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// startTestNode runs a node and waits for its components to be wired
func startTestNode(
	t *testing.T,
	n *lyrebird.Node,
) chan error {
	t.Helper()
	errChan := make(chan error, 1)
	go func() {
		errChan <- n.Run()
	}()
	var ready bool
	for range 500 {
		if n.Market() != nil {
			ready = true
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.True(t, ready, "node components not wired in time")
	return errChan
}

func stopTestNode(t *testing.T, n *lyrebird.Node, errChan chan error) {
	t.Helper()
	require.NoError(t, n.Stop())
	select {
	case err := <-errChan:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("timeout waiting for node shutdown")
	}
}

func TestNewConfigValidation(t *testing.T) {
	_, err := lyrebird.New(
		lyrebird.NewConfig(
			lyrebird.WithFee(1_001),
		),
	)
	require.Error(t, err)
}

func TestNodeRunStop(t *testing.T) {
	n, err := lyrebird.New(
		lyrebird.NewConfig(
			lyrebird.WithAdmin("admin"),
			lyrebird.WithFee(500),
			lyrebird.WithFeeRecipient("treasury"),
		),
	)
	require.NoError(t, err)
	errChan := startTestNode(t, n)

	// Exercise one full flow through the wired components
	acl := n.Access()
	require.NoError(t, acl.Grant("admin", access.RoleRegistrar, "creator"))
	require.NoError(t, acl.Grant("admin", access.RoleMinter, "creator"))
	require.NoError(t, acl.Grant("admin", access.RoleConfigurator, "creator"))

	var workHash types.Hash
	workHash[0] = 0x01
	var modelHash types.Hash
	modelHash[0] = 0x02
	var promptHash types.Hash
	promptHash[0] = 0x03
	_, err = n.Provenance().Register(
		"creator",
		workHash,
		modelHash,
		promptHash,
		"creator",
		nil,
	)
	require.NoError(t, err)

	assetId, err := n.Ledger().Mint(
		"creator",
		"creator",
		"ipfs://work",
		workHash,
	)
	require.NoError(t, err)

	err = n.Royalty().SetRoyalty(
		"creator",
		assetId,
		[]types.Principal{"creator"},
		[]uint{10_000},
		1_000,
	)
	require.NoError(t, err)

	require.NoError(t, n.Bank().Deposit("buyer", 20_000))
	require.NoError(t, n.Market().ListForSale("creator", assetId, 10_000))
	require.NoError(t, n.Market().Buy("buyer", assetId, 10_000))

	owner, err := n.Ledger().OwnerOf(assetId)
	require.NoError(t, err)
	assert.Equal(t, types.Principal("buyer"), owner)
	// 10% royalty back to creator, 5% fee, remainder as sale proceeds
	assert.Equal(t, uint64(9_500), n.Bank().Balance("creator"))
	assert.Equal(t, uint64(500), n.Bank().Balance("treasury"))
	assert.Equal(t, uint64(10_000), n.Bank().Balance("buyer"))

	// Every operation above published an event into the journal
	asset, err := n.GetAsset(assetId)
	require.NoError(t, err)
	assert.Equal(t, types.Principal("buyer"), asset.Owner)
	assert.GreaterOrEqual(t, n.EventSeq(), uint64(5))

	stopTestNode(t, n, errChan)
}

func TestNodeRestartWithLiveAuction(t *testing.T) {
	dataDir := t.TempDir()
	clock := newTestClock()

	n1, err := lyrebird.New(
		lyrebird.NewConfig(
			lyrebird.WithAdmin("admin"),
			lyrebird.WithDataDir(dataDir),
			lyrebird.WithClock(clock.Now),
		),
	)
	require.NoError(t, err)
	errChan := startTestNode(t, n1)

	require.NoError(
		t,
		n1.Access().Grant("admin", access.RoleMinter, "creator"),
	)
	assetId, err := n1.Ledger().Mint(
		"creator",
		"seller",
		"ipfs://work",
		types.Hash{},
	)
	require.NoError(t, err)
	require.NoError(t, n1.Bank().Deposit("bidder", 30_000))
	require.NoError(
		t,
		n1.Market().CreateAuction("seller", assetId, 10_000, time.Hour),
	)
	require.NoError(t, n1.Market().Bid("bidder", assetId, 12_000))
	assert.Equal(t, uint64(18_000), n1.Bank().Balance("bidder"))
	stopTestNode(t, n1, errChan)

	// A restarted node restores the auction and its escrow from disk
	// without debiting the bidder again
	n2, err := lyrebird.New(
		lyrebird.NewConfig(
			lyrebird.WithAdmin("admin"),
			lyrebird.WithDataDir(dataDir),
			lyrebird.WithClock(clock.Now),
		),
	)
	require.NoError(t, err)
	errChan = startTestNode(t, n2)

	assert.Equal(t, uint64(18_000), n2.Bank().Balance("bidder"))
	auction, err := n2.Market().GetAuction(assetId)
	require.NoError(t, err)
	assert.Equal(t, uint64(12_000), auction.HighestBid)
	assert.Equal(t, types.Principal("bidder"), auction.HighestBidder)

	// Settlement after the end time pays out of the restored escrow
	clock.Advance(2 * time.Hour)
	require.NoError(t, n2.Market().SettleAuction(assetId))
	owner, err := n2.Ledger().OwnerOf(assetId)
	require.NoError(t, err)
	assert.Equal(t, types.Principal("bidder"), owner)
	assert.Equal(t, uint64(18_000), n2.Bank().Balance("bidder"))
	assert.Equal(t, uint64(12_000), n2.Bank().Balance("seller"))

	stopTestNode(t, n2, errChan)
}

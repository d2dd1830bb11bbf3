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

package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/lyrebird/journal"
	"github.com/blinklabs-io/lyrebird/ledger"
	"github.com/blinklabs-io/lyrebird/market"
	"github.com/blinklabs-io/lyrebird/provenance"
	"github.com/blinklabs-io/lyrebird/royalty"
	"github.com/blinklabs-io/lyrebird/types"
)

// mockNode implements Node for testing
type mockNode struct {
	record      provenance.Record
	recordErr   error
	ancestry    []types.Hash
	children    []types.Hash
	asset       ledger.Asset
	assetErr    error
	royaltyCfg  royalty.Config
	royaltyErr  error
	breakdown   royalty.Breakdown
	listing     market.Listing
	listingErr  error
	auction     market.Auction
	auctionErr  error
	entries     []journal.Entry
	entriesErr  error
	latestSeq   uint64
	gotAfterSeq uint64
	gotLimit    int
}

func (m *mockNode) GetProvenance(types.Hash) (provenance.Record, error) {
	return m.record, m.recordErr
}

func (m *mockNode) AncestryChain(types.Hash) ([]types.Hash, error) {
	return m.ancestry, m.recordErr
}

func (m *mockNode) ChildHashes(types.Hash) ([]types.Hash, error) {
	return m.children, m.recordErr
}

func (m *mockNode) GetAsset(types.AssetID) (ledger.Asset, error) {
	return m.asset, m.assetErr
}

func (m *mockNode) GetRoyaltyConfig(types.AssetID) (royalty.Config, error) {
	return m.royaltyCfg, m.royaltyErr
}

func (m *mockNode) CompleteRoyaltyInfo(
	types.AssetID,
	uint64,
) (royalty.Breakdown, error) {
	return m.breakdown, m.royaltyErr
}

func (m *mockNode) GetListing(types.AssetID) (market.Listing, error) {
	return m.listing, m.listingErr
}

func (m *mockNode) GetAuction(types.AssetID) (market.Auction, error) {
	return m.auction, m.auctionErr
}

func (m *mockNode) ReadEvents(
	afterSeq uint64,
	limit int,
) ([]journal.Entry, error) {
	m.gotAfterSeq = afterSeq
	m.gotLimit = limit
	return m.entries, m.entriesErr
}

func (m *mockNode) EventSeq() uint64 {
	return m.latestSeq
}

const testHashHex = "0101010101010101010101010101010101010101010101010101010101010101"

func doRequest(
	t *testing.T,
	a *API,
	handler http.HandlerFunc,
	target string,
	pathValues map[string]string,
) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for key, value := range pathValues {
		req.SetPathValue(key, value)
	}
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestStartStop(t *testing.T) {
	a := New(APIConfig{ListenAddress: ":0"}, &mockNode{}, slog.Default())

	err := a.Start(t.Context())
	require.NoError(t, err)
	a.mu.Lock()
	assert.NotNil(t, a.httpServer)
	a.mu.Unlock()

	stopCtx, stopCancel := context.WithTimeout(
		context.Background(),
		5*time.Second,
	)
	defer stopCancel()
	err = a.Stop(stopCtx)
	require.NoError(t, err)
	a.mu.Lock()
	assert.Nil(t, a.httpServer)
	a.mu.Unlock()
}

func TestHandleHealth(t *testing.T) {
	a := New(APIConfig{}, &mockNode{}, nil)
	rec := doRequest(t, a, a.handleHealth, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.IsHealthy)
}

func TestHandleProvenance(t *testing.T) {
	hash, err := types.HashFromHex(testHashHex)
	require.NoError(t, err)
	mock := &mockNode{
		record: provenance.Record{
			Hash:          hash,
			ModelHash:     hash,
			PromptHash:    hash,
			Creator:       "creator",
			Collaborators: []types.Principal{"collab"},
			Timestamp:     time.Unix(1_700_000_000, 0).UTC(),
		},
	}
	a := New(APIConfig{}, mock, nil)
	rec := doRequest(
		t,
		a,
		a.handleProvenance,
		"/api/v1/provenance/"+testHashHex,
		map[string]string{"hash": testHashHex},
	)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp ProvenanceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, testHashHex, resp.Hash)
	assert.Equal(t, "creator", resp.Creator)
	assert.Equal(t, []string{"collab"}, resp.Collaborators)
}

func TestHandleProvenanceErrors(t *testing.T) {
	mock := &mockNode{recordErr: provenance.ErrNotFound}
	a := New(APIConfig{}, mock, nil)

	rec := doRequest(
		t,
		a,
		a.handleProvenance,
		"/api/v1/provenance/zzzz",
		map[string]string{"hash": "zzzz"},
	)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(
		t,
		a,
		a.handleProvenance,
		"/api/v1/provenance/"+testHashHex,
		map[string]string{"hash": testHashHex},
	)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleAsset(t *testing.T) {
	mock := &mockNode{
		asset: ledger.Asset{
			ID:       7,
			Owner:    "alice",
			TokenURI: "ipfs://asset",
		},
	}
	a := New(APIConfig{}, mock, nil)
	rec := doRequest(
		t,
		a,
		a.handleAsset,
		"/api/v1/assets/7",
		map[string]string{"id": "7"},
	)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp AssetResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, uint64(7), resp.AssetID)
	assert.Equal(t, "alice", resp.Owner)
	assert.Empty(t, resp.ProvenanceHash)

	mock.assetErr = ledger.ErrNotFound
	rec = doRequest(
		t,
		a,
		a.handleAsset,
		"/api/v1/assets/7",
		map[string]string{"id": "7"},
	)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleRoyaltyQuote(t *testing.T) {
	mock := &mockNode{
		breakdown: royalty.Breakdown{
			Own:      []royalty.Payout{{To: "artist", Amount: 900}},
			Parent:   []royalty.Payout{{To: "ancestor", Amount: 100}},
			OwnTotal: 900,
			ParentTotal: 100,
		},
	}
	a := New(APIConfig{}, mock, nil)
	rec := doRequest(
		t,
		a,
		a.handleRoyaltyQuote,
		"/api/v1/assets/7/royalty/quote?price=10000",
		map[string]string{"id": "7"},
	)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp RoyaltyQuoteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, uint64(1_000), resp.Required)
	require.Len(t, resp.Payouts, 2)
	assert.Equal(t, "artist", resp.Payouts[0].To)

	// Missing or malformed price
	rec = doRequest(
		t,
		a,
		a.handleRoyaltyQuote,
		"/api/v1/assets/7/royalty/quote",
		map[string]string{"id": "7"},
	)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleEvents(t *testing.T) {
	mock := &mockNode{
		entries: []journal.Entry{
			{
				Seq:  4,
				Type: "provenance.registered",
				Data: json.RawMessage(`{"n":1}`),
			},
		},
		latestSeq: 9,
	}
	a := New(APIConfig{}, mock, nil)
	rec := doRequest(
		t,
		a,
		a.handleEvents,
		"/api/v1/events?after=3&count=5",
		nil,
	)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uint64(3), mock.gotAfterSeq)
	assert.Equal(t, 5, mock.gotLimit)
	var resp EventsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, uint64(9), resp.LatestSeq)
	require.Len(t, resp.Events, 1)
	assert.Equal(t, uint64(4), resp.Events[0].Seq)

	// Count clamping
	rec = doRequest(
		t,
		a,
		a.handleEvents,
		"/api/v1/events?count=99999",
		nil,
	)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, MaxEventPageSize, mock.gotLimit)

	rec = doRequest(t, a, a.handleEvents, "/api/v1/events?after=x", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestErrorResponseFormat(t *testing.T) {
	mock := &mockNode{listingErr: market.ErrNotListed}
	a := New(APIConfig{}, mock, nil)
	rec := doRequest(
		t,
		a,
		a.handleListing,
		"/api/v1/market/listings/1",
		map[string]string{"id": "1"},
	)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.True(
		t,
		strings.Contains(rec.Header().Get("Content-Type"), "application/json"),
	)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Not Found", resp.Error)
}

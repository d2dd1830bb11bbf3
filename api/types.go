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
	"time"

	"github.com/blinklabs-io/lyrebird/journal"
)

// ErrorResponse is the standard error body
type ErrorResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	StatusCode int    `json:"status_code"`
}

// RootResponse is returned by GET /
type RootResponse struct {
	Version string `json:"version"`
}

// HealthResponse is returned by GET /health
type HealthResponse struct {
	IsHealthy bool `json:"is_healthy"`
}

// ProvenanceResponse describes a provenance record. Hashes are hex-encoded.
type ProvenanceResponse struct {
	Hash          string    `json:"hash"`
	ModelHash     string    `json:"model_hash"`
	PromptHash    string    `json:"prompt_hash"`
	Creator       string    `json:"creator"`
	Collaborators []string  `json:"collaborators"`
	ParentHashes  []string  `json:"parent_hashes"`
	Timestamp     time.Time `json:"timestamp"`
}

// AncestryResponse is the full transitive ancestor set of a record
type AncestryResponse struct {
	Hash     string   `json:"hash"`
	Ancestry []string `json:"ancestry"`
}

// ChildrenResponse lists records directly derived from a record
type ChildrenResponse struct {
	Hash     string   `json:"hash"`
	Children []string `json:"children"`
}

// AssetResponse describes an issued asset
type AssetResponse struct {
	Owner          string `json:"owner"`
	Approved       string `json:"approved,omitempty"`
	TokenURI       string `json:"token_uri"`
	ProvenanceHash string `json:"provenance_hash,omitempty"`
	AssetID        uint64 `json:"asset_id"`
}

// RoyaltyConfigResponse describes an asset's royalty configuration
type RoyaltyConfigResponse struct {
	Recipients       []string `json:"recipients"`
	ShareBps         []uint   `json:"share_bps"`
	ParentAssetIds   []uint64 `json:"parent_asset_ids,omitempty"`
	AssetID          uint64   `json:"asset_id"`
	RoyaltyBps       uint     `json:"royalty_bps"`
	ParentRoyaltyBps uint     `json:"parent_royalty_bps"`
}

// PayoutResponse is one computed royalty obligation
type PayoutResponse struct {
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

// RoyaltyQuoteResponse is the computed obligation for a hypothetical sale
type RoyaltyQuoteResponse struct {
	Payouts     []PayoutResponse `json:"payouts"`
	AssetID     uint64           `json:"asset_id"`
	Price       uint64           `json:"price"`
	OwnTotal    uint64           `json:"own_total"`
	ParentTotal uint64           `json:"parent_total"`
	Required    uint64           `json:"required"`
}

// ListingResponse describes a direct-sale listing
type ListingResponse struct {
	Seller  string `json:"seller"`
	AssetID uint64 `json:"asset_id"`
	Price   uint64 `json:"price"`
	Active  bool   `json:"active"`
}

// AuctionResponse describes an auction
type AuctionResponse struct {
	Seller        string    `json:"seller"`
	HighestBidder string    `json:"highest_bidder,omitempty"`
	EndTime       time.Time `json:"end_time"`
	AssetID       uint64    `json:"asset_id"`
	StartPrice    uint64    `json:"start_price"`
	HighestBid    uint64    `json:"highest_bid"`
	Active        bool      `json:"active"`
	Settled       bool      `json:"settled"`
}

// EventsResponse is a page of archived events
type EventsResponse struct {
	Events []journal.Entry `json:"events"`
	// LatestSeq is the newest sequence number in the journal; clients
	// page forward by passing the last seen seq as the after parameter
	LatestSeq uint64 `json:"latest_seq"`
}

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
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/blinklabs-io/lyrebird/journal"
	"github.com/blinklabs-io/lyrebird/ledger"
	"github.com/blinklabs-io/lyrebird/market"
	"github.com/blinklabs-io/lyrebird/provenance"
	"github.com/blinklabs-io/lyrebird/royalty"
	"github.com/blinklabs-io/lyrebird/types"
)

const apiVersion = "0.1.0"

const (
	DefaultEventPageSize = 100
	MaxEventPageSize     = 1_000
)

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck,errchkjson
	json.NewEncoder(w).Encode(v)
}

// writeError writes a standard-format error response
func writeError(
	w http.ResponseWriter,
	status int,
	errStr string,
	message string,
) {
	writeJSON(w, status, ErrorResponse{
		StatusCode: status,
		Error:      errStr,
		Message:    message,
	})
}

// writeLookupError maps component lookup errors onto HTTP statuses
func (a *API) writeLookupError(
	w http.ResponseWriter,
	err error,
	message string,
) {
	switch {
	case errors.Is(err, provenance.ErrNotFound),
		errors.Is(err, ledger.ErrNotFound),
		errors.Is(err, royalty.ErrNotFound),
		errors.Is(err, market.ErrNotListed),
		errors.Is(err, market.ErrAuctionNotActive):
		writeError(w, http.StatusNotFound, "Not Found", message)
	default:
		a.logger.Error("lookup failed", "error", err)
		writeError(
			w,
			http.StatusInternalServerError,
			"Internal Server Error",
			message,
		)
	}
}

func parseHashParam(r *http.Request) (types.Hash, error) {
	return types.HashFromHex(r.PathValue("hash"))
}

func parseAssetIdParam(r *http.Request) (types.AssetID, error) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		return 0, err
	}
	return types.AssetID(id), nil
}

func hashStrings(hashes []types.Hash) []string {
	ret := make([]string, 0, len(hashes))
	for _, h := range hashes {
		ret = append(ret, h.String())
	}
	return ret
}

func principalStrings(principals []types.Principal) []string {
	ret := make([]string, 0, len(principals))
	for _, p := range principals {
		ret = append(ret, p.String())
	}
	return ret
}

// handleRoot handles GET / and returns API metadata
func (a *API) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, RootResponse{
		Version: apiVersion,
	})
}

// handleHealth handles GET /health
func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		IsHealthy: true,
	})
}

// handleProvenance handles GET /api/v1/provenance/{hash}
func (a *API) handleProvenance(w http.ResponseWriter, r *http.Request) {
	hash, err := parseHashParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request", "invalid hash")
		return
	}
	record, err := a.node.GetProvenance(hash)
	if err != nil {
		a.writeLookupError(w, err, "failed to retrieve provenance record")
		return
	}
	writeJSON(w, http.StatusOK, ProvenanceResponse{
		Hash:          record.Hash.String(),
		ModelHash:     record.ModelHash.String(),
		PromptHash:    record.PromptHash.String(),
		Creator:       record.Creator.String(),
		Collaborators: principalStrings(record.Collaborators),
		ParentHashes:  hashStrings(record.ParentHashes),
		Timestamp:     record.Timestamp,
	})
}

// handleAncestry handles GET /api/v1/provenance/{hash}/ancestry
func (a *API) handleAncestry(w http.ResponseWriter, r *http.Request) {
	hash, err := parseHashParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request", "invalid hash")
		return
	}
	ancestry, err := a.node.AncestryChain(hash)
	if err != nil {
		a.writeLookupError(w, err, "failed to retrieve ancestry")
		return
	}
	writeJSON(w, http.StatusOK, AncestryResponse{
		Hash:     hash.String(),
		Ancestry: hashStrings(ancestry),
	})
}

// handleChildren handles GET /api/v1/provenance/{hash}/children
func (a *API) handleChildren(w http.ResponseWriter, r *http.Request) {
	hash, err := parseHashParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request", "invalid hash")
		return
	}
	children, err := a.node.ChildHashes(hash)
	if err != nil {
		a.writeLookupError(w, err, "failed to retrieve children")
		return
	}
	writeJSON(w, http.StatusOK, ChildrenResponse{
		Hash:     hash.String(),
		Children: hashStrings(children),
	})
}

// handleAsset handles GET /api/v1/assets/{id}
func (a *API) handleAsset(w http.ResponseWriter, r *http.Request) {
	assetId, err := parseAssetIdParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request", "invalid asset id")
		return
	}
	asset, err := a.node.GetAsset(assetId)
	if err != nil {
		a.writeLookupError(w, err, "failed to retrieve asset")
		return
	}
	resp := AssetResponse{
		AssetID:  uint64(asset.ID),
		Owner:    asset.Owner.String(),
		Approved: asset.Approved.String(),
		TokenURI: asset.TokenURI,
	}
	if !asset.ProvenanceHash.IsZero() {
		resp.ProvenanceHash = asset.ProvenanceHash.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleRoyaltyConfig handles GET /api/v1/assets/{id}/royalty
func (a *API) handleRoyaltyConfig(w http.ResponseWriter, r *http.Request) {
	assetId, err := parseAssetIdParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request", "invalid asset id")
		return
	}
	cfg, err := a.node.GetRoyaltyConfig(assetId)
	if err != nil {
		a.writeLookupError(w, err, "failed to retrieve royalty config")
		return
	}
	parentIds := make([]uint64, 0, len(cfg.ParentAssetIds))
	for _, parent := range cfg.ParentAssetIds {
		parentIds = append(parentIds, uint64(parent))
	}
	writeJSON(w, http.StatusOK, RoyaltyConfigResponse{
		AssetID:          uint64(assetId),
		Recipients:       principalStrings(cfg.Recipients),
		ShareBps:         cfg.ShareBps,
		RoyaltyBps:       cfg.RoyaltyBps,
		ParentAssetIds:   parentIds,
		ParentRoyaltyBps: cfg.ParentRoyaltyBps,
	})
}

// handleRoyaltyQuote handles GET /api/v1/assets/{id}/royalty/quote?price=N
func (a *API) handleRoyaltyQuote(w http.ResponseWriter, r *http.Request) {
	assetId, err := parseAssetIdParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request", "invalid asset id")
		return
	}
	price, err := strconv.ParseUint(r.URL.Query().Get("price"), 10, 64)
	if err != nil {
		writeError(
			w,
			http.StatusBadRequest,
			"Bad Request",
			"invalid price parameter",
		)
		return
	}
	breakdown, err := a.node.CompleteRoyaltyInfo(assetId, price)
	if err != nil {
		if errors.Is(err, royalty.ErrInvalidInput) {
			writeError(
				w,
				http.StatusBadRequest,
				"Bad Request",
				"price out of range",
			)
			return
		}
		a.writeLookupError(w, err, "failed to compute royalty quote")
		return
	}
	payouts := make(
		[]PayoutResponse,
		0,
		len(breakdown.Own)+len(breakdown.Parent),
	)
	for _, payout := range breakdown.Own {
		payouts = append(payouts, PayoutResponse{
			To:     payout.To.String(),
			Amount: payout.Amount,
		})
	}
	for _, payout := range breakdown.Parent {
		payouts = append(payouts, PayoutResponse{
			To:     payout.To.String(),
			Amount: payout.Amount,
		})
	}
	writeJSON(w, http.StatusOK, RoyaltyQuoteResponse{
		AssetID:     uint64(assetId),
		Price:       price,
		OwnTotal:    breakdown.OwnTotal,
		ParentTotal: breakdown.ParentTotal,
		Required:    breakdown.Required(),
		Payouts:     payouts,
	})
}

// handleListing handles GET /api/v1/market/listings/{id}
func (a *API) handleListing(w http.ResponseWriter, r *http.Request) {
	assetId, err := parseAssetIdParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request", "invalid asset id")
		return
	}
	listing, err := a.node.GetListing(assetId)
	if err != nil {
		a.writeLookupError(w, err, "failed to retrieve listing")
		return
	}
	writeJSON(w, http.StatusOK, ListingResponse{
		AssetID: uint64(listing.AssetID),
		Seller:  listing.Seller.String(),
		Price:   listing.Price,
		Active:  listing.Active,
	})
}

// handleAuction handles GET /api/v1/market/auctions/{id}
func (a *API) handleAuction(w http.ResponseWriter, r *http.Request) {
	assetId, err := parseAssetIdParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request", "invalid asset id")
		return
	}
	auction, err := a.node.GetAuction(assetId)
	if err != nil {
		a.writeLookupError(w, err, "failed to retrieve auction")
		return
	}
	writeJSON(w, http.StatusOK, AuctionResponse{
		AssetID:       uint64(auction.AssetID),
		Seller:        auction.Seller.String(),
		StartPrice:    auction.StartPrice,
		EndTime:       auction.EndTime,
		HighestBid:    auction.HighestBid,
		HighestBidder: auction.HighestBidder.String(),
		Active:        auction.Active,
		Settled:       auction.Settled,
	})
}

// handleEvents handles GET /api/v1/events?after=N&count=N. Clients page
// forward by passing the last seq they have seen.
func (a *API) handleEvents(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var afterSeq uint64
	if afterParam := query.Get("after"); afterParam != "" {
		var err error
		afterSeq, err = strconv.ParseUint(afterParam, 10, 64)
		if err != nil {
			writeError(
				w,
				http.StatusBadRequest,
				"Bad Request",
				"invalid after parameter",
			)
			return
		}
	}
	count := DefaultEventPageSize
	if countParam := query.Get("count"); countParam != "" {
		parsed, err := strconv.Atoi(countParam)
		if err != nil {
			writeError(
				w,
				http.StatusBadRequest,
				"Bad Request",
				"invalid count parameter",
			)
			return
		}
		count = parsed
	}
	// Bounds clamping
	if count < 1 {
		count = 1
	}
	if count > MaxEventPageSize {
		count = MaxEventPageSize
	}
	entries, err := a.node.ReadEvents(afterSeq, count)
	if err != nil {
		a.logger.Error("failed to read events", "error", err)
		writeError(
			w,
			http.StatusInternalServerError,
			"Internal Server Error",
			"failed to read events",
		)
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	writeJSON(w, http.StatusOK, EventsResponse{
		Events:    entries,
		LatestSeq: a.node.EventSeq(),
	})
}

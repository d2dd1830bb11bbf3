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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/blinklabs-io/lyrebird/journal"
	"github.com/blinklabs-io/lyrebird/ledger"
	"github.com/blinklabs-io/lyrebird/market"
	"github.com/blinklabs-io/lyrebird/provenance"
	"github.com/blinklabs-io/lyrebird/royalty"
	"github.com/blinklabs-io/lyrebird/types"
)

// Node is the read surface the API server exposes. All mutation goes through
// the core component APIs; this server is read-only.
type Node interface {
	GetProvenance(hash types.Hash) (provenance.Record, error)
	AncestryChain(hash types.Hash) ([]types.Hash, error)
	ChildHashes(hash types.Hash) ([]types.Hash, error)
	GetAsset(assetId types.AssetID) (ledger.Asset, error)
	GetRoyaltyConfig(assetId types.AssetID) (royalty.Config, error)
	CompleteRoyaltyInfo(
		assetId types.AssetID,
		salePrice uint64,
	) (royalty.Breakdown, error)
	GetListing(assetId types.AssetID) (market.Listing, error)
	GetAuction(assetId types.AssetID) (market.Auction, error)
	ReadEvents(afterSeq uint64, limit int) ([]journal.Entry, error)
	EventSeq() uint64
}

type APIConfig struct {
	ListenAddress string
}

// API is the read-only REST server over the node's state
type API struct {
	config     APIConfig
	logger     *slog.Logger
	node       Node
	httpServer *http.Server
	mu         sync.Mutex
}

// New creates a new API server instance
func New(cfg APIConfig, node Node, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	logger = logger.With("component", "api")
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":8080"
	}
	return &API{
		config: cfg,
		logger: logger,
		node:   node,
	}
}

// Start starts the HTTP server in a background goroutine
func (a *API) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.httpServer != nil {
		a.mu.Unlock()
		return errors.New("server already started")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /", a.handleRoot)
	mux.HandleFunc("GET /health", a.handleHealth)
	mux.HandleFunc(
		"GET /api/v1/provenance/{hash}",
		a.handleProvenance,
	)
	mux.HandleFunc(
		"GET /api/v1/provenance/{hash}/ancestry",
		a.handleAncestry,
	)
	mux.HandleFunc(
		"GET /api/v1/provenance/{hash}/children",
		a.handleChildren,
	)
	mux.HandleFunc(
		"GET /api/v1/assets/{id}",
		a.handleAsset,
	)
	mux.HandleFunc(
		"GET /api/v1/assets/{id}/royalty",
		a.handleRoyaltyConfig,
	)
	mux.HandleFunc(
		"GET /api/v1/assets/{id}/royalty/quote",
		a.handleRoyaltyQuote,
	)
	mux.HandleFunc(
		"GET /api/v1/market/listings/{id}",
		a.handleListing,
	)
	mux.HandleFunc(
		"GET /api/v1/market/auctions/{id}",
		a.handleAuction,
	)
	mux.HandleFunc(
		"GET /api/v1/events",
		a.handleEvents,
	)

	server := &http.Server{
		Addr:              a.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 60 * time.Second,
	}
	a.httpServer = server
	a.mu.Unlock()

	// Start the server with deterministic error detection
	if err := a.startServer(server); err != nil {
		a.mu.Lock()
		a.httpServer = nil
		a.mu.Unlock()
		return err
	}

	a.logger.Info(
		"API listener started on " + a.config.ListenAddress,
	)

	// Monitor context for cancellation
	go func() {
		<-ctx.Done()
		a.mu.Lock()
		srv := a.httpServer
		a.httpServer = nil
		a.mu.Unlock()

		if srv != nil {
			a.logger.Debug(
				"context cancelled, shutting down API server",
			)
			//nolint:contextcheck
			shutdownCtx, cancel := context.WithTimeout(
				context.Background(),
				30*time.Second,
			)
			defer cancel()
			//nolint:contextcheck
			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.logger.Error(
					"failed to shutdown API server on context cancellation",
					"error", err,
				)
			}
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server
func (a *API) Stop(ctx context.Context) error {
	a.mu.Lock()
	srv := a.httpServer
	a.httpServer = nil
	a.mu.Unlock()

	if srv != nil {
		a.logger.Debug("shutting down API server")
		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf(
				"failed to shutdown API server: %w",
				err,
			)
		}
	}
	return nil
}

// startServer binds the listening socket first so port conflicts are
// detected immediately, then serves in a background goroutine
func (a *API) startServer(server *http.Server) error {
	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return fmt.Errorf(
			"failed to listen for API server: %w",
			err,
		)
	}
	go func() {
		if err := server.Serve(ln); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("API server error", "error", err)
		}
	}()
	return nil
}

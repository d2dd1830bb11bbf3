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

package lyrebird

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/blinklabs-io/lyrebird/access"
	"github.com/blinklabs-io/lyrebird/api"
	"github.com/blinklabs-io/lyrebird/bank"
	"github.com/blinklabs-io/lyrebird/database"
	"github.com/blinklabs-io/lyrebird/event"
	"github.com/blinklabs-io/lyrebird/journal"
	"github.com/blinklabs-io/lyrebird/ledger"
	"github.com/blinklabs-io/lyrebird/market"
	"github.com/blinklabs-io/lyrebird/provenance"
	"github.com/blinklabs-io/lyrebird/royalty"
	"github.com/blinklabs-io/lyrebird/types"
)

const defaultAmqpQueue = "lyrebird.events"

// domainEventTypes lists every event type the node's components publish.
// The journal archives all of them, and the AMQP forwarder (when
// configured) forwards all of them.
var domainEventTypes = []event.EventType{
	provenance.RegisteredEventType,
	provenance.LinkedEventType,
	royalty.ConfiguredEventType,
	royalty.PaidEventType,
	ledger.MintedEventType,
	ledger.TransferredEventType,
	market.ListedEventType,
	market.CancelledEventType,
	market.SoldEventType,
	market.AuctionCreatedEventType,
	market.BidEventType,
	market.SettledEventType,
}

type Node struct {
	eventBus      *event.EventBus
	db            *database.Database
	bank          *bank.Bank
	accessTable   *access.Table
	provenance    *provenance.Registry
	royalty       *royalty.Splitter
	ledger        *ledger.Ledger
	market        *market.Marketplace
	journal       *journal.Journal
	api           *api.API
	amqpForwarder *event.AmqpForwarder
	shutdownFuncs []func(context.Context) error
	config        Config
	done          chan struct{}
	shutdownOnce  sync.Once
}

func New(cfg Config) (*Node, error) {
	eventBus := event.NewEventBus(cfg.promRegistry, cfg.logger)
	n := &Node{
		config:   cfg,
		eventBus: eventBus,
		done:     make(chan struct{}),
	}
	if err := n.configValidate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return n, nil
}

func (n *Node) Run() error {
	// Configure tracing
	if n.config.tracing {
		if err := n.setupTracing(); err != nil {
			return err
		}
	}
	// Load database
	db, err := database.New(n.config.dataDir, n.config.logger)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	n.db = db
	// Initialize bank
	nodeBank, err := bank.NewBank(bank.BankConfig{
		Database:     n.db,
		Logger:       n.config.logger,
		PromRegistry: n.config.promRegistry,
	})
	if err != nil {
		return fmt.Errorf("failed to load bank: %w", err)
	}
	n.bank = nodeBank
	// Load access table
	accessTable, err := access.NewTable(access.TableConfig{
		Database: n.db,
		Logger:   n.config.logger,
		Admin:    n.config.admin,
	})
	if err != nil {
		return fmt.Errorf("failed to load access table: %w", err)
	}
	n.accessTable = accessTable
	// Load provenance registry
	registry, err := provenance.NewRegistry(provenance.RegistryConfig{
		Database:     n.db,
		EventBus:     n.eventBus,
		Access:       n.accessTable,
		Logger:       n.config.logger,
		PromRegistry: n.config.promRegistry,
		Clock:        n.config.clock,
	})
	if err != nil {
		return fmt.Errorf("failed to load provenance registry: %w", err)
	}
	n.provenance = registry
	// Load royalty splitter
	splitter, err := royalty.NewSplitter(royalty.SplitterConfig{
		Database:     n.db,
		EventBus:     n.eventBus,
		Access:       n.accessTable,
		Bank:         n.bank,
		Logger:       n.config.logger,
		PromRegistry: n.config.promRegistry,
	})
	if err != nil {
		return fmt.Errorf("failed to load royalty splitter: %w", err)
	}
	n.royalty = splitter
	// Load asset ledger
	assetLedger, err := ledger.NewLedger(ledger.LedgerConfig{
		Database:     n.db,
		EventBus:     n.eventBus,
		Access:       n.accessTable,
		Provenance:   n.provenance,
		Logger:       n.config.logger,
		PromRegistry: n.config.promRegistry,
	})
	if err != nil {
		return fmt.Errorf("failed to load ledger: %w", err)
	}
	n.ledger = assetLedger
	// Load marketplace
	marketplace, err := market.NewMarketplace(market.MarketplaceConfig{
		Database:     n.db,
		EventBus:     n.eventBus,
		Access:       n.accessTable,
		Bank:         n.bank,
		Ledger:       n.ledger,
		Royalty:      n.royalty,
		Logger:       n.config.logger,
		PromRegistry: n.config.promRegistry,
		Clock:        n.config.clock,
		FeeRecipient: n.config.feeRecipient,
		FeeBps:       n.config.feeBps,
	})
	if err != nil {
		return fmt.Errorf("failed to load marketplace: %w", err)
	}
	n.market = marketplace
	// Open event journal
	eventJournal, err := journal.NewJournal(journal.JournalConfig{
		EventBus:     n.eventBus,
		Logger:       n.config.logger,
		PromRegistry: n.config.promRegistry,
		DataDir:      n.config.dataDir,
		EventTypes:   domainEventTypes,
	})
	if err != nil {
		return fmt.Errorf("failed to open event journal: %w", err)
	}
	n.journal = eventJournal
	// Configure AMQP event forwarding
	if n.config.amqpUrl != "" {
		queue := n.config.amqpQueue
		if queue == "" {
			queue = defaultAmqpQueue
		}
		n.amqpForwarder = event.NewAmqpForwarder(n.config.amqpUrl, queue)
		for _, eventType := range domainEventTypes {
			n.eventBus.RegisterSubscriber(eventType, n.amqpForwarder)
		}
	}
	// Start API listener
	if n.config.apiListenAddress != "" {
		n.api = api.New(
			api.APIConfig{ListenAddress: n.config.apiListenAddress},
			n,
			n.config.logger,
		)
		if err := n.api.Start(context.Background()); err != nil {
			return err
		}
	}

	// Wait for shutdown signal
	<-n.done
	return nil
}

func (n *Node) Stop() error {
	var err error
	n.shutdownOnce.Do(func() {
		err = n.shutdown()
	})
	return err
}

func (n *Node) shutdown() error {
	// Create shutdown context with timeout (default 30s if not configured)
	shutdownTimeout := 30 * time.Second
	if n.config.shutdownTimeout > 0 {
		shutdownTimeout = n.config.shutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var err error

	n.config.logger.Debug("starting graceful shutdown")

	// Phase 1: Stop accepting new work
	n.config.logger.Debug("shutdown phase 1: stopping new work")

	if n.api != nil {
		if stopErr := n.api.Stop(ctx); stopErr != nil {
			err = errors.Join(err, fmt.Errorf("api shutdown: %w", stopErr))
		}
	}

	// Phase 2: Stop event delivery; this closes the journal and the AMQP
	// forwarder, which are registered subscribers
	n.config.logger.Debug("shutdown phase 2: stopping event delivery")

	if n.eventBus != nil {
		n.eventBus.Stop()
	}

	// Phase 3: Flush state and close database
	n.config.logger.Debug("shutdown phase 3: flushing state")

	if n.journal != nil {
		// Close is idempotent; the event bus may have closed it already
		n.journal.Close()
	}

	if n.db != nil {
		if closeErr := n.db.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("database close: %w", closeErr))
		}
	}

	// Phase 4: Cleanup resources
	n.config.logger.Debug("shutdown phase 4: cleanup resources")

	// Call registered shutdown functions
	for _, fn := range n.shutdownFuncs {
		if fnErr := fn(ctx); fnErr != nil {
			err = errors.Join(err, fmt.Errorf("shutdown function: %w", fnErr))
		}
	}
	n.shutdownFuncs = nil

	n.config.logger.Debug("graceful shutdown complete")
	close(n.done)
	return err
}

// Bank returns the node's bank
func (n *Node) Bank() *bank.Bank {
	return n.bank
}

// Access returns the node's role table
func (n *Node) Access() *access.Table {
	return n.accessTable
}

// Provenance returns the node's provenance registry
func (n *Node) Provenance() *provenance.Registry {
	return n.provenance
}

// Royalty returns the node's royalty splitter
func (n *Node) Royalty() *royalty.Splitter {
	return n.royalty
}

// Ledger returns the node's asset ledger
func (n *Node) Ledger() *ledger.Ledger {
	return n.ledger
}

// Market returns the node's marketplace
func (n *Node) Market() *market.Marketplace {
	return n.market
}

// The following methods implement the api.Node read surface

func (n *Node) GetProvenance(hash types.Hash) (provenance.Record, error) {
	return n.provenance.GetProvenance(hash)
}

func (n *Node) AncestryChain(hash types.Hash) ([]types.Hash, error) {
	return n.provenance.AncestryChain(hash)
}

func (n *Node) ChildHashes(hash types.Hash) ([]types.Hash, error) {
	return n.provenance.ChildHashes(hash)
}

func (n *Node) GetAsset(assetId types.AssetID) (ledger.Asset, error) {
	return n.ledger.Get(assetId)
}

func (n *Node) GetRoyaltyConfig(
	assetId types.AssetID,
) (royalty.Config, error) {
	return n.royalty.GetRoyaltyConfig(assetId)
}

func (n *Node) CompleteRoyaltyInfo(
	assetId types.AssetID,
	salePrice uint64,
) (royalty.Breakdown, error) {
	return n.royalty.CompleteRoyaltyInfo(assetId, salePrice)
}

func (n *Node) GetListing(assetId types.AssetID) (market.Listing, error) {
	return n.market.GetListing(assetId)
}

func (n *Node) GetAuction(assetId types.AssetID) (market.Auction, error) {
	return n.market.GetAuction(assetId)
}

func (n *Node) ReadEvents(
	afterSeq uint64,
	limit int,
) ([]journal.Entry, error) {
	return n.journal.Read(afterSeq, limit)
}

func (n *Node) EventSeq() uint64 {
	return n.journal.Seq()
}

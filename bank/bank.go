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

package bank

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"

	"github.com/blinklabs-io/lyrebird/database"
	"github.com/blinklabs-io/lyrebird/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ErrInvalidPrincipal  = errors.New("invalid principal")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrHoldFinished      = errors.New("hold already settled or released")
	ErrOverspentHold     = errors.New("payments exceed held amount")
)

// Payment is a single credit within a settlement
type Payment struct {
	To     types.Principal
	Amount uint64
}

// ReceiptHook is recipient-controlled code invoked after funds have been
// credited. This models the host environment's behavior of running arbitrary
// recipient code on value receipt; it is the reentrancy hazard the core
// components guard against. Hooks run only after all balances for the
// settlement are final.
type ReceiptHook func(from types.Principal, amount uint64)

type BankConfig struct {
	Database     *database.Database
	PromRegistry prometheus.Registerer
	Logger       *slog.Logger
}

// Bank is the in-process value-transfer primitive consumed by the royalty
// splitter and the marketplace. Funds move in two phases: a Hold debits the
// payer up front, and Settle distributes any part of the held amount,
// returning the remainder to the payer in the same atomic step.
type Bank struct {
	config   BankConfig
	balances map[types.Principal]uint64
	hooks    map[types.Principal]ReceiptHook
	logger   *slog.Logger
	metrics  struct {
		transfersTotal prometheus.Counter
		volumeTotal    prometheus.Counter
		heldAmount     prometheus.Gauge
	}
	sync.Mutex
}

// Hold represents funds debited from a payer pending settlement
type Hold struct {
	bank     *Bank
	from     types.Principal
	amount   uint64
	finished bool
}

func NewBank(config BankConfig) (*Bank, error) {
	b := &Bank{
		config:   config,
		balances: make(map[types.Principal]uint64),
		hooks:    make(map[types.Principal]ReceiptHook),
	}
	if config.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		b.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	} else {
		b.logger = config.Logger
	}
	promautoFactory := promauto.With(config.PromRegistry)
	b.metrics.transfersTotal = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "lyrebird_bank_transfers_total",
			Help: "total individual credits applied",
		},
	)
	b.metrics.volumeTotal = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "lyrebird_bank_volume_total",
			Help: "total value moved through settlements",
		},
	)
	b.metrics.heldAmount = promautoFactory.NewGauge(
		prometheus.GaugeOpts{
			Name: "lyrebird_bank_held_amount",
			Help: "value currently held pending settlement",
		},
	)
	if config.Database != nil {
		if err := b.load(); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// load seeds in-memory balances from the database at startup
func (b *Bank) load() error {
	balances, err := b.config.Database.LoadBalances()
	if err != nil {
		return err
	}
	for _, row := range balances {
		b.balances[types.Principal(row.Principal)] = row.Amount
	}
	return nil
}

// persistBalance writes the current balance for a principal. Caller must
// hold the bank lock.
func (b *Bank) persistBalance(p types.Principal) error {
	if b.config.Database == nil {
		return nil
	}
	return b.config.Database.SetBalance(p.String(), b.balances[p], nil)
}

// Deposit credits a principal with new funds. This is how the host
// environment seeds balances; the core components never create value.
func (b *Bank) Deposit(p types.Principal, amount uint64) error {
	if p.IsZero() {
		return ErrInvalidPrincipal
	}
	b.Lock()
	defer b.Unlock()
	b.balances[p] += amount
	if err := b.persistBalance(p); err != nil {
		b.balances[p] -= amount
		return err
	}
	return nil
}

// Balance returns the current balance for a principal
func (b *Bank) Balance(p types.Principal) uint64 {
	b.Lock()
	defer b.Unlock()
	return b.balances[p]
}

// OnReceive registers recipient-controlled code to run whenever the
// principal is credited by a settlement. Passing nil clears the hook.
func (b *Bank) OnReceive(p types.Principal, hook ReceiptHook) {
	b.Lock()
	defer b.Unlock()
	if hook == nil {
		delete(b.hooks, p)
		return
	}
	b.hooks[p] = hook
}

// NewHold debits the payer and reserves the funds for a later settlement.
// Fails with ErrInsufficientFunds without moving anything if the payer's
// balance is below the requested amount.
func (b *Bank) NewHold(from types.Principal, amount uint64) (*Hold, error) {
	if from.IsZero() {
		return nil, ErrInvalidPrincipal
	}
	if amount == 0 {
		return nil, ErrInvalidAmount
	}
	b.Lock()
	defer b.Unlock()
	if b.balances[from] < amount {
		return nil, ErrInsufficientFunds
	}
	b.balances[from] -= amount
	if err := b.persistBalance(from); err != nil {
		b.balances[from] += amount
		return nil, err
	}
	b.metrics.heldAmount.Add(float64(amount))
	return &Hold{
		bank:   b,
		from:   from,
		amount: amount,
	}, nil
}

// RestoreHold recreates a hold for funds debited before a restart. The
// persisted balances already reflect the original debit, so nothing is
// deducted here. Used to re-establish auction escrow at startup.
func (b *Bank) RestoreHold(
	from types.Principal,
	amount uint64,
) (*Hold, error) {
	if from.IsZero() {
		return nil, ErrInvalidPrincipal
	}
	if amount == 0 {
		return nil, ErrInvalidAmount
	}
	b.Lock()
	defer b.Unlock()
	b.metrics.heldAmount.Add(float64(amount))
	return &Hold{
		bank:   b,
		from:   from,
		amount: amount,
	}, nil
}

// From returns the principal whose funds are held
func (h *Hold) From() types.Principal {
	return h.from
}

// Amount returns the held amount
func (h *Hold) Amount() uint64 {
	return h.amount
}

// Settle distributes payments out of the held funds and returns any
// remainder to the payer, all in one atomic balance update. Receipt hooks
// fire only after every balance is final, so recipient code can never
// observe or exploit a partial distribution. A hold can be settled exactly
// once.
func (h *Hold) Settle(payments ...Payment) error {
	b := h.bank
	b.Lock()
	if h.finished {
		b.Unlock()
		return ErrHoldFinished
	}
	var total uint64
	for _, p := range payments {
		if p.To.IsZero() && p.Amount > 0 {
			b.Unlock()
			return ErrInvalidPrincipal
		}
		// The running total must not wrap around
		if p.Amount > math.MaxUint64-total {
			b.Unlock()
			return ErrOverspentHold
		}
		total += p.Amount
	}
	if total > h.amount {
		b.Unlock()
		return ErrOverspentHold
	}
	// Apply all credits and the payer refund as one step
	type receipt struct {
		hook   ReceiptHook
		to     types.Principal
		amount uint64
	}
	receipts := make([]receipt, 0, len(payments))
	touched := make([]types.Principal, 0, len(payments)+1)
	for _, p := range payments {
		if p.Amount == 0 {
			continue
		}
		b.balances[p.To] += p.Amount
		touched = append(touched, p.To)
		b.metrics.transfersTotal.Inc()
		if hook, ok := b.hooks[p.To]; ok {
			receipts = append(
				receipts,
				receipt{hook: hook, to: p.To, amount: p.Amount},
			)
		}
	}
	if remainder := h.amount - total; remainder > 0 {
		b.balances[h.from] += remainder
		touched = append(touched, h.from)
	}
	for _, p := range touched {
		if err := b.persistBalance(p); err != nil {
			b.logger.Error(
				"failed to persist balance",
				"component", "bank",
				"principal", p.String(),
				"error", err,
			)
		}
	}
	h.finished = true
	b.metrics.heldAmount.Sub(float64(h.amount))
	b.metrics.volumeTotal.Add(float64(total))
	b.Unlock()
	// Release control to recipient code only after state is final
	for _, r := range receipts {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					b.logger.Error(
						"receipt hook panic",
						"component", "bank",
						"recipient", r.to.String(),
						"error", rec,
					)
				}
			}()
			r.hook(h.from, r.amount)
		}()
	}
	return nil
}

// Release returns the full held amount to the payer. Used on failure paths
// after a hold was taken during validation. No receipt hooks fire.
func (h *Hold) Release() error {
	b := h.bank
	b.Lock()
	defer b.Unlock()
	if h.finished {
		return ErrHoldFinished
	}
	b.balances[h.from] += h.amount
	if err := b.persistBalance(h.from); err != nil {
		b.logger.Error(
			"failed to persist balance",
			"component", "bank",
			"principal", h.from.String(),
			"error", err,
		)
	}
	h.finished = true
	b.metrics.heldAmount.Sub(float64(h.amount))
	return nil
}

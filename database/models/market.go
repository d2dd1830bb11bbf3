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

package models

import (
	"time"
)

// Listing is the durable form of a direct-sale listing
type Listing struct {
	AssetID uint64 `gorm:"uniqueIndex"`
	Seller  string `gorm:"index"`
	Price   uint64
	Active  bool
	ID      uint `gorm:"primaryKey"`
}

func (Listing) TableName() string {
	return "listing"
}

// Auction is the durable form of a timed auction
type Auction struct {
	AssetID       uint64 `gorm:"uniqueIndex"`
	Seller        string `gorm:"index"`
	StartPrice    uint64
	EndTime       time.Time
	HighestBid    uint64
	HighestBidder string
	Active        bool
	Settled       bool
	ID            uint `gorm:"primaryKey"`
}

func (Auction) TableName() string {
	return "auction"
}

// MarketSettings is the durable marketplace configuration. A single row
// holds the current fee, fee recipient, and paused state.
type MarketSettings struct {
	FeeRecipient string
	FeeBps       uint
	Paused       bool
	ID           uint `gorm:"primaryKey"`
}

func (MarketSettings) TableName() string {
	return "market_settings"
}

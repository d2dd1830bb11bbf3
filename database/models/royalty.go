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

// RoyaltyConfig is the durable form of an asset's royalty configuration.
// Replaced wholesale (with its recipient and parent rows) when the
// configurator overwrites it.
type RoyaltyConfig struct {
	AssetID          uint64 `gorm:"uniqueIndex"`
	RoyaltyBps       uint
	ParentRoyaltyBps uint
	HasParents       bool
	ID               uint `gorm:"primaryKey"`
}

func (RoyaltyConfig) TableName() string {
	return "royalty_config"
}

// RoyaltyRecipient is one entry of a config's ordered recipient list
type RoyaltyRecipient struct {
	ConfigID  uint `gorm:"index"`
	Principal string
	ShareBps  uint
	Idx       int
	ID        uint `gorm:"primaryKey"`
}

func (RoyaltyRecipient) TableName() string {
	return "royalty_recipient"
}

// RoyaltyParent is one ancestor asset owed a parent royalty on resale
type RoyaltyParent struct {
	ConfigID      uint `gorm:"index"`
	ParentAssetID uint64
	Idx           int
	ID            uint `gorm:"primaryKey"`
}

func (RoyaltyParent) TableName() string {
	return "royalty_parent"
}

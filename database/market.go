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

package database

import (
	"errors"
	"fmt"

	"github.com/blinklabs-io/lyrebird/database/models"
	"gorm.io/gorm"
)

// SetListing saves or replaces the listing row for an asset
func (d *Database) SetListing(
	listing models.Listing,
	txn *gorm.DB,
) error {
	if txn == nil {
		txn = d.DB()
	}
	var existing models.Listing
	result := txn.Where("asset_id = ?", listing.AssetID).First(&existing)
	if result.Error != nil {
		if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return result.Error
		}
		if result := txn.Create(&listing); result.Error != nil {
			return fmt.Errorf("failed to create listing: %w", result.Error)
		}
		return nil
	}
	listing.ID = existing.ID
	if result := txn.Save(&listing); result.Error != nil {
		return fmt.Errorf("failed to update listing: %w", result.Error)
	}
	return nil
}

// SetAuction saves or replaces the auction row for an asset
func (d *Database) SetAuction(
	auction models.Auction,
	txn *gorm.DB,
) error {
	if txn == nil {
		txn = d.DB()
	}
	var existing models.Auction
	result := txn.Where("asset_id = ?", auction.AssetID).First(&existing)
	if result.Error != nil {
		if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return result.Error
		}
		if result := txn.Create(&auction); result.Error != nil {
			return fmt.Errorf("failed to create auction: %w", result.Error)
		}
		return nil
	}
	auction.ID = existing.ID
	if result := txn.Save(&auction); result.Error != nil {
		return fmt.Errorf("failed to update auction: %w", result.Error)
	}
	return nil
}

// SetMarketSettings saves or replaces the single marketplace settings row
func (d *Database) SetMarketSettings(
	settings models.MarketSettings,
	txn *gorm.DB,
) error {
	if txn == nil {
		txn = d.DB()
	}
	var existing models.MarketSettings
	result := txn.First(&existing)
	if result.Error != nil {
		if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return result.Error
		}
		if result := txn.Create(&settings); result.Error != nil {
			return fmt.Errorf(
				"failed to create market settings: %w",
				result.Error,
			)
		}
		return nil
	}
	settings.ID = existing.ID
	if result := txn.Save(&settings); result.Error != nil {
		return fmt.Errorf("failed to update market settings: %w", result.Error)
	}
	return nil
}

// LoadMarketSettings returns the stored marketplace settings, or nil when
// none have been saved
func (d *Database) LoadMarketSettings() (*models.MarketSettings, error) {
	var settings models.MarketSettings
	result := d.db.First(&settings)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &settings, nil
}

// LoadListings returns all stored listings for startup loading
func (d *Database) LoadListings() ([]models.Listing, error) {
	var listings []models.Listing
	if result := d.db.Find(&listings); result.Error != nil {
		return nil, result.Error
	}
	return listings, nil
}

// LoadAuctions returns all stored auctions for startup loading
func (d *Database) LoadAuctions() ([]models.Auction, error) {
	var auctions []models.Auction
	if result := d.db.Find(&auctions); result.Error != nil {
		return nil, result.Error
	}
	return auctions, nil
}

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

// SetRoyaltyConfig replaces the stored royalty configuration for an asset,
// including its recipient and parent rows
func (d *Database) SetRoyaltyConfig(
	config models.RoyaltyConfig,
	recipients []models.RoyaltyRecipient,
	parents []models.RoyaltyParent,
	txn *gorm.DB,
) error {
	apply := func(txn *gorm.DB) error {
		// Remove any prior configuration for this asset
		var existing models.RoyaltyConfig
		result := txn.Where("asset_id = ?", config.AssetID).First(&existing)
		if result.Error == nil {
			if err := txn.Where("config_id = ?", existing.ID).
				Delete(&models.RoyaltyRecipient{}).Error; err != nil {
				return fmt.Errorf("failed to delete royalty recipients: %w", err)
			}
			if err := txn.Where("config_id = ?", existing.ID).
				Delete(&models.RoyaltyParent{}).Error; err != nil {
				return fmt.Errorf("failed to delete royalty parents: %w", err)
			}
			if err := txn.Delete(&existing).Error; err != nil {
				return fmt.Errorf("failed to delete royalty config: %w", err)
			}
		} else if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return result.Error
		}
		if result := txn.Create(&config); result.Error != nil {
			return fmt.Errorf("failed to create royalty config: %w", result.Error)
		}
		for i := range recipients {
			recipients[i].ConfigID = config.ID
		}
		if len(recipients) > 0 {
			if result := txn.Create(&recipients); result.Error != nil {
				return fmt.Errorf(
					"failed to create royalty recipients: %w",
					result.Error,
				)
			}
		}
		for i := range parents {
			parents[i].ConfigID = config.ID
		}
		if len(parents) > 0 {
			if result := txn.Create(&parents); result.Error != nil {
				return fmt.Errorf(
					"failed to create royalty parents: %w",
					result.Error,
				)
			}
		}
		return nil
	}
	if txn != nil {
		return apply(txn)
	}
	return d.Transaction(apply)
}

// LoadRoyaltyConfigs returns all stored royalty rows for startup loading
func (d *Database) LoadRoyaltyConfigs() (
	[]models.RoyaltyConfig,
	[]models.RoyaltyRecipient,
	[]models.RoyaltyParent,
	error,
) {
	var configs []models.RoyaltyConfig
	if result := d.db.Find(&configs); result.Error != nil {
		return nil, nil, nil, result.Error
	}
	var recipients []models.RoyaltyRecipient
	if result := d.db.Order("idx").Find(&recipients); result.Error != nil {
		return nil, nil, nil, result.Error
	}
	var parents []models.RoyaltyParent
	if result := d.db.Order("idx").Find(&parents); result.Error != nil {
		return nil, nil, nil, result.Error
	}
	return configs, recipients, parents, nil
}

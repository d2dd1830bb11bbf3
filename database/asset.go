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
	"fmt"

	"github.com/blinklabs-io/lyrebird/database/models"
	"gorm.io/gorm"
)

// AddAsset saves a newly minted asset
func (d *Database) AddAsset(
	asset models.Asset,
	txn *gorm.DB,
) error {
	if txn == nil {
		txn = d.DB()
	}
	if result := txn.Create(&asset); result.Error != nil {
		return fmt.Errorf("failed to create asset: %w", result.Error)
	}
	return nil
}

// UpdateAssetOwner records an ownership change and the current approved
// operator (empty when approval was cleared by a transfer)
func (d *Database) UpdateAssetOwner(
	assetId uint64,
	owner string,
	approved string,
	txn *gorm.DB,
) error {
	if txn == nil {
		txn = d.DB()
	}
	result := txn.Model(&models.Asset{}).
		Where("asset_id = ?", assetId).
		Updates(map[string]any{
			"owner":    owner,
			"approved": approved,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update asset owner: %w", result.Error)
	}
	return nil
}

// LoadAssets returns all stored assets for startup loading
func (d *Database) LoadAssets() ([]models.Asset, error) {
	var assets []models.Asset
	if result := d.db.Order("asset_id").Find(&assets); result.Error != nil {
		return nil, result.Error
	}
	return assets, nil
}

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

// SetBalance saves or replaces the balance row for a principal
func (d *Database) SetBalance(
	principal string,
	amount uint64,
	txn *gorm.DB,
) error {
	if txn == nil {
		txn = d.DB()
	}
	var existing models.Balance
	result := txn.Where("principal = ?", principal).First(&existing)
	if result.Error != nil {
		if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return result.Error
		}
		balance := models.Balance{Principal: principal, Amount: amount}
		if result := txn.Create(&balance); result.Error != nil {
			return fmt.Errorf("failed to create balance: %w", result.Error)
		}
		return nil
	}
	existing.Amount = amount
	if result := txn.Save(&existing); result.Error != nil {
		return fmt.Errorf("failed to update balance: %w", result.Error)
	}
	return nil
}

// LoadBalances returns all stored balances for startup loading
func (d *Database) LoadBalances() ([]models.Balance, error) {
	var balances []models.Balance
	if result := d.db.Find(&balances); result.Error != nil {
		return nil, result.Error
	}
	return balances, nil
}

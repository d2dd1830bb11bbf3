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

// AddRole saves a role grant. Adding an existing grant is a no-op.
func (d *Database) AddRole(
	role string,
	principal string,
	txn *gorm.DB,
) error {
	if txn == nil {
		txn = d.DB()
	}
	grant := models.Role{Role: role, Principal: principal}
	result := txn.Where(&grant).First(&models.Role{})
	if result.Error == nil {
		return nil
	}
	if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return result.Error
	}
	if result := txn.Create(&grant); result.Error != nil {
		return fmt.Errorf("failed to create role grant: %w", result.Error)
	}
	return nil
}

// DeleteRole removes a role grant
func (d *Database) DeleteRole(
	role string,
	principal string,
	txn *gorm.DB,
) error {
	if txn == nil {
		txn = d.DB()
	}
	result := txn.Where("role = ? AND principal = ?", role, principal).
		Delete(&models.Role{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete role grant: %w", result.Error)
	}
	return nil
}

// LoadRoles returns all stored role grants for startup loading
func (d *Database) LoadRoles() ([]models.Role, error) {
	var roles []models.Role
	if result := d.db.Find(&roles); result.Error != nil {
		return nil, result.Error
	}
	return roles, nil
}

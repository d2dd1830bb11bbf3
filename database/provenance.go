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

// AddProvenanceRecord saves a new provenance record and its collaborator rows
func (d *Database) AddProvenanceRecord(
	record models.ProvenanceRecord,
	collaborators []models.ProvenanceCollaborator,
	txn *gorm.DB,
) error {
	apply := func(txn *gorm.DB) error {
		if result := txn.Create(&record); result.Error != nil {
			return fmt.Errorf(
				"failed to create provenance record: %w",
				result.Error,
			)
		}
		if len(collaborators) > 0 {
			if result := txn.Create(&collaborators); result.Error != nil {
				return fmt.Errorf(
					"failed to create provenance collaborators: %w",
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

// SetProvenanceParents records derivation edges for a child record and marks
// the record as linked. The caller enforces the write-once rule.
func (d *Database) SetProvenanceParents(
	childHash []byte,
	parents []models.ProvenanceParent,
	txn *gorm.DB,
) error {
	apply := func(txn *gorm.DB) error {
		if len(parents) > 0 {
			if result := txn.Create(&parents); result.Error != nil {
				return fmt.Errorf(
					"failed to create provenance parents: %w",
					result.Error,
				)
			}
		}
		result := txn.Model(&models.ProvenanceRecord{}).
			Where("hash = ?", childHash).
			Update("linked", true)
		if result.Error != nil {
			return fmt.Errorf("failed to mark record linked: %w", result.Error)
		}
		return nil
	}
	if txn != nil {
		return apply(txn)
	}
	return d.Transaction(apply)
}

// LoadProvenance returns all stored provenance rows for startup loading
func (d *Database) LoadProvenance() (
	[]models.ProvenanceRecord,
	[]models.ProvenanceCollaborator,
	[]models.ProvenanceParent,
	error,
) {
	var records []models.ProvenanceRecord
	if result := d.db.Find(&records); result.Error != nil {
		return nil, nil, nil, result.Error
	}
	var collaborators []models.ProvenanceCollaborator
	if result := d.db.Order("idx").Find(&collaborators); result.Error != nil {
		return nil, nil, nil, result.Error
	}
	var parents []models.ProvenanceParent
	if result := d.db.Find(&parents); result.Error != nil {
		return nil, nil, nil, result.Error
	}
	return records, collaborators, parents, nil
}

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

// ProvenanceRecord is the durable form of a creation record. Core fields are
// written once at registration and never updated.
type ProvenanceRecord struct {
	Hash       []byte `gorm:"uniqueIndex;size:32"`
	ModelHash  []byte `gorm:"size:32"`
	PromptHash []byte `gorm:"size:32"`
	Creator    string `gorm:"index"`
	Timestamp  time.Time
	Linked     bool
	ID         uint `gorm:"primaryKey"`
}

func (ProvenanceRecord) TableName() string {
	return "provenance_record"
}

// ProvenanceCollaborator is one entry of a record's ordered collaborator list
type ProvenanceCollaborator struct {
	RecordHash []byte `gorm:"index;size:32"`
	Principal  string
	Idx        int
	ID         uint `gorm:"primaryKey"`
}

func (ProvenanceCollaborator) TableName() string {
	return "provenance_collaborator"
}

// ProvenanceParent is a single child-to-parent derivation edge
type ProvenanceParent struct {
	ChildHash  []byte `gorm:"index;size:32"`
	ParentHash []byte `gorm:"index;size:32"`
	ID         uint   `gorm:"primaryKey"`
}

func (ProvenanceParent) TableName() string {
	return "provenance_parent"
}

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

// Asset is the durable form of an issued asset. AssetID doubles as the
// primary key; IDs are sequential and never reused.
type Asset struct {
	AssetID        uint64 `gorm:"primaryKey;autoIncrement:false"`
	Owner          string `gorm:"index"`
	Approved       string
	TokenURI       string
	ProvenanceHash []byte `gorm:"index;size:32"`
}

func (Asset) TableName() string {
	return "asset"
}

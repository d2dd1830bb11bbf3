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

package types

import (
	"encoding/hex"
	"fmt"
)

const (
	// BpsDenominator is the number of basis points in 100%
	BpsDenominator = 10_000
	// MaxRoyaltyBps is the upper bound for a royalty percentage (25%)
	MaxRoyaltyBps = 2_500
)

// Hash is an opaque 32-byte content-derived identifier. The zero value is
// never a valid identifier.
type Hash [32]byte

// HashFromBytes builds a Hash from a byte slice. The input must be exactly
// 32 bytes.
func HashFromBytes(data []byte) (Hash, error) {
	var h Hash
	if len(data) != len(h) {
		return h, fmt.Errorf(
			"invalid hash length: expected %d bytes, got %d",
			len(h),
			len(data),
		)
	}
	copy(h[:], data)
	return h, nil
}

// HashFromHex decodes a hex-encoded Hash
func HashFromHex(s string) (Hash, error) {
	data, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, fmt.Errorf("invalid hash hex: %w", err)
	}
	return HashFromBytes(data)
}

// IsZero returns true for the (invalid) zero hash
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// Bytes returns a copy of the hash contents
func (h Hash) Bytes() []byte {
	ret := make([]byte, len(h))
	copy(ret, h[:])
	return ret
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Principal identifies a party known to the host environment (a caller
// address or payout destination). The contents are opaque to this module;
// the empty string is never a valid principal.
type Principal string

func (p Principal) IsZero() bool {
	return p == ""
}

func (p Principal) String() string {
	return string(p)
}

// AssetID identifies an issued asset. IDs are assigned sequentially starting
// at 1 and are never reused; 0 is never a valid asset ID.
type AssetID uint64

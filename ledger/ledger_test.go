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

package ledger_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/lyrebird/access"
	"github.com/blinklabs-io/lyrebird/database"
	"github.com/blinklabs-io/lyrebird/ledger"
	"github.com/blinklabs-io/lyrebird/provenance"
	"github.com/blinklabs-io/lyrebird/types"
)

const (
	minter   = types.Principal("minter")
	alice    = types.Principal("alice")
	bob      = types.Principal("bob")
	operator = types.Principal("operator")
)

func newTestLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	l, err := ledger.NewLedger(ledger.LedgerConfig{})
	require.NoError(t, err)
	return l
}

func TestMintSequentialIds(t *testing.T) {
	l := newTestLedger(t)
	for i := 1; i <= 5; i++ {
		assetId, err := l.Mint(minter, alice, "uri", types.Hash{})
		require.NoError(t, err)
		assert.Equal(t, types.AssetID(i), assetId)
	}
	owner, err := l.OwnerOf(3)
	require.NoError(t, err)
	assert.Equal(t, alice, owner)
}

func TestMintValidation(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.Mint(minter, "", "uri", types.Hash{})
	require.ErrorIs(t, err, ledger.ErrInvalidInput)
	_, err = l.OwnerOf(42)
	require.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestMintProvenanceAssociation(t *testing.T) {
	registry, err := provenance.NewRegistry(provenance.RegistryConfig{})
	require.NoError(t, err)
	l, err := ledger.NewLedger(ledger.LedgerConfig{Provenance: registry})
	require.NoError(t, err)

	var hash types.Hash
	hash[0] = 0x01
	_, err = l.Mint(minter, alice, "uri", hash)
	require.ErrorIs(t, err, ledger.ErrProvenanceNotFound)

	var aux types.Hash
	aux[0] = 0x02
	_, err = registry.Register("registrar", hash, aux, aux, alice, nil)
	require.NoError(t, err)
	assetId, err := l.Mint(minter, alice, "uri", hash)
	require.NoError(t, err)

	asset, err := l.Get(assetId)
	require.NoError(t, err)
	assert.Equal(t, hash, asset.ProvenanceHash)
}

func TestMintCollaborative(t *testing.T) {
	registry, err := provenance.NewRegistry(provenance.RegistryConfig{})
	require.NoError(t, err)
	l, err := ledger.NewLedger(ledger.LedgerConfig{Provenance: registry})
	require.NoError(t, err)

	var hash, aux types.Hash
	hash[0] = 0x01
	aux[0] = 0x02
	_, err = registry.Register(
		"registrar",
		hash,
		aux,
		aux,
		alice,
		[]types.Principal{bob},
	)
	require.NoError(t, err)

	// Creator and listed collaborators are both acceptable
	_, err = l.MintCollaborative(
		minter,
		alice,
		"uri",
		hash,
		[]types.Principal{alice, bob},
	)
	require.NoError(t, err)

	// Anyone else is not
	_, err = l.MintCollaborative(
		minter,
		alice,
		"uri",
		hash,
		[]types.Principal{bob, "stranger"},
	)
	require.ErrorIs(t, err, ledger.ErrCollaboratorMismatch)

	_, err = l.MintCollaborative(minter, alice, "uri", hash, nil)
	require.ErrorIs(t, err, ledger.ErrInvalidInput)
	_, err = l.MintCollaborative(
		minter,
		alice,
		"uri",
		types.Hash{},
		[]types.Principal{bob},
	)
	require.ErrorIs(t, err, ledger.ErrInvalidInput)
}

func TestMinterRoleEnforced(t *testing.T) {
	admin := types.Principal("admin")
	table, err := access.NewTable(access.TableConfig{Admin: admin})
	require.NoError(t, err)
	require.NoError(t, table.Grant(admin, access.RoleMinter, minter))
	l, err := ledger.NewLedger(ledger.LedgerConfig{Access: table})
	require.NoError(t, err)

	_, err = l.Mint("random-caller", alice, "uri", types.Hash{})
	require.ErrorIs(t, err, access.ErrUnauthorized)
	_, err = l.Mint(minter, alice, "uri", types.Hash{})
	require.NoError(t, err)
}

func TestTransfer(t *testing.T) {
	l := newTestLedger(t)
	assetId, err := l.Mint(minter, alice, "uri", types.Hash{})
	require.NoError(t, err)

	err = l.Transfer(bob, assetId, bob)
	require.ErrorIs(t, err, access.ErrUnauthorized)
	err = l.Transfer(alice, assetId, "")
	require.ErrorIs(t, err, ledger.ErrInvalidInput)
	err = l.Transfer(alice, 42, bob)
	require.ErrorIs(t, err, ledger.ErrNotFound)

	require.NoError(t, l.Transfer(alice, assetId, bob))
	owner, err := l.OwnerOf(assetId)
	require.NoError(t, err)
	assert.Equal(t, bob, owner)

	// Previous owner lost control
	err = l.Transfer(alice, assetId, alice)
	require.ErrorIs(t, err, access.ErrUnauthorized)
}

func TestApproveAndOperatorTransfer(t *testing.T) {
	l := newTestLedger(t)
	assetId, err := l.Mint(minter, alice, "uri", types.Hash{})
	require.NoError(t, err)

	// Only the owner can approve
	err = l.Approve(bob, assetId, operator)
	require.ErrorIs(t, err, access.ErrUnauthorized)
	require.NoError(t, l.Approve(alice, assetId, operator))

	require.NoError(t, l.Transfer(operator, assetId, bob))
	owner, err := l.OwnerOf(assetId)
	require.NoError(t, err)
	assert.Equal(t, bob, owner)

	// Approval was cleared by the transfer
	asset, err := l.Get(assetId)
	require.NoError(t, err)
	assert.True(t, asset.Approved.IsZero())
	err = l.Transfer(operator, assetId, alice)
	require.ErrorIs(t, err, access.ErrUnauthorized)
}

func TestIdsNeverReusedAcrossRestart(t *testing.T) {
	db, err := database.New("", nil)
	require.NoError(t, err)
	defer db.Close()

	l, err := ledger.NewLedger(ledger.LedgerConfig{Database: db})
	require.NoError(t, err)
	var lastId types.AssetID
	for range 3 {
		lastId, err = l.Mint(minter, alice, "uri", types.Hash{})
		require.NoError(t, err)
	}
	require.NoError(t, l.Transfer(alice, lastId, bob))

	reloaded, err := ledger.NewLedger(ledger.LedgerConfig{Database: db})
	require.NoError(t, err)
	owner, err := reloaded.OwnerOf(lastId)
	require.NoError(t, err)
	assert.Equal(t, bob, owner)

	// The id counter resumes past the highest persisted id
	nextId, err := reloaded.Mint(minter, alice, "uri", types.Hash{})
	require.NoError(t, err)
	assert.Equal(t, lastId+1, nextId)
}

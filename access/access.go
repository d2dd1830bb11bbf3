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

package access

import (
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/blinklabs-io/lyrebird/database"
	"github.com/blinklabs-io/lyrebird/types"
)

type Role string

const (
	RoleAdmin        Role = "admin"
	RoleMinter       Role = "minter"
	RoleRegistrar    Role = "registrar"
	RoleConfigurator Role = "configurator"
)

var ErrUnauthorized = errors.New("caller lacks required role")

type TableConfig struct {
	Database *database.Database
	Logger   *slog.Logger
	// Admin is granted RoleAdmin at construction so the table is never
	// unmanageable
	Admin types.Principal
}

// Table is a flat role table: a principal either holds a role or it does
// not. There is no role hierarchy; each protected entry point names the one
// role it requires.
type Table struct {
	config TableConfig
	grants map[Role]map[types.Principal]struct{}
	logger *slog.Logger
	sync.RWMutex
}

func NewTable(config TableConfig) (*Table, error) {
	t := &Table{
		config: config,
		grants: make(map[Role]map[types.Principal]struct{}),
	}
	if config.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		t.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	} else {
		t.logger = config.Logger.With("component", "access")
	}
	if config.Database != nil {
		roles, err := config.Database.LoadRoles()
		if err != nil {
			return nil, err
		}
		for _, r := range roles {
			t.addGrant(Role(r.Role), types.Principal(r.Principal))
		}
	}
	if !config.Admin.IsZero() {
		if err := t.grant(RoleAdmin, config.Admin); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (t *Table) addGrant(role Role, p types.Principal) {
	if _, ok := t.grants[role]; !ok {
		t.grants[role] = make(map[types.Principal]struct{})
	}
	t.grants[role][p] = struct{}{}
}

func (t *Table) grant(role Role, p types.Principal) error {
	t.Lock()
	defer t.Unlock()
	if t.config.Database != nil {
		if err := t.config.Database.AddRole(string(role), p.String(), nil); err != nil {
			return err
		}
	}
	t.addGrant(role, p)
	return nil
}

// HasRole reports whether the principal holds the role
func (t *Table) HasRole(p types.Principal, role Role) bool {
	t.RLock()
	defer t.RUnlock()
	_, ok := t.grants[role][p]
	return ok
}

// Require returns ErrUnauthorized unless the principal holds the role
func (t *Table) Require(p types.Principal, role Role) error {
	if !t.HasRole(p, role) {
		return ErrUnauthorized
	}
	return nil
}

// Grant gives a principal a role. Restricted to admins.
func (t *Table) Grant(caller types.Principal, role Role, p types.Principal) error {
	if err := t.Require(caller, RoleAdmin); err != nil {
		return err
	}
	if p.IsZero() {
		return errors.New("invalid principal")
	}
	if err := t.grant(role, p); err != nil {
		return err
	}
	t.logger.Info(
		"role granted",
		"role", string(role),
		"principal", p.String(),
	)
	return nil
}

// Revoke removes a role from a principal. Restricted to admins.
func (t *Table) Revoke(caller types.Principal, role Role, p types.Principal) error {
	if err := t.Require(caller, RoleAdmin); err != nil {
		return err
	}
	t.Lock()
	defer t.Unlock()
	if t.config.Database != nil {
		if err := t.config.Database.DeleteRole(string(role), p.String(), nil); err != nil {
			return err
		}
	}
	if grants, ok := t.grants[role]; ok {
		delete(grants, p)
		if len(grants) == 0 {
			delete(t.grants, role)
		}
	}
	t.logger.Info(
		"role revoked",
		"role", string(role),
		"principal", p.String(),
	)
	return nil
}

package state

import (
	"bytes"
	"sort"

	"github.com/google/uuid"
)

// VaultManager holds all live vaults keyed by owner. It is mutated only by
// the engine goroutine; no internal locking.
type VaultManager struct {
	vaults map[uuid.UUID]*Vault
}

func NewVaultManager() *VaultManager {
	return &VaultManager{
		vaults: make(map[uuid.UUID]*Vault),
	}
}

// Get returns the vault for owner, or nil.
func (vm *VaultManager) Get(owner uuid.UUID) *Vault {
	return vm.vaults[owner]
}

// Create adds a zeroed vault. Fails if one already exists for this owner.
func (vm *VaultManager) Create(owner uuid.UUID) (*Vault, error) {
	if vm.vaults[owner] != nil {
		return nil, ErrVaultAlreadyExists
	}
	v := &Vault{Owner: owner}
	vm.vaults[owner] = v
	return v, nil
}

// Remove deletes an empty vault. Non-empty vaults are never removed.
func (vm *VaultManager) Remove(owner uuid.UUID) error {
	v := vm.vaults[owner]
	if v == nil {
		return ErrVaultNotFound
	}
	if !v.IsEmpty() {
		return ErrVaultNotEmpty
	}
	delete(vm.vaults, owner)
	return nil
}

// SetVault directly installs a vault (used for snapshot restore).
func (vm *VaultManager) SetVault(v *Vault) {
	vm.vaults[v.Owner] = v
}

// All returns every vault ordered by owner for deterministic iteration.
func (vm *VaultManager) All() []*Vault {
	result := make([]*Vault, 0, len(vm.vaults))
	for _, v := range vm.vaults {
		result = append(result, v)
	}
	sort.Slice(result, func(i, j int) bool {
		return bytes.Compare(result[i].Owner[:], result[j].Owner[:]) < 0
	})
	return result
}

// Count returns the number of live vaults.
func (vm *VaultManager) Count() int {
	return len(vm.vaults)
}

// SumTotals recomputes aggregate collateral and debt across all vaults.
// Used by invariant checks; the engine maintains the running totals.
func (vm *VaultManager) SumTotals() (collateral, debt uint64) {
	for _, v := range vm.vaults {
		collateral += v.CollateralAmount
		debt += v.DebtAmount
	}
	return collateral, debt
}

package tokenbook

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// AccountScope represents the top-level account namespace
type AccountScope uint8

const (
	AccountScopeUser AccountScope = iota
	AccountScopeCustody
	AccountScopeExternal
)

// AssetID maps asset strings to numeric IDs
type AssetID uint16

const (
	AssetGOR  AssetID = 1 // collateral, 9 decimals
	AssetGUSD AssetID = 2 // stablecoin, 6 decimals
)

var (
	assetToID = map[string]AssetID{
		"GOR":  AssetGOR,
		"GUSD": AssetGUSD,
	}
	idToAsset = map[AssetID]string{
		AssetGOR:  "GOR",
		AssetGUSD: "GUSD",
	}
)

func GetAssetID(asset string) (AssetID, bool) {
	id, ok := assetToID[asset]
	return id, ok
}

func GetAssetName(id AssetID) (string, bool) {
	name, ok := idToAsset[id]
	return name, ok
}

// External boundary account names.
const (
	ExternalReserve  = "reserve"  // GOR entering/leaving the book
	ExternalIssuance = "issuance" // GUSD supply counter-account for mint/burn
)

// AccountKey is the in-memory key for balance tracking
type AccountKey struct {
	Scope    AccountScope
	EntityID [16]byte // owner UUID for user/custody, name bytes for external
	AssetID  AssetID
}

// NewUserAccountKey creates a key for a user's own balance
func NewUserAccountKey(owner uuid.UUID, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:    AccountScopeUser,
		EntityID: owner,
		AssetID:  assetID,
	}
}

// NewCustodyAccountKey creates a key for the protocol-controlled custody
// holding backing a vault. Driven only by the engine's own authority,
// never by the owner directly.
func NewCustodyAccountKey(owner uuid.UUID, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:    AccountScopeCustody,
		EntityID: owner,
		AssetID:  assetID,
	}
}

// NewExternalAccountKey creates a key for external boundary accounts
func NewExternalAccountKey(name string, assetID AssetID) AccountKey {
	var entityID [16]byte
	copy(entityID[:], []byte(name))
	return AccountKey{
		Scope:    AccountScopeExternal,
		EntityID: entityID,
		AssetID:  assetID,
	}
}

// AccountPath returns the string representation for storage/logging
func (k AccountKey) AccountPath() string {
	assetName, _ := GetAssetName(k.AssetID)

	switch k.Scope {
	case AccountScopeUser:
		return fmt.Sprintf("user:%s:%s", uuid.UUID(k.EntityID).String(), assetName)
	case AccountScopeCustody:
		return fmt.Sprintf("custody:%s:%s", uuid.UUID(k.EntityID).String(), assetName)
	case AccountScopeExternal:
		name := string(trimZero(k.EntityID[:]))
		return fmt.Sprintf("external:%s:%s", name, assetName)
	}
	return "unknown"
}

// ParseAccountPath is the inverse of AccountPath, used when restoring
// balances from a snapshot.
func ParseAccountPath(path string) (AccountKey, error) {
	parts := strings.SplitN(path, ":", 3)
	if len(parts) != 3 {
		return AccountKey{}, fmt.Errorf("malformed account path: %s", path)
	}

	assetID, ok := GetAssetID(parts[2])
	if !ok {
		return AccountKey{}, fmt.Errorf("unknown asset in account path: %s", path)
	}

	switch parts[0] {
	case "user", "custody":
		owner, err := uuid.Parse(parts[1])
		if err != nil {
			return AccountKey{}, fmt.Errorf("parse owner in account path %s: %w", path, err)
		}
		if parts[0] == "user" {
			return NewUserAccountKey(owner, assetID), nil
		}
		return NewCustodyAccountKey(owner, assetID), nil
	case "external":
		return NewExternalAccountKey(parts[1], assetID), nil
	}
	return AccountKey{}, fmt.Errorf("unknown account scope: %s", parts[0])
}

func trimZero(b []byte) []byte {
	for i, c := range b {
		if c == 0 {
			return b[:i]
		}
	}
	return b
}

package metadata

import (
	"context"
	"fmt"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/cryptconf/cryptconf/pkg/crypto"
	"github.com/cryptconf/cryptconf/pkg/integration"
)

// IntegrationMetadataUnit is a single per-integration record: the
// key-id it was wrapped under, the wrapped data key, and (for
// integrations that opt in, e.g. AWS KMS) the time the unit was
// created.
type IntegrationMetadataUnit struct {
	KeyID            string
	EncryptedDataKey string
	CreatedAt        *time.Time
}

// unitsByIntegration is the ordered-by-insertion table of units for a
// single integration, keyed by key-id so re-adding a key-id replaces
// its unit rather than duplicating it — mirrors the keyed-collection
// discipline in the teacher module's pkg/fabric/table.go, minus the
// concurrency guard: a single file operation here is synchronous.
type unitsByIntegration = orderedmap.OrderedMap[string, IntegrationMetadataUnit]

// IntegrationMetadata is the full set of wrapped-data-key records
// across every integration a file's metadata carries, keyed first by
// integration name then by key-id.
type IntegrationMetadata struct {
	units map[string]*unitsByIntegration
	// order remembers the sequence integrations were first touched in,
	// so iteration is deterministic even though units is a plain map.
	order []string
}

// NewIntegrationMetadata builds an empty table.
func NewIntegrationMetadata() *IntegrationMetadata {
	return &IntegrationMetadata{units: make(map[string]*unitsByIntegration)}
}

func (m *IntegrationMetadata) tableFor(name string) *unitsByIntegration {
	table, ok := m.units[name]
	if !ok {
		table = orderedmap.New[string, IntegrationMetadataUnit]()
		m.units[name] = table
		m.order = append(m.order, name)
	}
	return table
}

// Units returns the ordered units recorded for the named integration,
// or nil if none.
func (m *IntegrationMetadata) Units(name string) *unitsByIntegration {
	return m.units[name]
}

// SetUnit inserts or replaces the unit recorded under keyID for the
// named integration. Used by format adapters reconstructing metadata
// parsed from a document's sops block, where no Integration is
// available to re-derive the unit through AddKeys.
func (m *IntegrationMetadata) SetUnit(name, keyID string, unit IntegrationMetadataUnit) {
	m.tableFor(name).Set(keyID, unit)
}

// IntegrationNames returns the integrations that have at least one
// unit, in first-touched order.
func (m *IntegrationMetadata) IntegrationNames() []string {
	names := make([]string, 0, len(m.order))
	for _, name := range m.order {
		if m.units[name].Len() > 0 {
			names = append(names, name)
		}
	}
	return names
}

// AddKeys wraps dataKey under every given key-id using integ, inserting
// (or replacing) a unit per key-id.
func (m *IntegrationMetadata) AddKeys(ctx context.Context, integ integration.Integration, keyIDs []string, dataKey *crypto.DataKey) error {
	table := m.tableFor(integ.Name())
	for _, keyID := range keyIDs {
		encrypted, err := integ.EncryptDataKey(ctx, keyID, dataKey)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMetadata, err)
		}
		unit := IntegrationMetadataUnit{KeyID: keyID, EncryptedDataKey: encrypted}
		if integ.IncludesCreatedAt() {
			now := nowFn()
			unit.CreatedAt = &now
		}
		table.Set(keyID, unit)
	}
	return nil
}

// nowFn is a seam for deterministic tests; production code leaves it as time.Now.
var nowFn = time.Now

// DecryptDataKey tries every integration in reg's fixed order, and
// within each, every recorded unit, returning the first successfully
// unwrapped data key. If nothing yields one, ErrMissingDataKey.
func (m *IntegrationMetadata) DecryptDataKey(ctx context.Context, reg *integration.Registry) (*crypto.DataKey, error) {
	for _, integ := range reg.Ordered() {
		table := m.units[integ.Name()]
		if table == nil {
			continue
		}
		for pair := table.Oldest(); pair != nil; pair = pair.Next() {
			unit := pair.Value
			dataKey, err := integ.DecryptDataKey(ctx, unit.KeyID, unit.EncryptedDataKey)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMetadata, err)
			}
			if dataKey != nil {
				return dataKey, nil
			}
		}
	}
	return nil, ErrMissingDataKey
}

// RemoveIntegrationKey removes the unit recorded under keyID for the
// named integration, reporting whether anything was removed.
func (m *IntegrationMetadata) RemoveIntegrationKey(integrationName, keyID string) bool {
	table := m.units[integrationName]
	if table == nil {
		return false
	}
	_, removed := table.Delete(keyID)
	return removed
}

// RewrapAll re-encrypts dataKey under every key-id currently recorded
// across every integration, replacing each unit's encrypted data key
// in place. Used by the key-rotation protocol: if any rewrap fails,
// the receiver is left partially mutated, and the caller restores it
// from a snapshot taken beforehand — see RemoveIntegrationKeyAndRotate.
func (m *IntegrationMetadata) RewrapAll(ctx context.Context, reg *integration.Registry, dataKey *crypto.DataKey) error {
	for name, table := range m.units {
		integ, ok := reg.ByName(name)
		if !ok {
			return fmt.Errorf("%w: no registered integration named %q", ErrMetadata, name)
		}
		for pair := table.Oldest(); pair != nil; pair = pair.Next() {
			encrypted, err := integ.EncryptDataKey(ctx, pair.Value.KeyID, dataKey)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrMetadata, err)
			}
			unit := pair.Value
			unit.EncryptedDataKey = encrypted
			table.Set(pair.Key, unit)
		}
	}
	return nil
}

// Clone makes a deep-enough copy of the table for use as a rollback
// point before an in-place RewrapAll that might fail partway through.
func (m *IntegrationMetadata) Clone() *IntegrationMetadata {
	clone := NewIntegrationMetadata()
	for _, name := range m.order {
		table := m.units[name]
		cloneTable := clone.tableFor(name)
		for pair := table.Oldest(); pair != nil; pair = pair.Next() {
			cloneTable.Set(pair.Key, pair.Value)
		}
	}
	return clone
}

// restoreFrom replaces this table's contents with snapshot's, in place.
func (m *IntegrationMetadata) restoreFrom(snapshot *IntegrationMetadata) {
	m.units = snapshot.units
	m.order = snapshot.order
}

// RemoveIntegrationKeyAndRotate removes the unit recorded under keyID
// for the named integration and, if anything was removed, rotates the
// data key: a fresh DataKey is generated and re-wrapped into every
// remaining unit across every integration. If the rewrap fails
// partway through, the table is restored to its pre-removal state and
// the error is returned — the operation is all-or-nothing. Returns
// (nil, nil) if nothing was removed (no rotation needed).
func (m *IntegrationMetadata) RemoveIntegrationKeyAndRotate(ctx context.Context, reg *integration.Registry, integrationName, keyID string) (*crypto.DataKey, error) {
	snapshot := m.Clone()
	if !m.RemoveIntegrationKey(integrationName, keyID) {
		return nil, nil
	}

	newDataKey, err := crypto.GenerateDataKey()
	if err != nil {
		m.restoreFrom(snapshot)
		return nil, err
	}

	if err := m.RewrapAll(ctx, reg, newDataKey); err != nil {
		m.restoreFrom(snapshot)
		return nil, err
	}
	return newDataKey, nil
}

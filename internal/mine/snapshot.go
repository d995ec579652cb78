package mine

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/crimson-sun/sawmill/internal/model"
)

// snapshot is the persisted form of the cluster set. Ids are implied by
// position: clusters are stored in creation order.
type snapshot struct {
	Clusters []model.Cluster `cbor:"clusters"`
}

// Snapshot serializes the full cluster set so a restarted process can resume
// classification with identical ids and templates.
func (m *Miner) Snapshot() ([]byte, error) {
	data, err := cbor.Marshal(snapshot{Clusters: m.Clusters()})
	if err != nil {
		return nil, fmt.Errorf("mine: snapshot: %w", err)
	}
	return data, nil
}

// Restore replaces the miner's state with a previously captured snapshot.
// Restoring into a miner that has already classified lines is rejected: ids
// handed out before the restore would no longer be stable.
func (m *Miner) Restore(data []byte) error {
	if len(m.clusters) > 0 {
		return fmt.Errorf("mine: restore into non-empty miner")
	}

	var snap snapshot
	if err := cbor.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("mine: restore: %w", err)
	}

	for i := range snap.Clusters {
		c := snap.Clusters[i]
		if c.ID != i || len(c.Template) != c.TokenCount {
			return fmt.Errorf("mine: restore: corrupt cluster record %d", i)
		}
		stored := &model.Cluster{
			ID:         c.ID,
			Template:   append([]string(nil), c.Template...),
			TokenCount: c.TokenCount,
			MatchCount: c.MatchCount,
		}
		m.clusters = append(m.clusters, stored)
		bucket := m.byLen[c.TokenCount]
		m.byLen[c.TokenCount] = append([]int{c.ID}, bucket...)
	}
	return nil
}

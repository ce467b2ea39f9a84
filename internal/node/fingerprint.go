package node

import (
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/zeebo/blake3"

	"github.com/mattjoyce/nodesync/internal/entity"
)

// Fingerprint returns the BLAKE3 hash of the node's configuration, independent
// of entity order. Map keys are already sorted by encoding/json.
func (n *Node) Fingerprint() (string, error) {
	return Fingerprint(n.Conf)
}

// Fingerprint hashes a configuration set.
func Fingerprint(conf []entity.Entity) (string, error) {
	sorted := make([]entity.Entity, len(conf))
	copy(sorted, conf)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ID() < sorted[j].ID()
	})

	data, err := json.Marshal(sorted)
	if err != nil {
		return "", err
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

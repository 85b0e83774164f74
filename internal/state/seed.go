package state

import (
	_ "embed"
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"
	"gopkg.in/yaml.v3"
)

// defaultSettingsYAML lists the settings rows created on first run.
//
//go:embed defaults.yaml
var defaultSettingsYAML []byte

// seedSettings inserts any default settings rows that do not exist yet.
// Values the user has already changed are never overwritten, so reopening
// the database is idempotent.
func seedSettings(b *bolt.Bucket) error {
	var defaults []Setting
	if err := yaml.Unmarshal(defaultSettingsYAML, &defaults); err != nil {
		return fmt.Errorf("parsing default settings: %w", err)
	}

	for _, set := range defaults {
		if b.Get([]byte(set.Key)) != nil {
			continue
		}

		data, err := json.Marshal(set)
		if err != nil {
			return err
		}

		if err := b.Put([]byte(set.Key), data); err != nil {
			return err
		}
	}

	return nil
}

package executor

import (
	"errors"
	"fmt"

	"github.com/brettbedarf/treestore/config"
	"github.com/brettbedarf/treestore/internal/util"
	"github.com/brettbedarf/treestore/tree"
)

// Seed creates entries in order and returns how many were created.
// Entries that already exist are skipped; any other failure stops seeding.
func Seed(store TreeStore, entries []config.SeedEntry) (int, error) {
	logger := util.GetLogger("Seed")

	created := 0
	for i, entry := range entries {
		var err error
		switch entry.Type {
		case config.SeedNode:
			err = store.CreateNode(entry.Path)
		case config.SeedLeaf:
			err = store.CreateLeaf(entry.Path, []byte(entry.Value))
		default:
			err = fmt.Errorf("unknown seed type %q", entry.Type)
		}

		if errors.Is(err, tree.ErrPathExists) {
			logger.Warn().Str("path", entry.Path).Msg("Seed entry already exists, skipping")
			continue
		}
		if err != nil {
			return created, fmt.Errorf("seed[%d] %s %s: %w", i, entry.Type, entry.Path, err)
		}
		logger.Debug().Str("type", entry.Type).Str("path", entry.Path).Msg("Seeded entry")
		created++
	}

	if created > 0 {
		setTreeGauges(store)
	}
	return created, nil
}

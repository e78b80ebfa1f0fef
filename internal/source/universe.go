package source

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/masahif/steamharvest/internal/catalog"
)

// loadUniverse reads a cached app id list. Ids may be stored as JSON
// numbers or strings.
func loadUniverse(path string) ([]int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw []catalog.FlexInt
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode app list cache: %w", err)
	}

	ids := make([]int64, 0, len(raw))
	for _, id := range raw {
		if id > 0 {
			ids = append(ids, int64(id))
		}
	}
	return ids, nil
}

// saveUniverse writes the id list as a JSON array of strings through a
// temporary file so a crash never leaves a truncated cache
func saveUniverse(path string, ids []int64) error {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = strconv.FormatInt(id, 10)
	}
	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("failed to encode app list cache: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".applist-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temporary cache file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close cache file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move cache file into place: %w", err)
	}
	return nil
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

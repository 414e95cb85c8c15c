// Package file provides file-based persistence for local development
// and tests. Every record is one JSON document under the root directory.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/casaflow/casaflow/pkg/persistence"
)

const (
	automationsDir = "automations"
	workflowsDir   = "workflows"
	enrollmentsDir = "enrollments"
	executionsDir  = "executions"
	schedulesDir   = "schedules"
)

// Persistence implements persistence.Persistence on the file system.
// A single process-wide mutex serializes writes, which is enough for
// the local single-node setups this backend targets.
type Persistence struct {
	root string
	mu   sync.RWMutex
}

// NewPersistence creates a file persistence rooted at the given
// directory. Accepts a plain path or a file:// URL.
func NewPersistence(root string) persistence.Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{root: cleanRoot}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck verifies the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) readJSON(dir, id string, out any) (bool, error) {
	filePath := filepath.Clean(path.Join(fp.root, dir, id+".json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, fmt.Errorf("failed to read %s/%s: %w", dir, id, err)
	}

	err = json.Unmarshal(body, out)
	if err != nil {
		return false, fmt.Errorf("failed to unmarshal %s/%s: %w", dir, id, err)
	}

	return true, nil
}

func (fp *Persistence) writeJSON(dir, id string, record any) error {
	err := os.MkdirAll(path.Join(fp.root, dir), 0750)
	if err != nil {
		return fmt.Errorf("failed to create %s directory: %w", dir, err)
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s/%s: %w", dir, id, err)
	}

	return os.WriteFile(path.Join(fp.root, dir, id+".json"), data, 0600)
}

func (fp *Persistence) removeJSON(dir, id string) error {
	err := os.Remove(path.Join(fp.root, dir, id+".json"))
	if err != nil && os.IsNotExist(err) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", dir, id, err)
	}

	return nil
}

// listIDs returns the record IDs stored under dir. A directory that has
// not been created yet holds no records.
func (fp *Persistence) listIDs(dir string) ([]string, error) {
	fullDir := path.Join(fp.root, dir)
	if _, err := os.Stat(fullDir); os.IsNotExist(err) {
		return nil, nil
	}

	jsonFiles, err := fs.Glob(os.DirFS(fullDir), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list %s files: %w", dir, err)
	}

	ids := make([]string, 0, len(jsonFiles))
	for _, file := range jsonFiles {
		ids = append(ids, strings.TrimSuffix(file, ".json"))
	}

	return ids, nil
}

func paginate[T any](items []*T, limit, offset int) []*T {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	if offset >= len(items) {
		return make([]*T, 0)
	}

	end := offset + limit
	if end > len(items) {
		end = len(items)
	}

	return items[offset:end]
}

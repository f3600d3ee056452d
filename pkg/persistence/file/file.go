// Package file provides file-based persistence for workflows and executions.
// Every document is one JSON file written atomically with renameio.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/andreibyf/aishacrm-2-sub004/pkg/persistence"
	"github.com/google/renameio/v2"
)

// Persistence implements the persistence.Persistence interface using the file system.
type Persistence struct {
	root          string
	workflowRepo  *WorkflowRepository
	executionRepo *ExecutionRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:          cleanRoot,
		workflowRepo:  NewWorkflowRepository(cleanRoot),
		executionRepo: NewExecutionRepository(cleanRoot),
	}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return fp.workflowRepo
}

func (fp *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return fp.executionRepo
}

// store reads and writes the JSON documents of one collection directory.
type store[T any] struct {
	dir string
	mu  sync.RWMutex
}

func newStore[T any](root, collection string) *store[T] {
	return &store[T]{dir: filepath.Join(root, collection)}
}

// validateID rejects identifiers that would escape the collection directory.
func validateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", persistence.ErrInvalidID)
	}

	if strings.Contains(id, "..") || strings.Contains(id, "/") || strings.Contains(id, "\\") {
		return fmt.Errorf("%w: %q contains invalid characters", persistence.ErrInvalidID, id)
	}

	return nil
}

func (s *store[T]) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// read returns nil, nil when the document does not exist. Callers hold the lock.
func (s *store[T]) read(id string) (*T, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}

		return nil, err
	}

	var doc T
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", s.path(id), err)
	}

	return &doc, nil
}

// write replaces the document atomically. Callers hold the lock.
func (s *store[T]) write(id string, doc *T) error {
	if err := validateID(id); err != nil {
		return err
	}

	if err := os.MkdirAll(s.dir, 0750); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", s.dir, err)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", id, err)
	}

	return renameio.WriteFile(s.path(id), data, 0600)
}

func (s *store[T]) remove(id string) error {
	if err := validateID(id); err != nil {
		return err
	}

	err := os.Remove(s.path(id))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	return nil
}

// all loads every document in the collection. Callers hold the lock.
func (s *store[T]) all() ([]*T, error) {
	files, err := fs.Glob(os.DirFS(s.dir), "*.json")
	if err != nil {
		return nil, err
	}

	docs := make([]*T, 0, len(files))

	for _, file := range files {
		doc, err := s.read(strings.TrimSuffix(file, ".json"))
		if err != nil {
			return nil, err
		}

		if doc != nil {
			docs = append(docs, doc)
		}
	}

	return docs, nil
}

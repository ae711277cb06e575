// Package tasks loads the task metadata files that conditional rules consult.
package tasks

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/codalotl/skilleval/internal/types"
)

// DefaultGlob matches task files inside a test-data directory.
const DefaultGlob = "*.json"

// Loader finds tasks by task_id. Files are read once on first use; lookups scan them in file-name order and the first match
// wins.
type Loader struct {
	dir    string
	glob   string
	logger *zap.Logger

	once  sync.Once
	tasks []types.Task
	err   error
}

// NewLoader returns a Loader over the files in dir matching glob. An empty glob means DefaultGlob; a nil logger discards.
func NewLoader(dir, glob string, logger *zap.Logger) *Loader {
	if glob == "" {
		glob = DefaultGlob
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{dir: dir, glob: glob, logger: logger}
}

// Load returns the task whose task_id renders as taskID, or an empty Task when none does. Unreadable or malformed task files
// are skipped.
func (l *Loader) Load(taskID string) types.Task {
	l.once.Do(l.read)
	for _, t := range l.tasks {
		if t.ID() == taskID {
			return t
		}
	}
	return types.Task{}
}

// Err reports a failure to list the task directory. A missing directory is not an error.
func (l *Loader) Err() error {
	l.once.Do(l.read)
	return l.err
}

// Len is the number of task files that decoded.
func (l *Loader) Len() int {
	l.once.Do(l.read)
	return len(l.tasks)
}

func (l *Loader) read() {
	if l.dir == "" {
		return
	}
	if _, err := os.Stat(l.dir); os.IsNotExist(err) {
		return
	}
	paths, err := filepath.Glob(filepath.Join(l.dir, l.glob))
	if err != nil {
		l.err = fmt.Errorf("list tasks in %s: %w", l.dir, err)
		return
	}
	sort.Strings(paths)
	for _, path := range paths {
		task, err := ReadFile(path)
		if err != nil {
			l.logger.Debug("skip task file", zap.String("file", filepath.Base(path)), zap.Error(err))
			continue
		}
		l.tasks = append(l.tasks, task)
	}
}

// ReadFile decodes one task file. Numbers stay json.Number so integral ids and limits render without a decimal point.
func ReadFile(path string) (types.Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var task types.Task
	if err := dec.Decode(&task); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	if task == nil {
		return nil, fmt.Errorf("parse %s: not an object", filepath.Base(path))
	}
	return task, nil
}

// Package benchmark loads task instances from a local export or from the
// Hugging Face datasets-server.
package benchmark

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/example/evoloop/internal/models"
	"github.com/example/evoloop/internal/ports/secondary"
)

// FileCorpus reads instances from a JSON array or a JSON Lines file.
type FileCorpus struct {
	path string

	once      sync.Once
	instances []models.TaskInstance
	err       error
}

// NewFileCorpus creates a corpus backed by path.
func NewFileCorpus(path string) *FileCorpus {
	return &FileCorpus{path: path}
}

// Instances loads the file once and returns its instances.
func (c *FileCorpus) Instances(ctx context.Context) ([]models.TaskInstance, error) {
	c.once.Do(func() {
		f, err := os.Open(c.path)
		if err != nil {
			c.err = fmt.Errorf("failed to open corpus: %w", err)
			return
		}
		defer f.Close()
		c.instances, c.err = Decode(f)
		if c.err != nil {
			c.err = fmt.Errorf("failed to read corpus %s: %w", c.path, c.err)
		}
	})
	return c.instances, c.err
}

// Decode reads a JSON array or JSON Lines stream of instances. Instances
// without an instance_id are rejected.
func Decode(r io.Reader) ([]models.TaskInstance, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("corpus is empty")
	}

	var instances []models.TaskInstance
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &instances); err != nil {
			return nil, err
		}
	} else {
		scanner := bufio.NewScanner(bytes.NewReader(trimmed))
		scanner.Buffer(make([]byte, 1024*1024), 64*1024*1024)
		line := 0
		for scanner.Scan() {
			line++
			text := strings.TrimSpace(scanner.Text())
			if text == "" {
				continue
			}
			var inst models.TaskInstance
			if err := json.Unmarshal([]byte(text), &inst); err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			instances = append(instances, inst)
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}
	}

	for i, inst := range instances {
		if inst.ID == "" {
			return nil, fmt.Errorf("instance %d has no instance_id", i)
		}
	}
	if len(instances) == 0 {
		return nil, fmt.Errorf("corpus is empty")
	}
	return instances, nil
}

// Encode writes instances as JSON Lines.
func Encode(w io.Writer, instances []models.TaskInstance) error {
	enc := json.NewEncoder(w)
	for _, inst := range instances {
		if err := enc.Encode(inst); err != nil {
			return err
		}
	}
	return nil
}

// Ensure FileCorpus implements the interface
var _ secondary.Benchmark = (*FileCorpus)(nil)

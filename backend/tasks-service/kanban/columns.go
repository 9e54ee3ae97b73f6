package kanban

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"trello-project/backend/tasks-service/models"
)

var defaultSynonyms = map[models.TaskStatus][]string{
	models.StatusNotAssigned:     {"not-assigned", "not assigned", "unassigned", "todo", "to do", "new", "pending", "backlog"},
	models.StatusInProgress:      {"in-progress", "in progress", "running", "doing", "active", "started"},
	models.StatusWaitingApproval: {"waiting-approval", "waiting approval", "pending approval", "awaiting approval", "review", "in review"},
	models.StatusReturned:        {"returned", "rejected", "declined", "sent back"},
	models.StatusCompleted:       {"completed", "complete", "done", "finished", "approved"},
}

// Columns maps board column labels onto stored statuses. The mapping is
// total: an unknown label resolves to not-assigned.
type Columns struct {
	labels map[string]models.TaskStatus
}

type columnsFile struct {
	Columns []struct {
		Status models.TaskStatus `yaml:"status"`
		Labels []string          `yaml:"labels"`
	} `yaml:"columns"`
}

// DefaultColumns returns the built-in label table.
func DefaultColumns() *Columns {
	c := &Columns{labels: make(map[string]models.TaskStatus)}
	for status, labels := range defaultSynonyms {
		c.Add(status, labels...)
	}
	return c
}

// LoadColumns reads extra labels from a YAML file on top of the defaults.
func LoadColumns(path string) (*Columns, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseColumns(data)
}

// ParseColumns parses a YAML column table on top of the defaults.
func ParseColumns(data []byte) (*Columns, error) {
	var f columnsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing columns: %w", err)
	}
	c := DefaultColumns()
	for i, col := range f.Columns {
		if !col.Status.Valid() {
			return nil, fmt.Errorf("columns[%d]: unknown status %q", i, col.Status)
		}
		c.Add(col.Status, col.Labels...)
	}
	return c, nil
}

// Add registers labels as synonyms of status.
func (c *Columns) Add(status models.TaskStatus, labels ...string) {
	for _, l := range labels {
		c.labels[normalizeLabel(l)] = status
	}
}

// Resolve maps a column label to its status, defaulting to not-assigned.
func (c *Columns) Resolve(label string) models.TaskStatus {
	if s, ok := c.Lookup(label); ok {
		return s
	}
	return models.StatusNotAssigned
}

// Lookup is Resolve without the fallback.
func (c *Columns) Lookup(label string) (models.TaskStatus, bool) {
	s, ok := c.labels[normalizeLabel(label)]
	return s, ok
}

// Labels returns the known labels of status, normalized.
func (c *Columns) Labels(status models.TaskStatus) []string {
	var out []string
	for l, s := range c.labels {
		if s == status {
			out = append(out, l)
		}
	}
	return out
}

func normalizeLabel(label string) string {
	l := strings.ToLower(strings.TrimSpace(label))
	l = strings.NewReplacer("_", "-", " ", "-").Replace(l)
	for strings.Contains(l, "--") {
		l = strings.ReplaceAll(l, "--", "-")
	}
	return l
}

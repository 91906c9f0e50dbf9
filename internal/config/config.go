// Package config loads the BoardPipe deployment configuration.
//
// The YAML file maps symbolic list aliases to board list names, board custom field names to
// card fields, and declares static report schedules.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/BTreeMap/BoardPipe/internal/models"
)

// Default values applied when the file leaves them out.
const (
	DefaultDueSoonDays = 3
	DefaultRosterSheet = "roster"
)

// Well-known list aliases used by the report jobs.
const (
	AliasInProgress = "in_progress"
	AliasReady      = "ready"
)

// Schedule binds a job to a cron expression and a target chat.
type Schedule struct {
	Job    string   `yaml:"job"`
	Cron   string   `yaml:"cron"`
	ChatID int64    `yaml:"chat_id"`
	Args   []string `yaml:"args,omitempty"`
}

// RosterColumns names the roster sheet columns.
type RosterColumns struct {
	TelegramLogin string `yaml:"telegram_login"`
	Name          string `yaml:"name"`
	TrelloLogin   string `yaml:"trello_login"`
	Role          string `yaml:"role"`
	Status        string `yaml:"status"`
}

// Config models the deployment YAML schema.
type Config struct {
	// Aliases maps a symbolic alias to one or more board list names.
	Aliases map[string][]string `yaml:"aliases"`
	// StatsAliases is the ordered set of aliases counted by board_stats.
	StatsAliases []string `yaml:"stats_aliases"`
	// Fields maps card field names (title, google_doc, ...) to board custom field names.
	Fields         map[string]string `yaml:"fields"`
	RequiredFields []string          `yaml:"required_fields"`
	UrgentLabels   []string          `yaml:"urgent_labels"`
	DueSoonDays    int               `yaml:"due_soon_days"`
	RosterSheet    string            `yaml:"roster_sheet"`
	RosterColumns  RosterColumns     `yaml:"roster_columns"`
	Schedules      []Schedule        `yaml:"schedules"`
}

// Default returns a configuration usable without a file.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads the YAML file at path. A missing file yields Default().
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes and validates YAML configuration data.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Aliases == nil {
		c.Aliases = map[string][]string{
			AliasInProgress: {"In progress"},
			AliasReady:      {"Ready"},
		}
	}
	if len(c.StatsAliases) == 0 {
		c.StatsAliases = c.AliasNames()
	}
	if c.Fields == nil {
		c.Fields = map[string]string{}
	}
	for _, name := range models.AllCustomFieldNames {
		if c.Fields[name] == "" {
			c.Fields[name] = name
		}
	}
	if len(c.RequiredFields) == 0 {
		c.RequiredFields = []string{models.FieldTitle, models.FieldGoogleDoc, models.FieldAuthors}
	}
	if c.DueSoonDays <= 0 {
		c.DueSoonDays = DefaultDueSoonDays
	}
	if c.RosterSheet == "" {
		c.RosterSheet = DefaultRosterSheet
	}
	cols := &c.RosterColumns
	if cols.TelegramLogin == "" {
		cols.TelegramLogin = "telegram"
	}
	if cols.Name == "" {
		cols.Name = "name"
	}
	if cols.TrelloLogin == "" {
		cols.TrelloLogin = "trello"
	}
	if cols.Role == "" {
		cols.Role = "role"
	}
	if cols.Status == "" {
		cols.Status = "status"
	}
}

func (c *Config) validate() error {
	for alias, lists := range c.Aliases {
		if strings.TrimSpace(alias) == "" {
			return errors.New("alias name cannot be empty")
		}
		if len(lists) == 0 {
			return fmt.Errorf("alias %q maps to no lists", alias)
		}
	}
	for _, alias := range c.StatsAliases {
		if _, ok := c.Aliases[alias]; !ok {
			return fmt.Errorf("stats alias %q is not defined", alias)
		}
	}
	known := make(map[string]bool, len(models.AllCustomFieldNames))
	for _, name := range models.AllCustomFieldNames {
		known[name] = true
	}
	for _, f := range c.RequiredFields {
		if !known[f] {
			return fmt.Errorf("unknown required field %q", f)
		}
	}
	for i, s := range c.Schedules {
		if s.Job == "" || s.Cron == "" {
			return fmt.Errorf("schedule %d: job and cron are required", i)
		}
		if s.ChatID == 0 {
			return fmt.Errorf("schedule %d (%s): chat_id is required", i, s.Job)
		}
	}
	return nil
}

// ListNames returns the board list names for an alias.
func (c *Config) ListNames(alias string) ([]string, bool) {
	names, ok := c.Aliases[alias]
	return names, ok
}

// AliasNames returns every alias in sorted order.
func (c *Config) AliasNames() []string {
	names := make([]string, 0, len(c.Aliases))
	for alias := range c.Aliases {
		names = append(names, alias)
	}
	sort.Strings(names)
	return names
}

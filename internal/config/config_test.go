package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const sampleConfig = `
aliases:
  in_progress: ["Writing", "Editing"]
  ready: ["Ready to publish"]
  ideas: ["Ideas"]
stats_aliases: [ideas, in_progress, ready]
fields:
  title: "Заголовок"
  authors: "Авторы"
required_fields: [title, authors]
urgent_labels: [red, срочно]
schedules:
  - job: deadlines
    cron: "0 10 * * 1-5"
    chat_id: -1001
    args: [in_progress]
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	names, ok := cfg.ListNames("in_progress")
	if !ok {
		t.Fatal("expected in_progress alias")
	}
	if diff := cmp.Diff([]string{"Writing", "Editing"}, names); diff != "" {
		t.Errorf("list names mismatch (-want +got):\n%s", diff)
	}
	if cfg.Fields["title"] != "Заголовок" || cfg.Fields["cover"] != "cover" {
		t.Errorf("unexpected field mapping: %v", cfg.Fields)
	}
	if cfg.DueSoonDays != DefaultDueSoonDays || cfg.RosterSheet != DefaultRosterSheet {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if len(cfg.Schedules) != 1 || cfg.Schedules[0].ChatID != -1001 {
		t.Errorf("unexpected schedules: %+v", cfg.Schedules)
	}
	if diff := cmp.Diff([]string{"ideas", "in_progress", "ready"}, cfg.AliasNames()); diff != "" {
		t.Errorf("alias names mismatch (-want +got):\n%s", diff)
	}
}

func TestParseValidation(t *testing.T) {
	tests := map[string]string{
		"unknown stats alias":    "aliases: {a: [A]}\nstats_aliases: [b]\n",
		"empty alias lists":      "aliases: {a: []}\n",
		"unknown required field": "required_fields: [price]\n",
		"schedule without chat":  "schedules: [{job: deadlines, cron: '* * * * *'}]\n",
		"malformed yaml":         "aliases: [\n",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(data)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if _, ok := cfg.ListNames(AliasReady); !ok {
		t.Error("expected default ready alias")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "boardpipe.yaml")
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(cfg.UrgentLabels) != 2 {
		t.Errorf("expected 2 urgent labels, got %v", cfg.UrgentLabels)
	}
}

// WHAT: config file mapping for the two multi-file modes.
// WHY: one-shot runs treat each -config file as its own defendant and
// check them sequentially; continuous runs layer the files into one
// config. Collapsing batch files into a merge would silently drop every
// defendant but the last.
package main

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadConfigs_OneShotBatch(t *testing.T) {
	dir := t.TempDir()
	john := writeConfig(t, dir, "john.yaml", `
defendant_first_name: John
defendant_last_name: Deuker
`)
	jane := writeConfig(t, dir, "jane.yaml", `
defendant_first_name: Jane
defendant_last_name: Smith
`)

	cfgs, err := loadConfigs([]string{john, jane}, true)
	if err != nil {
		t.Fatalf("loadConfigs: %v", err)
	}
	if len(cfgs) != 2 {
		t.Fatalf("configs = %d, want one monitor per file", len(cfgs))
	}
	if cfgs[0].DefendantLastName != "Deuker" || cfgs[1].DefendantLastName != "Smith" {
		t.Errorf("defendants = %q, %q", cfgs[0].DefendantLastName, cfgs[1].DefendantLastName)
	}
}

func TestLoadConfigs_ContinuousMerges(t *testing.T) {
	dir := t.TempDir()
	base := writeConfig(t, dir, "base.yaml", `
defendant_first_name: John
defendant_last_name: Deuker
poll_interval: 600
`)
	override := writeConfig(t, dir, "override.yaml", `
poll_interval: 120
`)

	cfgs, err := loadConfigs([]string{base, override}, false)
	if err != nil {
		t.Fatalf("loadConfigs: %v", err)
	}
	if len(cfgs) != 1 {
		t.Fatalf("configs = %d, want a single merged config", len(cfgs))
	}
	if cfgs[0].DefendantLastName != "Deuker" || cfgs[0].PollIntervalSeconds != 120 {
		t.Errorf("merged config = %q/%d", cfgs[0].DefendantLastName, cfgs[0].PollIntervalSeconds)
	}
}

func TestLoadConfigs_SingleFile(t *testing.T) {
	dir := t.TempDir()
	only := writeConfig(t, dir, "monitor.yaml", `
defendant_first_name: John
defendant_last_name: Deuker
`)
	for _, oneShot := range []bool{true, false} {
		cfgs, err := loadConfigs([]string{only}, oneShot)
		if err != nil {
			t.Fatalf("loadConfigs(oneShot=%v): %v", oneShot, err)
		}
		if len(cfgs) != 1 || cfgs[0].DefendantLastName != "Deuker" {
			t.Errorf("oneShot=%v: configs = %+v", oneShot, cfgs)
		}
	}
}

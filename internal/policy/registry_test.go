package policy

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sentinelstack/sentinel/internal/models"
	"github.com/sentinelstack/sentinel/internal/utils"
)

const samplePack = `
signals:
  - key: cpu_load
    name: CPU usage
    organization: org-a
    target:
      kind: device
      id: device-1
      label: router-1
      url: https://example.com/devices/device-1
    alert:
      operator: ">"
      threshold: 90
      tolerance: 5
  - key: ping
    alert:
      operator: "<"
      threshold: 1
      tolerance: 10
      active: false
      problem_verb: is not reachable
  - key: memory
    fields: [related_a, related_b]
    alert_fields: [related_a]
    alert:
      operator: ">"
      threshold: 30
      tolerance: 0
`

func writePack(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policies.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRegistryLoad(t *testing.T) {
	reg, err := NewRegistry(writePack(t, samplePack), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if reg.Len() != 3 {
		t.Fatalf("expected 3 signals, got %d", reg.Len())
	}

	cpu, ok := reg.Lookup("cpu_load")
	if !ok {
		t.Fatal("cpu_load missing")
	}
	if cpu.Signal.Name != "CPU usage" || cpu.Signal.Organization != "org-a" {
		t.Fatalf("unexpected signal: %+v", cpu.Signal)
	}
	if cpu.Signal.Target == nil || cpu.Signal.Target.Label != "router-1" {
		t.Fatalf("unexpected target: %+v", cpu.Signal.Target)
	}
	if !cpu.Policy.Active {
		t.Fatal("active must default to true")
	}
	if cpu.Policy.Operator != models.OpGreater || cpu.Policy.Tolerance != 5 {
		t.Fatalf("unexpected policy: %+v", cpu.Policy)
	}

	ping, _ := reg.Lookup("ping")
	if ping.Policy.Active {
		t.Fatal("explicit active: false must be honored")
	}
	if ping.Policy.ProblemVerb != "is not reachable" {
		t.Fatalf("problem verb = %q", ping.Policy.ProblemVerb)
	}
	if ping.Signal.Name != "ping" {
		t.Fatalf("name must default to key, got %q", ping.Signal.Name)
	}

	mem, _ := reg.Lookup("memory")
	if !mem.Signal.HasAlertFields() {
		t.Fatal("memory signal must have alert fields")
	}
}

func TestRegistryRejectsBadPacks(t *testing.T) {
	cases := map[string]string{
		"bad operator": `
signals:
  - key: x
    alert: {operator: "~", threshold: 1}
`,
		"negative tolerance": `
signals:
  - key: x
    alert: {operator: ">", threshold: 1, tolerance: -1}
`,
		"duplicate key": `
signals:
  - key: x
    alert: {operator: ">", threshold: 1}
  - key: x
    alert: {operator: "<", threshold: 2}
`,
		"empty key": `
signals:
  - name: anon
    alert: {operator: ">", threshold: 1}
`,
	}
	for name, pack := range cases {
		_, err := NewRegistry(writePack(t, pack), nil)
		if err == nil {
			t.Errorf("%s: expected load error", name)
			continue
		}
		var appErr *utils.AppError
		if !errors.As(err, &appErr) {
			t.Errorf("%s: err = %v, want AppError wrapper", name, err)
			continue
		}
		if appErr.Msg == "" {
			t.Errorf("%s: AppError must name the pack path", name)
		}
	}

	// The wrapper must not hide the underlying validation error.
	_, err := NewRegistry(writePack(t, cases["bad operator"]), nil)
	var confErr *models.ConfigurationError
	if !errors.As(err, &confErr) {
		t.Fatalf("err = %v, want ConfigurationError through the wrapper", err)
	}
}

func TestRegistryKeys(t *testing.T) {
	reg, err := NewRegistry(writePack(t, samplePack), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	keys := reg.Keys()
	want := []string{"cpu_load", "memory", "ping"}
	if len(keys) != len(want) {
		t.Fatalf("keys = %v", keys)
	}
	for i, k := range want {
		if keys[i] != k {
			t.Fatalf("keys = %v, want sorted %v", keys, want)
		}
	}
}

func TestRegistryReloadKeepsPreviousOnFailure(t *testing.T) {
	path := writePack(t, samplePack)
	reg, err := NewRegistry(path, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if err := os.WriteFile(path, []byte("signals: [{key: x, alert: {operator: bogus}}]"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := reg.Reload(); err == nil {
		t.Fatal("expected reload error")
	}
	if reg.Len() != 3 {
		t.Fatalf("previous pack must stay active, got %d signals", reg.Len())
	}

	if err := os.WriteFile(path, []byte("signals: [{key: only, alert: {operator: \">\", threshold: 5}}]"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := reg.Reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reg.Len() != 1 {
		t.Fatalf("expected 1 signal after reload, got %d", reg.Len())
	}
}

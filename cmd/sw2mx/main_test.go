package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sonicwall-to-mx/internal/output"
)

func TestNewRootCmd(t *testing.T) {
	cmd := newRootCmd()
	if cmd == nil {
		t.Fatal("newRootCmd returned nil")
	}
	if cmd.Use != "sw2mx" {
		t.Errorf("Expected use 'sw2mx', got '%s'", cmd.Use)
	}
	for _, name := range []string{"config", "rules", "provider", "db", "zones", "out-dir", "mapping",
		"default-deny", "non-interactive", "push", "metrics-file"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("missing flag --%s", name)
		}
	}
}

func TestSetupLogger(t *testing.T) {
	levels := []string{"DEBUG", "INFO", "WARN", "ERROR", "UNKNOWN"}
	for _, lvl := range levels {
		l := setupLogger(lvl, "")
		if l == nil {
			t.Errorf("setupLogger returned nil for level %s", lvl)
		}
	}

	logFile := filepath.Join(t.TempDir(), "test.log")
	if l := setupLogger("INFO", logFile); l == nil {
		t.Error("setupLogger with file returned nil")
	}

	// Test invalid log file path
	if l := setupLogger("INFO", "/nonexistent/path/to/log.log"); l == nil {
		t.Error("setupLogger should return a logger even if file fails")
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "sw2mx.yaml")
	data := "zones:\n  - name: LAN\n    vlan: \"10\"\n  - name: WAN\n    vlan: \"20\"\n  - name: DMZ\n  - name: VPN\n" +
		"intelligent_mapping: true\ndefault_inter_zone_deny: true\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestTranslateWritesArtifacts(t *testing.T) {
	dir := t.TempDir()
	outPath := filepath.Join(dir, "out")
	metricsPath := filepath.Join(dir, "sw2mx.prom")

	_, err := execute(t,
		"--config", writeConfig(t, dir),
		"--rules", "../../testdata/showrun.txt",
		"--out-dir", outPath,
		"--metrics-file", metricsPath,
		"--non-interactive",
		"--log-file", filepath.Join(dir, "run.log"))
	if err != nil {
		t.Fatalf("translate failed: %v", err)
	}

	for _, name := range []string{output.UnprocessedObjectsFile, output.UnprocessedRulesFile, output.ZoneMatrixFile, output.RulesFile} {
		if _, err := os.Stat(filepath.Join(outPath, name)); err != nil {
			t.Errorf("artifact %s not written: %v", name, err)
		}
	}
	if _, err := os.Stat(metricsPath); err != nil {
		t.Errorf("metrics file not written: %v", err)
	}

	doc, err := readDocument(filepath.Join(outPath, output.RulesFile))
	if err != nil {
		t.Fatal(err)
	}
	last := doc.Outbound[len(doc.Outbound)-1]
	if last.Comment != "Any Any Inter-zone rule" || last.SrcCidr != "VLAN(20).*" {
		t.Errorf("expected the WAN to LAN default deny last, got %+v", last)
	}
}

func TestTranslateFlagsOverrideConfig(t *testing.T) {
	dir := t.TempDir()
	outPath := filepath.Join(dir, "out")

	_, err := execute(t,
		"--config", writeConfig(t, dir),
		"--rules", "../../testdata/showrun.txt",
		"--out-dir", outPath,
		"--default-deny=false",
		"--non-interactive",
		"--log-file", filepath.Join(dir, "run.log"))
	if err != nil {
		t.Fatalf("translate failed: %v", err)
	}
	doc, err := readDocument(filepath.Join(outPath, output.RulesFile))
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range doc.Outbound {
		if r.Comment == "Any Any Inter-zone rule" {
			t.Error("default deny rule written although disabled on the command line")
		}
	}
}

func TestTranslateErrors(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "run.log")
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing rules", []string{"--non-interactive"}, "rules file path must be provided"},
		{"unknown provider", []string{"--provider", "panos", "--non-interactive"}, "unknown rule provider"},
		{"mariadb without dsn", []string{"--provider", "mariadb", "--non-interactive"}, "database connection string"},
		{"explicit config missing", []string{"--config", filepath.Join(dir, "nope.yaml")}, "config file not found"},
		{"push without credentials", []string{"--push", "--rules", "../../testdata/showrun.txt"}, "cannot push"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("MERAKI_DASHBOARD_API_KEY", "")
			args := append([]string{"--out-dir", filepath.Join(dir, "out"), "--log-file", logPath}, tt.args...)
			_, err := execute(t, args...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestDiffCommand(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.json")
	b := filepath.Join(dir, "b.json")
	plan := `{"runId":"%s","outbound":[{"comment":"c","policy":"%s","protocol":"tcp","srcPort":"any","srcCidr":"any","destPort":"80","destCidr":"any","syslogEnabled":false}]}`
	write := func(path, run, policy string) {
		if err := os.WriteFile(path, []byte(strings.Replace(strings.Replace(plan, "%s", run, 1), "%s", policy, 1)), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	write(a, "one", "allow")
	write(b, "two", "allow")
	out, err := execute(t, "diff", a, b)
	if err != nil {
		t.Fatalf("identical plans reported as different: %v", err)
	}
	if !strings.Contains(out, "No changes detected.") {
		t.Errorf("unexpected output %q", out)
	}

	write(b, "two", "deny")
	out, err = execute(t, "diff", a, b)
	if err == nil {
		t.Fatal("expected an error for differing plans")
	}
	if !strings.Contains(out, `+      "policy": "deny",`) {
		t.Errorf("diff does not show the changed policy:\n%s", out)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "sw2mx ") {
		t.Errorf("unexpected version output %q", out)
	}
}

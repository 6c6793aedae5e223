package config

import (
	"bytes"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"DB", "NODE", "ADDR", "LOG_LEVEL", "ACTIVE_WINDOW"} {
		t.Setenv(Prefix+"_"+k, "")
		os.Unsetenv(Prefix + "_" + k)
	}
	got, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Config{
		DB:           ".hlcmail/hlcmail.db",
		Addr:         "127.0.0.1:7474",
		LogLevel:     "info",
		ActiveWindow: 10 * time.Minute,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("defaults (-want +got):\n%s", diff)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("HLCMAIL_DB", "/tmp/x.db")
	t.Setenv("HLCMAIL_NODE", "alice")
	t.Setenv("HLCMAIL_ADDR", ":9000")
	t.Setenv("HLCMAIL_LOG_LEVEL", "debug")
	t.Setenv("HLCMAIL_ACTIVE_WINDOW", "90s")

	got, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Config{DB: "/tmp/x.db", Node: "alice", Addr: ":9000", LogLevel: "debug", ActiveWindow: 90 * time.Second}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("config (-want +got):\n%s", diff)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := map[string]map[string]string{
		"bad level":       {"HLCMAIL_LOG_LEVEL": "loud"},
		"bad window":      {"HLCMAIL_ACTIVE_WINDOW": "soon"},
		"negative window": {"HLCMAIL_ACTIVE_WINDOW": "-1m"},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	log := Config{LogLevel: "warn"}.Logger(&buf)
	log.Info("hidden")
	log.Warn("shown", slog.String("node", "alice"))

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line logged at warn level: %q", out)
	}
	if !strings.Contains(out, "msg=shown") || !strings.Contains(out, "node=alice") {
		t.Errorf("missing warn line: %q", out)
	}
}

func TestUsageListsVariables(t *testing.T) {
	var buf bytes.Buffer
	if err := Usage(&buf); err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"HLCMAIL_DB", "HLCMAIL_ACTIVE_WINDOW"} {
		if !strings.Contains(buf.String(), k) {
			t.Errorf("usage missing %s:\n%s", k, buf.String())
		}
	}
}

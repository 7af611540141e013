package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fedbroker.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

const validConfig = `
member: member-a
listen_address: ":9400"
clouds:
  - name: cloud-1
    driver: stub
peers:
  - member: member-b
    endpoint: http://broker-b:8400
credentials:
  default:
    username: svc
  users:
    alice:
      username: alice-cloud
      token: secret
processors:
  sleep_interval: 2s
store:
  path: /var/lib/fedbroker/orders.db
telemetry:
  logging:
    level: debug
`

func TestLoadValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Member != "member-a" || cfg.ListenAddress != ":9400" {
		t.Fatalf("unexpected identity fields: %+v", cfg)
	}
	if len(cfg.Clouds) != 1 || cfg.Clouds[0].Driver != "stub" {
		t.Fatalf("clouds not parsed: %+v", cfg.Clouds)
	}
	if cfg.Processors.SleepInterval != 2*time.Second {
		t.Fatalf("sleep interval not parsed: %v", cfg.Processors.SleepInterval)
	}
	if cfg.Telemetry.Logging.Level != "debug" {
		t.Fatalf("telemetry not parsed: %+v", cfg.Telemetry.Logging)
	}

	endpoints := cfg.PeerEndpoints()
	if endpoints["member-b"] != "http://broker-b:8400" {
		t.Fatalf("peer endpoints not built: %v", endpoints)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "member: member-a\n"))
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.ListenAddress == "" {
		t.Fatal("listen address default not applied")
	}
	if cfg.Processors.SleepInterval == 0 {
		t.Fatal("sleep interval default not applied")
	}
	if cfg.Federation.Timeout == 0 {
		t.Fatal("federation timeout default not applied")
	}
	if cfg.Telemetry.ServiceName != "fedbroker" || cfg.Telemetry.Logging.Level != "info" {
		t.Fatalf("telemetry defaults not applied: %+v", cfg.Telemetry)
	}
}

func TestLoadRejectsMissingMember(t *testing.T) {
	if _, err := Load(writeConfig(t, "listen_address: \":9400\"\n")); err == nil {
		t.Fatal("expected error for missing member")
	}
}

func TestLoadRejectsDuplicateCloud(t *testing.T) {
	content := `
member: member-a
clouds:
  - name: cloud-1
    driver: stub
  - name: cloud-1
    driver: stub
`
	if _, err := Load(writeConfig(t, content)); err == nil {
		t.Fatal("expected error for duplicate cloud name")
	}
}

func TestLoadRejectsSelfPeer(t *testing.T) {
	content := `
member: member-a
peers:
  - member: member-a
    endpoint: http://localhost:8400
`
	if _, err := Load(writeConfig(t, content)); err == nil {
		t.Fatal("expected error for a peer naming the local member")
	}
}

func TestLoadRejectsInvalidPeerEndpoint(t *testing.T) {
	content := `
member: member-a
peers:
  - member: member-b
    endpoint: "not a url"
`
	if _, err := Load(writeConfig(t, content)); err == nil {
		t.Fatal("expected error for a malformed peer endpoint")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for a missing file")
	}
}

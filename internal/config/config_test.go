package config

import (
	"testing"
	"time"
)

func TestLoadServer_Defaults(t *testing.T) {
	cfg, err := LoadServer()
	if err != nil {
		t.Fatalf("LoadServer: %v", err)
	}
	if cfg.ListenAddr != ":8090" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.OpTimeout != 5*time.Second {
		t.Errorf("OpTimeout = %v", cfg.OpTimeout)
	}
	if cfg.ScanBatchSize != 25 {
		t.Errorf("ScanBatchSize = %d", cfg.ScanBatchSize)
	}
	if cfg.ScanRunTimeout != 2*time.Minute {
		t.Errorf("ScanRunTimeout = %v", cfg.ScanRunTimeout)
	}
	if cfg.StatsWindow != 7*24*time.Hour {
		t.Errorf("StatsWindow = %v", cfg.StatsWindow)
	}
}

func TestLoadServer_Overrides(t *testing.T) {
	t.Setenv("LISTEN_ADDR", ":9999")
	t.Setenv("SCAN_BATCH_SIZE", "5")
	t.Setenv("SCAN_PAUSE", "1s")
	t.Setenv("STALE_AGE", "48h")

	cfg, err := LoadServer()
	if err != nil {
		t.Fatalf("LoadServer: %v", err)
	}
	if cfg.ListenAddr != ":9999" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.ScanBatchSize != 5 {
		t.Errorf("ScanBatchSize = %d", cfg.ScanBatchSize)
	}
	if cfg.ScanPause != time.Second {
		t.Errorf("ScanPause = %v", cfg.ScanPause)
	}
	if cfg.StaleAge != 48*time.Hour {
		t.Errorf("StaleAge = %v", cfg.StaleAge)
	}
}

func TestLoadIngest_Defaults(t *testing.T) {
	cfg, err := LoadIngest()
	if err != nil {
		t.Fatalf("LoadIngest: %v", err)
	}
	if cfg.InsertTimeout != 10*time.Second {
		t.Errorf("InsertTimeout = %v", cfg.InsertTimeout)
	}
}

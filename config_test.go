package gametime_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gametime-project/gametime"
	"github.com/google/go-cmp/cmp"
)

func TestDefaultConfig(t *testing.T) {
	cfg := gametime.DefaultConfig()
	if cfg.WordSize != 32 {
		t.Fatalf("unexpected word size: %d", cfg.WordSize)
	}
	if cfg.BigEndian {
		t.Fatal("default target must be little-endian")
	}
	if cfg.TempIndexPrefix != "__gtINDEX" {
		t.Fatalf("unexpected temp index prefix: %s", cfg.TempIndexPrefix)
	}
	if cfg.AssumeFunc != "gt_assume" {
		t.Fatalf("unexpected assume function: %s", cfg.AssumeFunc)
	}
}

func TestLoadConfig(t *testing.T) {
	t.Run("OK", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "gametime.toml")
		data := `
word_size = 64
big_endian = true
flat_arrays = true
efc_prefix = "call_"
`
		if err := os.WriteFile(path, []byte(data), 0644); err != nil {
			t.Fatal(err)
		}

		cfg, err := gametime.LoadConfig(path)
		if err != nil {
			t.Fatal(err)
		}

		want := gametime.DefaultConfig()
		want.WordSize = 64
		want.BigEndian = true
		want.FlatArrays = true
		want.EFCPrefix = "call_"
		if diff := cmp.Diff(want, cfg); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("Missing", func(t *testing.T) {
		if _, err := gametime.LoadConfig(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
			t.Fatal("expected error")
		}
	})
}

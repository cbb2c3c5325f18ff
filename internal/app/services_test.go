package app

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/dokzlo13/hubd/internal/config"
	"github.com/dokzlo13/hubd/internal/db"
	"github.com/dokzlo13/hubd/internal/flags"
	"github.com/dokzlo13/hubd/internal/kv"
	"github.com/dokzlo13/hubd/internal/ledger"
	"github.com/dokzlo13/hubd/internal/security"
	"github.com/dokzlo13/hubd/internal/site"
	"github.com/dokzlo13/hubd/internal/wakelight"
)

func TestBuildChain_Order(t *testing.T) {
	database, err := db.Open(filepath.Join(t.TempDir(), "hubd.sqlite"))
	if err != nil {
		t.Fatalf("db.Open() error = %v", err)
	}
	defer database.Close()
	l := ledger.New(database.DB)

	f, err := flags.New(kv.NewMemoryBucket("flags"))
	if err != nil {
		t.Fatal(err)
	}
	sec, err := security.NewStore(nil, l)
	if err != nil {
		t.Fatal(err)
	}
	wake := wakelight.New(wakelight.Config{Room: "bedroom"}, site.NewProvider(site.New(nil)), nil, l, nil)

	tests := []struct {
		name      string
		yaml      string
		wake      *wakelight.Light
		wantOrder string
	}{
		{
			name:      "minimal",
			yaml:      "{}",
			wantOrder: "disable,away,sleep,movie,on_off,idle_timeout",
		},
		{
			name:      "circadian and wake light",
			yaml:      "circadian:\n  enabled: true\n  night_start: \"22:30\"\n",
			wake:      wake,
			wantOrder: "disable,wake_light,away,sleep,movie,circadian,on_off,idle_timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.Parse([]byte(tt.yaml))
			if err != nil {
				t.Fatalf("config.Parse() error = %v", err)
			}
			chain, err := buildChain(cfg, f, sec, tt.wake, nil, nil)
			if err != nil {
				t.Fatalf("buildChain() error = %v", err)
			}
			if got := strings.Join(chain.Names(), ","); got != tt.wantOrder {
				t.Errorf("chain = %s, want %s", got, tt.wantOrder)
			}
		})
	}
}

func TestBuildChain_AstronomicalNightStartNeedsLocation(t *testing.T) {
	cfg, err := config.Parse([]byte("circadian:\n  enabled: true\n  night_start: \"@sunset + 4h\"\n"))
	if err != nil {
		t.Fatalf("config.Parse() error = %v", err)
	}
	f, _ := flags.New(kv.NewMemoryBucket("flags"))
	sec, _ := security.NewStore(nil, nil)

	if _, err := buildChain(cfg, f, sec, nil, nil, nil); err == nil {
		t.Fatal("expected error for @sunset night_start without coordinates")
	}
}

package cmd

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/iamkuldeepprovana/kmschatbot/internal/config"
	"github.com/iamkuldeepprovana/kmschatbot/internal/log"
)

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	got := out.String()
	if !strings.Contains(got, "kmschat") {
		t.Errorf("version output = %q, want app name", got)
	}
	if !strings.Contains(got, Version) {
		t.Errorf("version output = %q, want version %q", got, Version)
	}
}

func TestRootCommandRegistration(t *testing.T) {
	want := []string{"serve", "migrate", "version"}
	for _, name := range want {
		found := false
		for _, c := range rootCmd.Commands() {
			if c.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("command %q not registered", name)
		}
	}
}

func TestOpenStoreUnknownDriver(t *testing.T) {
	cfg := &config.Config{StoreDriver: "sqlite"}

	_, _, _, err := openStore(context.Background(), cfg, log.NewNop())
	if !errors.Is(err, config.ErrInvalidStoreDriver) {
		t.Fatalf("openStore() error = %v, want ErrInvalidStoreDriver", err)
	}
}

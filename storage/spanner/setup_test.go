package spanner

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/cacheoracle/cacheoracle/config"
)

var (
	cfg = config.SpannerEmulator
	ctx = context.Background()
)

func TestMain(m *testing.M) {
	if os.Getenv("SPANNER_EMULATOR_HOST") == "" {
		fmt.Println("SPANNER_EMULATOR_HOST is not set, skip the spanner tests")
		os.Exit(0)
	}
	if err := CreateInstance(ctx, cfg.DatabaseURI()); err != nil {
		panic(fmt.Sprintf("create instance error: %v", err))
	}
	if err := CreateDatabase(ctx, cfg.DatabaseURI()); err != nil {
		panic(fmt.Sprintf("create db error: %v", err))
	}
	os.Exit(m.Run())
}

package ledger_test

import (
	"testing"

	"docpipe/internal/config"
	"docpipe/internal/stages"
)

func mustStages(t *testing.T, cfg *config.Config) *stages.Set {
	t.Helper()
	set, err := stages.NewSet(stages.SettingsFromConfig(cfg))
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}
	return set
}

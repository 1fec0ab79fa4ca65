package testsupport

import (
	"testing"

	"sitegrade/internal/config"
	"sitegrade/internal/ledger"
	"sitegrade/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	return st
}

// MustLedger builds a ledger over st using the config's billing settings.
func MustLedger(t testing.TB, st *store.Store, cfg *config.Config) *ledger.Ledger {
	t.Helper()

	return ledger.New(st, ledger.Options{
		StartingBalance:     cfg.StartingBalance(),
		LowBalanceThreshold: cfg.LowBalanceThreshold(),
		MaxRetries:          cfg.Ledger.MaxRetries,
	})
}

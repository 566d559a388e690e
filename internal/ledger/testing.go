package ledger

// SeedBalances is a test helper that overwrites a wallet's balances when using
// the in-memory recorder.
func SeedBalances(r Recorder, walletID string, bal Balances) {
	if mem, ok := r.(*inMemoryRecorder); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.balances[walletID] = bal
	}
}

package refdata

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	blPath := writeFile(t, dir, "blacklist.yaml", `
card_prefixes:
  - "9999"
  - "411111"
merchant_ids:
  - "MRCH-666"
`)
	polPath := writeFile(t, dir, "policy.yaml", `
blocked_categories:
  - "7995"
blocked_keywords:
  - "GAMBLING"
  - "casino"
`)

	snap, err := Load(blPath, polPath)
	require.NoError(t, err)

	assert.True(t, snap.CardBlacklisted("9999123456789012"))
	assert.True(t, snap.CardBlacklisted("4111111111111111"))
	assert.False(t, snap.CardBlacklisted("5500000000000004"))

	assert.True(t, snap.MerchantBlacklisted("MRCH-666"))
	assert.False(t, snap.MerchantBlacklisted("MRCH-001"))

	assert.True(t, snap.CategoryBlocked("7995"))
	assert.False(t, snap.CategoryBlocked("5411"))
}

func TestKeywordMatch_CaseInsensitive(t *testing.T) {
	snap := NewSnapshot(nil, nil, nil, []string{"GAMBLING", "Casino"})

	assert.Equal(t, "gambling", snap.KeywordMatch("ACME GAMBLING SUPPLIES"))
	assert.Equal(t, "gambling", snap.KeywordMatch("acme gambling supplies"))
	assert.Equal(t, "casino", snap.KeywordMatch("Lucky Casino Resort"))
	assert.Equal(t, "", snap.KeywordMatch("Corner Grocery"))
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("does-not-exist.yaml", "also-missing.yaml")
	assert.Error(t, err)
}

func TestProvider_ReloadSwapsSnapshot(t *testing.T) {
	dir := t.TempDir()
	blPath := writeFile(t, dir, "blacklist.yaml", "card_prefixes: [\"1111\"]\n")
	polPath := writeFile(t, dir, "policy.yaml", "blocked_categories: []\n")

	p, err := NewProvider(blPath, polPath, 10*time.Millisecond, slog.Default())
	require.NoError(t, err)
	assert.True(t, p.Current().CardBlacklisted("1111222233334444"))
	assert.False(t, p.Current().CardBlacklisted("2222000000000000"))

	// Rewrite the feed and let the reload loop pick it up.
	writeFile(t, dir, "blacklist.yaml", "card_prefixes: [\"2222\"]\n")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go p.Run(ctx)

	require.Eventually(t, func() bool {
		return p.Current().CardBlacklisted("2222000000000000")
	}, time.Second, 10*time.Millisecond)
}

func TestProvider_KeepsLastGoodOnError(t *testing.T) {
	dir := t.TempDir()
	blPath := writeFile(t, dir, "blacklist.yaml", "card_prefixes: [\"1111\"]\n")
	polPath := writeFile(t, dir, "policy.yaml", "blocked_categories: []\n")

	p, err := NewProvider(blPath, polPath, 10*time.Millisecond, slog.Default())
	require.NoError(t, err)

	// Corrupt the feed; the provider must keep serving the old generation.
	writeFile(t, dir, "blacklist.yaml", ":[ not yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	p.Run(ctx) // blocks until timeout

	assert.True(t, p.Current().CardBlacklisted("1111222233334444"))
}

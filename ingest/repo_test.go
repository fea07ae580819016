package ingest_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nebula-analytics/nebula/ingest"
)

func TestRefreshClassifiesNewExpiredRenew(t *testing.T) {
	now := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

	enum := ingest.StaticEnumerator{ByTable: map[string][]*ingest.Spec{
		"trends": {
			{ID: "2026-01-01", Table: "trends", Size: 100},
			{ID: "2026-01-02", Table: "trends", Size: 200},
		},
	}}
	repo := ingest.NewRepo(enum)
	repo.RegisterSource(ingest.TableSource{Table: "trends", Kind: ingest.Roll, RetentionDays: 7})

	diff, err := repo.Refresh(now)
	require.NoError(t, err)
	assert.Len(t, diff.New, 2)
	assert.Empty(t, diff.Expired)
	assert.Empty(t, diff.Renewed)

	// Second refresh: 2026-01-01 dropped (aged out of retention),
	// 2026-01-02 renewed with a larger file, 2026-01-03 newly discovered.
	enum.ByTable["trends"] = []*ingest.Spec{
		{ID: "2026-01-02", Table: "trends", Size: 250},
		{ID: "2026-01-03", Table: "trends", Size: 90},
	}
	diff, err = repo.Refresh(now.Add(24 * time.Hour))
	require.NoError(t, err)
	require.Len(t, diff.New, 1)
	assert.Equal(t, "2026-01-03", diff.New[0].ID)
	require.Len(t, diff.Renewed, 1)
	assert.Equal(t, "2026-01-02", diff.Renewed[0].ID)
	assert.Equal(t, int64(250), diff.Renewed[0].Size)
	require.Len(t, diff.Expired, 2) // old 01-01 entry + old-signature 01-02 entry
}

func TestShouldExpireUnknownOrReassigned(t *testing.T) {
	enum := ingest.StaticEnumerator{ByTable: map[string][]*ingest.Spec{
		"trends": {{ID: "2026-01-01", Table: "trends", Size: 100}},
	}}
	repo := ingest.NewRepo(enum)
	repo.RegisterSource(ingest.TableSource{Table: "trends", Kind: ingest.Swap})
	_, err := repo.Refresh(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	sig := ingest.Signature("2026-01-01", 100)
	assert.True(t, repo.ShouldExpire(sig, "node-a")) // no affinity assigned yet

	repo.MarkReady(sig, "node-a")
	assert.False(t, repo.ShouldExpire(sig, "node-a"))
	assert.True(t, repo.ShouldExpire(sig, "node-b"))
	assert.True(t, repo.ShouldExpire("unknown@1", "node-a"))
}

func TestPendingIngestion(t *testing.T) {
	enum := ingest.StaticEnumerator{ByTable: map[string][]*ingest.Spec{
		"trends": {{ID: "2026-01-01", Table: "trends", Size: 100}},
	}}
	repo := ingest.NewRepo(enum)
	repo.RegisterSource(ingest.TableSource{Table: "trends", Kind: ingest.Swap})
	_, err := repo.Refresh(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	pending := repo.PendingIngestion()
	require.Len(t, pending, 1)

	repo.MarkReady(pending[0].Signature(), "node-a")
	assert.Empty(t, repo.PendingIngestion())
}

package repository

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cobrafacil/reconciler/internal/domain"
)

func newTestDB(t *testing.T) *AliasRepo {
	t.Helper()
	db, err := InitDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewAliasRepo(db)
}

func alias(key, target, by string) *domain.PayerAlias {
	return &domain.PayerAlias{
		NormalizedKey: key,
		TargetKind:    domain.TargetAccount,
		TargetID:      target,
		Provenance:    domain.ProvenanceManual,
		CreatedBy:     by,
		CreatedAt:     time.Now().UTC(),
	}
}

func TestAliasIDDeterministic(t *testing.T) {
	t.Parallel()

	a := AliasID("JUAN PEREZ", domain.TargetAccount, "ACC-1")
	b := AliasID("JUAN PEREZ", domain.TargetAccount, "ACC-1")
	require.Equal(t, a, b)
	require.NotEqual(t, a, AliasID("JUAN PEREZ", domain.TargetAccount, "ACC-2"))
	require.NotEqual(t, a, AliasID("JUAN PEREZ", domain.TargetPayer, "ACC-1"))
}

func TestAliasUpsertIdempotent(t *testing.T) {
	t.Parallel()
	repo := newTestDB(t)

	changed, err := repo.Upsert(alias("JUAN PEREZ", "ACC-1", "op1"))
	require.NoError(t, err)
	require.True(t, changed)

	// Repeating the identical confirmation writes nothing.
	changed, err = repo.Upsert(alias("JUAN PEREZ", "ACC-1", "op2"))
	require.NoError(t, err)
	require.False(t, changed)

	n, err := repo.Count()
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestAliasOverwriteIsAudited(t *testing.T) {
	t.Parallel()
	repo := newTestDB(t)

	_, err := repo.Upsert(alias("JUAN PEREZ", "ACC-1", "op1"))
	require.NoError(t, err)

	// Last-confirmed-wins, with the previous target retained.
	changed, err := repo.Upsert(alias("JUAN PEREZ", "ACC-2", "op2"))
	require.NoError(t, err)
	require.True(t, changed)

	got, err := repo.Lookup("JUAN PEREZ", domain.TargetAccount)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "ACC-2", got.TargetID)
	require.Equal(t, "ACC-1", got.PrevTargetID)
	require.Equal(t, "op2", got.UpdatedBy)
	require.NotNil(t, got.UpdatedAt)

	n, err := repo.Count()
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestAliasLoadAll(t *testing.T) {
	t.Parallel()
	repo := newTestDB(t)

	_, err := repo.Upsert(alias("JUAN PEREZ", "ACC-1", "op"))
	require.NoError(t, err)
	_, err = repo.Upsert(alias("ANA LOPEZ", "ACC-2", "op"))
	require.NoError(t, err)

	m, err := repo.LoadAll()
	require.NoError(t, err)
	require.Len(t, m, 2)
	require.Equal(t, "ACC-1", m["JUAN PEREZ"].TargetID)
	require.Equal(t, "ACC-2", m["ANA LOPEZ"].TargetID)

	missing, err := repo.Lookup("NOBODY", domain.TargetAccount)
	require.NoError(t, err)
	require.Nil(t, missing)
}

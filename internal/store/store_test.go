package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codalotl/skilleval/internal/rules"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "db", "scores.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndReadBack(t *testing.T) {
	t.Parallel()

	s := openTemp(t)
	ctx := context.Background()
	rows := []rules.Fields{
		{"run_id": "b", "model": "opus", "condition": "none", "auto_score": "3", "scored_rules": "12", "rule_1_detail": "x"},
		{"run_id": "a", "model": "opus", "condition": "none", "auto_score": "5", "scored_rules": "12"},
		{"run_id": "c", "model": "opus", "condition": "markdown", "auto_score": "", "scored_rules": "12"},
	}
	id := uuid.NewString()
	require.NoError(t, s.Save(ctx, Batch{ID: id, Domain: "terraform", Files: 4, Failed: 1}, rows))

	got, err := s.Rows(ctx, id)
	require.NoError(t, err)
	if diff := cmp.Diff(rows, got); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}

	batches, err := s.Batches(ctx)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, "terraform", batches[0].Domain)
	assert.Equal(t, 4, batches[0].Files)
	assert.Equal(t, 1, batches[0].Failed)
	assert.WithinDuration(t, time.Now(), batches[0].Created, time.Minute)

	means, err := s.MeanScores(ctx, "terraform")
	require.NoError(t, err)
	assert.Equal(t, map[[2]string]float64{{"opus", "none"}: 4}, means)
}

func TestSaveRejectsDuplicateBatch(t *testing.T) {
	t.Parallel()

	s := openTemp(t)
	ctx := context.Background()
	b := Batch{ID: "fixed", Domain: "chart"}
	require.NoError(t, s.Save(ctx, b, []rules.Fields{{"run_id": "r"}}))
	require.Error(t, s.Save(ctx, b, []rules.Fields{{"run_id": "r2"}}))

	got, err := s.Rows(ctx, "fixed")
	require.NoError(t, err)
	require.Len(t, got, 1, "failed save must roll back")

	require.Error(t, s.Save(ctx, Batch{}, nil))
}

func TestReopenKeepsData(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "scores.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Save(context.Background(), Batch{ID: "one", Domain: "sql-query"}, []rules.Fields{{"run_id": "r"}}))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	batches, err := s.Batches(context.Background())
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, "one", batches[0].ID)
}

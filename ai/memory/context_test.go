package memory

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/mnemo/internal/testutil"
)

func TestContextBuilder_Build(t *testing.T) {
	ctx := context.Background()
	st := testutil.NewSQLiteStore(t, testDims)
	svc := newTestService(t, st, nil)
	builder := NewContextBuilder(svc, nil, nil)

	out, err := builder.Build(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, out)

	_, err = svc.AppendDaily(ctx, "alice", "first note")
	require.NoError(t, err)
	_, err = svc.AppendDaily(ctx, "alice", "second note")
	require.NoError(t, err)

	out, err = builder.Build(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "## Today's Notes\nfirst note\nsecond note", out)

	_, err = svc.ReplaceLongTerm(ctx, "alice", "## Profile\n- Name: Ryan")
	require.NoError(t, err)

	out, err = builder.Build(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "## Long-term Memory\n## Profile\n- Name: Ryan\n\n## Today's Notes\nfirst note\nsecond note", out)
}

func TestContextBuilder_BuildSemantic(t *testing.T) {
	ctx := context.Background()
	st := testutil.NewSQLiteStore(t, testDims)
	svc := newTestService(t, st, nil)
	emb := testutil.NewStubEmbedder(testDims)
	builder := NewContextBuilder(svc, newTestSearcher(st, emb, DefaultSearcherConfig()), nil)

	_, err := svc.ReplaceLongTerm(ctx, "alice", "Name: Ryan")
	require.NoError(t, err)
	_, err = svc.AppendDaily(ctx, "alice", "User prefers dark mode")
	require.NoError(t, err)

	// Nothing embedded yet: plain context.
	plain, err := builder.Build(ctx, "alice")
	require.NoError(t, err)
	out, err := builder.BuildSemantic(ctx, "alice", "dark mode")
	require.NoError(t, err)
	assert.Equal(t, plain, out)

	embedPending(t, st, emb)

	out, err = builder.BuildSemantic(ctx, "alice", "dark mode")
	require.NoError(t, err)
	assert.Contains(t, out, "## Long-term Memory\nName: Ryan\n\n## Relevant Memories (semantic)\n- [daily (")
	assert.Contains(t, out, "] User prefers dark mode\n\n## Today's Notes\nUser prefers dark mode")

	// Provider failure falls back to the plain context.
	emb.FailWith(errors.New("boom"), -1)
	out, err = builder.BuildSemantic(ctx, "alice", "something new")
	require.NoError(t, err)
	assert.Equal(t, plain, out)
}

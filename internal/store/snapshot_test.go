package store_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkessler/quern/internal/store"
	"github.com/mkessler/quern/internal/store/mocks"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuilderCachesSnapshot(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	cs := mocks.NewMockContentStore(ctrl)
	cs.EXPECT().List(gomock.Any(), "").Return([]string{"a.md", "b.md"}, nil).Times(1)
	cs.EXPECT().Read(gomock.Any(), "a.md").Return("see [b](b.md)", nil).Times(1)
	cs.EXPECT().Read(gomock.Any(), "b.md").Return("leaf", nil).Times(1)

	b := store.NewBuilder(cs, testLogger())
	ctx := context.Background()

	first, err := b.Build(ctx)
	require.NoError(t, err)
	assert.Equal(t, "leaf", first.FileContents["b.md"])
	assert.Equal(t, []string{"b.md"}, first.LinkGraph["a.md"])
	assert.NotEmpty(t, first.Digest)

	// Second build must come from the cache: the mock allows one List/Read set.
	second, err := b.Build(ctx)
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestBuilderInvalidateForcesReread(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	cs := mocks.NewMockContentStore(ctrl)
	cs.EXPECT().List(gomock.Any(), "").Return([]string{"a.md"}, nil).Times(2)
	gomock.InOrder(
		cs.EXPECT().Read(gomock.Any(), "a.md").Return("before", nil),
		cs.EXPECT().Read(gomock.Any(), "a.md").Return("after", nil),
	)

	b := store.NewBuilder(cs, testLogger())
	ctx := context.Background()

	first, err := b.Build(ctx)
	require.NoError(t, err)

	b.Invalidate()

	second, err := b.Build(ctx)
	require.NoError(t, err)
	assert.Equal(t, "after", second.FileContents["a.md"])
	assert.NotEqual(t, first.Digest, second.Digest)
}

func TestBuilderPropagatesStoreErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	cs := mocks.NewMockContentStore(ctrl)
	cs.EXPECT().List(gomock.Any(), "").Return(nil, errors.New("disk gone"))

	b := store.NewBuilder(cs, testLogger())
	_, err := b.Build(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk gone")
}

func TestTaskContextCarriesMetadata(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	cs := mocks.NewMockContentStore(ctrl)
	cs.EXPECT().List(gomock.Any(), "").Return([]string{"a.md"}, nil)
	cs.EXPECT().Read(gomock.Any(), "a.md").Return("content", nil)

	b := store.NewBuilder(cs, testLogger())
	tc, err := b.TaskContext(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "content", tc.FileContents["a.md"])
	assert.Equal(t, "1", tc.Metadata["file_count"])
	assert.NotEmpty(t, tc.Metadata["digest"])
}

package github

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pagesOf(sizes ...int) (pageFunc[int], *[]int) {
	var requested []int
	return func(_ context.Context, page int) ([]int, error) {
		requested = append(requested, page)
		if page > len(sizes) {
			return nil, nil
		}
		return make([]int, sizes[page-1]), nil
	}, &requested
}

func TestPaginate_StopsOnShortPage(t *testing.T) {
	fetch, requested := pagesOf(3, 3, 1, 3)

	total := 0
	for batch, err := range paginate(context.Background(), 3, fetch) {
		require.NoError(t, err)
		total += len(batch)
	}

	assert.Equal(t, 7, total)
	assert.Equal(t, []int{1, 2, 3}, *requested)
}

func TestPaginate_EmptyPageAfterFullPage(t *testing.T) {
	fetch, requested := pagesOf(3)

	batches := 0
	for _, err := range paginate(context.Background(), 3, fetch) {
		require.NoError(t, err)
		batches++
	}

	assert.Equal(t, 2, batches)
	assert.Equal(t, []int{1, 2}, *requested)
}

func TestPaginate_ConsumerBreakStopsRequests(t *testing.T) {
	fetch, requested := pagesOf(3, 3, 3, 3)

	for range paginate(context.Background(), 3, fetch) {
		break
	}

	assert.Equal(t, []int{1}, *requested)
}

func TestPaginate_ErrorEndsSequence(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	fetch := func(_ context.Context, page int) ([]int, error) {
		calls++
		if page == 2 {
			return nil, boom
		}
		return []int{1, 2}, nil
	}

	var errs []error
	batches := 0
	for batch, err := range paginate(context.Background(), 2, fetch) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		batches += len(batch)
	}

	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, batches)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], boom)
}

func TestPaginate_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fetch, requested := pagesOf(3)
	for _, err := range paginate(ctx, 3, fetch) {
		assert.ErrorIs(t, err, context.Canceled)
	}

	assert.Empty(t, *requested)
}

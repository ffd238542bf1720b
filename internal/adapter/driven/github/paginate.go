package github

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"

	gh "github.com/google/go-github/v82/github"

	"github.com/nanocasa/casa/internal/domain/port/driven"
)

// pageFunc fetches a single 1-based page.
type pageFunc[T any] func(ctx context.Context, page int) ([]T, error)

// paginate returns a lazy sequence of batches. The next page is requested only
// while the previous batch was full; a short page ends the sequence. An error
// is yielded once and ends the sequence. Breaking out of the range stops
// further requests.
func paginate[T any](ctx context.Context, perPage int, fetch pageFunc[T]) iter.Seq2[[]T, error] {
	return func(yield func([]T, error) bool) {
		for page := 1; ; page++ {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}

			batch, err := fetch(ctx, page)
			if err != nil {
				yield(nil, err)
				return
			}

			if !yield(batch, nil) {
				return
			}

			if len(batch) < perPage {
				return
			}
		}
	}
}

// classifyError maps an upstream failure onto the port sentinels so callers
// can decide between skip-and-warn and failure with errors.Is.
func classifyError(resp *gh.Response, err error, what string) error {
	var rateErr *gh.RateLimitError
	var abuseErr *gh.AbuseRateLimitError
	if errors.As(err, &rateErr) || errors.As(err, &abuseErr) {
		return fmt.Errorf("%s: %w: %w", what, driven.ErrRateLimited, err)
	}

	if resp != nil {
		switch resp.StatusCode {
		case http.StatusNotFound, http.StatusConflict:
			return fmt.Errorf("%s: %w: %w", what, driven.ErrUpstreamNotFound, err)
		case http.StatusForbidden, http.StatusTooManyRequests:
			return fmt.Errorf("%s: %w: %w", what, driven.ErrRateLimited, err)
		}
	}

	return fmt.Errorf("%s: %w", what, err)
}

package stage

import (
	"context"
	"fmt"

	"github.com/3leaps/genoroute/pkg/artifact"
	"github.com/3leaps/genoroute/pkg/provider"
)

// Resolution is the outcome of a sibling lookup.
type Resolution struct {
	// Key is the unique match. Empty unless exactly one candidate matched.
	Key artifact.Key

	// Matches lists every candidate seen, in listing order.
	Matches []artifact.Key

	// Prefix is the listed prefix.
	Prefix string

	// Pages is the number of listing pages read.
	Pages int

	// Truncated is true when the listing stopped at maxPages with more
	// results available.
	Truncated bool
}

// ResolveSibling lists the query prefix for trigger and picks the unique
// companion artifact.
//
// At most maxPages pages are read; values below 1 read one page. Zero
// matches returns ErrNotReady and more than one returns
// ErrClassificationAmbiguous. The Resolution is returned in every case so
// callers can log what was seen.
func ResolveSibling(ctx context.Context, lister provider.Lister, bucket string, trigger artifact.Key, q SiblingQuery, maxPages int) (*Resolution, error) {
	prefix, err := q.Prefix(trigger)
	if err != nil {
		return nil, err
	}
	if maxPages < 1 {
		maxPages = 1
	}

	res := &Resolution{Prefix: prefix}
	token := ""
	for {
		page, err := lister.List(ctx, provider.ListOptions{
			Bucket:            bucket,
			Prefix:            prefix,
			ContinuationToken: token,
		})
		if err != nil {
			return res, fmt.Errorf("list siblings under %s: %w", artifact.URI(bucket, prefix), err)
		}
		res.Pages++

		for _, obj := range page.Objects {
			k := artifact.Key(obj.Key)
			if q.Matches(trigger, k) {
				res.Matches = append(res.Matches, k)
			}
		}

		if !page.IsTruncated || page.ContinuationToken == "" {
			break
		}
		if res.Pages >= maxPages {
			res.Truncated = true
			break
		}
		token = page.ContinuationToken
	}

	switch len(res.Matches) {
	case 0:
		return res, fmt.Errorf("%w: no %s under %s", ErrNotReady, q.Suffix, artifact.URI(bucket, prefix))
	case 1:
		res.Key = res.Matches[0]
		return res, nil
	default:
		return res, fmt.Errorf("%w: %d %s candidates under %s", ErrClassificationAmbiguous, len(res.Matches), q.Suffix, artifact.URI(bucket, prefix))
	}
}

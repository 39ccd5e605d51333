//go:build cloudintegration

package tagging_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/genoroute/pkg/provider/s3"
	"github.com/3leaps/genoroute/pkg/tagging"
	"github.com/3leaps/genoroute/test/cloudtest"
)

func TestTagger_Apply_CloudIntegration(t *testing.T) {
	cloudtest.SkipIfUnavailable(t)
	ctx := context.Background()

	bucket := cloudtest.CreateBucket(t, ctx)
	p, err := s3.New(ctx, cloudtest.ProviderConfig())
	require.NoError(t, err)
	tagger, err := tagging.NewTagger(p, false)
	require.NoError(t, err)

	for _, key := range []string{
		"proj/s1/dragen/s1.cram",
		"proj/s1/dragen/s1.bam",
		"proj/s1/reports/s1.json",
	} {
		t.Run(key, func(t *testing.T) {
			raw := cloudtest.PutArtifact(t, ctx, bucket, key)

			res, err := tagger.Apply(ctx, raw)
			require.NoError(t, err)

			want := map[string]string{}
			for _, tag := range res.Tags {
				want[tag.Key] = tag.Value
			}
			assert.Equal(t, want, cloudtest.ObjectTags(t, ctx, bucket, key))
		})
	}
}

// Package tagging assigns lifecycle tags to newly created pipeline artifacts.
//
// The policy is a fixed precedence table: archival artifacts are kept,
// merged NIAID alignments are kept, other alignments are marked for
// deletion, and everything else gets the default all-"no" tag set.
package tagging

import (
	"strings"

	"github.com/3leaps/genoroute/pkg/artifact"
	"github.com/3leaps/genoroute/pkg/provider"
)

// Lifecycle tag keys, in the order they are written.
const (
	TagArchive      = "hgsccl:archive"
	TagCVLDelivered = "hgsccl:cvl-delivered"
	TagDRCDelivered = "hgsccl:drc-delivered"
	TagDelete       = "hgsccl:delete"
)

// Rule names the policy branch that produced a tag set.
type Rule string

const (
	RuleArchive   Rule = "archive"
	RuleMergedBAM Rule = "niaid_merge_bam"
	RuleDelete    Rule = "delete"
	RuleDefault   Rule = "default"
)

// ArchivalSuffixes mark artifacts that are always archived.
var ArchivalSuffixes = []string{
	".cram",
	"vcf.gz",
	".fastq.gz",
	".hard-filtered_INDEL_Annotated.vcf",
	".hard-filtered_SNP_Annotated.vcf",
}

var mergeMarkers = []string{".bam", "niaid", "merges"}

// Classify returns the policy rule for bucket/key.
func Classify(bucket, key string) Rule {
	switch {
	case hasAnySuffix(key, ArchivalSuffixes):
		return RuleArchive
	case isMergedBAM(bucket, key):
		return RuleMergedBAM
	case strings.HasSuffix(key, ".bam"):
		return RuleDelete
	default:
		return RuleDefault
	}
}

// TagSet returns the ordered tag set for rule.
func TagSet(rule Rule) []provider.Tag {
	archive, del := "no", "no"
	switch rule {
	case RuleArchive, RuleMergedBAM:
		archive = "yes"
	case RuleDelete:
		del = "yes"
	}
	return []provider.Tag{
		{Key: TagArchive, Value: archive},
		{Key: TagCVLDelivered, Value: "no"},
		{Key: TagDRCDelivered, Value: "no"},
		{Key: TagDelete, Value: del},
	}
}

// For classifies bucket/key and returns its rule and tag set.
func For(bucket, key string) (Rule, []provider.Tag) {
	rule := Classify(bucket, key)
	return rule, TagSet(rule)
}

// isMergedBAM matches the full s3:// URI, so a marker in the bucket name
// counts as well as one in the key.
func isMergedBAM(bucket, key string) bool {
	uri := artifact.URI(bucket, key)
	for _, m := range mergeMarkers {
		if !strings.Contains(uri, m) {
			return false
		}
	}
	return true
}

func hasAnySuffix(s string, suffixes []string) bool {
	for _, suf := range suffixes {
		if strings.HasSuffix(s, suf) {
			return true
		}
	}
	return false
}

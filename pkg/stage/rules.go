package stage

import (
	"strings"

	"github.com/3leaps/genoroute/pkg/artifact"
	"github.com/3leaps/genoroute/pkg/job"
)

func hasSuffix(k artifact.Key, suffix string) bool {
	return strings.HasSuffix(string(k), suffix)
}

// vcfStageFile matches the renamed VCF outputs of the liftover chain.
func vcfStageFile(k artifact.Key, prefix string) bool {
	return strings.HasPrefix(k.Name(), prefix) &&
		hasSuffix(k, SuffixHardFiltered) &&
		!k.HasSegment(ExcludedSegment)
}

var alignStatsRule = Rule{
	Stage:      AlignStats,
	Purpose:    "alignstats",
	Queue:      QueueReports,
	Definition: DefAlignStats,
	Project:    ProjectAoU,
	match: func(k artifact.Key) bool {
		return hasSuffix(k, SuffixBAM) || hasSuffix(k, SuffixCRAM)
	},
	derive: func(in Input, spec *job.Spec) error {
		anc, err := in.Key.Ancestor(2)
		if err != nil {
			return err
		}
		stem := in.Key.Stem()
		input := artifact.URI(in.Bucket, string(in.Key))
		out := artifact.URI(in.Bucket, anc+"/reports/AlignStats/"+stem+".alignstats.json")

		spec.Name = "alignstats_" + job.SafeName(stem)
		spec.Command = []string{
			"-v",
			"-i", input,
			"-m", AlignStatsMaskBed,
			"-o", out,
			"-C",
			"-r", AlignStatsRegionsBed,
			"-P", "1",
			"-F", "2048",
			"-b", "3",
			"-O",
		}
		if strings.HasSuffix(input, SuffixCRAM) {
			spec.Command = append(spec.Command, "-T", GRCh38Fasta)
		}
		spec.OutputLocation = out
		spec.Inputs = []string{input}
		return nil
	},
}

var verifyBamIDRule = Rule{
	Stage:      VerifyBamID,
	Purpose:    "verifybamid",
	Queue:      QueueReports,
	Definition: DefVerifyBamID,
	Project:    ProjectAoU,
	match: func(k artifact.Key) bool {
		return hasSuffix(k, SuffixBAM)
	},
	derive: func(in Input, spec *job.Spec) error {
		anc, err := in.Key.Ancestor(2)
		if err != nil {
			return err
		}
		stem := in.Key.Stem()
		input := artifact.URI(in.Bucket, string(in.Key))
		out := artifact.URI(in.Bucket, anc+"/reports/VerifyBamID/"+stem)

		spec.Name = "verifyBamID_" + job.SafeName(stem)
		spec.Command = []string{
			"--bam", input,
			"--vcf", VerifyBamIDSitesVCF,
			"--out", out,
			"--verbose",
			"--ignoreRG",
			"--noPhoneHome",
		}
		spec.OutputLocation = out
		spec.Inputs = []string{input}
		return nil
	},
}

var intersectRule = Rule{
	Stage:      Intersect,
	Purpose:    "intersect",
	Queue:      QueueReportsPlus,
	Definition: DefIntersect,
	Project:    ProjectAoU,
	match: func(k artifact.Key) bool {
		return hasSuffix(k, SuffixHardFilteredGz) && !k.HasSegment(ExcludedSegment)
	},
	derive: func(in Input, spec *job.Spec) error {
		anc, err := in.Key.Ancestor(2)
		if err != nil {
			return err
		}
		sample, _, _ := strings.Cut(in.Key.Stem(), SuffixHardFiltered)
		input := artifact.URI(in.Bucket, string(in.Key))
		ploidy := artifact.URI(in.Bucket, anc+"/dragen/"+sample+".wgs_ploidy.csv")
		out := artifact.URI(in.Bucket, anc+"/liftover")

		spec.Name = "intersect_" + job.SafeName(sample)
		spec.Command = []string{
			"-a", input,
			"-o", out,
			"-p", ploidy,
			"-b", IntersectBed,
		}
		spec.OutputLocation = out
		spec.Inputs = []string{input, ploidy}
		return nil
	},
}

var preprocessingRule = Rule{
	Stage:      Preprocessing,
	Purpose:    "preprocessing",
	Queue:      QueueReports,
	Definition: DefPreprocessing,
	Project:    ProjectAoU,
	match: func(k artifact.Key) bool {
		return vcfStageFile(k, PrefixIntersect)
	},
	derive: func(in Input, spec *job.Spec) error {
		dir, err := in.Key.Ancestor(1)
		if err != nil {
			return err
		}
		root, _ := in.Key.SplitExt()
		input := artifact.URI(in.Bucket, string(in.Key))
		out := artifact.URI(in.Bucket, dir+"/")

		spec.Name = "preprocessing_" + job.SafeName(root)
		spec.Command = []string{input, out}
		spec.OutputLocation = out
		spec.Inputs = []string{input}
		return nil
	},
}

var liftoverRule = Rule{
	Stage:      Liftover,
	Purpose:    "liftover",
	Queue:      QueueReports,
	Definition: DefLiftover,
	Project:    ProjectAoU,
	match: func(k artifact.Key) bool {
		return vcfStageFile(k, PrefixPreprocessing)
	},
	derive: func(in Input, spec *job.Spec) error {
		dir, err := in.Key.Ancestor(1)
		if err != nil {
			return err
		}
		input := artifact.URI(in.Bucket, string(in.Key))
		out := artifact.URI(in.Bucket, dir+"/Liftover_"+in.Key.Name())

		spec.Name = "liftover_" + job.SafeName(in.Key.Stem())
		spec.Command = []string{
			"-i", input,
			"-o", out,
			"-c", LiftoverChain,
			"-r", HS37D5Fasta,
		}
		spec.OutputLocation = out
		spec.Inputs = []string{input}
		return nil
	},
}

// stargazerCompanion maps a lifted-over VCF name to its DRAGEN gVCF name.
func stargazerCompanion(name, ext string) string {
	out := strings.ReplaceAll(name, ".vcf", ext)
	for _, token := range []string{PrefixLiftover, "CVL_PGX.", "CVL_HDR."} {
		out = strings.ReplaceAll(out, token, "")
	}
	return out
}

var stargazerRule = Rule{
	Stage:      Stargazer,
	Purpose:    "stargazer",
	Queue:      QueueReports,
	Definition: DefStargazer,
	Project:    ProjectAoU,
	match: func(k artifact.Key) bool {
		if strings.Contains(string(k), StargazerDenyMarker) {
			return false
		}
		return vcfStageFile(k, PrefixLiftover)
	},
	derive: func(in Input, spec *job.Spec) error {
		anc, err := in.Key.Ancestor(2)
		if err != nil {
			return err
		}
		name := in.Key.Name()
		dragen := anc + "/dragen/"
		input := artifact.URI(in.Bucket, string(in.Key))
		gvcf := artifact.URI(in.Bucket, dragen+stargazerCompanion(name, ".gvcf.gz"))
		gvcfIndex := artifact.URI(in.Bucket, dragen+stargazerCompanion(name, ".gvcf.gz.tbi"))
		outDir := artifact.URI(in.Bucket, anc+"/stargazer/")

		spec.Name = "Stargazer_" + job.SafeName(in.Key.Stem())
		spec.Command = []string{
			"--vcf", input,
			"-t", "all",
			"--data", "wgs",
			"--output_dir", outDir,
			"-o", "Stargazer_" + name,
			"--gvcf", gvcf,
			"--gvcf_index", gvcfIndex,
			"--pgx_bed", StargazerPGxBed,
			"--grch38_fasta", GRCh38Fasta,
			"--header", StargazerHeader,
			"--pgx_bed_38", StargazerPGxBed38,
		}
		spec.OutputLocation = outDir
		spec.Inputs = []string{input, gvcf, gvcfIndex}
		return nil
	},
}

var intervarRule = Rule{
	Stage:      Intervar,
	Purpose:    "intervar",
	Queue:      QueueIntervar,
	Definition: DefIntervar,
	Project:    ProjectAoU,
	match: func(k artifact.Key) bool {
		return vcfStageFile(k, PrefixLiftover)
	},
	derive: func(in Input, spec *job.Spec) error {
		anc, err := in.Key.Ancestor(2)
		if err != nil {
			return err
		}
		root, _ := in.Key.SplitExt()
		input := artifact.URI(in.Bucket, string(in.Key))
		out := artifact.URI(in.Bucket, anc+"/Intervar_"+root)

		spec.Name = "intervar_" + job.SafeName(in.Key.Stem())
		spec.Command = []string{
			"--buildver", IntervarBuildVersion,
			"--input", input,
			"--input_type=VCF",
			"--output", out,
		}
		spec.OutputLocation = out
		spec.Inputs = []string{input}
		return nil
	},
}

var cassandraRule = Rule{
	Stage:      Cassandra,
	Purpose:    "cassandra",
	Queue:      QueueIntervar,
	Definition: DefCassandra,
	Project:    ProjectNIAID,
	Sibling:    &SiblingQuery{Suffix: SuffixHardFilteredGz, Level: 2},
	match: func(k artifact.Key) bool {
		return hasSuffix(k, SuffixPileup)
	},
	derive: func(in Input, spec *job.Spec) error {
		anc, err := in.Key.Ancestor(2)
		if err != nil {
			return err
		}
		pileup := artifact.URI(in.Bucket, string(in.Key))
		vcf := artifact.URI(in.Bucket, string(in.Sibling))
		out := artifact.URI(in.Bucket, anc+"/cassandra/")

		spec.Name = "cassandra_" + job.SafeName(in.Key.Stem())
		spec.Command = []string{
			"-i", vcf,
			"-p", pileup,
			"-o", out,
		}
		spec.OutputLocation = out
		spec.Inputs = []string{vcf, pileup}
		return nil
	},
}

// mpileupDerive builds the mpileup command from whichever of the pair
// triggered the event.
func mpileupDerive(triggerIsVCF bool) func(in Input, spec *job.Spec) error {
	return func(in Input, spec *job.Spec) error {
		anc, err := in.Key.Ancestor(2)
		if err != nil {
			return err
		}
		trigger := artifact.URI(in.Bucket, string(in.Key))
		sibling := artifact.URI(in.Bucket, string(in.Sibling))
		vcf, bam := trigger, sibling
		if !triggerIsVCF {
			vcf, bam = sibling, trigger
		}
		out := artifact.URI(in.Bucket, anc+"/cassandra/")

		spec.Name = "mpileup_cassandra_" + job.SafeName(in.Key.Stem())
		spec.Command = []string{
			"-f", HS37D5Fasta,
			"-l", vcf,
			"-b", bam,
			"-o", out,
		}
		spec.OutputLocation = out
		spec.Inputs = []string{vcf, bam}
		return nil
	}
}

var mpileupVCFRule = Rule{
	Stage:      MpileupVCF,
	Purpose:    "mpileup",
	Queue:      QueueIntervar,
	Definition: DefMpileup,
	Project:    ProjectNIAID,
	Sibling:    &SiblingQuery{Suffix: SuffixBAM, Level: 2},
	match: func(k artifact.Key) bool {
		return hasSuffix(k, SuffixHardFilteredGz) && !k.HasSegment(ExcludedSegment)
	},
	derive: mpileupDerive(true),
}

var mpileupBAMRule = Rule{
	Stage:      MpileupBAM,
	Purpose:    "mpileup",
	Queue:      QueueIntervar,
	Definition: DefMpileup,
	Project:    ProjectNIAID,
	Sibling:    &SiblingQuery{Suffix: SuffixHardFilteredGz, Level: 2},
	match: func(k artifact.Key) bool {
		return hasSuffix(k, SuffixBAM)
	},
	derive: mpileupDerive(false),
}

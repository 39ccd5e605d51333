package stage

// Reference data and fixed infrastructure names consumed by downstream
// containers. These values are part of the contract with each tool and must
// not be reformatted.
const (
	refDataBucket = "s3://hgsccl-op-data"

	AlignStatsMaskBed    = refDataBucket + "/alignstats/masks/GRCh38_1000Genomes_N_regions.bed"
	AlignStatsRegionsBed = refDataBucket + "/alignstats/regions/GRCh38_full_analysis_set_plus_decoy_hla.bed"

	GRCh38Fasta = refDataBucket + "/bwa_references/h/grch38/GRCh38_full_analysis_set_plus_decoy_hla.fa"
	HS37D5Fasta = refDataBucket + "/bwa_references/h/hs37d5/hs37d5.fa"

	VerifyBamIDSitesVCF = refDataBucket + "/verifyBamID/hapmap_3.3.b38.sites.vcf.gz"

	IntersectBed         = refDataBucket + "/Liftover_resources/Bed_file/ACMG59_PGx.combined.grc38.annotated.bed"
	LiftoverChain        = refDataBucket + "/Liftover_resources/Main/hg38ToHg19.over.translate.chain"
	StargazerPGxBed      = refDataBucket + "/Liftover_resources/stargazer/PGx.bed"
	StargazerPGxBed38    = refDataBucket + "/Liftover_resources/stargazer/PGx.grc38.bed"
	StargazerHeader      = refDataBucket + "/Liftover_resources/stargazer/header.hdr"
	IntervarBuildVersion = "hg19"
)

// Queues.
const (
	QueueReports     = "reports-queue-prod"
	QueueReportsPlus = "reports-plus-queue-prod"
	QueueIntervar    = "intervar-queue-prod"
)

// Job definitions.
const (
	DefAlignStats    = "reports-alignstats-prod"
	DefVerifyBamID   = "reports-verifyBamID-prod"
	DefIntersect     = "liftover-intersect-prod"
	DefPreprocessing = "liftover-preprocessing-prod"
	DefLiftover      = "liftover-prod"
	DefStargazer     = "stargazer-prod"
	DefIntervar      = "intervar-prod"
	DefCassandra     = "cassandra-cassandra-prod"
	DefMpileup       = "aws-mpileup-prod"
)

// Tag and parameter values shared by every forward stage.
const (
	ProjectAoU   = "AoU"
	ProjectNIAID = "niaid"

	SubmittingUser = "lambda"
	Environment    = "prod"

	TagProject = "hgsccl:project"
	TagPurpose = "hgsccl:purpose"
	TagEnv     = "hgsccl:env"
	TagUser    = "user"
)

// Naming tokens. Each stage's output carries a distinct prefix so that
// re-ingestion of an output never re-matches the stage that produced it.
const (
	SuffixBAM            = ".bam"
	SuffixCRAM           = ".cram"
	SuffixHardFiltered   = ".hard-filtered.vcf"
	SuffixHardFilteredGz = ".hard-filtered.vcf.gz"
	SuffixPileup         = ".SAMTOOLS_pileup"

	PrefixIntersect     = "Intersect_"
	PrefixPreprocessing = "Preprocessing_Intersect_"
	PrefixLiftover      = "Liftover_Preprocessing_Intersect_"

	ExcludedSegment = "fastqs"

	// StargazerDenyMarker excludes header-only CVL outputs from stargazer.
	StargazerDenyMarker = "CVL_HDR"
)

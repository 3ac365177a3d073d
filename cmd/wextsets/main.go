// wextsets enumerates gene sets of a fixed size over an alteration dataset
// and tests each for mutual exclusivity, writing p- and q-values as TSV.
package main

import (
	"context"
	"flag"
	"log"
	"os"

	"cloud.google.com/go/storage"
	"github.com/carbocation/pfx"
	"github.com/carbocation/wext"
	"github.com/carbocation/wext/compileinfo"
	"github.com/carbocation/wext/config"
	"github.com/carbocation/wext/exclusivity"
	"github.com/carbocation/wext/fdr"
	"github.com/carbocation/wext/mutation"
	"github.com/carbocation/wext/permute"
	"github.com/carbocation/wext/weights"
	"github.com/rs/zerolog"
)

type options struct {
	mutationsFile  string
	weightsFile    string
	permDirs       flagSlice
	output         string
	mode           exclusivity.Mode
	k              int
	minFreq        int
	workers        int
	ptol           float64
	fdrMethod      fdr.Method
	reportInvalids bool
	detectDelim    bool
	verbose        int
}

func main() {
	var opts options
	var mode, fdrMethod, configFile string
	var k, minFreq, cores, verbose int
	var ptol float64
	var reportInvalids bool
	flag.StringVar(&opts.mutationsFile, "mutations", "", "Path to the mutation file: one patient per line, followed by its altered genes. May be compressed or on gs://.")
	flag.IntVar(&k, "k", 0, "Gene set size. Defaults to the config value.")
	flag.IntVar(&minFreq, "minfreq", 0, "Only genes altered in at least this many patients are tested. Defaults to the config value.")
	flag.StringVar(&mode, "mode", "", "One of weighted-exact, weighted-saddlepoint, unweighted-exact, permutational. Defaults to the config value.")
	flag.StringVar(&opts.weightsFile, "weights", "", "Weight matrix (.npy) written by wextweights from the same mutation file. Required by the weighted modes.")
	flag.Var(&opts.permDirs, "permdir", "Directory of permuted datasets written by wextweights. Required by the permutational mode. Pass once per alteration type to union them by permutation index.")
	flag.IntVar(&cores, "cores", 0, "Number of concurrent workers. Defaults to the number of CPUs.")
	flag.Float64Var(&ptol, "ptol", 0, "P-values further than this outside [0,1] are reported as invalid. Defaults to the config value.")
	flag.StringVar(&fdrMethod, "fdr", "", "FDR method, BY or BH. Defaults to the config value.")
	flag.StringVar(&opts.output, "output", "", "Path to write the result table (TSV). Local or gs://.")
	flag.BoolVar(&reportInvalids, "report_invalids", false, "Log every set whose p-value was invalid.")
	flag.IntVar(&verbose, "v", -1, "Verbosity, 0 (warnings) to 4 (trace). At 2 and above a p-value histogram is printed. Defaults to the config value.")
	flag.BoolVar(&opts.detectDelim, "detect_delimiter", false, "Sniff the mutation file's delimiter instead of assuming tabs.")
	flag.StringVar(&configFile, "config", "", "Optional YAML, TOML or JSON config file.")
	flag.Parse()

	cfg := config.NewConfig()
	if configFile != "" {
		if err := cfg.LoadFromFile(configFile); err != nil {
			log.Fatalln(err)
		}
	}
	if k > 0 {
		cfg.Set("test.k", k)
	}
	if minFreq > 0 {
		cfg.Set("test.min_freq", minFreq)
	}
	if mode != "" {
		cfg.Set("test.mode", mode)
	}
	if cores > 0 {
		cfg.Set("performance.num_workers", cores)
	}
	if ptol > 0 {
		cfg.Set("test.ptol", ptol)
	}
	if fdrMethod != "" {
		cfg.Set("test.fdr_method", fdrMethod)
	}
	if reportInvalids {
		cfg.Set("test.report_invalids", true)
	}
	if verbose >= 0 {
		cfg.Set("logging.verbose", verbose)
	}

	if opts.mutationsFile == "" || opts.output == "" {
		flag.PrintDefaults()
		log.Fatalln("Please pass -mutations and -output")
	}

	parsed, err := exclusivity.ParseMode(cfg.Mode())
	if err != nil {
		log.Fatalln(err)
	}
	opts.mode = parsed
	if opts.mode.Weighted() && opts.weightsFile == "" {
		log.Fatalf("Mode %v needs -weights\n", opts.mode)
	}
	if opts.mode == exclusivity.Permutational && len(opts.permDirs) == 0 {
		log.Fatalf("Mode %v needs -permdir\n", opts.mode)
	}
	if _, err := fdr.Adjust(nil, fdr.Method(cfg.FDRMethod())); err != nil {
		log.Fatalln(err)
	}
	if cfg.K() < 2 {
		log.Fatalf("Gene sets must contain at least 2 genes, got %d\n", cfg.K())
	}

	opts.k = cfg.K()
	opts.minFreq = cfg.MinFreq()
	opts.workers = cfg.NumWorkers()
	opts.ptol = cfg.PTOL()
	opts.fdrMethod = fdr.Method(cfg.FDRMethod())
	opts.reportInvalids = cfg.ReportInvalids()
	opts.verbose = cfg.Verbose()

	logger := cfg.CreateLogger(os.Stderr, "wextsets")
	compileinfo.Get().Log(&logger)

	if err := run(context.Background(), opts, &logger); err != nil {
		log.Fatalln(err)
	}
}

func run(ctx context.Context, opts options, logger *zerolog.Logger) error {
	var err error
	for _, p := range append([]*string{&opts.mutationsFile, &opts.weightsFile, &opts.output}, permDirPointers(opts.permDirs)...) {
		if *p, err = wext.ExpandHome(*p); err != nil {
			return err
		}
	}

	var client *storage.Client
	if wext.NeedsGoogleStorage(append([]string{opts.mutationsFile, opts.weightsFile, opts.output}, opts.permDirs...)...) {
		client, err = storage.NewClient(ctx)
		if err != nil {
			return pfx.Err(err)
		}
		defer client.Close()
	}

	d, err := loadMutations(ctx, client, opts.mutationsFile, opts.minFreq, opts.detectDelim)
	if err != nil {
		return err
	}
	sets := mutation.Combinations(d.TestGenes, opts.k)
	logger.Info().
		Int("genes", len(d.Genes)).
		Int("test_genes", len(d.TestGenes)).
		Int("patients", d.NumPatients()).
		Int("sets", len(sets)).
		Msg("Loaded mutations")

	var report *exclusivity.Report
	if opts.mode == exclusivity.Permutational {
		groups, err := permutedGroups(ctx, client, opts.permDirs)
		if err != nil {
			return err
		}
		logger.Info().Int("permutations", len(groups)).Msg("Found permuted datasets")

		report, err = exclusivity.PermutationalTester{
			N:           d.NumPatients(),
			GeneToCases: d.GeneToCases,
			Source:      exclusivity.FileSource{Client: client, Groups: groups},
			Workers:     opts.workers,
			PTOL:        opts.ptol,
			FDRMethod:   opts.fdrMethod,
			Logger:      logger,
		}.TestSets(ctx, sets)
		if err != nil {
			return err
		}
	} else {
		tester := exclusivity.Tester{
			Mode:        opts.mode,
			N:           d.NumPatients(),
			GeneToCases: d.GeneToCases,
			Workers:     opts.workers,
			PTOL:        opts.ptol,
			FDRMethod:   opts.fdrMethod,
			Logger:      logger,
		}
		if opts.mode.Weighted() {
			if tester.Weights, err = loadWeights(ctx, client, opts.weightsFile, d); err != nil {
				return err
			}
		}

		if report, err = tester.TestSets(sets); err != nil {
			return err
		}
	}

	if opts.reportInvalids {
		for _, r := range report.Invalid {
			logger.Warn().
				Str("genes", r.Set.Key()).
				Int("T", r.Observation.T).
				Int("Z", r.Observation.Z).
				Ints("table", r.Observation.Table).
				Float64("pvalue", r.PValue).
				Msg("Invalid p-value")
		}
	}

	logRuntimes(logger, report)

	if opts.verbose >= 2 {
		if err := printHistogram(os.Stderr, report); err != nil {
			return err
		}
	}

	if err := writeReport(ctx, client, opts.output, report); err != nil {
		return err
	}
	logger.Info().Str("path", opts.output).Int("rows", len(report.Results)).Msg("Wrote results")

	return nil
}

func permDirPointers(dirs flagSlice) []*string {
	out := make([]*string, len(dirs))
	for i := range dirs {
		out[i] = &dirs[i]
	}
	return out
}

func loadMutations(ctx context.Context, client *storage.Client, p string, minFreq int, detectDelimiter bool) (*mutation.Dataset, error) {
	r, err := wext.MaybeOpenFromGoogleStorage(ctx, p, client)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return mutation.Load(r, mutation.LoadOptions{MinFreq: minFreq, DetectDelimiter: detectDelimiter})
}

// loadWeights reads the weight matrix and checks that it was built from a
// dataset of the same shape.
func loadWeights(ctx context.Context, client *storage.Client, p string, d *mutation.Dataset) (map[string][]float64, error) {
	r, err := wext.MaybeOpenFromGoogleStorage(ctx, p, client)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	P, err := weights.ReadNPY(r)
	if err != nil {
		return nil, err
	}

	if _, n := P.Dims(); n != d.NumPatients() {
		return nil, pfx.Err(errWeightShape(p, n, d.NumPatients()))
	}

	return weights.ByGene(P, d.Genes)
}

// permutedGroups lists every permuted dataset directory and pairs their files
// by permutation index.
func permutedGroups(ctx context.Context, client *storage.Client, dirs []string) ([][]string, error) {
	listings := make([]map[int]string, 0, len(dirs))
	for _, dir := range dirs {
		listing, err := permute.ListDatasets(ctx, client, dir)
		if err != nil {
			return nil, err
		}
		listings = append(listings, listing)
	}

	groups := permute.GroupDatasets(listings...)
	if len(groups) == 0 {
		return nil, pfx.Err(errNoPermutations(dirs))
	}

	return groups, nil
}

// wextweights permutes an alteration dataset with degree-preserving edge
// swaps and writes the resulting gene x patient weight matrix, the permuted
// datasets, or both.
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
	"github.com/carbocation/wext/mutation"
	"github.com/carbocation/wext/permute"
	"github.com/carbocation/wext/weights"
	"github.com/rs/zerolog"
)

func main() {
	var mutationsFile, weightsFile, permDir, configFile string
	var numPermutations, startIndex, swapMultiplier, cores, verbose int
	var seed int64
	var detectDelimiter bool
	flag.StringVar(&mutationsFile, "mutations", "", "Path to the mutation file: one patient per line, followed by its altered genes. May be compressed or on gs://.")
	flag.StringVar(&weightsFile, "weights", "", "Path to write the gene x patient weight matrix (.npy). Local or gs://.")
	flag.StringVar(&permDir, "permdir", "", "Directory in which to write one JSON file per permuted dataset. Local or gs://.")
	flag.IntVar(&numPermutations, "np", 0, "Number of permutations. Defaults to the config value.")
	flag.IntVar(&startIndex, "si", 0, "Index of the first permutation. Defaults to the config value.")
	flag.IntVar(&swapMultiplier, "q", 0, "Accepted swaps per edge in each permutation. Defaults to the config value.")
	flag.IntVar(&cores, "cores", 0, "Number of permutations run concurrently. Defaults to the number of CPUs.")
	flag.Int64Var(&seed, "seed", 0, "Top-level random seed. Defaults to the config value.")
	flag.IntVar(&verbose, "v", -1, "Verbosity, 0 (warnings) to 4 (trace). Defaults to the config value.")
	flag.BoolVar(&detectDelimiter, "detect_delimiter", false, "Sniff the mutation file's delimiter instead of assuming tabs.")
	flag.StringVar(&configFile, "config", "", "Optional YAML, TOML or JSON config file.")
	flag.Parse()

	cfg := config.NewConfig()
	if configFile != "" {
		if err := cfg.LoadFromFile(configFile); err != nil {
			log.Fatalln(err)
		}
	}
	setIf(cfg, "permute.num_permutations", numPermutations)
	setIf(cfg, "permute.start_index", startIndex)
	setIf(cfg, "permute.swap_multiplier", swapMultiplier)
	setIf(cfg, "performance.num_workers", cores)
	if seed != 0 {
		cfg.Set("permute.seed", seed)
	}
	if verbose >= 0 {
		cfg.Set("logging.verbose", verbose)
	}

	if mutationsFile == "" {
		flag.PrintDefaults()
		log.Fatalln("Please pass -mutations")
	}
	if weightsFile == "" && permDir == "" {
		flag.PrintDefaults()
		log.Fatalln("Nothing to do: pass -weights, -permdir, or both")
	}

	logger := cfg.CreateLogger(os.Stderr, "wextweights")
	build := compileinfo.Get()
	build.Log(&logger)

	if err := run(context.Background(), cfg, &logger, build, mutationsFile, weightsFile, permDir, detectDelimiter); err != nil {
		log.Fatalln(err)
	}
}

// setIf overrides key when a flag was given a positive value.
func setIf(cfg *config.Config, key string, value int) {
	if value > 0 {
		cfg.Set(key, value)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zerolog.Logger, build compileinfo.CompileInfo, mutationsFile, weightsFile, permDir string, detectDelimiter bool) error {
	var err error
	for _, p := range []*string{&mutationsFile, &weightsFile, &permDir} {
		if *p, err = wext.ExpandHome(*p); err != nil {
			return err
		}
	}

	var client *storage.Client
	if wext.NeedsGoogleStorage(mutationsFile, weightsFile, permDir) {
		client, err = storage.NewClient(ctx)
		if err != nil {
			return pfx.Err(err)
		}
		defer client.Close()
	}

	d, err := loadMutations(ctx, client, mutationsFile, detectDelimiter)
	if err != nil {
		return err
	}
	logger.Info().Int("genes", len(d.Genes)).Int("patients", d.NumPatients()).Msg("Loaded mutations")

	g, genes, patients, err := d.Graph()
	if err != nil {
		return err
	}

	params := map[string]interface{}{
		"mutations":        mutationsFile,
		"num_permutations": cfg.NumPermutations(),
		"swap_multiplier":  cfg.SwapMultiplier(),
		"seed":             cfg.Seed(),
		"build":            build.Params(),
	}
	for k, v := range d.Params {
		params[k] = v
	}

	sampler := permute.Sampler{
		NumPermutations: cfg.NumPermutations(),
		StartIndex:      cfg.StartIndex(),
		SwapMultiplier:  cfg.SwapMultiplier(),
		MaxTries:        cfg.MaxTries(),
		Workers:         cfg.NumWorkers(),
		Seed:            cfg.Seed(),
		KeepDatasets:    permDir != "",
		Params:          params,
		Logger:          logger,
	}
	res, err := sampler.Run(g, genes, patients)
	if err != nil {
		return err
	}

	if weightsFile != "" {
		P, err := weights.Postprocess(res.Observed, g.GeneDegrees(), g.PatientDegrees(), res.NumPermutations)
		if err != nil {
			return err
		}
		if err := writeWeights(ctx, client, weightsFile, P); err != nil {
			return err
		}
		logger.Info().Str("path", weightsFile).Msg("Wrote weight matrix")
	}

	if permDir != "" {
		if !wext.IsGoogleStoragePath(permDir) {
			if err := os.MkdirAll(permDir, 0755); err != nil {
				return pfx.Err(err)
			}
		}
		for _, ds := range res.Datasets {
			if err := permute.WriteDataset(ctx, client, permDir, ds); err != nil {
				return err
			}
		}
		logger.Info().Str("dir", permDir).Int("datasets", len(res.Datasets)).Msg("Wrote permuted datasets")
	}

	return nil
}

func loadMutations(ctx context.Context, client *storage.Client, p string, detectDelimiter bool) (*mutation.Dataset, error) {
	r, err := wext.MaybeOpenFromGoogleStorage(ctx, p, client)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return mutation.Load(r, mutation.LoadOptions{DetectDelimiter: detectDelimiter})
}

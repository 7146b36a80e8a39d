package main

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/arlewin/comfybatch/batch"
	"github.com/arlewin/comfybatch/cache"
	"github.com/arlewin/comfybatch/client"
	"github.com/arlewin/comfybatch/config"
	"github.com/arlewin/comfybatch/graphapi"
)

var (
	genWorkflow   string
	genNegative   string
	genSampler    string
	genScheduler  string
	genSteps      int
	genCfg        float64
	genDenoise    float64
	genSeed       int64
	genRandomSeed bool
	genWidth      int
	genHeight     int
	genSnap       int
	genVariations int
	genOutDir     string
	genSave       bool
)

var generateCmd = &cobra.Command{
	Use:   "generate [prompt]...",
	Short: "Render one image per prompt against the backend workflow",
	Long: `Loads a workflow graph, injects each prompt plus the shared sampler
settings into a fresh clone, submits it to the backend and downloads the
produced image. With --variations N the whole prompt list renders N times,
each variation sharing one seed.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGenerate,
}

func init() {
	f := generateCmd.Flags()
	f.StringVarP(&genWorkflow, "workflow", "w", "", "workflow JSON file (defaults to the saved setting)")
	f.StringVarP(&genNegative, "negative", "n", "", "negative prompt shared by all items")
	f.StringVar(&genSampler, "sampler", "", "sampler name override")
	f.StringVar(&genScheduler, "scheduler", "", "scheduler override")
	f.IntVar(&genSteps, "steps", 0, "step count override")
	f.Float64Var(&genCfg, "cfg", 0, "CFG scale override")
	f.Float64Var(&genDenoise, "denoise", 0, "denoise override")
	f.Int64Var(&genSeed, "seed", 0, "fixed seed (negative floors to 0, large values wrap)")
	f.BoolVar(&genRandomSeed, "random-seed", false, "draw a fresh seed per variation")
	f.IntVar(&genWidth, "width", 0, "latent width (requires --height)")
	f.IntVar(&genHeight, "height", 0, "latent height (requires --width)")
	f.IntVar(&genSnap, "snap", batch.DefaultSnap, "snap dimensions to this grid")
	f.IntVarP(&genVariations, "variations", "v", 1, "render the prompt list this many times")
	f.StringVarP(&genOutDir, "out", "o", "", "output directory (defaults to the saved setting, then .)")
	f.BoolVar(&genSave, "save-settings", false, "persist host, port, workflow and output folder for next time")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	workflowPath := genWorkflow
	if workflowPath == "" {
		workflowPath = settings.Workflow
	}
	if workflowPath == "" {
		return fmt.Errorf("no workflow: pass --workflow or save one with --save-settings")
	}

	outDir := genOutDir
	if outDir == "" {
		outDir = settings.OutputFolder
	}
	if outDir == "" {
		outDir = "."
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}

	doc, err := graphapi.ParseGraphFile(workflowPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	cl := client.New(settings.Host, settings.Port, client.WithLogger(logger))

	store := cache.NewStore(cache.WithLogger(logger))
	if err := store.Load(cachePath()); err != nil {
		logger.Warn("workflow cache unreadable", zap.Error(err))
	}

	var catalog *graphapi.SchemaCatalog
	if entry, ok := store.Get(workflowPath); ok {
		catalog = entry.Schema
		logger.Debug("using cached schema catalog", zap.String("workflow", workflowPath))
	} else {
		catalog = cl.FetchSchemaCatalog(ctx)
	}

	analysis := graphapi.Classify(doc, catalog)
	if analysis.PositivePromptID() == "" {
		return &graphapi.NoPromptNodeError{}
	}
	store.Put(workflowPath, catalog, analysis.Sampler)
	if err := store.Save(cachePath()); err != nil {
		logger.Warn("workflow cache not saved", zap.Error(err))
	}

	targets := make([]batch.Target, 0, len(args))
	for _, text := range args {
		if t := config.SanitizePrompt(text); t != "" {
			targets = append(targets, batch.Target{Text: t})
		}
	}
	if len(targets) == 0 {
		return fmt.Errorf("all prompts were empty after sanitizing")
	}

	params := batch.Params{
		Sampler:    samplerOverrides(cmd),
		Negative:   config.SanitizePrompt(genNegative),
		Variations: genVariations,
		Seed:       genSeed,
		RandomSeed: genRandomSeed,
		OutputDir:  outDir,
	}
	if genWidth > 0 && genHeight > 0 {
		params.Width, params.Height = batch.SnapDims(genWidth, genHeight, genSnap, 0, 0)
	} else if genWidth > 0 || genHeight > 0 {
		return fmt.Errorf("--width and --height must be given together")
	}

	bar := progressbar.Default(int64(params.Variations*len(targets)), "generating")

	// per-step progress over the websocket is a display nicety; history
	// polling stays the completion mechanism, so a failed dial only logs
	go func() {
		err := cl.ListenProgress(ctx, func(ev client.ProgressEvent) {
			if ev.Max > 0 {
				bar.Describe(fmt.Sprintf("step %d/%d", ev.Value, ev.Max))
			} else if ev.Done {
				bar.Describe("generating")
			}
		})
		if err != nil && ctx.Err() == nil {
			logger.Debug("progress listener stopped", zap.Error(err))
		}
	}()

	orch := batch.New(cl,
		batch.WithLogger(logger),
		batch.WithCallbacks(batch.Callbacks{
			OnCompleted: func(_ batch.Target, path string) {
				_ = bar.Add(1)
				logger.Info("image ready", zap.String("path", path))
			},
			OnFailed: func(_ batch.Target, err error) {
				_ = bar.Add(1)
			},
		}),
	)

	sum := orch.Run(ctx, doc, targets, params)
	_ = bar.Finish()

	if sum.Cancelled {
		fmt.Printf("cancelled: %d succeeded, %d failed, rest abandoned\n", sum.Success, sum.Failed)
	} else {
		fmt.Printf("done: %d succeeded, %d failed\n", sum.Success, sum.Failed)
	}

	if genSave {
		settings.Workflow = workflowPath
		settings.OutputFolder = outDir
		if err := config.Save(settingsPath(), settings); err != nil {
			return fmt.Errorf("saving settings: %w", err)
		}
	}
	return nil
}

// samplerOverrides builds the sampler parameter set from explicitly provided
// flags only; untouched flags leave the workflow's wired values alone.
func samplerOverrides(cmd *cobra.Command) graphapi.SamplerParams {
	var p graphapi.SamplerParams
	if cmd.Flags().Changed("steps") {
		p.Steps = &genSteps
	}
	if cmd.Flags().Changed("cfg") {
		p.Cfg = &genCfg
	}
	if cmd.Flags().Changed("denoise") {
		p.Denoise = &genDenoise
	}
	p.SamplerName = genSampler
	p.Scheduler = genScheduler
	return p
}

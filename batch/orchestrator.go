// Package batch drives multi-image generation runs: for each variation and
// each target it clones the base workflow, injects the target's parameters,
// submits the result and places the downloaded artifact.
package batch

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/arlewin/comfybatch/client"
	"github.com/arlewin/comfybatch/graphapi"
)

// Generator is the backend surface the orchestrator drives.  *client.Client
// satisfies it; tests substitute fakes.
type Generator interface {
	SubmitGraph(ctx context.Context, doc *graphapi.GraphDocument) (string, error)
	WaitForOutputs(ctx context.Context, jobID string, opts client.PollOptions) (*client.ArtifactRef, error)
	DownloadArtifact(ctx context.Context, ref client.ArtifactRef, destPath string) error
}

// Target is one prompt to render, optionally tied to a placement reference
// the Placer understands (a layer, an import slot).
type Target struct {
	Text string
	Ref  any
}

// Params are the render settings shared by every item in a run.
type Params struct {
	// Sampler overrides applied to every clone.  Its Seed field is ignored;
	// the orchestrator manages seeds per variation.
	Sampler graphapi.SamplerParams
	// Width and Height are injected into latent-size nodes when both are
	// positive.
	Width  int
	Height int
	// Negative prompt text, injected when the workflow has a second text
	// encoder.
	Negative string
	// Variations is the number of full passes over the targets.  Values
	// below one mean a single pass.
	Variations int
	// Seed used for every variation when RandomSeed is false.  With
	// RandomSeed set, each variation draws a fresh seed instead; either way
	// all targets within one variation share the same seed.
	Seed       int64
	RandomSeed bool
	// OutputDir receives the downloaded artifacts.
	OutputDir string
}

// Callbacks let a caller observe run progress.  All fields are optional.
type Callbacks struct {
	OnSubmitted func(jobID string, variation, target int)
	OnCompleted func(target Target, imagePath string)
	OnFailed    func(target Target, err error)
}

// Summary is the run outcome, reported even when the run was cancelled.
type Summary struct {
	Success   int
	Failed    int
	Cancelled bool
}

// Orchestrator runs generation batches against one backend.
type Orchestrator struct {
	gen      Generator
	placer   Placer
	logger   *zap.Logger
	cb       Callbacks
	poll     client.PollOptions
	randSeed func() uint32
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithPlacer sets the artifact placement handler.
func WithPlacer(p Placer) OrchestratorOption {
	return func(o *Orchestrator) { o.placer = p }
}

// WithLogger attaches a structured logger; the default discards everything.
func WithLogger(l *zap.Logger) OrchestratorOption {
	return func(o *Orchestrator) { o.logger = l }
}

// WithCallbacks sets the progress callbacks.
func WithCallbacks(cb Callbacks) OrchestratorOption {
	return func(o *Orchestrator) { o.cb = cb }
}

// WithPollOptions tunes the per-job completion wait.
func WithPollOptions(p client.PollOptions) OrchestratorOption {
	return func(o *Orchestrator) { o.poll = p }
}

// WithSeedSource replaces the random seed draw, for deterministic runs.
func WithSeedSource(fn func() uint32) OrchestratorOption {
	return func(o *Orchestrator) { o.randSeed = fn }
}

// New creates an orchestrator over the given backend.
func New(gen Generator, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		gen:      gen,
		placer:   NopPlacer(),
		logger:   zap.NewNop(),
		randSeed: rand.Uint32,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes variations × targets generations.  Targets within a variation
// are processed in reverse index order so that earlier items end up layered
// beneath later ones at the destination.  A per-item failure is counted and
// logged but never aborts the run; cancellation abandons all remaining work
// while keeping results already produced.
func (o *Orchestrator) Run(ctx context.Context, doc *graphapi.GraphDocument, targets []Target, p Params) Summary {
	var sum Summary
	variations := p.Variations
	if variations < 1 {
		variations = 1
	}

	for v := 0; v < variations; v++ {
		if ctx.Err() != nil {
			sum.Cancelled = true
			break
		}

		seed := p.Seed
		if p.RandomSeed {
			seed = int64(o.randSeed())
		}
		o.logger.Info("starting variation",
			zap.Int("variation", v), zap.Int64("seed", seed), zap.Int("targets", len(targets)))

		for i := len(targets) - 1; i >= 0; i-- {
			if ctx.Err() != nil {
				sum.Cancelled = true
				break
			}
			if err := o.renderOne(ctx, doc, targets[i], v, i, seed, p); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					sum.Cancelled = true
					break
				}
				sum.Failed++
				o.logger.Warn("target failed",
					zap.Int("variation", v), zap.Int("target", i), zap.Error(err))
				if o.cb.OnFailed != nil {
					o.cb.OnFailed(targets[i], err)
				}
				continue
			}
			sum.Success++
		}
		if sum.Cancelled {
			break
		}
	}

	o.logger.Info("run finished",
		zap.Int("success", sum.Success), zap.Int("failed", sum.Failed),
		zap.Bool("cancelled", sum.Cancelled))
	return sum
}

// renderOne performs the full pipeline for a single target: clone, inject,
// submit, wait, download, place.
func (o *Orchestrator) renderOne(ctx context.Context, base *graphapi.GraphDocument, t Target, variation, index int, seed int64, p Params) error {
	clone := base.Clone()

	posID, err := graphapi.InjectPrompt(clone, t.Text, "")
	if err != nil {
		return err
	}
	if p.Negative != "" {
		negID := graphapi.NegativePromptID(clone, posID)
		graphapi.InjectNegativePrompt(clone, p.Negative, negID)
	}

	sp := p.Sampler
	sp.Seed = &seed
	graphapi.SetSamplerParams(clone, sp)

	if p.Width > 0 && p.Height > 0 {
		graphapi.ApplyDimensions(clone, p.Width, p.Height)
	}

	jobID, err := o.gen.SubmitGraph(ctx, clone)
	if err != nil {
		return err
	}
	if o.cb.OnSubmitted != nil {
		o.cb.OnSubmitted(jobID, variation, index)
	}

	ref, err := o.gen.WaitForOutputs(ctx, jobID, o.poll)
	if err != nil {
		return err
	}

	dest := filepath.Join(p.OutputDir, fmt.Sprintf("comfy_%s_%s", jobID, ref.Filename))
	if err := o.gen.DownloadArtifact(ctx, *ref, dest); err != nil {
		return err
	}

	if err := o.placer.Place(ctx, t, dest); err != nil {
		return fmt.Errorf("placing %s: %w", dest, err)
	}
	if o.cb.OnCompleted != nil {
		o.cb.OnCompleted(t, dest)
	}
	return nil
}

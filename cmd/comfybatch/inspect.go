package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/arlewin/comfybatch/client"
	"github.com/arlewin/comfybatch/graphapi"
)

var inspectJSON bool

var inspectCmd = &cobra.Command{
	Use:   "inspect <image.png>...",
	Short: "Show the generation parameters embedded in rendered images",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var failed int
		for _, path := range args {
			if err := inspectOne(path); err != nil {
				fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
				failed++
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d images unreadable", failed, len(args))
		}
		return nil
	},
}

func init() {
	inspectCmd.Flags().BoolVar(&inspectJSON, "json", false, "print settings as JSON")
}

func inspectOne(path string) error {
	meta, err := client.ReadComfyMetadataFile(path)
	if err != nil {
		return err
	}
	if meta == nil {
		return fmt.Errorf("no embedded generation metadata")
	}

	// the executed prompt document carries the literal values; the editor
	// workflow is the fallback
	doc := meta.Prompt
	if doc == nil {
		doc = meta.Workflow
	}
	s := graphapi.ExtractSettings(doc)

	if inspectJSON {
		out, err := json.MarshalIndent(inspectRecord(path, s), "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	fmt.Printf("%s:\n", path)
	printField("model", s.Model)
	printField("prompt", s.Prompt)
	printField("negative", s.Negative)
	printField("size", s.Size)
	printField("sampler", s.Sampler)
	printField("scheduler", s.Scheduler)
	if s.Seed != nil {
		fmt.Printf("  %-10s %d\n", "seed", *s.Seed)
	}
	if s.Steps != nil {
		fmt.Printf("  %-10s %d\n", "steps", *s.Steps)
	}
	if s.Cfg != nil {
		fmt.Printf("  %-10s %g\n", "cfg", *s.Cfg)
	}
	if s.Denoise != nil {
		fmt.Printf("  %-10s %g\n", "denoise", *s.Denoise)
	}
	return nil
}

func printField(name, value string) {
	if value != "" {
		fmt.Printf("  %-10s %s\n", name, value)
	}
}

func inspectRecord(path string, s graphapi.GenerationSettings) map[string]any {
	rec := map[string]any{"file": path}
	if s.Model != "" {
		rec["model"] = s.Model
	}
	if s.Prompt != "" {
		rec["prompt"] = s.Prompt
	}
	if s.Negative != "" {
		rec["negative"] = s.Negative
	}
	if s.Size != "" {
		rec["size"] = s.Size
	}
	if s.Sampler != "" {
		rec["sampler"] = s.Sampler
	}
	if s.Scheduler != "" {
		rec["scheduler"] = s.Scheduler
	}
	if s.Seed != nil {
		rec["seed"] = *s.Seed
	}
	if s.Steps != nil {
		rec["steps"] = *s.Steps
	}
	if s.Cfg != nil {
		rec["cfg"] = *s.Cfg
	}
	if s.Denoise != nil {
		rec["denoise"] = *s.Denoise
	}
	return rec
}

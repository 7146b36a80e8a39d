package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/arlewin/comfybatch/client"
	"github.com/arlewin/comfybatch/graphapi"
)

var schemaCmd = &cobra.Command{
	Use:   "schema [class]...",
	Short: "Show the backend's node schema catalog",
	Long: `Without arguments, lists every node class the backend declares.  With
class names, prints each class's inputs: enum choices for categorical
inputs, min/max/default for numeric ones.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cl := client.New(settings.Host, settings.Port, client.WithLogger(logger))
		catalog := cl.FetchSchemaCatalog(cmd.Context())
		if catalog == nil {
			return fmt.Errorf("backend at %s:%d did not serve a schema catalog", settings.Host, settings.Port)
		}

		if len(args) == 0 {
			names := make([]string, 0, len(catalog.Classes))
			for name := range catalog.Classes {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Println(name)
			}
			return nil
		}

		for _, class := range args {
			schema := catalog.Class(class)
			if schema == nil {
				fmt.Printf("%s: unknown class\n", class)
				continue
			}
			fmt.Printf("%s:\n", class)
			printSchema(schema)
		}
		return nil
	},
}

func printSchema(schema *graphapi.NodeSchema) {
	keys := make([]string, 0, len(schema.Inputs))
	for k := range schema.Inputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		spec := schema.Inputs[key]
		switch spec.Kind {
		case graphapi.KindEnum:
			fmt.Printf("  %-24s one of: %s\n", key, strings.Join(spec.Choices, ", "))
		case graphapi.KindInt, graphapi.KindFloat:
			if spec.Range != nil {
				fmt.Printf("  %-24s %s in [%g, %g], default %g\n",
					key, spec.Kind, spec.Range.Min, spec.Range.Max, spec.Range.Default)
			} else {
				fmt.Printf("  %-24s %s\n", key, spec.Kind)
			}
		default:
			fmt.Printf("  %s\n", key)
		}
	}
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}

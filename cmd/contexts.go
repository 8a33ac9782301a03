package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"firestige.xyz/lowpan/internal/lowpan/iphc"
)

var contextsCmd = &cobra.Command{
	Use:   "contexts <file>",
	Short: "Validate and print a compression context file",
	Long: `
Validate a YAML compression context file and print the resulting table,
including the implicit link-local context 0.

Examples:
  lowpand contexts contexts.yml
`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		table, err := iphc.LoadContexts(args[0])
		if err != nil {
			exitWithError("load contexts", err)
		}

		snap := table.Snapshot()
		ids := make([]int, 0, len(snap))
		for id := range snap {
			ids = append(ids, int(id))
		}
		sort.Ints(ids)
		for _, id := range ids {
			fmt.Printf("%2d  %s\n", id, snap[uint8(id)])
		}
	},
}

func init() {
	rootCmd.AddCommand(contextsCmd)
}

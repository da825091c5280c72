package main

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"propertychat/internal/service"
)

func newParseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "parse <message>",
		Short: "Print the filters extracted from a chat message",
		Long:  "Runs the intent parser on a message and prints the resulting filter record as JSON, without touching any store.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filters := service.NewIntentParser().Parse(strings.Join(args, " "))

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(filters)
		},
	}
}

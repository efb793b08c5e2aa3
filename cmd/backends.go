package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/PetersonGuo/HTN25/internal/backend"
	"github.com/PetersonGuo/HTN25/internal/config"
)

var backendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "List available generation backends",
	RunE:  runBackends,
}

func init() {
	rootCmd.AddCommand(backendsCmd)
}

func runBackends(cmd *cobra.Command, args []string) error {
	registered := backend.Registered()
	if len(registered) == 0 {
		fmt.Println("No backends registered")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(writer, "NAME\tIMAGES\tCONFIGURED\tENDPOINT")
	fmt.Fprintln(writer, "----\t------\t----------\t--------")

	for _, desc := range registered {
		creds := config.BackendCredentials(desc.Kind.String())
		endpoint := creds.BaseURL
		if endpoint == "" {
			endpoint = desc.DefaultBaseURL
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n", desc.Kind, yesNo(desc.Images), yesNo(creds.Configured()), endpoint)
	}

	if err := writer.Flush(); err != nil {
		return err
	}

	fmt.Println("")
	fmt.Println("Usage: llmpipe run --config pipeline.yaml --backend <name>")
	return nil
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

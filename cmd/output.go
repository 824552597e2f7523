package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"
)

// printOutput writes v in the format selected by the --json and --yaml flags. JSON is the default.
func printOutput(cmd *cobra.Command, v any) error {
	jsn, _ := cmd.Flags().GetBool(flagJSON)
	yml, _ := cmd.Flags().GetBool(flagYAML)
	var (
		out []byte
		err error
	)
	switch {
	case yml && jsn:
		return errors.New("can't pass both --json and --yaml, must pick one")
	case yml:
		out, err = yaml.Marshal(v)
	default: // default format is json
		out, err = json.MarshalIndent(v, "", "  ")
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"fsoi/internal/request"
)

func newHashCommand() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:         "hash",
		Short:       "Print the fingerprint of a request",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := readRequest(cmd, file)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), request.Fingerprint(req))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Request JSON file (default stdin)")
	return cmd
}

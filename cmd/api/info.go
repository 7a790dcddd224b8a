package main

import (
	"encoding/json"
	"strings"

	"github.com/emanuelef/ytstream-api/internal/transport/http/middleware"
	"github.com/spf13/cobra"
)

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <url>",
		Short: "Print the metadata the API would return for a video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			a, err := newApp(cfg)
			if err != nil {
				return err
			}

			return printInfo(cmd, a, args[0])
		},
	}
}

func printInfo(cmd *cobra.Command, a *app, rawURL string) error {
	if err := middleware.ValidateURL(rawURL, a.extractor); err != nil {
		return err
	}

	md, err := a.resolver.Resolve(cmd.Context(), strings.TrimSpace(rawURL))
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(md)
}

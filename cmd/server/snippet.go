package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gyaneshwarpardhi/paynotify/internal/signing"
)

func snippetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "snippet [language]",
		Short: "Print merchant-side webhook signature verification code",
		Long:  "Print example code that verifies webhook signatures. Languages: " + strings.Join(signing.SnippetLanguages(), ", "),
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lang := "python"
			if len(args) == 1 {
				lang = args[0]
			}
			code, err := signing.Snippet(lang)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), code)
			return nil
		},
	}
}

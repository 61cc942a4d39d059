package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"docqa/internal/history"
	"docqa/internal/pdfinfo"
)

func inspectCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print what the page would show for a picked file",
		RunE: func(cmd *cobra.Command, args []string) error {
			selected, err := readSelectedFile(file)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "File:     %s\n", selected.Name)
			fmt.Fprintf(out, "Size:     %d bytes\n", selected.Size())
			fmt.Fprintf(out, "Type:     %s\n", selected.ContentType)
			fmt.Fprintf(out, "Checksum: %s\n", history.Checksum(selected.Data))

			pages, err := pdfinfo.PageCount(selected.Data)
			if err != nil {
				fmt.Fprintf(out, "Pages:    unknown (%v)\n", err)
				return nil
			}
			fmt.Fprintf(out, "Pages:    %d\n", pages)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "file to inspect (required)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

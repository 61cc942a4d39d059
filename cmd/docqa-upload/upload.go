package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"docqa/config"
	"docqa/internal/core"
	"docqa/internal/pdfinfo"
	"docqa/internal/upload"
)

// errUploadFailed marks a failure already reported to stderr.
var errUploadFailed = errors.New("upload failed")

func uploadCmd() *cobra.Command {
	var (
		file          string
		baseURL       string
		path          string
		timeout       time.Duration
		surfaceDetail bool
	)

	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Upload a PDF and print the API result",
		Example: `  docqa-upload upload --file q3-statement.pdf
  docqa-upload upload --file q3.pdf --base-url https://docs.example.com --timeout 2m`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := uploadOptions{
				file:          file,
				baseURL:       baseURL,
				path:          path,
				timeout:       timeout,
				surfaceDetail: surfaceDetail,
			}
			if err := opts.fillDefaults(cmd); err != nil {
				return err
			}
			return runUpload(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "PDF file to upload (required)")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "document API origin (default from UPLOAD_BASE_URL)")
	cmd.Flags().StringVar(&path, "path", "", "upload endpoint path (default from UPLOAD_PATH)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "per-attempt timeout (default from UPLOAD_TIMEOUT)")
	cmd.Flags().BoolVar(&surfaceDetail, "detail", false, "show the server's rejection reason instead of \"Upload failed\"")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

type uploadOptions struct {
	file          string
	baseURL       string
	path          string
	timeout       time.Duration
	surfaceDetail bool
}

// fillDefaults takes unset options from the environment configuration.
func (o *uploadOptions) fillDefaults(cmd *cobra.Command) error {
	if o.baseURL != "" && o.path != "" && o.timeout > 0 {
		return nil
	}
	result, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg := result.Config.Upload
	if o.baseURL == "" {
		o.baseURL = cfg.BaseURL
	}
	if o.path == "" {
		o.path = cfg.Path
	}
	if o.timeout <= 0 {
		o.timeout = cfg.Timeout
	}
	if !cmd.Flags().Changed("detail") {
		o.surfaceDetail = cfg.SurfaceServerDetail
	}
	return nil
}

func runUpload(cmd *cobra.Command, opts uploadOptions) error {
	selected, err := readSelectedFile(opts.file)
	if err != nil {
		return err
	}

	client, err := upload.NewClient(upload.ClientConfig{BaseURL: opts.baseURL, Path: opts.path})
	if err != nil {
		return err
	}

	var failure string
	widget := upload.NewWidget(client, upload.Callbacks{
		OnComplete: func(result *core.UploadResult) {
			var out bytes.Buffer
			if err := json.Indent(&out, result.Raw, "", "  "); err != nil {
				out.Reset()
				out.Write(result.Raw)
			}
			fmt.Fprintln(cmd.OutOrStdout(), out.String())
		},
		OnError: func(message string) {
			failure = message
			fmt.Fprintln(cmd.ErrOrStderr(), message)
		},
	},
		upload.WithTimeout(opts.timeout),
		upload.WithMessageOptions(core.MessageOptions{SurfaceServerDetail: opts.surfaceDetail}),
	)

	widget.Select(selected)
	widget.Submit(context.Background())
	if failure != "" {
		return errUploadFailed
	}
	return nil
}

func readSelectedFile(path string) (*core.SelectedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	name := filepath.Base(path)
	file := &core.SelectedFile{Name: name, Data: data, ContentType: "application/octet-stream"}
	if pdfinfo.LooksLikePDF(name, data) {
		file.ContentType = "application/pdf"
		if pages, err := pdfinfo.PageCount(data); err == nil {
			file.Pages = pages
		}
	}
	return file, nil
}

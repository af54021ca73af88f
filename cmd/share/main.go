package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"fileshare/internal/client"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const keyServer = "server"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("share")
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "share <file>",
		Short:         "Upload a file and print a link to share it",
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := client.ParseArgs(args)
			if err != nil {
				return err
			}
			return upload(cmd, client.New(v.GetString(keyServer)), f)
		},
	}
	cmd.PersistentFlags().String(keyServer, "http://localhost:3000", "file-sharing server URL (env SHARE_SERVER)")
	if err := v.BindPFlag(keyServer, cmd.PersistentFlags().Lookup(keyServer)); err != nil {
		panic(err)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "info <id|url>",
		Short: "Show metadata for a shared file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			details, err := client.New(v.GetString(keyServer)).Info(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Name:      %s\n", details.OriginalName)
			fmt.Fprintf(out, "Size:      %s\n", formatSize(details.Size))
			fmt.Fprintf(out, "Type:      %s\n", details.MimeType)
			fmt.Fprintf(out, "Uploaded:  %s\n", details.UploadDate.Local().Format("2006-01-02 15:04:05"))
			fmt.Fprintf(out, "Downloads: %d\n", details.DownloadCount)
			return nil
		},
	})

	return cmd
}

func upload(cmd *cobra.Command, c *client.Client, f *client.LocalFile) error {
	errOut := cmd.ErrOrStderr()
	result, err := c.Upload(cmd.Context(), f, progressPrinter(errOut))
	if err != nil {
		fmt.Fprintln(errOut)
		return err
	}
	fmt.Fprintln(errOut)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Uploaded %s (%s, %s)\n",
		result.FileInfo.OriginalName, formatSize(result.FileInfo.Size), result.FileInfo.MimeType)
	fmt.Fprintln(out, result.URL)
	return nil
}

// progressPrinter redraws a single percentage line as bytes are sent.
func progressPrinter(w io.Writer) client.ProgressFunc {
	last := -1
	return func(sent, total int64) {
		if total <= 0 {
			return
		}
		pct := int(sent * 100 / total)
		if pct == last {
			return
		}
		last = pct
		fmt.Fprintf(w, "\rUploading [%-20s] %3d%%", strings.Repeat("=", pct/5), pct)
	}
}

func formatSize(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(b)/float64(div), "KMGT"[exp])
}

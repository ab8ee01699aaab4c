package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"vaultclip/internal/bot"
	"vaultclip/internal/clipper"
	"vaultclip/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "vaultclip",
		Short:         "Clip web pages into an Obsidian vault",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "./configs", "directory containing config.yaml")

	root.AddCommand(newClipCmd(&configPath))
	root.AddCommand(newTestConnectionCmd(&configPath))
	root.AddCommand(newServeCmd(&configPath))
	root.AddCommand(newCacheCmd(&configPath))
	return root
}

func newClipCmd(configPath *string) *cobra.Command {
	var req clipper.ClipRequest
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "clip <url>",
		Short: "Clip a page into the vault",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := loadApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			req.URL = args[0]
			result := a.service.Clip(ctx, req)
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			printClipResult(cmd.OutOrStdout(), result)
			if !result.Success {
				return errors.New(result.Error)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Selector, "selector", "", "clip only the element matching this CSS selector")
	cmd.Flags().StringVar(&req.Title, "title", "", "note title (defaults to the page title)")
	cmd.Flags().StringSliceVar(&req.Tags, "tags", nil, "extra tags")
	cmd.Flags().StringVar(&req.Notes, "notes", "", "personal notes to add to the clip")
	cmd.Flags().BoolVar(&req.Quick, "quick", false, "save the excerpt only, without images")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}

func printClipResult(w io.Writer, result clipper.ClipResult) {
	if !result.Success {
		return
	}
	_, _ = fmt.Fprintf(w, "saved %q to %s\n", result.Title, result.Path)
	if result.ImagesSaved+result.ImagesFailed > 0 {
		_, _ = fmt.Fprintf(w, "images: %d saved, %d failed\n", result.ImagesSaved, result.ImagesFailed)
	}
	for _, o := range result.ImageOutcomes {
		if !o.Success {
			_, _ = fmt.Fprintf(w, "  %s: %s\n", o.OriginalURL, o.Error)
		}
	}
}

func newTestConnectionCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "test-connection",
		Short: "Check that the Local REST API is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			st := a.cfg.Vault.Settings
			status, err := a.vault.TestConnection(cmd.Context(), st.APIURL, st.APIKey)
			if err != nil {
				return err
			}
			auth := "not authenticated"
			if status.Authenticated {
				auth = "authenticated"
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "connected to %s (%s)\n", st.APIURL, auth)
			return nil
		},
	}
}

func newServeCmd(configPath *string) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP endpoint and, when configured, the Telegram bot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if addr == "" {
				addr = a.cfg.Server.Addr
			}

			tasks, err := a.serveTasks(addr, func() (poller, error) {
				return bot.NewHandler(a.cfg.Telegram.BotToken, a.service, a.log)
			})
			if err != nil {
				return err
			}

			a.log.Info("vaultclip is running. Press Ctrl+C to exit.")
			err = runTasks(cmd.Context(), tasks)
			a.log.Info("vaultclip shut down.")
			return err
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

func newCacheCmd(configPath *string) *cobra.Command {
	cache := &cobra.Command{Use: "cache", Short: "Inspect the image cache"}

	cache.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List cached image URLs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.requireCache(); err != nil {
				return err
			}

			imgs, err := a.cache.GetImages(cmd.Context())
			if err != nil {
				return err
			}
			if len(imgs) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no cached images")
				return nil
			}
			for url, dataURL := range imgs {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d bytes\n", url, len(dataURL))
			}
			return nil
		},
	})

	var maxAge time.Duration
	purge := &cobra.Command{
		Use:   "purge",
		Short: "Delete cached images older than --max-age",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.requireCache(); err != nil {
				return err
			}

			n, err := a.cache.PurgeOlderThan(cmd.Context(), maxAge)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "deleted %d cached images\n", n)
			return nil
		},
	}
	purge.Flags().DurationVar(&maxAge, "max-age", storage.DefaultMaxAge, "age after which cached images are deleted")
	cache.AddCommand(purge)

	return cache
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/matzehuels/tilestitch/pkg/cache"
)

// cacheCommand creates the cache management command.
func (c *CLI) cacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the tile result cache",
	}

	cmd.AddCommand(c.cacheClearCommand())
	cmd.AddCommand(c.cachePathCommand())
	cmd.AddCommand(c.cachePingCommand())

	return cmd
}

// cacheClearCommand removes every cached tile result and stitched output.
func (c *CLI) cacheClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Clear all cached results",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := cacheDir()
			if err != nil {
				return fmt.Errorf("get cache dir: %w", err)
			}
			fc, err := cache.NewFileCache(dir)
			if err != nil {
				return err
			}
			count, err := fc.Clear()
			if err != nil {
				return fmt.Errorf("clear %s: %w", dir, err)
			}

			out := cmd.OutOrStdout()
			if count == 0 {
				printInfo(out, "Cache is empty")
				return nil
			}
			printSuccess(out, "Cleared %d cached entries", count)
			printDetail(out, "Directory: %s", dir)
			return nil
		},
	}
}

// cachePathCommand creates the "cache path" subcommand.
func (c *CLI) cachePathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the cache directory path",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := cacheDir()
			if err != nil {
				return fmt.Errorf("get cache dir: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), dir)
			return nil
		},
	}
}

// cachePingCommand checks that a shared Redis cache is reachable.
func (c *CLI) cachePingCommand() *cobra.Command {
	var url string
	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Check the connection to a Redis result cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			if url == "" {
				return fmt.Errorf("no Redis URL (use --redis or TILESTITCH_REDIS_URL)")
			}
			rc, err := cache.NewRedisCache(cmd.Context(), url, redisPrefix)
			if err != nil {
				return err
			}
			defer rc.Close()
			if err := rc.Set(cmd.Context(), "ping", []byte("ok"), 0); err != nil {
				return err
			}
			_ = rc.Delete(context.WithoutCancel(cmd.Context()), "ping")
			printSuccess(cmd.OutOrStdout(), "Redis cache reachable")
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "redis", os.Getenv("TILESTITCH_REDIS_URL"), "Redis URL (redis://host:port/db)")
	return cmd
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"autosig/config"
	"autosig/storage"
	"autosig/utils"
)

var (
	version    = "dev"
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "autosig",
	Short: "Inserts the default signature into compose windows",
	Long: `autosig serves mail clients connected over a websocket bridge. For each
compose window it resolves the user's default signature from the
signature server, caches it and inserts it with its inline images.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return err
		}
		return serve(cfg)
	},
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect the durable signature cache",
}

var cacheListCmd = &cobra.Command{
	Use:   "list [mailbox]",
	Short: "List cached entries with their size and expiry",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDurable(func(durable storage.Durable) error {
			mailboxes, err := durable.Mailboxes(cmd.Context())
			if err != nil {
				return err
			}
			if len(args) == 1 {
				mailboxes = []string{args[0]}
			}
			return listCache(cmd.Context(), cmd.OutOrStdout(), durable, mailboxes)
		})
	},
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge <mailbox>",
	Short: "Remove every cached entry of a mailbox",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDurable(func(durable storage.Durable) error {
			n, err := purgeMailbox(cmd.Context(), durable, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s from %s\n", plural(n, "entry", "entries"), args[0])
			return nil
		})
	},
}

var cacheSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove expired entries now",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDurable(func(durable storage.Durable) error {
			sweeper, err := storage.NewSweeper(durable, "@hourly", utils.Log)
			if err != nil {
				return err
			}
			n, err := sweeper.SweepAll(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Swept %s\n", plural(n, "expired entry", "expired entries"))
			return nil
		})
	},
}

var hashCmd = &cobra.Command{
	Use:   "hash <token>",
	Short: "Hash an action credential token for the devserver credentials table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := bcrypt.GenerateFromPassword([]byte(args[0]), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(hash))
		return nil
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.toml", "config file path")

	cacheCmd.AddCommand(cacheListCmd, cachePurgeCmd, cacheSweepCmd)
	rootCmd.AddCommand(serveCmd, cacheCmd, hashCmd)
}

func withDurable(fn func(storage.Durable) error) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	utils.Log.SetLevel(utils.ParseLogLevel(cfg.Log.Level))

	durable, err := storage.OpenDurable(cfg.Storage.Backend, cfg.Storage.Path)
	if err != nil {
		return err
	}
	if durable == nil {
		return errors.New("no durable storage configured, the memory backend lives only as long as a host session")
	}
	defer durable.Close()
	return fn(durable)
}

func listCache(ctx context.Context, out io.Writer, durable storage.Durable, mailboxes []string) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MAILBOX\tKEY\tSIZE\tEXPIRES")

	var total uint64
	for _, mb := range mailboxes {
		store := storage.NewStore(durable.ForMailbox(mb), nil)
		keys, err := store.Keys(ctx)
		if err != nil {
			return err
		}
		sort.Strings(keys)

		for _, key := range keys {
			entry, err := store.Get(ctx, key)
			if err != nil {
				return err
			}
			if entry == nil {
				continue
			}
			size := uint64(len(entry.Raw))
			total += size

			expires := "never"
			if entry.Schedule != nil {
				expires = humanize.Time(entry.Schedule.ExpiresAt())
				if entry.Expired {
					expires += " (stale)"
				}
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", mb, key, humanize.Bytes(size), expires)
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "%s in %s\n", humanize.Bytes(total), plural(len(mailboxes), "mailbox", "mailboxes"))
	return nil
}

func purgeMailbox(ctx context.Context, durable storage.Durable, mailbox string) (int, error) {
	store := storage.NewStore(durable.ForMailbox(mailbox), nil)
	keys, err := store.Keys(ctx)
	if err != nil {
		return 0, err
	}
	if err := store.RemoveMany(ctx, keys); err != nil {
		return 0, err
	}
	return len(keys), nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return "1 " + one
	}
	return humanize.Comma(int64(n)) + " " + many
}

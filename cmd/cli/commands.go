package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"fsindex/internal/api"
	"fsindex/internal/fscache"
	"fsindex/internal/search"
	"fsindex/internal/tags"
)

func volumesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "volumes",
		Short: "List the volumes that would be indexed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}
			defer logger.Sync()

			volumes, err := newEnumerator(cfg, fscache.NewState(logger), logger, nil).List()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tMOUNT\tFS\tUSED\tSIZE\tFREE\tTYPE\tREMOVABLE")
			for _, v := range volumes {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%t\n",
					v.Name, v.MountPoint, v.FileSystemType,
					formatSize(v.Used), formatSize(v.Size), formatSize(v.Available),
					v.DiskType, v.Removable)
			}
			return tw.Flush()
		},
	}
}

func indexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Rebuild the index from scratch and save it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, cancel := signalContext()
			defer cancel()

			state := fscache.NewState(logger)
			bar := progressbar.Default(-1, "Indexing directories")
			start := time.Now()
			err = newEnumerator(cfg, state, logger, func(n int) { _ = bar.Add(n) }).BuildAll(ctx)
			_ = bar.Finish()
			if errors.Is(err, context.Canceled) {
				fmt.Println("\nIndexing interrupted by user")
				return nil
			}
			if err != nil {
				return err
			}

			for _, mount := range state.Mounts() {
				n, _ := state.VolumeLen(mount)
				fmt.Printf("%s: %d names\n", mount, n)
			}
			fmt.Printf("Indexed in %s, snapshot at %s\n", time.Since(start).Round(time.Millisecond), cfg.VolumeSnapshotPath())
			return nil
		},
	}
}

func searchCmd() *cobra.Command {
	var (
		mount     string
		filesOnly bool
		dirsOnly  bool
		open      bool
	)
	cmd := &cobra.Command{
		Use:   "search QUERY",
		Short: "Search the saved index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}
			defer logger.Sync()

			state := fscache.NewState(logger)
			if !fscache.Restore(state, fscache.NewVolumeStore(cfg.VolumeSnapshotPath()), logger) {
				fmt.Println("No saved index, building one first")
				ctx, cancel := signalContext()
				defer cancel()
				bar := progressbar.Default(-1, "Indexing directories")
				err := newEnumerator(cfg, state, logger, func(n int) { _ = bar.Add(n) }).BuildAll(ctx)
				_ = bar.Finish()
				fmt.Println()
				if err != nil {
					return err
				}
			} else {
				search.BuildRoot(state, logger)
			}

			engine := search.NewEngine(state, search.Options{
				MaxResults:     cfg.MaxResults,
				MinScore:       cfg.MinScore,
				JunkSubstrings: cfg.JunkSubstrings,
			}, logger)
			results, more := engine.Search(search.Request{
				Query:             args[0],
				MountPoint:        mount,
				AcceptFiles:       !dirsOnly,
				AcceptDirectories: !filesOnly,
			})

			for _, r := range results {
				size := ""
				if r.Kind == fscache.File {
					size = fmt.Sprintf(" (%s)", formatSize(uint64(r.Size)))
				}
				fmt.Printf("%4d  %s%s  [%s]\n", r.Score, r.Path, size, r.Description)
			}
			fmt.Printf("\nTotal matches: %d", len(results))
			if more {
				fmt.Print(" (more available, refine the query)")
			}
			fmt.Println()

			if open && len(results) > 0 {
				fmt.Println("Opening file location...")
				if err := openFileLocation(results[0].Path); err != nil {
					fmt.Printf("Error opening file location: %v\n", err)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&mount, "mount", "m", "", "Only search this mount point")
	cmd.Flags().BoolVar(&filesOnly, "files", false, "Only return files")
	cmd.Flags().BoolVar(&dirsOnly, "dirs", false, "Only return directories")
	cmd.Flags().BoolVarP(&open, "open", "o", false, "Open the location of the best match")
	cmd.MarkFlagsMutuallyExclusive("files", "dirs")
	return cmd
}

func serveCmd() *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the indexing daemon and its HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}
			defer logger.Sync()
			if cmd.Flags().Changed("listen") {
				cfg.Listen = listen
			}

			ctx, cancel := signalContext()
			defer cancel()

			state := fscache.NewState(logger)
			enumerator := newEnumerator(cfg, state, logger, nil)
			tagCache, err := tags.New(ctx, cfg.TagCapacity, tags.NewStore(cfg.TagSnapshotPath()), cfg.TagFlushInterval, logger)
			if err != nil {
				return err
			}
			tagCache.Load()

			engine := search.NewEngine(state, search.Options{
				MaxResults:     cfg.MaxResults,
				MinScore:       cfg.MinScore,
				JunkSubstrings: cfg.JunkSubstrings,
			}, logger)

			go func() {
				if err := enumerator.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("startup indexing failed", zap.Error(err))
				}
			}()

			server := api.NewServer(api.Deps{
				Volumes:     enumerator,
				Searcher:    engine,
				Invalidator: state,
				Tags:        tagCache,
			}, cfg.CORSOrigins, logger)
			return server.Run(ctx, cfg.Listen)
		},
	}
	cmd.Flags().StringVarP(&listen, "listen", "l", "", "Address to listen on (default from config)")
	return cmd
}

func tagsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tags",
		Short: "Inspect and edit tags",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List tags, least recently used first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withTags(cmd, func(c *tags.Cache) (bool, error) {
				for _, tag := range c.Tags() {
					docs, _ := c.Get(tag)
					fmt.Printf("%s (%d)\n", tag, len(docs))
				}
				return false, nil
			})
		},
	}

	var path, color string
	add := &cobra.Command{
		Use:   "add TAG",
		Short: "Create a tag, optionally labelling a path with it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTags(cmd, func(c *tags.Cache) (bool, error) {
				c.AddTag(args[0])
				if path == "" {
					return true, nil
				}
				doc, err := c.AddPath(args[0], path, color)
				if err != nil {
					return false, err
				}
				fmt.Printf("Tagged %s as %s (%s)\n", path, args[0], doc.UUID)
				return true, nil
			})
		},
	}
	add.Flags().StringVarP(&path, "path", "p", "", "Path to label")
	add.Flags().StringVar(&color, "color", "#808080", "Tag colour as hex")

	cmd.AddCommand(list, add)
	return cmd
}

// withTags loads the tag cache, runs fn and saves when fn reports a change.
func withTags(cmd *cobra.Command, fn func(*tags.Cache) (bool, error)) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	// The flusher is not needed for one-shot commands.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c, err := tags.New(ctx, cfg.TagCapacity, tags.NewStore(cfg.TagSnapshotPath()), cfg.TagFlushInterval, logger)
	if err != nil {
		return err
	}
	c.Load()
	changed, err := fn(c)
	if err != nil || !changed {
		return err
	}
	return c.Save()
}

// Command appleport copies files between host directories while decoding
// and re-encoding the preservation conventions that carry Apple II and
// classic Mac OS metadata through foreign filesystems: AppleSingle,
// AppleDouble header files, NAPS attribute tags, and MacZip siblings.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"appleport/internal/classify"
	"appleport/internal/config"
	"appleport/internal/engine"
	"appleport/internal/filter"
	"appleport/internal/medium"
	"appleport/internal/pak"
	"appleport/internal/part"
	"appleport/internal/plan"
	"appleport/internal/preserve"
	"appleport/internal/stats"
	"appleport/internal/ui"
)

var version = "dev"

func main() {
	os.Exit(run())
}

// filterFlag appends include/exclude patterns to the chain in the order
// they appear on the command line, which is the order they match in.
type filterFlag struct {
	chain   *filter.Chain
	include bool
}

func (*filterFlag) String() string { return "" }
func (*filterFlag) Type() string   { return "string" }

func (f *filterFlag) Set(val string) error {
	if f.include {
		return f.chain.AddInclude(val)
	}
	return f.chain.AddExclude(val)
}

func run() int {
	rootCmd := &cobra.Command{
		Use:           "appleport",
		Short:         "Move Apple II and classic Mac files without losing their other half",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "print each file as it is written")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "suppress all output")

	rootCmd.AddCommand(copyCmd(), infoCmd(), rmCmd(), docsCmd())

	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, engine.ErrCancelled) {
			fmt.Fprintln(os.Stderr, "cancelled")
			return 130
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	return 0
}

// setupLogging configures the default slog logger from the shared flags.
func setupLogging(cmd *cobra.Command) {
	level := slog.LevelWarn
	if v, _ := cmd.Flags().GetBool("verbose"); v {
		level = slog.LevelInfo
	}
	if d, _ := cmd.Flags().GetBool("debug"); d {
		level = slog.LevelDebug
		part.LeakCheck = true
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
}

// signalContext cancels on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// isPakPath reports whether a path names a pak container rather than a
// host directory.
func isPakPath(path string) bool {
	return strings.EqualFold(filepath.Ext(path), pak.Extension)
}

// openOrCreatePak loads an existing container for appending, or stages a
// fresh one. The flavor of an existing container wins over the flag.
func openOrCreatePak(path string, macZip bool) (*medium.MemArchive, error) {
	arc, err := pak.LoadFile(path)
	switch {
	case err == nil:
		return arc, nil
	case errors.Is(err, os.ErrNotExist):
		flavor := pak.Forked
		if macZip {
			flavor = pak.Flat
		}
		return pak.New(flavor), nil
	default:
		return nil, err
	}
}

func copyCmd() *cobra.Command {
	var (
		preserveStr  string
		stripPaths   bool
		verifyFlag   bool
		overwriteStr string
		noProbe      bool
		macZip       bool
		compress     bool
	)
	chain := filter.NewChain()

	cmd := &cobra.Command{
		Use:   "copy [flags] <source>... <destination>",
		Short: "Copy files, translating preservation formats on the way",
		Long: `Copy classifies each source path: AppleDouble header files and their
data siblings coalesce into one logical file, AppleSingle containers and
NAPS-tagged names are decoded, and everything else passes through as
plain data. The logical files are then written to the destination in the
format selected by --preserve.

A source or destination ending in ".pak" is a portable archive container
instead of a host directory. Archives store forks and typed attributes
natively, so --preserve only shapes host-directory destinations.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(cmd)

			cfg, err := config.Load()
			if err != nil {
				slog.Warn("failed to load config", "error", err)
			}
			applyConfigDefaults(cmd, cfg.Defaults, &preserveStr, &verifyFlag, &stripPaths, &overwriteStr)
			if !cmd.Flags().Changed("maczip") && cfg.Defaults.MacZip != nil {
				macZip = *cfg.Defaults.MacZip
			}
			if !cmd.Flags().Changed("compress") && cfg.Defaults.Compress != nil {
				compress = *cfg.Defaults.Compress
			}

			mode, err := preserve.ParseMode(preserveStr)
			if err != nil {
				return err
			}
			policy, ok := ui.ParseOverwritePolicy(overwriteStr)
			if !ok {
				return fmt.Errorf("unknown overwrite policy %q (want ask, always, or never)", overwriteStr)
			}

			sources := args[:len(args)-1]
			dstPath := args[len(args)-1]

			var fc *filter.Chain
			if !chain.Empty() {
				fc = chain
			}

			// Destination endpoint.
			var (
				dst     medium.Endpoint
				savePak *medium.MemArchive
			)
			if isPakPath(dstPath) {
				arc, lerr := openOrCreatePak(dstPath, macZip)
				if lerr != nil {
					return lerr
				}
				savePak = arc
				dst = medium.ArchiveEndpoint(arc)
			} else {
				if err := os.MkdirAll(dstPath, 0o755); err != nil {
					return fmt.Errorf("create destination: %w", err)
				}
				fs, ferr := medium.NewLocalFS(dstPath)
				if ferr != nil {
					return ferr
				}
				dst = medium.FilesystemEndpoint(fs)
			}

			// Archive names pass through: containers store forks and
			// attributes natively, so preservation naming only shapes
			// host-directory destinations.
			planCfg := plan.Config{
				Mode:       mode,
				Native:     dst.IsArchive(),
				StripPaths: stripPaths,
				DstSep:     dst.Characteristics().DirSep,
				Filter:     fc,
			}

			var items []plan.Item
			if len(sources) == 1 && isPakPath(sources[0]) {
				arc, lerr := pak.LoadFile(sources[0])
				if lerr != nil {
					return lerr
				}
				items, err = plan.FromArchive(arc, nil, planCfg)
			} else {
				cls := classify.New(classify.Options{
					UseADF:          true,
					UseAS:           true,
					UseNAPS:         true,
					ProbeCompanions: !noProbe,
					ProbeHostAttrs:  !noProbe,
				})
				if err := cls.AddPaths(sources); err != nil {
					return err
				}
				items, err = plan.FromRecords(cls.Records(), planCfg)
			}
			if err != nil {
				return err
			}

			quiet, _ := cmd.Flags().GetBool("quiet")
			verbose, _ := cmd.Flags().GetBool("verbose")
			presenter := ui.NewPresenter(ui.Config{
				Writer:    os.Stdout,
				ErrWriter: os.Stderr,
				Input:     os.Stdin,
				IsTTY:     ui.IsTTY(os.Stdin.Fd()),
				Quiet:     quiet,
				Verbose:   verbose,
				Overwrite: policy,
			})
			st := stats.NewCollector()

			ctx, cancel := signalContext()
			defer cancel()

			compression := medium.CompressNone
			if compress {
				compression = medium.CompressLZ4
			}
			err = engine.Execute(ctx, engine.Config{
				Dst:         dst,
				Callback:    presenter.Callback(),
				Compression: compression,
				MacZip:      macZip,
				Verify:      verifyFlag,
				Stats:       st,
			}, items)
			if err != nil {
				return err
			}

			if savePak != nil {
				method := pak.MethodStore
				if compress {
					method = pak.MethodLZ4
				}
				if err := pak.SaveFile(dstPath, savePak, method); err != nil {
					return err
				}
			}
			if line := presenter.Summary(st.Snapshot()); line != "" {
				fmt.Fprintln(os.Stderr, line)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&preserveStr, "preserve", "p", "adf", "metadata preservation: none, adf, as, host, or naps")
	cmd.Flags().BoolVar(&stripPaths, "strip-paths", false, "flatten directory structure at the destination")
	cmd.Flags().BoolVar(&verifyFlag, "verify", false, "re-read every written fork and compare digests")
	cmd.Flags().StringVar(&overwriteStr, "overwrite", "ask", "on name conflict: ask, always, or never")
	cmd.Flags().BoolVar(&noProbe, "no-probe", false, "skip companion and extended-attribute probing")
	cmd.Flags().BoolVar(&macZip, "maczip", false, "write flat archives with __MACOSX metadata siblings")
	cmd.Flags().BoolVar(&compress, "compress", false, "LZ4-compress archive fork payloads")
	cmd.Flags().Var(&filterFlag{chain: chain, include: false}, "exclude", "exclude paths matching pattern (repeatable, ordered)")
	cmd.Flags().Var(&filterFlag{chain: chain, include: true}, "include", "include paths matching pattern (repeatable, ordered)")
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Name == "exclude" || f.Name == "include" {
			f.NoOptDefVal = ""
		}
	})
	return cmd
}

// applyConfigDefaults applies config file defaults for flags not
// explicitly set on the command line.
func applyConfigDefaults(
	cmd *cobra.Command,
	defaults config.DefaultsConfig,
	preserveStr *string,
	verify *bool,
	stripPaths *bool,
	overwrite *string,
) {
	if !cmd.Flags().Changed("preserve") && defaults.Preserve != nil {
		*preserveStr = *defaults.Preserve
	}
	if !cmd.Flags().Changed("verify") && defaults.Verify != nil {
		*verify = *defaults.Verify
	}
	if !cmd.Flags().Changed("strip-paths") && defaults.StripPaths != nil {
		*stripPaths = *defaults.StripPaths
	}
	if !cmd.Flags().Changed("overwrite") && defaults.Overwrite != nil {
		*overwrite = *defaults.Overwrite
	}
}

func infoCmd() *cobra.Command {
	var noProbe bool
	cmd := &cobra.Command{
		Use:   "info <path>...",
		Short: "Show how paths classify: forks, types, and preservation format",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(cmd)

			var hostPaths []string
			for _, arg := range args {
				if isPakPath(arg) {
					if err := printPak(arg); err != nil {
						return err
					}
					continue
				}
				hostPaths = append(hostPaths, arg)
			}
			if len(hostPaths) == 0 {
				return nil
			}

			cls := classify.New(classify.Options{
				UseADF:          true,
				UseAS:           true,
				UseNAPS:         true,
				ProbeCompanions: !noProbe,
				ProbeHostAttrs:  !noProbe,
			})
			if err := cls.AddPaths(hostPaths); err != nil {
				return err
			}
			for _, rec := range cls.Records() {
				printRecord(rec)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&noProbe, "no-probe", false, "skip companion and extended-attribute probing")
	return cmd
}

func printRecord(rec *classify.Record) {
	a := rec.Attrs
	name := a.Name
	if rec.StorageDir != "" {
		name = rec.StorageDir + string(rec.DirSep) + a.Name
	}
	if a.IsDir {
		fmt.Printf("%-40s  directory\n", name)
		return
	}

	kind := "plain"
	if rec.Data != nil {
		kind = rec.Data.Kind.String()
	} else if rec.Rsrc != nil {
		kind = rec.Rsrc.Kind.String()
	}

	var dataLen, rsrcLen int64
	if rec.Data != nil {
		dataLen = rec.Data.Len
	}
	if rec.Rsrc != nil {
		rsrcLen = rec.Rsrc.Len
	}

	typeStr := "-"
	switch {
	case a.ProType != 0 || a.ProAux != 0:
		typeStr = fmt.Sprintf("$%02X/$%04X", a.ProType, a.ProAux)
	case a.HFSType != 0 || a.HFSCreator != 0:
		typeStr = fmt.Sprintf("%s/%s", fourCC(a.HFSType), fourCC(a.HFSCreator))
	}

	locked := ""
	if a.Locked() {
		locked = "  locked"
	}
	fmt.Printf("%-40s  %-8s  data %8d  rsrc %8d  %s%s\n",
		name, kind, dataLen, rsrcLen, typeStr, locked)
}

// printPak lists the records of a pak container in the same layout
// printRecord uses for host paths.
func printPak(path string) error {
	arc, err := pak.LoadFile(path)
	if err != nil {
		return err
	}
	flavor := "forked"
	if arc.Characteristics().DualMeta {
		flavor = "flat"
	}
	fmt.Printf("%s: %s pak container\n", path, flavor)
	for _, e := range arc.Entries() {
		a := e.Attributes()
		if e.IsDir() {
			fmt.Printf("  %-38s  directory\n", e.Pathname())
			continue
		}

		typeStr := "-"
		switch {
		case a.ProType != 0 || a.ProAux != 0:
			typeStr = fmt.Sprintf("$%02X/$%04X", a.ProType, a.ProAux)
		case a.HFSType != 0 || a.HFSCreator != 0:
			typeStr = fmt.Sprintf("%s/%s", fourCC(a.HFSType), fourCC(a.HFSCreator))
		}
		locked := ""
		if a.Locked() {
			locked = "  locked"
		}
		fmt.Printf("  %-38s  %-8s  data %8d  rsrc %8d  %s%s\n",
			e.Pathname(), "record",
			e.ForkLen(medium.DataFork), e.ForkLen(medium.RsrcFork), typeStr, locked)
	}
	return nil
}

// fourCC renders an HFS type code, dotting out unprintable bytes.
func fourCC(v uint32) string {
	b := []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
	for i, c := range b {
		if c < 0x20 || c > 0x7E {
			b[i] = '.'
		}
	}
	return string(b)
}

func rmCmd() *cobra.Command {
	var noProbe bool
	cmd := &cobra.Command{
		Use:   "rm <path>...",
		Short: "Delete logical files together with their preservation companions",
		Long: `rm classifies each path first, so deleting a data file also removes
its "._" AppleDouble header, and deleting a NAPS data fork removes the
matching resource file.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(cmd)

			cls := classify.New(classify.Options{
				UseADF:          true,
				UseAS:           true,
				UseNAPS:         true,
				ProbeCompanions: !noProbe,
			})
			if err := cls.AddPaths(args); err != nil {
				return err
			}

			fs, err := medium.NewLocalFS(".")
			if err != nil {
				return err
			}
			var entries []medium.Entry
			for _, rec := range cls.Records() {
				for _, fsrc := range []*classify.ForkSource{rec.Data, rec.Rsrc} {
					if fsrc == nil || fsrc.Path == "" {
						continue
					}
					e, lerr := lookupPath(fs, fsrc.Path)
					if lerr != nil {
						return lerr
					}
					entries = append(entries, e)
				}
			}
			if len(entries) == 0 {
				return nil
			}

			quiet, _ := cmd.Flags().GetBool("quiet")
			verbose, _ := cmd.Flags().GetBool("verbose")
			presenter := ui.NewPresenter(ui.Config{
				Writer:    os.Stdout,
				ErrWriter: os.Stderr,
				Quiet:     quiet,
				Verbose:   verbose,
			})
			st := stats.NewCollector()

			ctx, cancel := signalContext()
			defer cancel()

			if err := engine.Delete(ctx, engine.Config{
				Dst:      medium.FilesystemEndpoint(fs),
				Callback: presenter.Callback(),
				Stats:    st,
			}, entries); err != nil {
				return err
			}
			snap := st.Snapshot()
			if !quiet {
				fmt.Fprintf(os.Stderr, "deleted %d\n", snap.Deleted)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&noProbe, "no-probe", false, "skip companion probing")
	return cmd
}

// lookupPath resolves a relative host path to a LocalFS entry.
func lookupPath(fs *medium.LocalFS, path string) (medium.Entry, error) {
	cur := fs.RootDir()
	sep := fs.Characteristics().DirSep
	for _, comp := range strings.Split(path, string(sep)) {
		if comp == "" || comp == "." {
			continue
		}
		child, ok := fs.FindChild(cur, comp)
		if !ok {
			return nil, fmt.Errorf("%s: not found", path)
		}
		cur = child
	}
	return cur, nil
}

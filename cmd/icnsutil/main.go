// Command icnsutil exports existing icns files or composes new ones.
package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/mrjoshuak/go-icns/argb"
	"github.com/mrjoshuak/go-icns/compression"
	"github.com/mrjoshuak/go-icns/icns"
)

const version = "1.1.0"

var logger hclog.Logger

func main() {
	var logLevel string

	root := &cobra.Command{
		Use:     "icnsutil",
		Short:   "Export existing icns files or compose new ones",
		Version: version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = hclog.New(&hclog.LoggerOptions{
				Name:  "icnsutil",
				Level: hclog.LevelFromString(logLevel),
			})
		},
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn",
		"Log level (trace, debug, info, warn, error)")

	root.AddCommand(
		newExtractCmd(),
		newComposeCmd(),
		newUpdateCmd(),
		newPrintCmd(),
		newVerifyCmd(),
		newConvertCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// expandStdin resolves the "-" convention: each "-" argument is replaced
// with one path per line read from standard input.
func expandStdin(args []string) ([]string, error) {
	var out []string
	for _, a := range args {
		if a != "-" {
			out = append(out, a)
			continue
		}
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			if line := strings.TrimSpace(sc.Text()); line != "" {
				out = append(out, line)
			}
		}
		if err := sc.Err(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func newExtractCmd() *cobra.Command {
	var (
		recursive bool
		exportDir string
		keys      bool
		convert   bool
		pngOnly   bool
	)
	cmd := &cobra.Command{
		Use:     "extract [flags] FILE...",
		Aliases: []string{"e"},
		Short:   "Read and extract contents of icns file(s)",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := expandStdin(args)
			if err != nil {
				return err
			}
			opts := icns.ExportOptions{
				Recursive: recursive,
				Convert:   convert,
				KeyNames:  keys,
			}
			if pngOnly {
				opts.Ext = "png"
			}
			multiple := len(files) > 1
			for i, fname := range files {
				out := exportDir
				if out == "" {
					out = filepath.Dir(fname)
				}
				if multiple && exportDir != "" {
					// Keep exports from different archives apart
					out = filepath.Join(out, fmt.Sprint(i))
				}
				if err := extractOne(fname, out, opts); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false,
		"extract nested icns files as well")
	cmd.Flags().StringVarP(&exportDir, "export-dir", "o", "",
		"set custom export directory")
	cmd.Flags().BoolVarP(&keys, "keys", "k", false,
		"use icns key as filename")
	cmd.Flags().BoolVarP(&convert, "convert", "c", false,
		"convert ARGB and RGB images to PNG")
	cmd.Flags().BoolVar(&pngOnly, "png-only", false,
		"do not extract ARGB, binary, and meta files")
	return cmd
}

func extractOne(fname, dir string, opts icns.ExportOptions) error {
	f, err := icns.ParseFile(fname)
	if err != nil {
		return fmt.Errorf("%s: %w", fname, err)
	}
	for _, e := range f.Entries {
		if _, ok := icns.Lookup(e.Type); !ok {
			logger.Warn("unknown media type", "file", fname, "tag", e.Type.String())
		}
	}
	files, err := f.Export(opts)
	if err != nil {
		return fmt.Errorf("%s: %w", fname, err)
	}
	// Mask entries fold into their image during conversion, so the
	// count comparison only means "skipped" under an extension filter
	if skipped := len(f.Entries) - len(files); skipped > 0 && opts.Ext != "" {
		logger.Warn("entries not exported", "file", fname, "count", skipped)
	}
	logger.Debug("extracting", "file", fname, "entries", len(files), "dir", dir)
	for _, ef := range files {
		path := filepath.Join(dir, filepath.FromSlash(ef.Name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, ef.Data, 0o644); err != nil {
			return err
		}
	}
	return nil
}

func newComposeCmd() *cobra.Command {
	var (
		force bool
		noTOC bool
	)
	cmd := &cobra.Command{
		Use:     "compose [flags] destination src...",
		Aliases: []string{"c"},
		Short:   "Create new icns file from provided image files",
		Long: `Create new icns file from provided image files.

Notes:
- TOC is optional but only a few bytes long (8b per media entry).
- Icon dimensions are read directly from file.
- Filename suffix "@2x.png" or "@2x.jp2" sets the retina flag.
- Use one of these suffixes to automatically assign icns files:
   template, selected, dark`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dest := args[0]
			if filepath.Ext(dest) == "" {
				dest += ".icns"
			}
			if !force {
				if _, err := os.Stat(dest); err == nil {
					return fmt.Errorf(
						"file %q already exists, force overwrite with -f", dest)
				}
			}
			sources, err := expandStdin(args[1:])
			if err != nil {
				return err
			}
			f := &icns.File{}
			for _, src := range sources {
				data, err := os.ReadFile(src)
				if err != nil {
					return err
				}
				if err := f.AddImage("", src, data, false); err != nil {
					return fmt.Errorf("%s: %w", src, err)
				}
				logger.Debug("added media", "source", src)
			}
			return f.WriteFile(dest, !noTOC)
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false,
		"force overwrite output file")
	cmd.Flags().BoolVar(&noTOC, "no-toc", false,
		"do not write table of contents to file")
	return cmd
}

func newUpdateCmd() *cobra.Command {
	var (
		output  string
		rmKeys  []string
		setArgs []string
	)
	cmd := &cobra.Command{
		Use:     "update [flags] FILE",
		Aliases: []string{"u"},
		Short:   "Update existing icns file by inserting or removing media entries",
		Long: `Update existing icns file by inserting or removing media entries.

KEY supports names like "dark", "selected", and "template".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := icns.ParseFile(args[0])
			if err != nil {
				return err
			}
			changed := false
			for _, key := range rmKeys {
				removed, err := f.RemoveMedia(key)
				if err != nil {
					return err
				}
				if !removed {
					logger.Warn("no such entry", "file", args[0], "key", key)
				}
				changed = changed || removed
			}
			for _, kv := range setArgs {
				key, file, ok := strings.Cut(kv, "=")
				if !ok || file == "" {
					return fmt.Errorf("expected arg format KEY=FILE, got %q", kv)
				}
				data, err := os.ReadFile(file)
				if err != nil {
					return err
				}
				if err := f.AddImage(key, file, data, true); err != nil {
					return fmt.Errorf("%s: %w", kv, err)
				}
				changed = true
			}
			if !changed && output == "" {
				return nil
			}
			dest := output
			if dest == "" {
				dest = args[0]
			}
			return f.WriteFile(dest, f.HasTOC())
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "",
		"choose another destination, don't overwrite input")
	cmd.Flags().StringArrayVar(&rmKeys, "rm", nil,
		"remove media keys from icns file")
	cmd.Flags().StringArrayVar(&setArgs, "set", nil,
		"append or replace media in icns file (KEY=FILE)")
	return cmd
}

func newPrintCmd() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:     "print [flags] FILE...",
		Aliases: []string{"p"},
		Short:   "Print contents of icns file(s)",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := expandStdin(args)
			if err != nil {
				return err
			}
			for _, fname := range files {
				fmt.Println("File:", fname)
				infos, err := icns.DescribeFile(fname, verbose)
				if err != nil {
					return err
				}
				for _, info := range infos {
					fmt.Println(" ", info)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false,
		"print all keys with offsets and sizes")
	return cmd
}

func newVerifyCmd() *cobra.Command {
	var quiet bool
	cmd := &cobra.Command{
		Use:     "test [flags] FILE...",
		Aliases: []string{"t", "verify"},
		Short:   "Test if icns file is valid",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := expandStdin(args)
			if err != nil {
				return err
			}
			for _, fname := range files {
				data, err := os.ReadFile(fname)
				if err != nil {
					return err
				}
				if !quiet {
					fmt.Println("File:", fname)
				}
				clean := true
				for issue := range icns.Verify(data) {
					if clean && quiet {
						fmt.Println("File:", fname)
					}
					clean = false
					fmt.Println(" ", issue)
				}
				if clean && !quiet {
					fmt.Println("OK")
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false,
		"do not print OK results")
	return cmd
}

func newConvertCmd() *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:     "convert [flags] destination src [mask]",
		Aliases: []string{"img"},
		Short:   "Convert images between PNG, ARGB, or RGB + alpha mask",
		Args:    cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, source := args[0], args[1]
			im, err := loadImage(source)
			if err != nil {
				return fmt.Errorf("%s: %w", source, err)
			}
			if len(args) == 3 {
				mask, err := loadMask(args[2], im.Width*im.Height)
				if err != nil {
					return fmt.Errorf("%s: %w", args[2], err)
				}
				if err := im.SetMask(mask); err != nil {
					return err
				}
			}

			dest := target
			switch target {
			case "png", "argb", "rgb":
				dest = source + "." + target
			}
			return writeImage(dest, im, raw)
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false,
		"no post-processing, do not prepend the 128x128 stream header")
	return cmd
}

// loadImage reads a source image in any supported payload format. Packed
// RGB and ARGB sizes are resolved through the media registry.
func loadImage(path string) (*argb.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	format := icns.DetectFormat(data)
	if format == "" && strings.HasSuffix(path, ".rgb") {
		format = icns.FormatRGB
	}
	switch format {
	case icns.FormatPNG, icns.FormatJP2:
		return argb.DecodeRaster(data)
	case icns.FormatARGB:
		w, h, ok := icns.DetectImageSize(data, format)
		if !ok {
			return nil, fmt.Errorf("cannot determine ARGB image size")
		}
		return argb.DecodeARGB(data, w, h)
	case icns.FormatRGB:
		w, h, ok := icns.DetectImageSize(data, format)
		if !ok {
			return nil, fmt.Errorf("cannot determine RGB image size")
		}
		return argb.DecodeRGB(data, w, h)
	}
	return nil, fmt.Errorf("unsupported image format")
}

// loadMask reads an alpha mask stream, decompressing it when the raw
// length does not match the pixel count.
func loadMask(path string, pixels int) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) == pixels {
		return data, nil
	}
	return compression.Unpack(data, pixels)
}

// writeImage encodes the image in the format named by the destination
// extension. RGB output writes a second ".mask" file with the raw alpha
// stream.
func writeImage(dest string, im *argb.Image, raw bool) error {
	switch filepath.Ext(dest) {
	case ".png":
		data, err := im.EncodePNG()
		if err != nil {
			return err
		}
		return os.WriteFile(dest, data, 0o644)
	case ".argb":
		return os.WriteFile(dest, im.EncodeARGB(), 0o644)
	case ".rgb":
		var data []byte
		if !raw && im.Width == 128 && im.Height == 128 {
			data = []byte{0, 0, 0, 0}
		}
		data = append(data, im.EncodeRGB()...)
		if err := os.WriteFile(dest, data, 0o644); err != nil {
			return err
		}
		return os.WriteFile(dest+".mask", im.Mask(), 0o644)
	}
	return fmt.Errorf("cannot determine target image type for %q", dest)
}

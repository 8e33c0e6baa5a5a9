package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/klauspost/compress/zstd"
	"github.com/moby/go-archive"
)

// runExport archives a data directory (database, report exports) into a
// single zstd-compressed tarball.
func runExport(args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	output := fs.String("f", "", "output archive path (.tar.zst)")
	dataDir := fs.String("data", "data", "data directory to archive")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *output == "" {
		return fmt.Errorf("-f is required")
	}
	if _, err := os.Stat(*dataDir); err != nil {
		return fmt.Errorf("data dir: %w", err)
	}

	// zstd handles the compression; the tar stream stays plain.
	tarStream, err := archive.TarWithOptions(*dataDir, &archive.TarOptions{})
	if err != nil {
		return fmt.Errorf("tar data dir: %w", err)
	}
	defer tarStream.Close()

	f, err := os.Create(*output)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()

	zw, err := zstd.NewWriter(f)
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}

	written, err := io.Copy(zw, tarStream)
	if err != nil {
		return fmt.Errorf("write archive: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close zstd: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close file: %w", err)
	}

	info, _ := os.Stat(*output)
	size := int64(0)
	if info != nil {
		size = info.Size()
	}
	fmt.Printf("Export complete: %s (%s, %s uncompressed)\n", *output, formatSize(size), formatSize(written))
	return nil
}

// runRestore unpacks an export archive into a data directory.
func runRestore(args []string) error {
	fs := flag.NewFlagSet("restore", flag.ExitOnError)
	input := fs.String("f", "", "input archive path (.tar.zst)")
	dataDir := fs.String("data", "data", "destination data directory")
	overwrite := fs.Bool("overwrite", false, "allow restoring into a non-empty directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *input == "" {
		return fmt.Errorf("-f is required")
	}

	if !*overwrite {
		if entries, err := os.ReadDir(*dataDir); err == nil && len(entries) > 0 {
			return fmt.Errorf("%s is not empty, add -overwrite to replace files", *dataDir)
		}
	}
	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	f, err := os.Open(*input)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return fmt.Errorf("create zstd reader: %w", err)
	}
	defer zr.Close()

	if err := archive.Untar(zr, *dataDir, &archive.TarOptions{NoLchown: true}); err != nil {
		return fmt.Errorf("unpack archive: %w", err)
	}

	slog.Info("restore complete", "dir", *dataDir)
	return nil
}

func formatSize(bytes int64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)
	switch {
	case bytes >= gb:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(gb))
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d bytes", bytes)
	}
}

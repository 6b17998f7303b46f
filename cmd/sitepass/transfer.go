package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/forest6511/sitepass/pkg/sitestore"
)

// Transfer format constants
const (
	formatJSON = "json"
	formatYAML = "yaml"
)

// maxImportSize bounds the size of an import file.
const maxImportSize = 10 * 1024 * 1024

// Export and import command flags
var (
	exportFormat string
	exportOutput string
	exportForce  bool
	importFormat string
)

func init() {
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)

	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", formatJSON, "Output format: json, yaml")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file path (default: stdout)")
	exportCmd.Flags().BoolVar(&exportForce, "force", false, "Overwrite existing file without confirmation")
	importCmd.Flags().StringVarP(&importFormat, "format", "f", "", "Input format: json, yaml (default: by file extension)")
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export saved site settings",
	Long: `Export the saved settings of every site, keyed by site. The output
contains no passwords and can be imported on another machine.

Examples:
  # Export to stdout
  sitepass export

  # Export to a YAML file
  sitepass export -f yaml -o sites.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if exportFormat != formatJSON && exportFormat != formatYAML {
			return fmt.Errorf("invalid format '%s': must be 'json' or 'yaml'", exportFormat)
		}
		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		var buf bytes.Buffer
		if err := exportSites(&buf, a.store, exportFormat); err != nil {
			return err
		}
		if exportOutput == "" {
			_, err := os.Stdout.Write(buf.Bytes())
			return err
		}
		if err := writeSecureFile(exportOutput, buf.String(), exportForce); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Exported %d site(s) to %s\n", a.store.Len(), exportOutput)
		return nil
	},
}

// exportSites writes the store in format.
func exportSites(w io.Writer, store *sitestore.Store, format string) error {
	if format == formatJSON {
		return store.ExportJSON(w)
	}
	sites := make(map[string]sitestore.Record, store.Len())
	for _, e := range store.Snapshot() {
		sites[e.Site] = e.Record
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(sites); err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}
	return enc.Close()
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import site settings",
	Long: `Import site settings exported by sitepass. Use "-" to read stdin.

A site that is not saved yet is added. A saved site is replaced only when the
import is newer than the saved settings; otherwise it is kept.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, format, err := readImportFile(args[0], importFormat)
		if err != nil {
			return err
		}
		if format == formatYAML {
			if data, err = yamlToJSON(data); err != nil {
				return err
			}
		}

		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.sess.Import(data)
		if err != nil {
			return fmt.Errorf("invalid data: %w", err)
		}
		printImportSummary(os.Stdout, result)
		return a.store.LastError()
	},
}

// readImportFile reads path (or stdin for "-") and resolves the format.
func readImportFile(path, format string) ([]byte, string, error) {
	if format == "" {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			format = formatYAML
		default:
			format = formatJSON
		}
	}
	if format != formatJSON && format != formatYAML {
		return nil, "", fmt.Errorf("invalid format '%s': must be 'json' or 'yaml'", format)
	}

	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, "", fmt.Errorf("failed to open import file: %w", err)
		}
		defer f.Close()
		r = f
	}
	data, err := io.ReadAll(io.LimitReader(r, maxImportSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read import file: %w", err)
	}
	if len(data) > maxImportSize {
		return nil, "", fmt.Errorf("import file exceeds %d bytes", maxImportSize)
	}
	return data, format, nil
}

// yamlToJSON converts a YAML document to the JSON import format.
func yamlToJSON(data []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	return out, nil
}

func printImportSummary(w io.Writer, r sitestore.ImportResult) {
	fmt.Fprintf(w, "Import complete: %d added, %d replaced, %d kept\n", len(r.Added), len(r.Replaced), len(r.Skipped))
	for _, site := range r.Skipped {
		fmt.Fprintf(w, "  kept %s (saved settings are newer)\n", site)
	}
}

// writeSecureFile writes content to a file with 0600 permissions.
// Security: refuses symlinks and only overwrites with force.
func writeSecureFile(path string, content string, force bool) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}

	info, err := os.Lstat(absPath)
	if err == nil {
		if info.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("security: refusing to write to symlink: %s", absPath)
		}
		if !force {
			return fmt.Errorf("file already exists: %s (use --force to overwrite)", absPath)
		}
	}

	if dir := filepath.Dir(absPath); dir != "/" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	// O_EXCL without force closes the gap between the check above and the open.
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !force {
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}
	f, err := os.OpenFile(absPath, flags, 0600)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("file already exists: %s (use --force to overwrite)", absPath)
		}
		return fmt.Errorf("failed to create file: %w", err)
	}

	_, writeErr := f.WriteString(content)
	closeErr := f.Close()
	if writeErr != nil {
		return fmt.Errorf("failed to write file: %w", writeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close file: %w", closeErr)
	}
	return nil
}

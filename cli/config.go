// ABOUTME: Configuration CLI commands
// ABOUTME: Writes a starter config file and prints the effective configuration with tokens masked
package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/harperreed/crmsync/config"
)

// ConfigInitCommand writes the default configuration unless a file exists.
func ConfigInitCommand(out io.Writer, path string, args []string) error {
	fs := flag.NewFlagSet("config init", flag.ExitOnError)
	force := fs.Bool("force", false, "Overwrite an existing file")
	_ = fs.Parse(args)

	if path == "" {
		path = config.DefaultPath()
	}
	if _, err := os.Stat(path); err == nil && !*force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	if err := config.Default().Save(path); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "✓ Wrote %s\n", path)
	return nil
}

// ConfigShowCommand prints the effective configuration.
func ConfigShowCommand(out io.Writer, cfg *config.Config) error {
	shown := *cfg
	shown.DatabaseDSN = mask(cfg.DatabaseDSN)
	shown.AdminTokens = make([]string, len(cfg.AdminTokens))
	for i, t := range cfg.AdminTokens {
		shown.AdminTokens[i] = mask(t)
	}
	shown.UserTokens = make(map[string]string, len(cfg.UserTokens))
	for t, staff := range cfg.UserTokens {
		shown.UserTokens[mask(t)] = staff
	}
	return writeJSON(out, shown)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + "****" + s[len(s)-2:]
}

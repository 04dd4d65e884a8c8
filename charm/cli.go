// ABOUTME: CLI commands for the Charm KV watermark backend
// ABOUTME: Link a device, show shared watermarks, push now and reset watermarks

package charm

import (
	"context"
	"flag"
	"fmt"
	"sort"
	"time"
)

// LinkCommand links this device to a charm account. Charm authenticates with
// SSH keys, so linking is just a first successful sync.
func LinkCommand(cfg Config, args []string) error {
	fs := flag.NewFlagSet("charm link", flag.ExitOnError)
	_ = fs.Parse(args)

	cfg = cfg.withDefaults()
	fmt.Printf("Linking to Charm Cloud (%s)...\n\n", cfg.Host)

	c, err := Open(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize client: %w", err)
	}
	if err := c.Sync(); err != nil {
		return fmt.Errorf("link failed: %w", err)
	}

	id, err := c.ID()
	if err != nil {
		fmt.Println("✓ Device linked (ID unavailable)")
	} else {
		fmt.Printf("✓ Linked to account: %s\n", id)
	}
	fmt.Printf("✓ Auto-sync: %v\n", cfg.AutoSync)
	fmt.Println("\nWatermarks are now shared with every linked machine.")
	return nil
}

// StatusCommand shows connection settings and the shared watermarks.
func StatusCommand(cfg Config, args []string) error {
	fs := flag.NewFlagSet("charm status", flag.ExitOnError)
	_ = fs.Parse(args)

	c, err := Open(cfg)
	if err != nil {
		return fmt.Errorf("failed to open charm kv: %w", err)
	}
	return showStatus(context.Background(), c)
}

func showStatus(ctx context.Context, c *Client) error {
	cfg := c.Config()
	fmt.Println("Charm Watermarks")
	fmt.Println("────────────────")
	fmt.Printf("Server:    %s\n", cfg.Host)
	fmt.Printf("Database:  %s\n", cfg.Database)
	fmt.Printf("Auto-sync: %v\n", cfg.AutoSync)

	if id, err := c.ID(); err != nil {
		fmt.Println("Status:    Not connected")
	} else {
		fmt.Printf("ID:        %s\n", id)
	}

	marks, err := NewWatermarkStore(c).ListWatermarks(ctx)
	if err != nil {
		return err
	}
	if len(marks) == 0 {
		fmt.Println("\nNo watermarks stored yet.")
		return nil
	}

	categories := make([]string, 0, len(marks))
	for cat := range marks {
		categories = append(categories, cat)
	}
	sort.Strings(categories)

	fmt.Println()
	for _, cat := range categories {
		fmt.Printf("  %-22s %s\n", cat, marks[cat].Local().Format(time.RFC3339))
	}
	return nil
}

// PushCommand syncs with the charm server immediately.
func PushCommand(cfg Config, args []string) error {
	fs := flag.NewFlagSet("charm push", flag.ExitOnError)
	_ = fs.Parse(args)

	c, err := Open(cfg)
	if err != nil {
		return fmt.Errorf("failed to open charm kv: %w", err)
	}
	if err := c.Sync(); err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}
	fmt.Println("✓ Synced")
	return nil
}

// ResetCommand forgets watermarks so the next run refetches from the default since.
func ResetCommand(cfg Config, args []string) error {
	fs := flag.NewFlagSet("charm reset", flag.ExitOnError)
	category := fs.String("category", "", "Only reset this category")
	confirm := fs.Bool("confirm", false, "Confirm the reset")
	_ = fs.Parse(args)

	if !*confirm {
		fmt.Println("WARNING: the next sync will refetch everything since the default date.")
		fmt.Println()
		fmt.Println("To confirm, run:")
		fmt.Println("  crmsync charm reset --confirm [--category NAME]")
		return nil
	}

	c, err := Open(cfg)
	if err != nil {
		return fmt.Errorf("failed to open charm kv: %w", err)
	}
	return resetWatermarks(context.Background(), NewWatermarkStore(c), *category)
}

func resetWatermarks(ctx context.Context, store *WatermarkStore, category string) error {
	if category != "" {
		if err := store.ResetWatermark(ctx, category); err != nil {
			return err
		}
		fmt.Printf("✓ Reset %s\n", category)
		return nil
	}

	marks, err := store.ListWatermarks(ctx)
	if err != nil {
		return err
	}
	for cat := range marks {
		if err := store.ResetWatermark(ctx, cat); err != nil {
			return err
		}
	}
	fmt.Printf("✓ Reset %d watermarks\n", len(marks))
	return nil
}

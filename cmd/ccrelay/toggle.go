package main

import (
	"fmt"

	"github.com/ccrelay/ccrelay/internal/config"
	"github.com/ccrelay/ccrelay/internal/state"

	"github.com/spf13/cobra"
)

// The toggles write the shared state file directly. A running daemon picks
// the change up through its file watcher, so these work whether or not the
// daemon is up.

var enableCmd = &cobra.Command{
	Use:   "enable [hook]",
	Short: "Enable notifications globally, or for one hook event",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setFlag(args, true)
	},
}

var disableCmd = &cobra.Command{
	Use:   "disable [hook]",
	Short: "Disable notifications globally, or for one hook event",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setFlag(args, false)
	},
}

func setFlag(args []string, enabled bool) error {
	lockTimeout, err := config.DurationOrDefault(cfg.State.LockTimeout, config.DefaultStateLockTimeout)
	if err != nil {
		return fmt.Errorf("parse state lock timeout: %w", err)
	}

	store, err := state.NewStore(cfg.State.Path, lockTimeout)
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}

	verb := "disabled"
	if enabled {
		verb = "enabled"
	}

	if len(args) == 1 {
		if err := store.SetHook(args[0], enabled); err != nil {
			return fmt.Errorf("update hook flag: %w", err)
		}
		fmt.Printf("Hook %s %s.\n", args[0], verb)
		return nil
	}

	if err := store.SetEnabled(enabled); err != nil {
		return fmt.Errorf("update global flag: %w", err)
	}
	fmt.Printf("Notifications %s.\n", verb)
	return nil
}

func init() {
	rootCmd.AddCommand(enableCmd)
	rootCmd.AddCommand(disableCmd)
}

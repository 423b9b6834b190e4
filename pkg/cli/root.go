package cli

import (
	"flag"
	"fmt"
	"os"
)

// Command represents a CLI command
type Command struct {
	Name        string
	Description string
	Run         func(args []string) error
	Subcommands map[string]*Command
	Flags       *flag.FlagSet
}

// NewRootCommand creates the root command
func NewRootCommand() *Command {
	root := &Command{
		Name:        "warden",
		Description: "Warden - Role authorization and audit trail admin CLI",
		Subcommands: make(map[string]*Command),
		Flags:       flag.NewFlagSet("warden", flag.ExitOnError),
	}

	root.Subcommands["audit"] = newAuditCommand()
	root.Subcommands["export"] = newExportCommand()
	root.Subcommands["stats"] = newStatsCommand()
	root.Subcommands["promote"] = newPromoteCommand()
	root.Subcommands["demote"] = newDemoteCommand()
	root.Subcommands["whitelist"] = newWhitelistCommand()
	root.Subcommands["purge"] = newPurgeCommand()

	return root
}

// Execute runs the command
func (c *Command) Execute() error {
	args := os.Args[1:]
	if len(args) == 0 {
		return c.usage()
	}

	if args[0] == "-h" || args[0] == "--help" {
		return c.usage()
	}

	if subcmd, ok := c.Subcommands[args[0]]; ok {
		return subcmd.Run(args[1:])
	}

	return fmt.Errorf("unknown command: %s", args[0])
}

// usage prints the command usage
func (c *Command) usage() error {
	fmt.Printf("Usage: %s <command> [args]\n\n", c.Name)
	fmt.Printf("Commands:\n")
	for name, cmd := range c.Subcommands {
		fmt.Printf("  %-15s %s\n", name, cmd.Description)
	}
	return nil
}

package cli

import (
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

type actorResult struct {
	ID          int64  `json:"id"`
	Handle      string `json:"handle"`
	Role        string `json:"role"`
	Whitelisted bool   `json:"whitelisted"`
}

func newPromoteCommand() *Command {
	cmd := &Command{
		Name:        "promote",
		Description: "Promote a user to a higher role",
		Flags:       flag.NewFlagSet("promote", flag.ExitOnError),
		Run:         runPromote,
	}
	addRoleChangeFlags(cmd)
	return cmd
}

func runPromote(args []string) error {
	return runRoleChange(newPromoteCommand(), args, "promote")
}

func newDemoteCommand() *Command {
	cmd := &Command{
		Name:        "demote",
		Description: "Demote a user to a lower role",
		Flags:       flag.NewFlagSet("demote", flag.ExitOnError),
		Run:         runDemote,
	}
	addRoleChangeFlags(cmd)
	return cmd
}

func runDemote(args []string) error {
	return runRoleChange(newDemoteCommand(), args, "demote")
}

func addRoleChangeFlags(cmd *Command) {
	cmd.Flags.String("server", "", "Admin API URL (default $WARDEN_SERVER or http://localhost:8080)")
	cmd.Flags.String("as", "", "Acting handle (default $WARDEN_AS)")
	cmd.Flags.String("handle", "", "Target handle")
	cmd.Flags.String("role", "", "New role (USER, OPERATOR, ADMIN, OWNER)")
}

func runRoleChange(cmd *Command, args []string, verb string) error {
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	handle := cmd.Flags.Lookup("handle").Value.String()
	role := strings.ToUpper(cmd.Flags.Lookup("role").Value.String())
	if handle == "" || role == "" {
		return fmt.Errorf("handle and role are required")
	}

	c, err := newClient(cmd.Flags.Lookup("server").Value.String(), cmd.Flags.Lookup("as").Value.String())
	if err != nil {
		return err
	}

	path := fmt.Sprintf("/api/v1/actors/%s/%s", url.PathEscape(handle), verb)
	data, err := c.do(http.MethodPost, path, map[string]string{"role": role})
	if err != nil {
		return err
	}

	var actor actorResult
	if err := unmarshalActor(data, &actor); err != nil {
		return err
	}
	fmt.Printf("%s is now %s\n", actor.Handle, actor.Role)
	return nil
}

func newWhitelistCommand() *Command {
	cmd := &Command{
		Name:        "whitelist",
		Description: "Add or remove a handle from the whitelist",
		Flags:       flag.NewFlagSet("whitelist", flag.ExitOnError),
		Run:         runWhitelist,
	}

	cmd.Flags.String("server", "", "Admin API URL (default $WARDEN_SERVER or http://localhost:8080)")
	cmd.Flags.String("as", "", "Acting handle (default $WARDEN_AS)")
	cmd.Flags.String("handle", "", "Target handle")
	cmd.Flags.Bool("remove", false, "Remove instead of add")

	return cmd
}

func runWhitelist(args []string) error {
	cmd := newWhitelistCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	handle := cmd.Flags.Lookup("handle").Value.String()
	if handle == "" {
		return fmt.Errorf("handle is required")
	}
	remove := cmd.Flags.Lookup("remove").Value.String() == "true"

	c, err := newClient(cmd.Flags.Lookup("server").Value.String(), cmd.Flags.Lookup("as").Value.String())
	if err != nil {
		return err
	}

	method := http.MethodPost
	if remove {
		method = http.MethodDelete
	}
	data, err := c.do(method, "/api/v1/actors/"+url.PathEscape(handle)+"/whitelist", nil)
	if err != nil {
		return err
	}

	var actor actorResult
	if err := unmarshalActor(data, &actor); err != nil {
		return err
	}
	if actor.Whitelisted {
		fmt.Printf("%s added to whitelist\n", actor.Handle)
	} else {
		fmt.Printf("%s removed from whitelist\n", actor.Handle)
	}
	return nil
}

func newPurgeCommand() *Command {
	cmd := &Command{
		Name:        "purge",
		Description: "Delete all audit entries for an actor (owner only)",
		Flags:       flag.NewFlagSet("purge", flag.ExitOnError),
		Run:         runPurge,
	}

	cmd.Flags.String("server", "", "Admin API URL (default $WARDEN_SERVER or http://localhost:8080)")
	cmd.Flags.String("as", "", "Acting handle (default $WARDEN_AS)")
	cmd.Flags.String("handle", "", "Target handle")

	return cmd
}

func runPurge(args []string) error {
	cmd := newPurgeCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	handle := cmd.Flags.Lookup("handle").Value.String()
	if handle == "" {
		return fmt.Errorf("handle is required")
	}

	c, err := newClient(cmd.Flags.Lookup("server").Value.String(), cmd.Flags.Lookup("as").Value.String())
	if err != nil {
		return err
	}

	var body struct {
		Deleted int64 `json:"deleted"`
	}
	data, err := c.do(http.MethodDelete, "/api/v1/actors/"+url.PathEscape(handle)+"/audit", nil)
	if err != nil {
		return err
	}
	if err := unmarshalJSON(data, &body); err != nil {
		return err
	}
	fmt.Printf("Deleted %d audit entries for %s\n", body.Deleted, handle)
	return nil
}

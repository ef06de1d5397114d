package main

import (
	"encoding/hex"
	"fmt"

	"github.com/cuemby/keystone/pkg/auth"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var roleCmd = &cobra.Command{
	Use:   "role",
	Short: "Manage auth roles",
}

var roleAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a new role",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openResumedNode(cmd)
		if err != nil {
			return err
		}
		defer h.node.Shutdown()

		if _, _, err := h.node.Apply(uuid.NewString(), auth.RoleAddRequest{Name: args[0]}); err != nil {
			return err
		}
		fmt.Printf("role %s added\n", args[0])
		return nil
	},
}

var roleGetCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Show a role's granted permissions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openResumedNode(cmd)
		if err != nil {
			return err
		}
		defer h.node.Shutdown()

		resp, err := h.node.Core().Execute(uuid.NewString(), auth.RoleGetRequest{Name: args[0]})
		if err != nil {
			return err
		}
		fmt.Printf("role: %s\n", args[0])
		for _, p := range resp.Permissions {
			fmt.Printf("  %s key=%s range_end=%s\n", permTypeString(p.Type), hex.EncodeToString(p.Key), hex.EncodeToString(p.RangeEnd))
		}
		return nil
	},
}

var roleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all roles",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openResumedNode(cmd)
		if err != nil {
			return err
		}
		defer h.node.Shutdown()

		resp, err := h.node.Core().Execute(uuid.NewString(), auth.RoleListRequest{})
		if err != nil {
			return err
		}
		for _, r := range resp.RoleNames {
			fmt.Println(r)
		}
		return nil
	},
}

var roleDelCmd = &cobra.Command{
	Use:   "del <name>",
	Short: "Delete a role",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openResumedNode(cmd)
		if err != nil {
			return err
		}
		defer h.node.Shutdown()

		if _, _, err := h.node.Apply(uuid.NewString(), auth.RoleDeleteRequest{Name: args[0]}); err != nil {
			return err
		}
		fmt.Printf("role %s deleted\n", args[0])
		return nil
	},
}

var roleGrantPermissionCmd = &cobra.Command{
	Use:   "grant-permission <role> <key> [range-end]",
	Short: "Grant a key or key-range permission to a role",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openResumedNode(cmd)
		if err != nil {
			return err
		}
		defer h.node.Shutdown()

		permType, _ := cmd.Flags().GetString("type")
		t, err := parsePermType(permType)
		if err != nil {
			return err
		}

		var rangeEnd []byte
		if len(args) == 3 {
			rangeEnd = []byte(args[2])
		}

		if _, _, err := h.node.Apply(uuid.NewString(), auth.RoleGrantPermissionRequest{
			Role: args[0],
			Perm: auth.Permission{Type: t, Key: []byte(args[1]), RangeEnd: rangeEnd},
		}); err != nil {
			return err
		}
		fmt.Printf("permission granted to %s\n", args[0])
		return nil
	},
}

var roleRevokePermissionCmd = &cobra.Command{
	Use:   "revoke-permission <role> <key> [range-end]",
	Short: "Revoke a key or key-range permission from a role",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openResumedNode(cmd)
		if err != nil {
			return err
		}
		defer h.node.Shutdown()

		var rangeEnd []byte
		if len(args) == 3 {
			rangeEnd = []byte(args[2])
		}

		if _, _, err := h.node.Apply(uuid.NewString(), auth.RoleRevokePermissionRequest{
			Role:     args[0],
			Key:      []byte(args[1]),
			RangeEnd: rangeEnd,
		}); err != nil {
			return err
		}
		fmt.Printf("permission revoked from %s\n", args[0])
		return nil
	},
}

func parsePermType(s string) (auth.PermType, error) {
	switch s {
	case "read":
		return auth.PermRead, nil
	case "write":
		return auth.PermWrite, nil
	case "readwrite", "":
		return auth.PermReadWrite, nil
	default:
		return 0, fmt.Errorf("invalid permission type %q (want read, write, or readwrite)", s)
	}
}

func permTypeString(t auth.PermType) string {
	switch t {
	case auth.PermRead:
		return "read"
	case auth.PermWrite:
		return "write"
	case auth.PermReadWrite:
		return "readwrite"
	default:
		return "unknown"
	}
}

func init() {
	roleGrantPermissionCmd.Flags().String("type", "readwrite", "Permission type: read, write, or readwrite")

	roleCmd.AddCommand(roleAddCmd, roleGetCmd, roleListCmd, roleDelCmd, roleGrantPermissionCmd, roleRevokePermissionCmd)
}

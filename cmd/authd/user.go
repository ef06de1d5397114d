package main

import (
	"fmt"
	"time"

	"github.com/cuemby/keystone/pkg/auth"
	"github.com/cuemby/keystone/pkg/consensus"
	"github.com/cuemby/keystone/pkg/security"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage auth users",
}

// nodeHandle is a thin wrapper so defer h.node.Shutdown() reads the
// same across every user/role subcommand.
type nodeHandle struct {
	node *consensus.AuthNode
}

// openResumedNode is the shared entry point for every user/role
// subcommand: each invocation is a one-shot embedded client against
// the node's own on-disk cluster.
func openResumedNode(cmd *cobra.Command) (*nodeHandle, error) {
	cfg, _, err := resolvedConfig(cmd)
	if err != nil {
		return nil, err
	}
	node, err := newNodeForCommand(cfg)
	if err != nil {
		return nil, err
	}
	if err := node.Resume(); err != nil {
		node.Shutdown()
		return nil, err
	}
	if err := awaitLeader(node, 5*time.Second); err != nil {
		node.Shutdown()
		return nil, err
	}
	return &nodeHandle{node}, nil
}

func readPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	data, err := term.ReadPassword(0)
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(data), nil
}

var userAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a new user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openResumedNode(cmd)
		if err != nil {
			return err
		}
		defer h.node.Shutdown()

		noPassword, _ := cmd.Flags().GetBool("no-password")
		var hash string
		if !noPassword {
			password, err := readPassword(fmt.Sprintf("Password for %s: ", args[0]))
			if err != nil {
				return err
			}
			hash, err = security.HashPassword(password)
			if err != nil {
				return err
			}
		}

		_, _, err = h.node.Apply(uuid.NewString(), auth.UserAddRequest{
			Name:         args[0],
			PasswordHash: hash,
			NoPassword:   noPassword,
		})
		if err != nil {
			return err
		}
		fmt.Printf("user %s added\n", args[0])
		return nil
	},
}

var userGetCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Show a user's roles",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openResumedNode(cmd)
		if err != nil {
			return err
		}
		defer h.node.Shutdown()

		resp, err := h.node.Core().Execute(uuid.NewString(), auth.UserGetRequest{Name: args[0]})
		if err != nil {
			return err
		}
		fmt.Printf("user: %s\nroles: %v\n", args[0], resp.Roles)
		return nil
	},
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all users",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openResumedNode(cmd)
		if err != nil {
			return err
		}
		defer h.node.Shutdown()

		resp, err := h.node.Core().Execute(uuid.NewString(), auth.UserListRequest{})
		if err != nil {
			return err
		}
		for _, u := range resp.Users {
			fmt.Println(u)
		}
		return nil
	},
}

var userDelCmd = &cobra.Command{
	Use:   "del <name>",
	Short: "Delete a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openResumedNode(cmd)
		if err != nil {
			return err
		}
		defer h.node.Shutdown()

		if _, _, err := h.node.Apply(uuid.NewString(), auth.UserDeleteRequest{Name: args[0]}); err != nil {
			return err
		}
		fmt.Printf("user %s deleted\n", args[0])
		return nil
	},
}

var userPasswdCmd = &cobra.Command{
	Use:   "passwd <name>",
	Short: "Change a user's password",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openResumedNode(cmd)
		if err != nil {
			return err
		}
		defer h.node.Shutdown()

		password, err := readPassword(fmt.Sprintf("New password for %s: ", args[0]))
		if err != nil {
			return err
		}
		hash, err := security.HashPassword(password)
		if err != nil {
			return err
		}

		clearNoPassword, _ := cmd.Flags().GetBool("clear-no-password")
		if _, _, err := h.node.Apply(uuid.NewString(), auth.UserChangePasswordRequest{
			Name:            args[0],
			PasswordHash:    hash,
			ClearNoPassword: clearNoPassword,
		}); err != nil {
			return err
		}
		fmt.Printf("password for %s updated\n", args[0])
		return nil
	},
}

var userGrantRoleCmd = &cobra.Command{
	Use:   "grant-role <user> <role>",
	Short: "Grant a role to a user",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openResumedNode(cmd)
		if err != nil {
			return err
		}
		defer h.node.Shutdown()

		if _, _, err := h.node.Apply(uuid.NewString(), auth.UserGrantRoleRequest{User: args[0], Role: args[1]}); err != nil {
			return err
		}
		fmt.Printf("role %s granted to %s\n", args[1], args[0])
		return nil
	},
}

var userRevokeRoleCmd = &cobra.Command{
	Use:   "revoke-role <user> <role>",
	Short: "Revoke a role from a user",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openResumedNode(cmd)
		if err != nil {
			return err
		}
		defer h.node.Shutdown()

		if _, _, err := h.node.Apply(uuid.NewString(), auth.UserRevokeRoleRequest{User: args[0], Role: args[1]}); err != nil {
			return err
		}
		fmt.Printf("role %s revoked from %s\n", args[1], args[0])
		return nil
	},
}

func init() {
	userAddCmd.Flags().Bool("no-password", false, "Create a user that can never authenticate by password")
	userPasswdCmd.Flags().Bool("clear-no-password", false, "Clear the no-password flag while setting a new password")

	userCmd.AddCommand(userAddCmd, userGetCmd, userListCmd, userDelCmd, userPasswdCmd, userGrantRoleCmd, userRevokeRoleCmd)
}

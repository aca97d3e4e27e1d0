package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/emporia/console/internal/access"
	"github.com/emporia/console/internal/app"
	"github.com/emporia/console/internal/platform/db"
	"github.com/emporia/console/internal/rbac"
	"github.com/emporia/console/internal/shared"
	"github.com/emporia/console/internal/users"
)

type seedOptions struct {
	adminEmail    string
	adminName     string
	adminPassword string
	skipMatrices  bool
}

// MatrixWriter stores a role's default permission matrix.
type MatrixWriter interface {
	SetRolePermissions(ctx context.Context, role access.Role, matrix access.Matrix) error
}

// AdminCreator registers the first administrator.
type AdminCreator interface {
	Create(ctx context.Context, actor rbac.Principal, in users.CreateInput) (users.User, error)
}

func newSeedCommand() *cobra.Command {
	var opts seedOptions
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Store default role matrices and the first admin account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.InTestMode() {
				return nil
			}
			if opts.adminPassword == "" {
				opts.adminPassword = os.Getenv("SEED_ADMIN_PASSWORD")
			}
			cfg, logger, err := loadRuntime()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			pool, err := db.New(cmd.Context(), cfg.PGDSN, db.Options{MaxConns: 2})
			if err != nil {
				return err
			}
			defer pool.Close()

			audit := shared.NewAuditLogger(pool)
			usersService := users.NewService(users.NewRepository(pool), audit, logger)
			return seed(cmd, rbac.NewPGStore(pool), usersService, opts)
		},
	}
	cmd.Flags().StringVar(&opts.adminEmail, "admin-email", "admin@emporia.local", "Email of the first administrator.")
	cmd.Flags().StringVar(&opts.adminName, "admin-name", "Administrator", "Display name of the first administrator.")
	cmd.Flags().StringVar(&opts.adminPassword, "admin-password", "", "Password of the first administrator. Defaults to SEED_ADMIN_PASSWORD; empty skips the account.")
	cmd.Flags().BoolVar(&opts.skipMatrices, "skip-matrices", false, "Keep stored role matrices untouched.")
	return cmd
}

// seed writes the least-privilege role defaults and, when a password is
// given, the admin account. An existing admin email is not an error.
func seed(cmd *cobra.Command, matrices MatrixWriter, admins AdminCreator, opts seedOptions) error {
	ctx := cmd.Context()
	if !opts.skipMatrices {
		defaults := access.DefaultMatrices()
		for _, role := range access.EditableRoles() {
			if err := matrices.SetRolePermissions(ctx, role, defaults.For(role)); err != nil {
				return fmt.Errorf("seed %s matrix: %w", role, err)
			}
			cmd.Printf("Stored default permissions for %s.\n", role)
		}
	}
	if opts.adminPassword == "" {
		cmd.Println("No admin password given; skipping admin account.")
		return nil
	}
	u, err := admins.Create(ctx, rbac.System, users.CreateInput{
		Email:    opts.adminEmail,
		Name:     opts.adminName,
		Role:     access.RoleAdmin.String(),
		Password: opts.adminPassword,
	})
	if errors.Is(err, users.ErrEmailTaken) {
		cmd.Printf("Admin %s already exists.\n", opts.adminEmail)
		return nil
	}
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	cmd.Printf("Created admin %s (id %d).\n", u.Email, u.ID)
	return nil
}

package main

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/angelmondragon/gigmarket-backend/internal/auth"
	"github.com/angelmondragon/gigmarket-backend/internal/categories"
	"github.com/angelmondragon/gigmarket-backend/internal/profiles"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
)

func adminCmd() *cobra.Command {
	var req auth.AdminRegisterRequest
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an admin account",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			e, err := openEnv(c.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			svc, err := auth.NewAdminRegisterService(auth.AdminRegisterServiceParams{
				TxRunner:       e.db,
				PasswordConfig: e.cfg.Password,
			})
			if err != nil {
				return err
			}
			user, err := svc.Register(c.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.OutOrStdout(), "admin %s created (%s)\n", user.Email, user.ID)
			return nil
		},
	}
	create.Flags().StringVar(&req.Email, "email", "", "admin email")
	create.Flags().StringVar(&req.Password, "password", "", "admin password, at least 12 characters")
	create.Flags().StringVar(&req.FirstName, "first-name", "", "first name")
	create.Flags().StringVar(&req.LastName, "last-name", "", "last name")
	_ = create.MarkFlagRequired("email")
	_ = create.MarkFlagRequired("password")
	_ = create.MarkFlagRequired("first-name")

	cmd := &cobra.Command{Use: "admin", Short: "Manage admin accounts"}
	cmd.AddCommand(create)
	return cmd
}

func categoriesCmd() *cobra.Command {
	seed := &cobra.Command{
		Use:   "seed",
		Short: "Insert or refresh the default category catalog",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			e, err := openEnv(c.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			repo := categories.NewRepository(e.db.DB())
			catalog := categories.DefaultCategories()
			for i := range catalog {
				if err := repo.UpsertBySlug(c.Context(), &catalog[i]); err != nil {
					return fmt.Errorf("upsert %s: %w", catalog[i].Slug, err)
				}
			}
			fmt.Fprintf(c.OutOrStdout(), "seeded %d categories\n", len(catalog))
			return nil
		},
	}
	cmd := &cobra.Command{Use: "categories", Short: "Manage the category catalog"}
	cmd.AddCommand(seed)
	return cmd
}

// planCmd overrides a profile's plan outside Stripe, e.g. for comped accounts.
func planCmd() *cobra.Command {
	var profileID, tier string
	set := &cobra.Command{
		Use:   "set",
		Short: "Set a profile's plan tier",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			id, err := uuid.Parse(profileID)
			if err != nil {
				return errors.New("--profile must be a uuid")
			}
			plan, err := enums.ParsePlanTier(tier)
			if err != nil {
				return err
			}

			e, err := openEnv(c.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			repo := profiles.NewRepository(e.db.DB())
			if _, err := repo.FindByID(c.Context(), id); err != nil {
				return err
			}
			if err := repo.SetPlan(c.Context(), id, plan, nil); err != nil {
				return err
			}
			fmt.Fprintf(c.OutOrStdout(), "profile %s now on %s\n", id, plan)
			return nil
		},
	}
	set.Flags().StringVar(&profileID, "profile", "", "profile id")
	set.Flags().StringVar(&tier, "tier", "", "free, pro or business")
	_ = set.MarkFlagRequired("profile")
	_ = set.MarkFlagRequired("tier")

	cmd := &cobra.Command{Use: "plan", Short: "Manage subscription plans"}
	cmd.AddCommand(set)
	return cmd
}

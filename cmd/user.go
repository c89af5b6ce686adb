/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"

	"github.com/inkwell-blog/apiserver/config"
	"github.com/inkwell-blog/apiserver/internal/db"
	"github.com/inkwell-blog/apiserver/internal/password"
	"github.com/inkwell-blog/apiserver/internal/services"
	"github.com/inkwell-blog/apiserver/internal/store"
	"github.com/spf13/cobra"
)

// userCmd groups administrative user operations. Role changes are only
// possible through this command; the HTTP API has no endpoint for them.
var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Administrative user operations",
}

var promoteEmail string

var userPromoteCmd = &cobra.Command{
	Use:   "promote",
	Short: "Grant the admin role to a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		if promoteEmail == "" {
			return errors.New("--email is required")
		}

		cfg := config.LoadConfig()
		dbConn, err := db.Open(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer dbConn.Close()

		users := services.NewUserService(store.NewUserRepository(dbConn), password.NewHasher(cfg.BcryptCost))
		if err := users.Promote(cmd.Context(), promoteEmail); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("no user with email %s", promoteEmail)
			}
			return err
		}

		fmt.Printf("%s is now an admin\n", promoteEmail)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userPromoteCmd)
	userPromoteCmd.Flags().StringVar(&promoteEmail, "email", "", "email of the user to promote")
}

package main

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/spec-kit/adoption-client/internal/domain"
	"github.com/spec-kit/adoption-client/internal/gateway"
)

func newLoginCmd() *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the granted credential",
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := buildKit()
			if err != nil {
				return err
			}
			defer k.close()

			cred, err := k.sessions.Login(cmd.Context(), domain.Credentials{Email: email, Password: password})
			if err != nil {
				return err
			}
			fmt.Printf("signed in as %s (%s)\n", cred.Profile.DisplayName, cred.Profile.Role)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newLogoutCmd() *cobra.Command {
	var roleFlag string

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Clear one role's session, leaving the other intact",
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := buildKit()
			if err != nil {
				return err
			}
			defer k.close()

			role, err := parseRoleFlag(roleFlag)
			if err != nil {
				return err
			}
			if err := k.sessions.Logout(cmd.Context(), role); err != nil {
				return err
			}
			fmt.Printf("active role is now %s\n", k.sessions.ActiveRole())
			return nil
		},
	}
	cmd.Flags().StringVar(&roleFlag, "role", "", "role to log out (defaults to active)")
	return cmd
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show session state for both roles",
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := buildKit()
			if err != nil {
				return err
			}
			defer k.close()

			fmt.Printf("active role: %s\n", k.sessions.ActiveRole())
			for _, role := range []domain.Role{domain.RoleUser, domain.RoleAdmin} {
				profile := k.sessions.Profile(role)
				switch {
				case k.creds.HasToken(role) && profile.Loaded():
					fmt.Printf("  %s: %s <%s>\n", role, profile.DisplayName, profile.Email)
				case k.creds.HasToken(role):
					fmt.Printf("  %s: token stored, profile not loaded\n", role)
				default:
					fmt.Printf("  %s: signed out\n", role)
				}
			}
			return nil
		},
	}
}

func newSwitchRoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "switch-role <user|admin>",
		Short: "Switch the acting role without touching tokens",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := buildKit()
			if err != nil {
				return err
			}
			defer k.close()

			role, err := parseRoleFlag(args[0])
			if err != nil {
				return err
			}
			k.sessions.SetActiveRole(role)
			fmt.Printf("acting as %s\n", role)
			return nil
		},
	}
}

func newRefreshCmd() *cobra.Command {
	var roleFlag string

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Redeem the stored refresh token now",
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := buildKit()
			if err != nil {
				return err
			}
			defer k.close()

			role, err := parseRoleFlag(roleFlag)
			if err != nil {
				return err
			}
			if !role.Valid() {
				role = k.sessions.ActiveRole()
			}
			if err := k.sessions.RefreshSession(cmd.Context(), role); err != nil {
				return err
			}
			fmt.Printf("refreshed %s session\n", role)
			return nil
		},
	}
	cmd.Flags().StringVar(&roleFlag, "role", "", "role to refresh (defaults to active)")
	return cmd
}

func newProfileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profile",
		Short: "Fetch and show the active role's profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := buildKit()
			if err != nil {
				return err
			}
			defer k.close()

			role := k.sessions.ActiveRole()
			k.sessions.FetchProfile(cmd.Context(), role)
			if !k.sessions.ProfileLoaded(role) {
				return fmt.Errorf("profile for %s could not be loaded", role)
			}
			profile := k.sessions.Profile(role)
			fmt.Printf("%s <%s>\nrole: %s\n", profile.DisplayName, profile.Email, profile.Role)
			if profile.Bio != "" {
				fmt.Printf("bio: %s\n", profile.Bio)
			}
			return nil
		},
	}
}

func newPetsCmd() *cobra.Command {
	var admin bool
	var page int

	cmd := &cobra.Command{
		Use:   "pets",
		Short: "List pets through the session-aware gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := buildKit()
			if err != nil {
				return err
			}
			defer k.close()

			path := "/user/pets"
			if admin {
				path = "/admin/pets"
			}

			decision := k.guard.Evaluate(cmd.Context(), path)
			if !decision.Allow {
				return fmt.Errorf("navigation blocked, redirected to %s", decision.Redirect)
			}

			resp, err := k.gateway.Do(cmd.Context(), gateway.Request{
				Method: http.MethodGet,
				Path:   path,
				Query:  url.Values{"page": []string{strconv.Itoa(page)}},
			})
			if err != nil {
				return err
			}

			var pets domain.PetPage
			if err := resp.Decode(&pets); err != nil {
				return err
			}
			fmt.Printf("%d pets (page %d)\n", pets.Total, pets.Page)
			for _, pet := range pets.Items {
				fmt.Printf("  #%d %s: %s %s, %d months, shelter %d [%s]\n",
					pet.ID, pet.Name, pet.Breed, pet.Species, pet.AgeMonths, pet.ShelterID, pet.Status)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&admin, "admin", false, "list through the admin endpoint")
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	return cmd
}

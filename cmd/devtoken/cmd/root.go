package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"campusguard/internal/models"
	"campusguard/internal/utils"
)

var (
	// secret signs the token; defaults to JWT_SECRET.
	secret string
	// userID pins the subject; a fresh id is generated when empty.
	userID string
	ttl    time.Duration

	rootCmd = &cobra.Command{
		Use:   "devtoken <student|staff|security>",
		Short: "Issue a signed access token for local testing.",
		Long: `Issues an HS256 access token accepted by the server's auth middleware.

The token carries the user id and role claims. Use it as a Bearer header on REST
calls or as the token query parameter when opening the realtime socket.`,
		Args: cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			role := models.Role(args[0])
			if !role.Valid() {
				return fmt.Errorf("unknown role %q", args[0])
			}
			if secret == "" {
				return fmt.Errorf("no signing secret: pass --secret or set JWT_SECRET")
			}

			id := primitive.NewObjectID()
			if userID != "" {
				parsed, err := primitive.ObjectIDFromHex(userID)
				if err != nil {
					return fmt.Errorf("invalid user id: %w", err)
				}
				id = parsed
			}

			token, err := utils.GenerateToken(id, role, secret, ttl)
			if err != nil {
				return err
			}

			fmt.Fprintf(c.OutOrStdout(), "user_id: %s\nrole: %s\ntoken: %s\n", id.Hex(), role, token)
			return nil
		},
	}
)

// Execute runs the devtoken CLI and exits with non-zero status on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.Flags().StringVarP(&secret, "secret", "s", os.Getenv("JWT_SECRET"), "HMAC signing secret")
	rootCmd.Flags().StringVarP(&userID, "user", "u", "", "user id (hex ObjectID)")
	rootCmd.Flags().DurationVar(&ttl, "ttl", utils.JWTAccessTokenTTL, "token lifetime")
}

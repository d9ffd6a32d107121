package commands

import (
	"github.com/spf13/cobra"

	domainerrors "github.com/jbctechsolutions/cropcare/internal/domain/errors"
)

// SessionInfo is the JSON shape of login and whoami.
type SessionInfo struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email,omitempty"`
	ExpiresAt string `json:"expires_at"`
	Online    bool   `json:"online"`
}

// NewLoginCmd creates the login command.
func NewLoginCmd() *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the backend",
		Long: `Sign in with email and password. The session is stored locally and
refreshed automatically, so later commands work offline with your data.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, formatter, err := mustApp()
			if err != nil {
				return err
			}
			if !c.Config().Backend.Configured() {
				return domainerrors.NewError(domainerrors.CodeConfiguration, "no backend configured, run 'cropcare init'", nil)
			}

			if email == "" || password == "" {
				p := newPrompter(cmd.InOrStdin(), formatter)
				if email == "" {
					if email, err = p.prompt("Email", ""); err != nil {
						return err
					}
				}
				if password == "" {
					if password, err = p.promptSecret("Password"); err != nil {
						return err
					}
				}
			}

			ctx := cmd.Context()
			if !c.Probe(ctx) {
				return domainerrors.ErrOffline
			}
			sess, err := c.Sessions().Login(ctx, email, password)
			if err != nil {
				return err
			}

			if formatter.IsJSON() {
				return formatter.JSON(SessionInfo{
					UserID:    sess.UserID,
					Email:     sess.Email,
					ExpiresAt: sess.ExpiresAt.Format(timeLayout),
					Online:    true,
				})
			}
			return formatter.Success("Signed in as %s", sess.Email)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password (prompted when omitted)")

	return cmd
}

// NewLogoutCmd creates the logout command.
func NewLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, formatter, err := mustApp()
			if err != nil {
				return err
			}
			if err := c.Sessions().Logout(cmd.Context()); err != nil {
				return err
			}
			if formatter.IsJSON() {
				return formatter.JSON(map[string]bool{"signed_out": true})
			}
			return formatter.Success("Signed out")
		},
	}
}

// NewWhoamiCmd creates the whoami command.
func NewWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, formatter, err := mustApp()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			online := c.Connect(ctx)
			sess, err := c.Sessions().Current(ctx)
			if err != nil {
				return err
			}

			info := SessionInfo{
				UserID:    sess.UserID,
				Email:     sess.Email,
				ExpiresAt: sess.ExpiresAt.Format(timeLayout),
				Online:    online,
			}
			if formatter.IsJSON() {
				return formatter.JSON(info)
			}
			formatter.Item("User", info.UserID)
			if info.Email != "" {
				formatter.Item("Email", info.Email)
			}
			formatter.Item("Session expires", info.ExpiresAt)
			formatter.Item("Connection", connectionLabel(online))
			return nil
		},
	}
}

const timeLayout = "2006-01-02 15:04"

func connectionLabel(online bool) string {
	if online {
		return "online"
	}
	return "offline"
}

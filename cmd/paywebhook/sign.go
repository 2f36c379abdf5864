package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/iurnickita/paywebhook/internal/notification"
)

func signCmd(load loadConfig) *cobra.Command {
	var bodyFile, notificationURL string

	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Compute the notification signature for a body",
		Long: `Compute the signature header value for a notification body, e.g. to
replay a delivery against a local server.

Examples:
  paywebhook sign --body event.json --url https://shop.example.com/api/notifications
  cat event.json | paywebhook sign`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if cfg.Service.SecretKey == "" {
				return errors.New("gateway.secret_key is not configured")
			}
			if notificationURL == "" {
				notificationURL = cfg.Service.NotificationURL
			}
			if notificationURL == "" {
				return errors.New("notification url is required")
			}

			var body []byte
			if bodyFile == "" || bodyFile == "-" {
				body, err = io.ReadAll(cmd.InOrStdin())
			} else {
				body, err = os.ReadFile(bodyFile)
			}
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), notification.Sign(body, notificationURL, cfg.Service.GetSecretKey()))
			return nil
		},
	}

	cmd.Flags().StringVarP(&bodyFile, "body", "b", "-", "body file, - for stdin")
	cmd.Flags().StringVarP(&notificationURL, "url", "u", "", "notification url (default gateway.notification_url)")

	return cmd
}

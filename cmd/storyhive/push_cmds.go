package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/storyhive/storyhive/internal/api"
)

func newPushCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "push",
		Short: "Manage web-push subscriptions for the session",
	}
	cmd.AddCommand(newPushSubscribeCmd(), newPushUnsubscribeCmd(), newPushTestCmd())
	return cmd
}

func newPushSubscribeCmd() *cobra.Command {
	var endpoint, p256dh, auth string
	cmd := &cobra.Command{
		Use:   "subscribe",
		Short: "Register a push subscription with the story service",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			token, err := requireSession(a)
			if err != nil {
				return err
			}
			sub := api.PushSubscription{
				Endpoint: endpoint,
				Keys:     api.PushKeys{P256dh: p256dh, Auth: auth},
			}
			if err := a.client.SubscribePush(cmd.Context(), token, sub); err != nil {
				return err
			}
			fmt.Println("Push subscription registered.")
			return nil
		},
	}
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "push service endpoint URL")
	cmd.Flags().StringVar(&p256dh, "p256dh", "", "client public key")
	cmd.Flags().StringVar(&auth, "auth", "", "client auth secret")
	_ = cmd.MarkFlagRequired("endpoint")
	_ = cmd.MarkFlagRequired("p256dh")
	_ = cmd.MarkFlagRequired("auth")
	return cmd
}

func newPushUnsubscribeCmd() *cobra.Command {
	var endpoint string
	cmd := &cobra.Command{
		Use:   "unsubscribe",
		Short: "Remove a push subscription",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			token, err := requireSession(a)
			if err != nil {
				return err
			}
			if err := a.client.UnsubscribePush(cmd.Context(), token, endpoint); err != nil {
				return err
			}
			fmt.Println("Push subscription removed.")
			return nil
		},
	}
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "push service endpoint URL")
	_ = cmd.MarkFlagRequired("endpoint")
	return cmd
}

func newPushTestCmd() *cobra.Command {
	var title, body, url string
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Ask the service to send a test notification",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			token, err := requireSession(a)
			if err != nil {
				return err
			}
			if err := a.client.TestNotification(cmd.Context(), token, title, body, url); err != nil {
				return err
			}
			fmt.Println("Test notification requested.")
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "StoryHive", "notification title")
	cmd.Flags().StringVar(&body, "body", "Test notification", "notification body")
	cmd.Flags().StringVar(&url, "url", "/", "link opened on click")
	return cmd
}

func requireSession(a *app) (string, error) {
	token := a.sessions.Token()
	if token == "" {
		return "", errors.New("not logged in; run: storyhive login")
	}
	return token, nil
}

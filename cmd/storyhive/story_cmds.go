package main

import (
	"fmt"
	"os"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/storyhive/storyhive/internal/api"
	"github.com/storyhive/storyhive/internal/session"
	"github.com/storyhive/storyhive/internal/storage"
	"github.com/storyhive/storyhive/internal/validation"
)

func newRegisterCmd() *cobra.Command {
	var name, email string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a StoryHive account",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			password, err := readPassword()
			if err != nil {
				return err
			}
			if err := a.client.Register(cmd.Context(), name, email, password); err != nil {
				return err
			}
			fmt.Println("Account created. Log in with: storyhive login")
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newLoginCmd() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and save the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			password, err := readPassword()
			if err != nil {
				return err
			}
			result, err := a.client.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			if err := a.sessions.Save(&session.Session{
				UserID: result.UserID,
				Name:   result.Name,
				Token:  result.Token,
			}); err != nil {
				return err
			}
			fmt.Printf("Logged in as %s\n", result.Name)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Discard the saved session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := session.NewStore("").Clear(); err != nil {
				return err
			}
			fmt.Println("Logged out.")
			return nil
		},
	}
}

func newStoriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stories",
		Short: "List stories (served from cache when offline)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			resp, err := a.client.Stories(cmd.Context(), a.sessions.Token())
			if err != nil {
				return err
			}
			if resp.Error.Offline {
				fmt.Printf("(offline) %s\n\n", resp.Message)
			}
			for _, story := range resp.ListStory {
				printStoryLine(&story)
			}
			if len(resp.ListStory) == 0 {
				fmt.Println("No stories.")
			}
			return nil
		},
	}
}

func newStoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "story <id>",
		Short: "Show a story",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			story, err := a.client.StoryDetail(cmd.Context(), a.sessions.Token(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s\n%s\n", story.Name, story.Description)
			if story.Lat != nil && story.Lon != nil {
				fmt.Printf("Location: %.5f, %.5f\n", *story.Lat, *story.Lon)
			}
			fmt.Printf("Photo: %s\nPosted: %s\n", story.PhotoURL, story.CreatedAt)
			return nil
		},
	}
}

func newAddCmd() *cobra.Command {
	var (
		description string
		photoPath   string
		lat, lon    float64
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Submit a story (queued locally when offline)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			draft := api.StoryDraft{Description: description}
			if photoPath != "" {
				cleaned, err := validation.NewPhotoFileValidator().Validate(photoPath)
				if err != nil {
					return err
				}
				data, err := os.ReadFile(cleaned)
				if err != nil {
					return fmt.Errorf("reading photo: %w", err)
				}
				draft.Photo = data
				draft.PhotoName = cleaned
			}
			if cmd.Flags().Changed("lat") {
				draft.Lat = &lat
			}
			if cmd.Flags().Changed("lon") {
				draft.Lon = &lon
			}

			result, err := a.coord.CreateStory(cmd.Context(), draft, a.sessions.Token())
			if err != nil {
				return err
			}
			if result.Deferred {
				fmt.Printf("Saved offline as %s; it will upload on the next sync.\n", result.Pending.ID)
			} else {
				fmt.Println("Story published.")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "story text")
	cmd.Flags().StringVar(&photoPath, "photo", "", "path to a photo file")
	cmd.Flags().Float64Var(&lat, "lat", 0, "latitude")
	cmd.Flags().Float64Var(&lon, "lon", 0, "longitude")
	_ = cmd.MarkFlagRequired("description")
	return cmd
}

func printStoryLine(story *storage.Story) {
	marker := " "
	if story.Lat != nil && story.Lon != nil {
		marker = "@"
	}
	fmt.Printf("%-26s %s %-20s %s\n", story.ID, marker, story.Name, story.CreatedAt)
}

func readPassword() (string, error) {
	fmt.Fprint(os.Stderr, "Password: ")
	data, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(data), nil
}

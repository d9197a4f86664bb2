package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/storyhive/storyhive/internal/search"
	"github.com/storyhive/storyhive/internal/storage"
)

func newFavCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fav",
		Short: "Manage favorites kept for offline access",
	}
	cmd.AddCommand(
		newFavAddCmd(),
		newFavRemoveCmd(),
		newFavListCmd(),
		newFavOwnersCmd(),
		newFavSearchCmd(),
	)
	return cmd
}

func newFavAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <story-id>",
		Short: "Mark a story as favorite",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			story, err := a.client.StoryDetail(cmd.Context(), a.sessions.Token(), args[0])
			if err != nil {
				return fmt.Errorf("fetching story: %w", err)
			}

			record := &storage.FavoriteRecord{
				Story:    *story,
				IsFav:    true,
				IsSynced: true,
			}
			// Favorites sort by the moment of bookmarking, not publication.
			record.CreatedAt = time.Now().UTC().Format(time.RFC3339)

			if err := a.store.Put(record); err != nil {
				if errors.Is(err, storage.ErrDuplicateKey) {
					return fmt.Errorf("story %s is already a favorite", args[0])
				}
				return err
			}
			updateSearchIndex(a, func(listener search.UpdateListener) {
				listener.OnFavoriteSaved(record)
			})
			fmt.Printf("Favorited %s\n", args[0])
			return nil
		},
	}
}

func newFavRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <story-id>",
		Short: "Remove a story from favorites",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.store.Remove(args[0]); err != nil {
				return err
			}
			updateSearchIndex(a, func(listener search.UpdateListener) {
				listener.OnFavoriteRemoved(args[0])
			})
			fmt.Printf("Removed %s\n", args[0])
			return nil
		},
	}
}

// updateSearchIndex folds a favorite change into the bleve index, when one
// exists on disk. A missing index is rebuilt wholesale on the next
// `fav search`, so it is skipped here; an existing index needs the removal
// applied explicitly because reopening only ever adds documents.
func updateSearchIndex(a *app, apply func(listener search.UpdateListener)) {
	if _, err := os.Stat(a.cfg.Database.SearchIndex); err != nil {
		return
	}
	engine, err := search.NewBleveEngine(a.store, a.cfg.Database.SearchIndex)
	if err != nil {
		a.log.Warn().Err(err).Msg("search index update skipped")
		return
	}
	if listener, ok := engine.(search.UpdateListener); ok {
		apply(listener)
	}
}

func newFavListCmd() *cobra.Command {
	var (
		searchTerm string
		owner      string
		sortBy     string
		order      string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List favorites",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			records, err := a.store.Query(storage.Filter{
				Search: searchTerm,
				Owner:  owner,
				Sort:   sortBy,
				Order:  order,
			})
			if err != nil {
				return err
			}
			for _, record := range records {
				state := "synced"
				if record.PendingSync {
					state = "pending"
				}
				fmt.Printf("%-26s %-20s %-10s %s\n", record.ID, record.OwnerName(), state, record.CreatedAt)
			}
			if len(records) == 0 {
				fmt.Println("No favorites.")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&searchTerm, "search", "", "substring match on name/description")
	cmd.Flags().StringVar(&owner, "owner", "", "exact owner name")
	cmd.Flags().StringVar(&sortBy, "sort", storage.SortByCreatedAt, "sort field: createdAt or name")
	cmd.Flags().StringVar(&order, "order", storage.OrderDesc, "sort order: asc or desc")
	return cmd
}

func newFavOwnersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "owners",
		Short: "List distinct owners across favorites",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			owners, err := a.store.ListDistinctOwners()
			if err != nil {
				return err
			}
			fmt.Println(strings.Join(owners, "\n"))
			return nil
		},
	}
}

func newFavSearchCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Full-text search across favorites",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			engine, err := search.NewBleveEngine(a.store, a.cfg.Database.SearchIndex)
			if err != nil {
				return fmt.Errorf("opening search index: %w", err)
			}

			results, err := engine.Search(strings.Join(args, " "), limit)
			if err != nil {
				return err
			}
			for _, result := range results {
				fmt.Printf("%5.2f  %-26s %s\n", result.Score, result.Record.ID, result.Record.Name)
			}
			if len(results) == 0 {
				fmt.Println("No matches.")
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 25, "maximum results")
	return cmd
}

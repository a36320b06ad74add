package main

import (
	"context"
	"fmt"
	"strings"

	"flightbot/internal/config"
	"flightbot/internal/history"

	"github.com/spf13/cobra"
)

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Browse recorded conversations",
	}
	cmd.AddCommand(historyListCmd())
	cmd.AddCommand(historyShowCmd())
	cmd.AddCommand(historyClearCmd())
	return cmd
}

// openHistoryStore opens the history database configured in history.dbPath.
func openHistoryStore() (*history.SQLiteStore, error) {
	cfg := loadConfig()
	dbPath := cfg.History.DBPath
	if dbPath == "" {
		return nil, fmt.Errorf("history database not configured (history.dbPath)")
	}
	expanded, err := config.ExpandPath(dbPath)
	if err != nil {
		return nil, err
	}
	return history.NewSQLiteStore(expanded, logger)
}

func historyListCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent conversations",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistoryStore()
			if err != nil {
				return err
			}
			defer store.Close()

			convs, err := store.ListConversations(context.Background(), limit)
			if err != nil {
				return err
			}
			if len(convs) == 0 {
				fmt.Println("No conversations recorded.")
				return nil
			}
			for _, c := range convs {
				title := c.Title
				if title == "" {
					title = "(untitled)"
				}
				fmt.Printf("%s  %s  [%s]  %s\n", c.ID, c.UpdatedAt.Format("2006-01-02 15:04"), c.Provider, title)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of conversations to list")
	return cmd
}

func historyShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <conversation-id>",
		Short: "Print the full transcript of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistoryStore()
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := context.Background()
			conv, err := store.GetConversation(ctx, args[0])
			if err != nil {
				return err
			}
			if conv == nil {
				return fmt.Errorf("conversation not found: %s", args[0])
			}

			title := conv.Title
			if title == "" {
				title = "(untitled)"
			}
			fmt.Printf("%s\n", title)
			fmt.Printf("%s  [%s]  started %s\n", conv.ID, conv.Provider, conv.CreatedAt.Format("2006-01-02 15:04"))
			fmt.Println(strings.Repeat("-", 40))

			msgs, err := store.GetMessages(ctx, conv.ID, 0)
			if err != nil {
				return err
			}
			for _, m := range msgs {
				fmt.Printf("[%s] %s\n%s\n\n", m.CreatedAt.Format("15:04:05"), m.Role, m.Content)
			}
			return nil
		},
	}
}

func historyClearCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all recorded conversations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				fmt.Println("This deletes every recorded conversation. Use --force to proceed.")
				return fmt.Errorf("clear aborted (use --force to proceed)")
			}

			store, err := openHistoryStore()
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := context.Background()
			cleared := 0
			for {
				convs, err := store.ListConversations(ctx, 100)
				if err != nil {
					return err
				}
				if len(convs) == 0 {
					break
				}
				for _, c := range convs {
					if err := store.DeleteConversation(ctx, c.ID); err != nil {
						return err
					}
					cleared++
				}
			}
			fmt.Printf("Cleared %d conversation(s).\n", cleared)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "delete without confirmation")
	return cmd
}

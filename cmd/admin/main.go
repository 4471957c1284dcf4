package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strconv"

	"roomchat/backend/internal/models"
	"roomchat/backend/internal/storage"

	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file loaded", "error", err)
	}

	if err := newRootCmd(os.Stdout).ExecuteContext(context.Background()); err != nil {
		log.Fatal(err)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	var dsn string
	root := &cobra.Command{Use: "admin", Short: "roomchat operator tools", SilenceUsage: true}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&dsn, "dsn", os.Getenv("DATABASE_DSN"), "database DSN (postgres or sqlite)")

	open := func() (*storage.Service, error) {
		db, err := storage.Open(dsn, slog.Default())
		if err != nil {
			return nil, fmt.Errorf("failed to connect database: %w", err)
		}
		return storage.NewStorageService(db), nil
	}

	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := open()
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
			return nil
		},
	})

	member := &cobra.Command{Use: "member", Short: "Manage members"}
	var name, email string
	add := &cobra.Command{
		Use:   "add",
		Short: "Insert a member",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := open()
			if err != nil {
				return err
			}
			defer s.Close()

			m := &models.Member{Name: name, Email: email}
			if err := s.SaveMember(cmd.Context(), m); err != nil {
				return fmt.Errorf("add member: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "member %d created for %s\n", m.ID, m.Email)
			return nil
		},
	}
	add.Flags().StringVar(&name, "name", "", "display name")
	add.Flags().StringVar(&email, "email", "", "e-mail address used as identity")
	_ = add.MarkFlagRequired("name")
	_ = add.MarkFlagRequired("email")
	member.AddCommand(add)
	root.AddCommand(member)

	root.AddCommand(&cobra.Command{
		Use:   "rooms",
		Short: "List group rooms with their participant counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := open()
			if err != nil {
				return err
			}
			defer s.Close()

			rooms, err := s.ListGroupRooms(ctx)
			if err != nil {
				return err
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"ID", "Name", "Participants"})
			table.SetAutoWrapText(false)
			table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
			table.SetAlignment(tablewriter.ALIGN_LEFT)
			table.SetBorder(false)
			for _, r := range rooms {
				n, err := s.CountParticipants(ctx, r.ID)
				if err != nil {
					return err
				}
				table.Append([]string{
					strconv.FormatUint(uint64(r.ID), 10),
					r.Name,
					strconv.FormatInt(n, 10),
				})
			}
			table.Render()
			return nil
		},
	})

	return root
}

package migrate

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mousetube/mousetube-go/internal/conf"
	"github.com/mousetube/mousetube-go/internal/datastore"
)

// Command creates the migrate command, applying the database schema and exiting.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database schema migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			store := datastore.New(settings)
			if err := store.Open(); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			defer store.Close()

			fmt.Println("Database schema is up to date")
			return nil
		},
	}
}

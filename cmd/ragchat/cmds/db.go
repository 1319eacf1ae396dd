package cmds

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func NewDBGroupCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Inspect and reset the vector store",
	}

	cmd.AddCommand(NewDBCountCommand())
	cmd.AddCommand(NewDBResetCommand())

	return cmd
}

func NewDBCountCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Print the number of vectors in the collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings()
			if err != nil {
				return err
			}
			store, err := newVectorStore(s)
			if err != nil {
				return err
			}
			n, err := store.Count(cmd.Context())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: %d vectors\n", store.Collection, n)
			return nil
		},
	}
}

func NewDBResetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete all vectors and documents from the collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			yes, _ := cmd.Flags().GetBool("yes")

			s, err := loadSettings()
			if err != nil {
				return err
			}
			store, err := newVectorStore(s)
			if err != nil {
				return err
			}

			n, err := store.Count(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if n == 0 {
				_, _ = fmt.Fprintf(out, "%s is already empty\n", store.Collection)
				return nil
			}
			if !yes {
				return errors.Errorf("%s holds %d vectors, pass --yes to delete them", store.Collection, n)
			}

			if err := store.Reset(cmd.Context()); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(out, "%s cleared, %d vectors deleted\n", store.Collection, n)
			return nil
		},
	}

	cmd.Flags().Bool("yes", false, "Confirm deleting a non-empty collection")
	return cmd
}

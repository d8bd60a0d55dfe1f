package cmd

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amankb/internal/output"
	"github.com/Aman-CERP/amankb/internal/store"
	"github.com/Aman-CERP/amankb/internal/ui"
)

func newNamespaceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "namespace",
		Aliases: []string{"ns"},
		Short:   "Manage namespaces",
		Long: `Namespaces partition the knowledge base. Every document belongs to
exactly one, and a namespaced search never sees another's chunks.`,
	}
	cmd.AddCommand(newNamespaceListCmd())
	cmd.AddCommand(newNamespaceCreateCmd())
	cmd.AddCommand(newNamespaceDeleteCmd())
	return cmd
}

func newNamespaceListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List namespaces with document and chunk counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			kb, err := openKB(ctx, false)
			if err != nil {
				return err
			}
			defer func() { _ = kb.Close() }()

			infos, err := namespaceInfos(ctx, kb.Store)
			if err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			if jsonOutput {
				return out.JSON(infos)
			}
			if len(infos) == 0 {
				out.Status("", "No namespaces yet. Create one with 'amankb namespace create <id>'.")
				return nil
			}
			rows := make([][]string, 0, len(infos))
			for _, ns := range infos {
				rows = append(rows, []string{
					ns.ID, ns.DisplayName,
					strconv.Itoa(ns.Documents), strconv.Itoa(ns.Chunks), strconv.Itoa(ns.Vectors),
				})
			}
			out.Table([]string{"ID", "NAME", "DOCS", "CHUNKS", "VECTORS"}, rows)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newNamespaceCreateCmd() *cobra.Command {
	var displayName string

	cmd := &cobra.Command{
		Use:   "create <id>",
		Short: "Create a namespace",
		Long: `Create a namespace. IDs are lowercase slugs such as it-support or hr.
Creating an existing namespace is a no-op.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			kb, err := openKB(ctx, true)
			if err != nil {
				return err
			}
			defer func() { _ = kb.Close() }()

			if err := kb.Coordinator.CreateNamespace(ctx, args[0], displayName); err != nil {
				return err
			}
			output.New(cmd.OutOrStdout()).Successf("Namespace %s ready", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&displayName, "name", "", "Human-readable display name")
	return cmd
}

func newNamespaceDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a namespace and everything in it",
		Long: `Delete a namespace with its documents, chunks and vectors.
Feedback given on its chunks is kept.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			kb, err := openKB(ctx, true)
			if err != nil {
				return err
			}
			defer func() { _ = kb.Close() }()

			n, err := kb.Coordinator.DeleteNamespace(ctx, args[0])
			if err != nil {
				return err
			}
			output.New(cmd.OutOrStdout()).Successf("Deleted namespace %s (%d chunks)", args[0], n)
			return nil
		},
	}
}

// namespaceStore is the part of the chunk store namespace listings need.
type namespaceStore interface {
	ListNamespaces(ctx context.Context) ([]*store.Namespace, error)
	NamespaceStats(ctx context.Context, id string) (*store.NamespaceStats, error)
}

func namespaceInfos(ctx context.Context, s namespaceStore) ([]ui.NamespaceInfo, error) {
	nss, err := s.ListNamespaces(ctx)
	if err != nil {
		return nil, err
	}
	infos := make([]ui.NamespaceInfo, 0, len(nss))
	for _, ns := range nss {
		stats, err := s.NamespaceStats(ctx, ns.ID)
		if err != nil {
			return nil, err
		}
		infos = append(infos, ui.NamespaceInfo{
			ID:          ns.ID,
			DisplayName: ns.DisplayName,
			Documents:   stats.Documents,
			Chunks:      stats.Chunks,
			Vectors:     stats.Vectors,
		})
	}
	return infos, nil
}

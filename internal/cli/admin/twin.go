package admin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/echoself-ai/echoself/internal/config"
	"github.com/echoself-ai/echoself/internal/database"
	"github.com/echoself-ai/echoself/internal/domain"
	"github.com/echoself-ai/echoself/internal/repository"
	"github.com/echoself-ai/echoself/internal/service"
)

func TwinCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "twin",
		Short: "Inspect twins",
		Long:  "Inspect twin metadata and namespace resolution",
	}

	cmd.AddCommand(TwinShowCmd())
	cmd.AddCommand(TwinNamespacesCmd())

	return cmd
}

func TwinShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <twin-id>",
		Short: "Show twin metadata",
		Long:  "Show the metadata stored for a twin",
		Args:  cobra.ExactArgs(1),
		RunE:  runTwinShow,
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")

	return cmd
}

func runTwinShow(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	twinID := args[0]
	outputFormat, _ := cmd.Flags().GetString("output")

	pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	twinRepo := repository.NewTwinRepository(pool)

	twin, err := twinRepo.GetByID(ctx, twinID)
	if err != nil {
		return fmt.Errorf("failed to load twin: %w", err)
	}

	if outputFormat == "json" {
		data := map[string]interface{}{
			"id":         twin.ID,
			"owner_ref":  twin.OwnerRef,
			"name":       twin.Name,
			"created_at": twin.CreatedAt,
		}
		jsonBytes, _ := json.MarshalIndent(data, "", "  ")
		fmt.Println(string(jsonBytes))
	} else {
		fmt.Printf("Twin %s: %s (owner: %s, created: %s)\n",
			twin.ID, twin.Name, twin.OwnerRef, twin.CreatedAt.Format("2006-01-02 15:04:05"))
	}

	return nil
}

func TwinNamespacesCmd() *cobra.Command {
	var dualRead bool

	cmd := &cobra.Command{
		Use:   "namespaces <twin-id>",
		Short: "Show resolved vector namespaces",
		Long:  "Resolve and print the vector-index namespaces a twin's queries fan out to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputFormat, _ := cmd.Flags().GetString("output")
			return runTwinNamespaces(args[0], outputFormat, dualRead)
		},
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")
	cmd.Flags().BoolVar(&dualRead, "dual-read", true, "Include the legacy namespace")

	return cmd
}

func runTwinNamespaces(twinID, outputFormat string, dualRead bool) error {
	ctx := context.Background()

	pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	twinRepo := repository.NewTwinRepository(pool)
	resolver := service.NewNamespaceResolver(twinRepo, cfg.Retrieval.NamespaceCacheTTL)

	namespaces, degraded := resolver.Resolve(ctx, domain.TwinRef{ID: twinID}, dualRead)

	if outputFormat == "json" {
		data := map[string]interface{}{
			"twin_id":    twinID,
			"namespaces": namespaces,
			"degraded":   degraded,
		}
		jsonBytes, _ := json.MarshalIndent(data, "", "  ")
		fmt.Println(string(jsonBytes))
	} else {
		fmt.Printf("Namespaces for twin %s:\n", twinID)
		for _, ns := range namespaces {
			fmt.Printf("  %s\n", ns)
		}
		if degraded {
			fmt.Println("\nWarning: owner lookup failed, legacy namespace only")
		}
	}

	return nil
}

func getDBPool(ctx context.Context) (*pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	pool, err := database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return pool, nil
}

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/facechain/internal/backend"
	"github.com/kozaktomas/facechain/internal/config"
	"github.com/kozaktomas/facechain/internal/facematch"
	"github.com/kozaktomas/facechain/internal/facestore"
)

var facesCmd = &cobra.Command{
	Use:   "faces",
	Short: "Manage registered faces",
}

var facesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the faces registered on the backend",
	Long: `List the faces registered for the authenticated user.

Examples:
  facechain faces list
  facechain faces list --label "Zoë"
  facechain faces list --json`,
	RunE: runFacesList,
}

var facesDeleteCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Delete registered faces by ID",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runFacesDelete,
}

func init() {
	rootCmd.AddCommand(facesCmd)
	facesCmd.AddCommand(facesListCmd, facesDeleteCmd)

	facesListCmd.Flags().String("label", "", "Only show faces with this label (case and accent insensitive)")
	facesListCmd.Flags().Bool("json", false, "Print faces as JSON, descriptors included")
}

func runFacesList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg := config.Load()
	if err := requireToken(cfg); err != nil {
		return err
	}

	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	faces, labeled, err := facestore.Sync(ctx, client)
	if err != nil {
		return fmt.Errorf("failed to list faces: %w", err)
	}

	filter := facematch.NormalizeLabel(mustGetString(cmd, "label"))
	shown := make([]backend.Face, 0, len(faces))
	for _, f := range faces {
		if filter == "" || facematch.NormalizeLabel(f.Label) == filter {
			shown = append(shown, f)
		}
	}

	if mustGetBool(cmd, "json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(shown) //nolint:wrapcheck // stdout
	}

	perLabel := make(map[string]int)
	for _, l := range labeled {
		perLabel[l.Label]++
	}

	fmt.Printf("%-12s %-30s %s\n", "ID", "LABEL", "SAMPLES")
	for _, f := range shown {
		fmt.Printf("%-12s %-30s %d\n", f.ID, f.Label, perLabel[f.Label])
	}
	fmt.Printf("\n%d of %d faces\n", len(shown), len(faces))
	return nil
}

func runFacesDelete(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg := config.Load()
	if err := requireToken(cfg); err != nil {
		return err
	}

	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	var failed int
	for _, id := range args {
		if err := client.DeleteFace(ctx, backend.ID(id)); err != nil {
			fmt.Printf("  %s: %v\n", id, err)
			failed++
			continue
		}
		fmt.Printf("  %s: deleted\n", id)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d deletions failed", failed, len(args))
	}
	return nil
}

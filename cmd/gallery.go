package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/rollcall/internal/config"
	"github.com/kozaktomas/rollcall/internal/database"
)

var galleryCmd = &cobra.Command{
	Use:   "gallery",
	Short: "Inspect registered face encodings",
	Long:  `Commands for inspecting the gallery of registered student faces.`,
}

var galleryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List students with a stored face encoding",
	Long: `List every student that has a stored face encoding.

Examples:
  # Human readable table
  rollcall gallery list

  # JSON output for scripting
  rollcall gallery list --json`,
	RunE: runGalleryList,
}

var galleryCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate every stored face encoding",
	Long: `Parse every stored face encoding and report the malformed ones.

A malformed encoding is skipped at gallery load, so the student it
belongs to is silently never recognized. This command finds those rows;
re-register the student to fix them.`,
	RunE: runGalleryCheck,
}

func init() {
	rootCmd.AddCommand(galleryCmd)
	galleryCmd.AddCommand(galleryListCmd)
	galleryCmd.AddCommand(galleryCheckCmd)

	galleryListCmd.Flags().Bool("json", false, "Output as JSON instead of a table")
}

// galleryEntry represents one student row in gallery list output
type galleryEntry struct {
	StudentID string `json:"student_id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	Encoding  string `json:"encoding"` // "ok" or the parse failure
}

func listGalleryEntries(ctx context.Context, store migratableStore) ([]galleryEntry, error) {
	students, err := store.ListStudentsWithEncoding(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing students: %w", err)
	}

	entries := make([]galleryEntry, 0, len(students))
	for _, s := range students {
		entry := galleryEntry{StudentID: s.ID, Name: s.Name, Email: s.Email, Encoding: "ok"}
		if _, err := database.ParseEncoding(s.RawEncoding); err != nil {
			entry.Encoding = err.Error()
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func runGalleryList(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	jsonOutput := mustGetBool(cmd, "json")

	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	entries, err := listGalleryEntries(ctx, store)
	if err != nil {
		return err
	}

	if jsonOutput {
		return outputJSON(entries)
	}

	if len(entries) == 0 {
		fmt.Println("No students registered.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tEMAIL\tENCODING")
	fmt.Fprintln(w, "--\t----\t-----\t--------")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.StudentID, e.Name, e.Email, e.Encoding)
	}
	w.Flush()

	fmt.Printf("\nTotal: %d students\n", len(entries))
	return nil
}

func runGalleryCheck(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	students, err := store.ListStudentsWithEncoding(ctx)
	if err != nil {
		return fmt.Errorf("listing students: %w", err)
	}
	if len(students) == 0 {
		fmt.Println("No students registered.")
		return nil
	}

	bar := progressbar.NewOptions(len(students),
		progressbar.OptionSetDescription("Checking encodings"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("students"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionFullWidth(),
	)

	var broken []string
	for _, s := range students {
		if _, err := database.ParseEncoding(s.RawEncoding); err != nil {
			broken = append(broken, fmt.Sprintf("%s (%s): %v", s.ID, s.Name, err))
		}
		_ = bar.Add(1)
	}
	fmt.Println()

	fmt.Printf("Checked %d encodings: %d valid, %d malformed\n", len(students), len(students)-len(broken), len(broken))
	for _, line := range broken {
		fmt.Printf("  %s\n", line)
	}
	if len(broken) > 0 {
		return fmt.Errorf("%d malformed encodings, re-register the affected students", len(broken))
	}
	return nil
}

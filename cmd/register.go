package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/spf13/cobra"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/kozaktomas/rollcall/internal/config"
	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/recognize"
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a student's face from a photo",
	Long: `Register a student for attendance marking.
The photo must contain exactly one clearly visible face; its encoding is
stored and the student is recognized on camera from then on. Running the
command again for the same ID replaces the stored encoding.`,
	RunE: runRegister,
}

func init() {
	rootCmd.AddCommand(registerCmd)

	registerCmd.Flags().String("id", "", "Student identifier, e.g. S001 (required)")
	registerCmd.Flags().String("name", "", "Student full name (required)")
	registerCmd.Flags().String("email", "", "Student email address")
	registerCmd.Flags().String("photo", "", "Path to a photo showing exactly one face (required)")
	_ = registerCmd.MarkFlagRequired("id")
	_ = registerCmd.MarkFlagRequired("name")
	_ = registerCmd.MarkFlagRequired("photo")
}

// removeDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func removeDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// normalizePersonName normalizes a name for comparison (lowercase, no diacritics, spaces for dashes).
func normalizePersonName(name string) string {
	name = removeDiacritics(name)
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "-", " ")
	return name
}

// warnDuplicateName flags a likely double registration: a different
// student ID carrying the same name once case and diacritics are ignored.
func warnDuplicateName(ctx context.Context, store migratableStore, studentID, name string) {
	students, err := store.ListStudentsWithEncoding(ctx)
	if err != nil {
		return
	}
	want := normalizePersonName(name)
	for _, s := range students {
		if s.ID != studentID && normalizePersonName(s.Name) == want {
			fmt.Printf("Warning: %s is already registered as %s, check for a duplicate\n", s.Name, s.ID)
		}
	}
}

func runRegister(cmd *cobra.Command, args []string) error {
	studentID := mustGetString(cmd, "id")
	name := mustGetString(cmd, "name")
	email := mustGetString(cmd, "email")
	photoPath := mustGetString(cmd, "photo")

	img, err := loadImage(photoPath)
	if err != nil {
		return fmt.Errorf("loading photo: %w", err)
	}

	cfg := config.Load()
	engine, err := recognize.NewEngine(recognize.EngineConfig{
		Provider:  cfg.Engine.Provider,
		URL:       cfg.Engine.URL,
		Timeout:   cfg.Engine.Timeout,
		ModelsDir: cfg.Engine.ModelsDir,
	})
	if err != nil {
		return fmt.Errorf("creating face engine: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	fmt.Printf("Processing photo for %s (%s)...\n", name, studentID)
	encoding, err := recognize.EncodeOne(ctx, engine, img)
	if err != nil {
		return fmt.Errorf("extracting face encoding: %w", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer store.Close()

	warnDuplicateName(ctx, store, studentID, name)

	if err := store.UpsertStudent(ctx, database.Student{ID: studentID, Name: name, Email: email}); err != nil {
		return fmt.Errorf("saving student: %w", err)
	}
	if err := store.UpdateStudentEncoding(ctx, studentID, encoding); err != nil {
		return fmt.Errorf("saving face encoding: %w", err)
	}

	fmt.Printf("Student %s (%s) registered\n", name, studentID)
	return nil
}

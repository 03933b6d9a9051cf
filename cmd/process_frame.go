package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	_ "golang.org/x/image/bmp"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/config"
	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/gallery"
	"github.com/kozaktomas/rollcall/internal/log"
	"github.com/kozaktomas/rollcall/internal/recognize"
)

// frameReport is the JSON document printed for one processed frame. The
// terminal frontend parses it, so the shape is a stable contract.
type frameReport struct {
	Faces            []faceReport   `json:"faces"`
	AttendanceMarked []markedReport `json:"attendance_marked"`
	TotalFaces       int            `json:"total_faces"`
}

type faceReport struct {
	X          int     `json:"x"`
	Y          int     `json:"y"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Recognized bool    `json:"recognized"`
	Name       string  `json:"name"`
	StudentID  string  `json:"student_id,omitempty"`
	Confidence float64 `json:"confidence"`
}

type markedReport struct {
	StudentID   string `json:"student_id"`
	StudentName string `json:"student_name"`
}

var processFrameCmd = &cobra.Command{
	Use:   "process-frame <image> <class-id> <terminal-id>",
	Short: "Process a single frame and mark attendance",
	Long: `Process one image from an attendance terminal: detect faces, match
them against registered students and mark every recognized student
present for the given class. The result is printed as a single JSON
document on stdout, errors included, so callers never have to parse
logs.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runProcessFrame,
}

func init() {
	rootCmd.AddCommand(processFrameCmd)
}

// failJSON prints the machine-readable error document. The returned error
// carries the same message so the process still exits non-zero.
func failJSON(message string) error {
	_ = json.NewEncoder(os.Stdout).Encode(map[string]string{"error": message})
	return errors.New(message)
}

func outputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}

// loadImage decodes a jpeg, png or bmp file from disk.
func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return img, nil
}

func runProcessFrame(cmd *cobra.Command, args []string) error {
	if len(args) != 3 {
		return failJSON("usage: rollcall process-frame <image> <class-id> <terminal-id>")
	}
	imagePath, classArg, terminalID := args[0], args[1], args[2]

	classID, err := strconv.ParseInt(classArg, 10, 64)
	if err != nil {
		return failJSON(fmt.Sprintf("invalid class id %q", classArg))
	}

	img, err := loadImage(imagePath)
	if err != nil {
		return failJSON(fmt.Sprintf("could not load image: %v", err))
	}

	cfg := config.Load()
	store, err := openStore(cfg)
	if err != nil {
		return failJSON(fmt.Sprintf("could not connect to database: %v", err))
	}
	defer store.Close()

	engine, err := recognize.NewEngine(recognize.EngineConfig{
		Provider:  cfg.Engine.Provider,
		URL:       cfg.Engine.URL,
		Timeout:   cfg.Engine.Timeout,
		ModelsDir: cfg.Engine.ModelsDir,
	})
	if err != nil {
		return failJSON(fmt.Sprintf("could not create face engine: %v", err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	report, err := processFrame(ctx, cfg, store, engine, img, classID, terminalID)
	if err != nil {
		return failJSON(err.Error())
	}
	return outputJSON(report)
}

// processFrame runs the recognition pipeline once and marks attendance
// for every matched student. A failed attendance write keeps the face in
// the report but leaves it out of attendance_marked.
func processFrame(ctx context.Context, cfg *config.Config, store database.Store, engine recognize.Engine, img image.Image, classID int64, terminalID string) (*frameReport, error) {
	report := &frameReport{
		Faces:            []faceReport{},
		AttendanceMarked: []markedReport{},
	}

	window, err := store.GetClassWindow(ctx, classID)
	if err != nil {
		return nil, fmt.Errorf("looking up class %d: %w", classID, err)
	}
	if window == nil {
		return nil, fmt.Errorf("class %d not found", classID)
	}

	g, err := gallery.NewLoader(store).Load(ctx)
	if errors.Is(err, gallery.ErrEmptyGallery) {
		// Nobody registered yet, so there is nothing to recognize
		return report, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading gallery: %w", err)
	}

	recognizer := recognize.New(engine, recognize.Config{
		MatchThreshold: cfg.Tuning.Recognizer.MatchThreshold,
		FrameMaxEdge:   cfg.Tuning.Recognizer.FrameMaxEdge,
	})
	detections, err := recognizer.Detect(ctx, img, g)
	if err != nil {
		return nil, fmt.Errorf("detecting faces: %w", err)
	}

	writer := attendance.NewWriter(store)
	for _, d := range detections {
		face := faceReport{
			X:          d.Box.X,
			Y:          d.Box.Y,
			Width:      d.Box.Width,
			Height:     d.Box.Height,
			Recognized: d.Matched(),
			Name:       "Unknown",
		}
		if d.Matched() {
			face.Name = d.Name
			face.StudentID = d.StudentID
			face.Confidence = d.Confidence

			intent := attendance.Intent{
				StudentID:   d.StudentID,
				StudentName: d.Name,
				ClassID:     window.ID,
				ClassName:   window.Name,
				Status:      database.StatusPresent,
				At:          time.Now(),
				Terminal:    terminalID,
			}
			if _, err := writer.Apply(ctx, intent); err != nil {
				log.Logger.Error().Err(err).Str("student_id", d.StudentID).Msg("failed to mark attendance")
			} else {
				report.AttendanceMarked = append(report.AttendanceMarked, markedReport{
					StudentID:   d.StudentID,
					StudentName: d.Name,
				})
			}
		}
		report.Faces = append(report.Faces, face)
	}
	report.TotalFaces = len(report.Faces)
	return report, nil
}

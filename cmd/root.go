package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/rollcall/internal/config"
	"github.com/kozaktomas/rollcall/internal/log"
)

var rootCmd = &cobra.Command{
	Use:   "rollcall",
	Short: "Camera-based attendance marking for scheduled classes",
	Long: `Rollcall marks student attendance from camera frames.

It follows the class timetable: while a class is in session it reads
frames from the configured camera, matches detected faces against the
registered students and records every recognized student as present.
Outside class hours the camera stays off.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()

	cfg := config.Load()
	log.Init(log.Config{
		Level:      log.Level(cfg.Log.Level),
		JSONOutput: cfg.Log.JSON,
	})
}

package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

var (
	onceNiche string
	onceVideo bool
)

var runOnceCmd = &cobra.Command{
	Use:   "run-once",
	Short: "Run a single cycle and print the scheduled post as JSON",
	RunE:  runOnce,
}

func init() {
	runOnceCmd.Flags().StringVar(&onceNiche, "niche", "", "topic niche (defaults to the saved or configured niche)")
	runOnceCmd.Flags().BoolVar(&onceVideo, "video", false, "generate a video for the post")
}

func runOnce(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	cycleCfg := cfg.Cycle
	if saved, found, err := a.repo.LoadConfig(ctx); err == nil && found {
		cycleCfg = saved
	}
	if onceNiche != "" {
		cycleCfg.TopicNiche = onceNiche
	}
	if cmd.Flags().Changed("video") {
		cycleCfg.EnableVideo = onceVideo
	}
	if err := cycleCfg.Validate(); err != nil {
		return err
	}

	post, err := a.executor.Run(ctx, cycleCfg)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(post)
}

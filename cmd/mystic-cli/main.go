package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/fpang/mystic-studio/internal/assets"
	"github.com/fpang/mystic-studio/internal/cli"
	"github.com/fpang/mystic-studio/internal/config"
	"github.com/fpang/mystic-studio/internal/httpapi"
	"github.com/fpang/mystic-studio/internal/imagedata"
	"github.com/fpang/mystic-studio/internal/logging"
	"github.com/fpang/mystic-studio/internal/mcpserver"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var version = "dev"

// CLI flags
var (
	configFlag   string
	modelFlag    string
	inputFlag    string
	promptFlag   string
	outputFlag   string
	validateFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "mystic-cli",
	Short: "Recompose photos with Gemini from the terminal",
	Long: `Mystic CLI recomposes a photo into a 4:5 portrait composition using a
Gemini image model, either as a one-shot command or as an MCP tool server.

Examples:
  mystic-cli edit --input beach.jpg --prompt "make it dreamy"
  mystic-cli edit                # pick the image in a file dialog
  mystic-cli mcp                 # serve recompose_image over stdio`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFlag)
		if err != nil {
			return err
		}
		if modelFlag != "" {
			cfg.Model = modelFlag
		}
		loadedConfig = cfg
		logging.Init(cfg.LogLevel, cfg.LogJSON)
		return nil
	},
}

var loadedConfig *config.Config

var editCmd = &cobra.Command{
	Use:   "edit",
	Short: "Recompose one image and write the result as PNG",
	RunE:  runEdit,
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the recompose_image tool over MCP stdio",
	RunE:  runMCP,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVarP(&modelFlag, "model", "m", "", "Gemini image model to use")

	editCmd.Flags().StringVarP(&inputFlag, "input", "i", "", "Image to recompose (opens a file dialog when empty)")
	editCmd.Flags().StringVarP(&promptFlag, "prompt", "p", "", "Edit request (asked interactively when empty)")
	editCmd.Flags().StringVarP(&outputFlag, "output", "o", httpapi.DownloadFilename, "Where to write the recomposed PNG")
	editCmd.Flags().BoolVar(&validateFlag, "validate-key", false, "Validate the API key before editing")

	rootCmd.AddCommand(editCmd, mcpCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runEdit(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	path := inputFlag
	if path == "" {
		picked, err := cli.PickImage()
		if err != nil {
			if errors.Is(err, cli.ErrPickCanceled) {
				fmt.Println(color.YellowString("No image selected."))
				return nil
			}
			return fmt.Errorf("file picker failed: %w", err)
		}
		path = picked
	}
	path, err := cli.ResolveImagePath(path)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(data) > loadedConfig.MaxUploadBytes {
		return fmt.Errorf("%s is %s, larger than the %s limit", path,
			cli.FormatBytes(len(data)), cli.FormatBytes(loadedConfig.MaxUploadBytes))
	}
	original, err := imagedata.FromUpload(data, path)
	if err != nil {
		return err
	}

	info, err := imagedata.Inspect(data)
	if err != nil {
		log.Debug().Err(err).Msg("Could not inspect image")
	}
	fmt.Printf("%s %s\n", color.CyanString("Image:"), path)
	fmt.Printf("       %s\n", cli.ImageSummary(info, len(data)))

	prompt := promptFlag
	if prompt == "" {
		prompt = cli.PromptForText(os.Stdin, os.Stdout, "Prompt", assets.DefaultUserRequest)
	}

	ed := cli.InitEditor(ctx, loadedConfig, validateFlag)

	fmt.Println(color.CyanString("Recomposing with %s...", ed.Model()))
	start := time.Now()
	edited, err := ed.EditImage(ctx, original, prompt)
	if err != nil {
		fmt.Println(color.RedString("✗ %s", err.Error()))
		return err
	}

	png, err := imagedata.ParseDataURI(edited).Decode()
	if err != nil {
		return fmt.Errorf("failed to decode result: %w", err)
	}
	if err := os.WriteFile(outputFlag, png, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", outputFlag, err)
	}

	fmt.Printf("%s %s (%s, %s)\n", color.GreenString("✓ Saved"), outputFlag,
		cli.FormatBytes(len(png)), cli.FormatDurationShort(time.Since(start)))
	return nil
}

func runMCP(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// stdout carries the protocol; InitEditor logs to stderr.
	ed := cli.InitEditor(ctx, loadedConfig, false)
	log.Info().Str("model", ed.Model()).Str("version", version).Msg("MCP editor ready")

	return mcpserver.New(ed, version, loadedConfig.MaxUploadBytes).ServeStdio(ctx)
}

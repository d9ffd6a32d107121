package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/cropcare/internal/application"
	appanalysis "github.com/jbctechsolutions/cropcare/internal/application/analysis"
	"github.com/jbctechsolutions/cropcare/internal/domain/analysis"
	domainerrors "github.com/jbctechsolutions/cropcare/internal/domain/errors"
	"github.com/jbctechsolutions/cropcare/internal/presentation/cli/output"
)

// analyzeOptions holds the flags of the analyze command.
type analyzeOptions struct {
	crop    string
	capture bool
	wait    bool
	lat     float64
	lng     float64
	place   string
}

// NewAnalyzeCmd creates the analyze command.
func NewAnalyzeCmd() *cobra.Command {
	var opts analyzeOptions

	cmd := &cobra.Command{
		Use:   "analyze [photo]",
		Short: "Diagnose a crop photo",
		Long: `Upload a leaf photo and diagnose it. The photo is compressed before
upload. Without a connection the analysis is saved and runs automatically
once you are back online.

Use --capture to take the latest frame from the capture directory instead
of a file, and --wait to block until a new frame arrives there.`,
		Example: `  cropcare analyze leaf.jpg --crop tomato
  cropcare analyze --capture --wait --crop rice --lat 19.07 --lng 72.87`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var location *analysis.Location
			if cmd.Flags().Changed("lat") || cmd.Flags().Changed("lng") {
				location = &analysis.Location{Lat: opts.lat, Lng: opts.lng, Name: opts.place}
			}
			return runAnalyze(cmd, args, opts, location)
		},
	}

	cmd.Flags().StringVar(&opts.crop, "crop", "", "crop type, e.g. tomato (required)")
	cmd.Flags().BoolVar(&opts.capture, "capture", false, "use the latest frame from the capture directory")
	cmd.Flags().BoolVar(&opts.wait, "wait", false, "with --capture, wait for a new frame")
	cmd.Flags().Float64Var(&opts.lat, "lat", 0, "field latitude")
	cmd.Flags().Float64Var(&opts.lng, "lng", 0, "field longitude")
	cmd.Flags().StringVar(&opts.place, "place", "", "field location name")

	return cmd
}

func runAnalyze(cmd *cobra.Command, args []string, opts analyzeOptions, location *analysis.Location) error {
	c, formatter, err := mustApp()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	if (len(args) == 1) == opts.capture {
		return domainerrors.Validation("give either a photo path or --capture")
	}
	if opts.wait && !opts.capture {
		return domainerrors.Validation("--wait requires --capture")
	}

	var image []byte
	switch {
	case opts.capture && opts.wait:
		formatter.Info("Waiting for a photo in %s ...", c.Config().Capture.Directory)
		image, err = c.Pipeline().AwaitCapture(ctx)
	case opts.capture:
		image, err = c.Pipeline().Capture(ctx)
	default:
		image, err = os.ReadFile(args[0])
		if err != nil {
			return domainerrors.NewError(domainerrors.CodeValidation, fmt.Sprintf("cannot read %s", args[0]), err)
		}
	}
	if err != nil {
		return err
	}

	req := appanalysis.Request{Image: image, CropType: opts.crop, Location: location}
	if err := req.Validate(); err != nil {
		return err
	}

	c.Connect(ctx)

	spinner := output.NewSpinner("Analyzing photo...", output.WithSpinnerColor(!formatter.IsJSON()))
	if !formatter.IsJSON() {
		spinner.Start()
	}
	res, err := c.Analyses().Analyze(ctx, req)
	spinner.Stop()

	if res != nil {
		if perr := formatter.AnalysisResult(res); perr != nil {
			return perr
		}
	}
	return err
}

// NewAnalysesCmd creates the analyses command group.
func NewAnalysesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "analyses",
		Aliases: []string{"history"},
		Short:   "Browse past analyses",
		Long:    `List, inspect, relabel and delete analyses. Works offline from the local cache.`,
	}

	cmd.AddCommand(newAnalysesListCmd())
	cmd.AddCommand(newAnalysesShowCmd())
	cmd.AddCommand(newAnalysesRelabelCmd())
	cmd.AddCommand(newAnalysesDeleteCmd())

	return cmd
}

// connected returns the container and formatter after restoring the session
// and checking reachability.
func connected(cmd *cobra.Command) (*application.Container, *output.Formatter, error) {
	c, formatter, err := mustApp()
	if err != nil {
		return nil, nil, err
	}
	c.Connect(cmd.Context())
	return c, formatter, nil
}

func newAnalysesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List analyses, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, formatter, err := connected(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			list, err := c.Analyses().List(ctx)
			if err != nil {
				return err
			}
			queued, err := c.Analyses().QueuedIDs(ctx)
			if err != nil {
				return err
			}
			return formatter.AnalysisList(list, queued)
		},
	}
}

func newAnalysesShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show an analysis and its treatment plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, formatter, err := connected(cmd)
			if err != nil {
				return err
			}
			res, err := c.Analyses().Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return formatter.AnalysisResult(res)
		},
	}
}

func newAnalysesRelabelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "relabel <id> <crop>",
		Short: "Correct the crop type of an analysis",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, formatter, err := connected(cmd)
			if err != nil {
				return err
			}
			if err := c.Analyses().Relabel(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			if formatter.IsJSON() {
				return formatter.JSON(map[string]string{"id": args[0], "crop_type": args[1]})
			}
			return formatter.Success("Analysis %s relabelled as %s", args[0], args[1])
		},
	}
}

func newAnalysesDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete an analysis and its photo",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, formatter, err := connected(cmd)
			if err != nil {
				return err
			}
			if err := c.Analyses().Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			if formatter.IsJSON() {
				return formatter.JSON(map[string]any{"id": args[0], "deleted": true, "online": c.Monitor().Online()})
			}
			if !c.Monitor().Online() {
				return formatter.Success("Analysis %s deleted locally; the backend copy goes on next sync", args[0])
			}
			return formatter.Success("Analysis %s deleted", args[0])
		},
	}
}

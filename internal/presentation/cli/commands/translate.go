package commands

import (
	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/cropcare/internal/application/translation"
)

// Translation pairs a source text with its translation.
type Translation struct {
	Text        string `json:"text"`
	Translation string `json:"translation"`
	Target      string `json:"target"`
}

// NewTranslateCmd creates the translate command.
func NewTranslateCmd() *cobra.Command {
	var to, from string

	cmd := &cobra.Command{
		Use:   "translate <text>...",
		Short: "Translate text into your language",
		Long: `Translate one or more texts. Each argument is translated separately.
Translations are cached locally; when the service cannot be reached the
original text is printed unchanged.`,
		Example: `  cropcare translate "Apply neem oil every 7 days" --to hi
  cropcare translate "Early blight" "Leaf curl" --to mr`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, formatter, err := connected(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			target := to
			if target == "" {
				target = c.Language(ctx)
			}

			translated := c.Translations().TranslateBatch(ctx, args, target, from)

			if formatter.IsJSON() {
				out := make([]Translation, len(args))
				for i, text := range args {
					out[i] = Translation{Text: text, Translation: translated[i], Target: target}
				}
				return formatter.JSON(out)
			}
			for _, t := range translated {
				formatter.Println("%s", t)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&to, "to", "", "target language (default: your preferred language)")
	cmd.Flags().StringVar(&from, "from", translation.AutoSource, "source language")

	return cmd
}

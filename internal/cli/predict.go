package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/joeychilson/emojicoach/pkg/classifier"
	"github.com/joeychilson/emojicoach/pkg/labels"
	"github.com/joeychilson/emojicoach/pkg/predict"
)

var (
	predictK       int
	predictVerbose bool
)

var predictCmd = &cobra.Command{
	Use:   "predict [text]",
	Short: "Print the top-k emoji reactions for a text",
	Long: `Load the model, predict once and print the emojis separated by spaces.
Multiple arguments are joined with a space; no arguments predicts for empty text.`,
	RunE: runPredict,
}

func init() {
	rootCmd.AddCommand(predictCmd)

	predictCmd.Flags().IntVarP(&predictK, "k", "k", predict.DefaultK, fmt.Sprintf("number of emojis (%d-%d)", predict.MinK, predict.MaxK))
	predictCmd.Flags().BoolVarP(&predictVerbose, "verbose", "v", false, "print class, label and score for each emoji")
}

func runPredict(cmd *cobra.Command, args []string) error {
	if err := predict.ValidateK(predictK); err != nil {
		return err
	}

	logger := newLogger()
	defer func() {
		_ = logger.Sync()
	}()

	cfg, err := classifierConfig(viper.GetViper(), logger)
	if err != nil {
		return err
	}

	c, err := classifier.Load(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("failed to load model: %w", err)
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Warn("Failed to close classifier", zap.Error(err))
		}
	}()

	handler := predict.NewHandler(c, labels.TweetEval(), logger.Named("predict"))
	reactions, err := handler.Reactions(cmd.Context(), strings.Join(args, " "), predictK)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if predictVerbose {
		for _, r := range reactions {
			fmt.Fprintf(out, "%s\t%2d\t%s\t%.4f\n", r.Emoji, r.Class, r.Label, r.Score)
		}
		return nil
	}
	fmt.Fprintln(out, predict.Join(reactions))
	return nil
}

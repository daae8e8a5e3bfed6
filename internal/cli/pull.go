package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/joeychilson/emojicoach/pkg/classifier"
	"github.com/joeychilson/emojicoach/pkg/hub"
	"github.com/joeychilson/emojicoach/pkg/onnx"
)

var pullSkipRuntime bool

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Download the model and ONNX Runtime into the cache",
	Long: `Fetch the model files and the ONNX Runtime shared library so that serve
can start without network access. The model is validated against the
adapter configuration without creating a session.`,
	RunE: runPull,
}

func init() {
	rootCmd.AddCommand(pullCmd)
	pullCmd.Flags().BoolVar(&pullSkipRuntime, "skip-runtime", false, "do not download the ONNX Runtime library")
}

func runPull(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	defer func() {
		_ = logger.Sync()
	}()

	cfg, err := classifierConfig(viper.GetViper(), logger)
	if err != nil {
		return err
	}

	resolver := hub.NewResolver(
		hub.WithCacheDir(cfg.CacheDir),
		hub.WithToken(cfg.Token),
		hub.WithRevision(cfg.Revision),
		hub.WithLogger(logger.Named("hub")),
	)
	manifest, err := resolver.Resolve(cmd.Context(), cfg.Model)
	if err != nil {
		return fmt.Errorf("failed to pull model: %w", err)
	}
	if err := classifier.ValidateAdapter(manifest.Adapter, cfg.BaseModel); err != nil {
		return err
	}
	if _, err := classifier.ValidateDimensions(manifest, -1, cfg.Table); err != nil {
		return err
	}
	logger.Info("Model ready", zap.String("dir", manifest.Dir), zap.String("onnx", manifest.ModelPath))

	if pullSkipRuntime {
		return nil
	}

	libPath, err := onnx.Prepare(cmd.Context(),
		onnx.WithGPU(cfg.GPU),
		onnx.WithCachePath(cfg.CacheDir),
		onnx.WithLibraryPath(cfg.LibraryPath),
		onnx.WithLogger(logger.Named("onnx")),
	)
	if err != nil {
		return fmt.Errorf("failed to prepare runtime: %w", err)
	}
	logger.Info("ONNX Runtime ready", zap.String("library", libPath))
	return nil
}

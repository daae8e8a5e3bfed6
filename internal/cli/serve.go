package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/joeychilson/emojicoach/pkg/classifier"
	"github.com/joeychilson/emojicoach/pkg/labels"
	"github.com/joeychilson/emojicoach/pkg/predict"
	"github.com/joeychilson/emojicoach/pkg/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the emoji reaction web app",
	Long:  `Load the model once and serve the web form, JSON API and metrics until interrupted.`,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", ":7860", "listen address")
	serveCmd.Flags().Int("max-concurrent", 0, "maximum concurrent inferences (0 = CPU count)")
	mustBindPFlag("addr", serveCmd.Flags().Lookup("addr"))
	mustBindPFlag("max_concurrent", serveCmd.Flags().Lookup("max-concurrent"))

	viper.SetDefault("addr", ":7860")
	viper.SetDefault("max_concurrent", 0)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := newLogger()
	defer func() {
		_ = logger.Sync()
	}()

	cfg, err := classifierConfig(viper.GetViper(), logger)
	if err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	logger.Info("Loading model", zap.String("model", cfg.Model))
	c, err := classifier.Load(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to load model", zap.String("model", cfg.Model), zap.Error(err))
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Warn("Failed to close classifier", zap.Error(err))
		}
	}()

	logger.Info("Model loaded",
		zap.String("model", cfg.Model),
		zap.Int("classes", c.NumClasses()),
		zap.String("device", string(c.Device())),
		zap.String("onnxRuntime", c.RuntimeVersion()))

	gin.SetMode(gin.ReleaseMode)
	handler := predict.NewHandler(c, labels.TweetEval(), logger.Named("predict"))
	srv, err := server.New(handler, server.Config{
		Addr:          viper.GetString("addr"),
		MaxConcurrent: viper.GetInt("max_concurrent"),
	}, logger.Named("server"))
	if err != nil {
		logger.Fatal("Failed to create server", zap.Error(err))
	}
	srv.SetReady(true)

	return srv.Run(ctx)
}

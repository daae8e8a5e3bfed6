package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/joeychilson/emojicoach/internal/logging"
	"github.com/joeychilson/emojicoach/pkg/classifier"
	"github.com/joeychilson/emojicoach/pkg/labels"
	"github.com/joeychilson/emojicoach/pkg/onnx"
	"github.com/joeychilson/emojicoach/pkg/postprocess"
)

// DefaultModel is the directory the merged emoji model is exported to
const DefaultModel = "roberta-base-with-tweet-eval-emoji"

var (
	cfgFile string
	// Version is set at build time with
	// -ldflags "-X github.com/joeychilson/emojicoach/internal/cli.Version=..."
	Version = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "emojicoach",
	Short: "Suggest emoji reactions for tweet-like text",
	Long: `Serve a RoBERTa model fine-tuned on TweetEval emoji and suggest the
top-k emoji reactions for any text.

Examples:
  # Start the web app on :7860
  emojicoach serve

  # One-shot prediction
  emojicoach predict --k 3 "Sunny days!"

  # Fetch the model and ONNX Runtime ahead of time
  emojicoach pull --model user/roberta-base-tweet-emoji`,
	SilenceUsage: true,
	RunE:         runServe,
}

// Execute runs the root command and exits non-zero on failure
func Execute() {
	rootCmd.Version = Version
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file path (e.g. emojicoach.yaml)")
	flags.String("log-level", "info", "set the logging level (e.g. debug, info, warn, error)")
	flags.String("log-style", "terminal", "set the logging output style (terminal, json, logfmt, noop)")
	flags.String("model", DefaultModel, "local model directory or hub repository id")
	flags.String("base-model", classifier.DefaultBaseModel, "pretrained model the adapter must target")
	flags.String("revision", "main", "hub revision to download")
	flags.String("cache-dir", "", "cache directory for models and the runtime library")
	flags.String("hf-token", "", "Hugging Face access token")
	flags.String("gpu", string(onnx.GPUModeAuto), "GPU mode (auto, on, off)")
	flags.String("ort-lib", "", "path to an ONNX Runtime shared library")
	flags.Int("threads", 0, "intra-op threads per session (0 = runtime default)")
	flags.Int("max-length", classifier.DefaultMaxLength, "maximum token sequence length")
	flags.String("score-function", string(postprocess.ScoreSoftmax), "score function (softmax, sigmoid, none)")

	mustBindPFlag("config", flags.Lookup("config"))
	mustBindPFlag("log.level", flags.Lookup("log-level"))
	mustBindPFlag("log.style", flags.Lookup("log-style"))
	mustBindPFlag("model", flags.Lookup("model"))
	mustBindPFlag("base_model", flags.Lookup("base-model"))
	mustBindPFlag("revision", flags.Lookup("revision"))
	mustBindPFlag("cache_dir", flags.Lookup("cache-dir"))
	mustBindPFlag("hf_token", flags.Lookup("hf-token"))
	mustBindPFlag("gpu", flags.Lookup("gpu"))
	mustBindPFlag("ort_lib", flags.Lookup("ort-lib"))
	mustBindPFlag("threads", flags.Lookup("threads"))
	mustBindPFlag("max_length", flags.Lookup("max-length"))
	mustBindPFlag("score_function", flags.Lookup("score-function"))

	viper.SetDefault("log.level", "info")
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		viper.SetDefault("log.style", "json")
	} else {
		viper.SetDefault("log.style", "terminal")
	}
}

// initConfig reads in the config file and environment variables
func initConfig() {
	if cfgFile != "" {
		if _, err := os.Stat(cfgFile); err != nil {
			fmt.Fprintf(os.Stderr, "Config file not found: %s\n", cfgFile)
			os.Exit(1)
		}
		viper.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home)
			viper.SetConfigName(".emojicoach")
		}
		viper.AddConfigPath(".")
		viper.SetConfigName("emojicoach")
	}

	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("EMOJICOACH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	} else if cfgFile != "" {
		fmt.Fprintf(os.Stderr, "Error reading config file [%s]: %v\n", viper.ConfigFileUsed(), err)
		os.Exit(1)
	}
}

func mustBindPFlag(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("failed to bind flag %q: %v", key, err))
	}
}

func newLogger() *zap.Logger {
	return logging.NewLogger(&logging.Config{
		Level: logging.Level(viper.GetString("log.level")),
		Style: logging.Style(viper.GetString("log.style")),
	})
}

// classifierConfig builds the loader configuration from flags, env and file
func classifierConfig(v *viper.Viper, logger *zap.Logger) (classifier.Config, error) {
	gpu, err := onnx.ParseGPUMode(v.GetString("gpu"))
	if err != nil {
		return classifier.Config{}, err
	}
	scoreFunction, err := postprocess.ParseScoreFunction(v.GetString("score_function"))
	if err != nil {
		return classifier.Config{}, err
	}

	return classifier.Config{
		Model:         v.GetString("model"),
		BaseModel:     v.GetString("base_model"),
		CacheDir:      v.GetString("cache_dir"),
		Token:         v.GetString("hf_token"),
		Revision:      v.GetString("revision"),
		GPU:           gpu,
		LibraryPath:   v.GetString("ort_lib"),
		Threads:       v.GetInt("threads"),
		MaxLength:     v.GetInt("max_length"),
		ScoreFunction: scoreFunction,
		Table:         labels.TweetEval(),
		Logger:        logger.Named("classifier"),
	}, nil
}

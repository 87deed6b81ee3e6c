// Package cli holds the fruit-classifier commands.
package cli

import (
	"github.com/fruitlens/fruit-classifier/internal/config"
	"github.com/fruitlens/fruit-classifier/internal/logging"
	"github.com/fruitlens/fruit-classifier/internal/model"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type rootOptions struct {
	configPath string
	modelPath  string
	metadata   string
	logLevel   string
}

func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "fruit-classifier",
		Short: "Classify fruit photos with a pretrained image model",
		Long: `fruit-classifier recognises seven fruits (Apple, Banana, Grapes, Kiwi,
Mango, Orange, Strawberry) in photos.

Run "serve" for the web page with a per-session prediction chart, or
"classify" for a one-shot prediction on a file or URL.`,
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "Path to a YAML config file")
	flags.StringVar(&opts.modelPath, "model", "", "Path to the ONNX model (overrides MODEL_PATH)")
	flags.StringVar(&opts.metadata, "metadata", "", "Path to the model metadata JSON (overrides MODEL_METADATA_PATH)")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newClassifyCmd(opts))

	return cmd
}

// load resolves the configuration with command-line flags applied last.
func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.modelPath != "" {
		cfg.Model.Path = o.modelPath
	}
	if o.metadata != "" {
		cfg.Model.MetadataPath = o.metadata
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.SugaredLogger, error) {
	return logging.New(cfg.Log.Level, cfg.Log.Format)
}

func newShared(cfg *config.Config) *model.Shared {
	mc := model.Config{
		Path:              cfg.Model.Path,
		MetadataPath:      cfg.Model.MetadataPath,
		SharedLibraryPath: cfg.Model.SharedLibraryPath,
	}
	return model.NewShared(func() (*model.Classifier, error) {
		return model.Load(mc)
	})
}

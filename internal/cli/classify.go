package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fruitlens/fruit-classifier/internal/fruit"
	"github.com/fruitlens/fruit-classifier/internal/imagesource"
	"github.com/fruitlens/fruit-classifier/internal/model"
	"github.com/fruitlens/fruit-classifier/internal/pipeline"
	"github.com/fruitlens/fruit-classifier/internal/session"
	"github.com/spf13/cobra"
)

func newClassifyCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "classify <file-or-url>...",
		Short: "Classify one or more images and print the predictions",
		Example: `  fruit-classifier classify apple.jpg
  fruit-classifier classify https://example.com/banana.png --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			shared := newShared(cfg)
			defer func() { _ = shared.Close() }()

			p := pipeline.New(imagesource.NewFetcher(cfg.FetchTimeout, cfg.TempDir), shared, logger)
			sess := session.New()
			out := cmd.OutOrStdout()

			for _, arg := range args {
				in, err := inputFor(arg)
				if err != nil {
					return err
				}
				res, err := p.Run(cmd.Context(), sess, in)
				if err != nil {
					if model.IsModelLoadError(err) {
						return err
					}
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s (%v)\n", arg, pipeline.UserMessage(err), err)
					continue
				}
				if res == nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: empty image\n", arg)
					continue
				}

				if asJSON {
					resp := model.NewPredictionResponse(res.Prediction, res.Distribution)
					if err := json.NewEncoder(out).Encode(map[string]any{"input": arg, "prediction": resp}); err != nil {
						return err
					}
					continue
				}
				label := res.Prediction.Label
				fmt.Fprintf(out, "%s: %s %s (%s)\n", arg, label, fruit.Emoji(label), res.Prediction.Percent())
				fmt.Fprintf(out, "  %s\n", fruit.FunFact(label))
			}

			if !asJSON && len(args) > 1 {
				fmt.Fprintln(out, "Summary:")
				for _, e := range sess.Tally.ByCount() {
					fmt.Fprintf(out, "  %-10s %d\n", e.Label, e.Count)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print one JSON object per image")

	return cmd
}

// inputFor treats http(s) arguments as URLs and everything else as a local
// file.
func inputFor(arg string) (imagesource.Input, error) {
	if strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://") {
		return imagesource.Input{URL: arg}, nil
	}
	data, err := os.ReadFile(arg)
	if err != nil {
		return imagesource.Input{}, fmt.Errorf("failed to read %s: %w", arg, err)
	}
	return imagesource.Input{Upload: data, Filename: arg}, nil
}

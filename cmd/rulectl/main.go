// Command rulectl compiles and checks validation rules offline.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"rulecompiler/internal/metadata"
	"rulecompiler/internal/nlrule"
)

// cli holds the state shared by every subcommand.
type cli struct {
	verbose    bool
	vocabulary string
	logger     *zap.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{logger: zap.NewNop()}

	root := &cobra.Command{
		Use:   "rulectl",
		Short: "Compile natural-language validation rules",
		Long: `rulectl turns plain-English validation sentences into rule expressions
against a template's fields, and checks existing expressions.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config := zap.NewDevelopmentConfig()
			config.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
			if c.verbose {
				config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			}
			logger, err := config.Build()
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			c.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = c.logger.Sync()
		},
	}

	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "debug logging")
	root.PersistentFlags().StringVar(&c.vocabulary, "vocabulary", "", "YAML vocabulary file (defaults to the built-in table)")

	root.AddCommand(
		c.compileCmd(),
		c.lintCmd(),
		c.vocabularyCmd(),
		c.tokenCmd(),
	)
	return root
}

// compiler builds a compiler honouring --vocabulary.
func (c *cli) compiler() (*nlrule.Compiler, error) {
	if c.vocabulary == "" {
		return nlrule.New(), nil
	}
	table, err := nlrule.LoadSynonymsFile(c.vocabulary)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("vocabulary loaded", zap.String("path", c.vocabulary))
	return nlrule.New(nlrule.WithSynonyms(table)), nil
}

// loadTemplate reads a template definition from a JSON or YAML file.
func loadTemplate(path string) (*metadata.Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode template %s: %w", path, err)
		}
		if data, err = json.Marshal(doc); err != nil {
			return nil, fmt.Errorf("convert template %s: %w", path, err)
		}
	}

	var tpl metadata.Template
	if err := json.Unmarshal(data, &tpl); err != nil {
		return nil, fmt.Errorf("decode template %s: %w", path, err)
	}
	return &tpl, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

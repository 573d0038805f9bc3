package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rulecompiler/internal/auth"
	"rulecompiler/internal/config"
	"rulecompiler/internal/nlrule"
)

var errLintFailed = errors.New("lint failed")

type compileOutput struct {
	Rule        nlrule.CompiledRule `json:"rule"`
	Shape       string              `json:"shape"`
	Lint        []string            `json:"lint,omitempty"`
	Suggestions []string            `json:"suggestions,omitempty"`
}

func (c *cli) compileCmd() *cobra.Command {
	var templatePath string
	var suggestions int

	cmd := &cobra.Command{
		Use:   "compile [sentence]",
		Short: "Compile a sentence against a template",
		Example: `  rulectl compile -t stay.json "Expected Discharge Datetime must be after Expected Admission Datetime"
  echo "Number of Days at least 1" | rulectl compile -t stay.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			tpl, err := loadTemplate(templatePath)
			if err != nil {
				return err
			}
			compiler, err := c.compiler()
			if err != nil {
				return err
			}

			sentence := strings.Join(args, " ")
			if sentence == "" {
				raw, err := readAll(cmd)
				if err != nil {
					return err
				}
				sentence = raw
			}

			reg := nlrule.NewAliasRegistryFor(tpl)
			rule, shape := compiler.Explain(reg, sentence)
			out := compileOutput{Rule: rule, Shape: shape, Lint: nlrule.Lint(rule, reg)}
			if !rule.Enabled && suggestions > 0 {
				out.Suggestions = reg.Suggest(sentence, suggestions)
			}
			c.logger.Debug("compiled",
				zap.String("template_id", tpl.ID),
				zap.String("shape", shape),
				zap.Bool("enabled", rule.Enabled))
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}

	cmd.Flags().StringVarP(&templatePath, "template", "t", "", "template definition file (JSON or YAML)")
	cmd.Flags().IntVar(&suggestions, "suggest", 3, "field label suggestions on a failed compile")
	_ = cmd.MarkFlagRequired("template")
	return cmd
}

func (c *cli) lintCmd() *cobra.Command {
	var templatePath, expression, message string
	var dependsOn []string
	var disabled bool

	cmd := &cobra.Command{
		Use:   "lint",
		Short: "Check an expression against its dependencies and template",
		Example: `  rulectl lint -e "numberOfDays >= 1" -d numberOfDays
  rulectl lint -t stay.json -e "a > b" -d a,b`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var reg *nlrule.AliasRegistry
			if templatePath != "" {
				tpl, err := loadTemplate(templatePath)
				if err != nil {
					return err
				}
				reg = nlrule.NewAliasRegistryFor(tpl)
			}

			problems := nlrule.Lint(nlrule.CompiledRule{
				Expression:   expression,
				ErrorMessage: message,
				DependsOn:    dependsOn,
				Enabled:      !disabled,
			}, reg)

			out := cmd.OutOrStdout()
			if len(problems) == 0 {
				fmt.Fprintln(out, "ok")
				return nil
			}
			for _, p := range problems {
				fmt.Fprintln(out, p)
			}
			return errLintFailed
		},
	}

	cmd.Flags().StringVarP(&templatePath, "template", "t", "", "template definition file; enables unknown-field checks")
	cmd.Flags().StringVarP(&expression, "expr", "e", "", "rule expression")
	cmd.Flags().StringVarP(&message, "message", "m", "", "error message")
	cmd.Flags().StringSliceVarP(&dependsOn, "depends", "d", nil, "field ids the rule depends on")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "lint as a disabled rule")
	return cmd
}

func (c *cli) vocabularyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "vocabulary",
		Short: "Print the active vocabulary as YAML",
		Long: `Prints the synonym table the compiler uses. Redirect it to a file,
edit it and pass it back with --vocabulary to customise the wording.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			compiler, err := c.compiler()
			if err != nil {
				return err
			}
			return nlrule.WriteSynonyms(cmd.OutOrStdout(), compiler.Synonyms())
		},
	}
}

func (c *cli) tokenCmd() *cobra.Command {
	var subject, secret string
	var roles []string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an access token for the compile service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				secret = cfg.JWTSecret
			}
			token, err := auth.GenerateAccessToken(subject, roles, secret, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "sub", "rulectl", "token subject")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "roles to grant (repeatable)")
	cmd.Flags().StringVar(&secret, "secret", "", "signing secret (defaults to the configured jwt_secret)")
	cmd.Flags().DurationVar(&ttl, "ttl", auth.AccessTokenTTL, "token lifetime")
	return cmd
}

func readAll(cmd *cobra.Command) (string, error) {
	raw, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("read sentence: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}

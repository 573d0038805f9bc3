package engine

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"rulecompiler/internal/instrument"
	"rulecompiler/internal/metadata"
	"rulecompiler/internal/nlrule"
)

type Handler struct {
	compiler    *nlrule.Compiler
	registry    *metadata.Registry
	cache       *CompileCache
	events      instrument.Sink
	suggestions int
	logger      *zap.Logger
}

// NewHandler wires the compile endpoints. A nil events sink disables the
// compile event log.
func NewHandler(compiler *nlrule.Compiler, reg *metadata.Registry, cache *CompileCache, events instrument.Sink, suggestions int, logger *zap.Logger) *Handler {
	if events == nil {
		events = instrument.NoopSink{}
	}
	return &Handler{
		compiler:    compiler,
		registry:    reg,
		cache:       cache,
		events:      events,
		suggestions: suggestions,
		logger:      logger,
	}
}

type compileRequest struct {
	TemplateID string             `json:"template_id"`
	Template   *metadata.Template `json:"template"`
	Text       json.RawMessage    `json:"text"`
}

// Compile handles POST /api/_rules/compile
func (h *Handler) Compile(c *fiber.Ctx) error {
	var req compileRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, InvalidPayloadError())
	}

	tpl, version, fromRegistry, appErr := h.resolveTemplate(req.TemplateID, req.Template)
	if appErr != nil {
		return respondError(c, appErr)
	}

	start := time.Now()
	var text any
	if len(req.Text) > 0 {
		if err := json.Unmarshal(req.Text, &text); err != nil {
			return respondError(c, InvalidPayloadError())
		}
	}
	sentence, isString := text.(string)

	cached := false
	var res compileResult
	if fromRegistry && isString {
		res, cached = h.cache.get(version, tpl.ID, sentence)
	}
	if !cached {
		if isString {
			res = h.compile(tpl, sentence)
		} else {
			res = compileResult{Rule: h.compiler.CompileValue(tpl, text)}
		}
		if fromRegistry && isString {
			h.cache.add(version, tpl.ID, sentence, res)
		}
	}

	logged := sentence
	if !isString {
		logged = string(req.Text)
	}
	h.events.Enqueue(instrument.CompileEvent{
		TemplateID: tpl.ID,
		Text:       logged,
		Shape:      res.Shape,
		Enabled:    res.Rule.Enabled,
		Cached:     cached,
		UserID:     callerID(c),
		DurationMs: float64(time.Since(start).Microseconds()) / 1000,
	})

	if len(res.Lint) > 0 {
		h.logger.Warn("compiled rule failed lint",
			zap.String("template_id", tpl.ID),
			zap.String("expression", res.Rule.Expression),
			zap.Strings("problems", res.Lint))
	}

	meta := fiber.Map{
		"template_id": tpl.ID,
		"shape":       res.Shape,
		"cached":      cached,
	}
	if len(res.Suggestions) > 0 {
		meta["suggestions"] = res.Suggestions
	}
	if len(res.Lint) > 0 {
		meta["lint"] = res.Lint
	}
	return c.JSON(fiber.Map{"data": res.Rule, "meta": meta})
}

func (h *Handler) compile(tpl *metadata.Template, sentence string) compileResult {
	reg := nlrule.NewAliasRegistryFor(tpl)
	rule, shape := h.compiler.Explain(reg, sentence)
	res := compileResult{
		Rule:  rule,
		Shape: shape,
		Lint:  nlrule.Lint(rule, reg),
	}
	if !rule.Enabled && h.suggestions > 0 {
		res.Suggestions = reg.Suggest(sentence, h.suggestions)
	}
	return res
}

type lintRequest struct {
	TemplateID string                    `json:"template_id"`
	Rules      []metadata.ValidationRule `json:"rules"`
}

type lintResult struct {
	ID       string   `json:"id"`
	Enabled  bool     `json:"enabled"`
	Problems []string `json:"problems"`
}

// Lint handles POST /api/_rules/lint
func (h *Handler) Lint(c *fiber.Ctx) error {
	var req lintRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, InvalidPayloadError())
	}

	registries := make(map[string]*nlrule.AliasRegistry)
	aliasesFor := func(id string) (*nlrule.AliasRegistry, *AppError) {
		if id == "" {
			return nil, nil
		}
		if reg, ok := registries[id]; ok {
			return reg, nil
		}
		tpl := h.registry.GetTemplate(id)
		if tpl == nil {
			return nil, UnknownTemplateError(id)
		}
		reg := nlrule.NewAliasRegistryFor(tpl)
		registries[id] = reg
		return reg, nil
	}

	if _, appErr := aliasesFor(req.TemplateID); appErr != nil {
		return respondError(c, appErr)
	}

	results := make([]lintResult, 0, len(req.Rules))
	failing := 0
	for _, r := range req.Rules {
		templateID := req.TemplateID
		if templateID == "" {
			templateID = r.TemplateID
		}
		reg, appErr := aliasesFor(templateID)
		if appErr != nil {
			return respondError(c, appErr)
		}

		problems := nlrule.Lint(nlrule.CompiledRule{
			Expression:   r.Expression,
			ErrorMessage: r.ErrorMessage,
			DependsOn:    r.DependsOn,
			Enabled:      r.Enabled,
		}, reg)
		if problems == nil {
			problems = []string{}
		} else {
			failing++
		}
		results = append(results, lintResult{ID: r.ID, Enabled: r.Enabled, Problems: problems})
	}

	return c.JSON(fiber.Map{
		"data": results,
		"meta": fiber.Map{
			"template_id": req.TemplateID,
			"checked":     len(results),
			"failing":     failing,
		},
	})
}

type patternInfo struct {
	Name      string `json:"name"`
	Priority  int    `json:"priority"`
	MinFields int    `json:"min_fields"`
}

// Vocabulary handles GET /api/_rules/vocabulary
func (h *Handler) Vocabulary(c *fiber.Ctx) error {
	patterns := h.compiler.Patterns()
	infos := make([]patternInfo, len(patterns))
	for i, p := range patterns {
		infos[i] = patternInfo{Name: p.Name, Priority: p.Priority, MinFields: p.MinFields}
	}
	return c.JSON(fiber.Map{
		"data": h.compiler.Synonyms(),
		"meta": fiber.Map{"patterns": infos},
	})
}

// Aliases handles GET /api/_rules/templates/:id/aliases
func (h *Handler) Aliases(c *fiber.Ctx) error {
	id := c.Params("id")
	tpl := h.registry.GetTemplate(id)
	if tpl == nil {
		return respondError(c, UnknownTemplateError(id))
	}
	aliases := nlrule.BuildAliases(tpl)
	if aliases == nil {
		aliases = []nlrule.FieldAlias{}
	}
	return c.JSON(fiber.Map{"data": aliases})
}

func callerID(c *fiber.Ctx) string {
	if user, ok := c.Locals(metadata.UserLocalsKey).(*metadata.UserContext); ok && user != nil {
		return user.ID
	}
	return ""
}

// resolveTemplate picks the registry template named by id, with the registry
// version it was read at, or the inline template when no id is given. Only
// registry templates are cacheable.
func (h *Handler) resolveTemplate(id string, inline *metadata.Template) (*metadata.Template, uint64, bool, *AppError) {
	id = strings.TrimSpace(id)
	if id != "" {
		tpl, version := h.registry.Lookup(id)
		if tpl == nil {
			return nil, 0, false, UnknownTemplateError(id)
		}
		return tpl, version, true, nil
	}
	if inline != nil {
		return inline, 0, false, nil
	}
	return nil, 0, false, ValidationError([]ErrorDetail{{
		Field:   "template_id",
		Rule:    "required",
		Message: "template_id or an inline template is required",
	}})
}

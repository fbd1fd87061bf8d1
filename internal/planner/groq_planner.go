package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/client"
	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/model"
)

// ChatClient is the subset of the Groq client the planner needs
type ChatClient interface {
	ChatCompletion(ctx context.Context, system, user string, opts ...client.CompletionOption) (string, error)
	IsConfigured() bool
}

// GroqPlanner plans in two LLM calls: parse the instruction, then decompose
// it into steps. Without a configured client it falls back to OfflinePlanner.
type GroqPlanner struct {
	chat     ChatClient
	fallback *OfflinePlanner
	logger   *slog.Logger
	// retryDelay is the pause before repeating a call that failed with a
	// retryable API error
	retryDelay time.Duration
}

func NewGroqPlanner(chat ChatClient, logger *slog.Logger) *GroqPlanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &GroqPlanner{
		chat:     chat,
		fallback:   NewOfflinePlanner(),
		logger:     logger,
		retryDelay: 2 * time.Second,
	}
}

// parsedInput is the result of the first stage
type parsedInput struct {
	Intent              string   `json:"intent"`
	Application         string   `json:"application"`
	ProgrammingLanguage *string  `json:"programming_language"`
	SpecificActions     []string `json:"specific_actions"`
}

type rawPlan struct {
	Goal            string    `json:"goal"`
	Prerequisites   []string  `json:"prerequisites"`
	Steps           []rawStep `json:"steps"`
	SuccessCriteria string    `json:"success_criteria"`
}

type rawStep struct {
	ID             int             `json:"id"`
	Action         string          `json:"action"`
	Target         *string         `json:"target"`
	Value          json.RawMessage `json:"value"`
	Description    *string         `json:"description"`
	ExpectedResult *string         `json:"expected_result"`
}

func (p *GroqPlanner) Plan(ctx context.Context, instruction string) (*model.TaskPlan, error) {
	if err := CheckInstruction(instruction); err != nil {
		return nil, err
	}

	if p.chat == nil || !p.chat.IsConfigured() {
		p.logger.Warn("groq not configured, using offline planner")
		return p.fallback.Plan(ctx, instruction)
	}

	parsed, err := p.parse(ctx, instruction)
	if errors.Is(err, client.ErrNotConfigured) {
		p.logger.Warn("groq not configured, using offline planner")
		return p.fallback.Plan(ctx, instruction)
	}
	if err != nil {
		return nil, err
	}

	plan, err := p.decompose(ctx, instruction, parsed)
	if err != nil {
		return nil, err
	}

	p.logger.Info("plan generated", "steps", len(plan.Steps), "application", parsed.Application)
	return plan, nil
}

// complete asks for a JSON reply and repeats the call once when the API
// reports a rate limit or a server error
func (p *GroqPlanner) complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	opts := []client.CompletionOption{client.WithMaxTokens(maxTokens), client.WithJSONResponse()}
	response, err := p.chat.ChatCompletion(ctx, "", prompt, opts...)
	if err == nil || !client.IsRetryable(err) {
		return response, err
	}

	p.logger.Warn("groq call failed, retrying", "error", err, "delay", p.retryDelay)
	timer := time.NewTimer(p.retryDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
	}
	return p.chat.ChatCompletion(ctx, "", prompt, opts...)
}

func (p *GroqPlanner) parse(ctx context.Context, instruction string) (*parsedInput, error) {
	response, err := p.complete(ctx, buildParsePrompt(instruction), 1024)
	if err != nil {
		return nil, fmt.Errorf("AI parsing failed: %w", err)
	}

	var parsed parsedInput
	if err := json.Unmarshal([]byte(extractJSON(response)), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse AI response: %w", err)
	}
	if parsed.Intent == "" {
		return nil, fmt.Errorf("failed to parse AI response: missing intent")
	}
	return &parsed, nil
}

func (p *GroqPlanner) decompose(ctx context.Context, instruction string, parsed *parsedInput) (*model.TaskPlan, error) {
	response, err := p.complete(ctx, buildDecomposePrompt(parsed), 4096)
	if err != nil {
		return nil, fmt.Errorf("AI decomposition failed: %w", err)
	}

	var raw rawPlan
	if err := json.Unmarshal([]byte(extractJSON(response)), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse AI response: %w", err)
	}
	if len(raw.Steps) == 0 {
		return nil, fmt.Errorf("no steps in response")
	}

	plan := normalise(instruction, raw)
	for _, s := range raw.Steps {
		if _, ok := model.ParseActionType(s.Action); !ok {
			p.logger.Warn("unknown action in plan, using click", "action", s.Action, "step", s.ID)
		}
	}
	return plan, nil
}

// normalise coerces model output into a valid plan: unknown actions become
// click, empty targets become "screen", non-string values are stringified
// and ids are renumbered to positions.
func normalise(instruction string, raw rawPlan) *model.TaskPlan {
	steps := make([]model.Step, 0, len(raw.Steps))
	for _, s := range raw.Steps {
		action, ok := model.ParseActionType(s.Action)
		if !ok {
			action = model.ActionClick
		}

		target := "screen"
		if s.Target != nil && *s.Target != "" {
			target = *s.Target
		}

		description := ""
		if s.Description != nil {
			description = *s.Description
		}
		expected := "Action is successfully completed"
		if s.ExpectedResult != nil {
			expected = *s.ExpectedResult
		}

		steps = append(steps, model.Step{
			ID:             s.ID,
			Action:         action,
			Target:         target,
			Value:          valueString(s.Value),
			Description:    description,
			ExpectedResult: expected,
		})
	}
	model.Renumber(steps)

	prerequisites := raw.Prerequisites
	if prerequisites == nil {
		prerequisites = []string{}
	}

	return &model.TaskPlan{
		OriginalInstruction: instruction,
		Goal:                raw.Goal,
		Prerequisites:       prerequisites,
		Steps:               steps,
		SuccessCriteria:     raw.SuccessCriteria,
	}
}

func valueString(raw json.RawMessage) *string {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return &s
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		v := n.String()
		return &v
	}

	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		v := strconv.FormatBool(b)
		return &v
	}

	v := string(raw)
	return &v
}

// extractJSON attempts to extract JSON from a response that may contain extra text
func extractJSON(s string) string {
	// Find the first { and last }
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")

	if start != -1 && end != -1 && end > start {
		return s[start : end+1]
	}
	return s
}

func buildParsePrompt(instruction string) string {
	return fmt.Sprintf(`Analyze the following user instruction for creating a programming video tutorial.

USER INSTRUCTION:
%q

Extract the key information from this instruction.

Respond EXCLUSIVELY in JSON format with the following structure:
{
  "intent": "A brief description of what the user wants to achieve",
  "application": "Name of the application being used (e.g. Eclipse, VS Code, IntelliJ, Terminal)",
  "programming_language": "Programming language if mentioned, otherwise null",
  "specific_actions": ["Each specific action as a separate string"]
}

Respond ONLY with the JSON object, without additional text or markdown formatting.`, instruction)
}

func buildDecomposePrompt(parsed *parsedInput) string {
	actions := make([]string, len(model.ValidActions))
	for i, a := range model.ValidActions {
		actions[i] = string(a)
	}

	language := "Not specified"
	if parsed.ProgrammingLanguage != nil && *parsed.ProgrammingLanguage != "" {
		language = *parsed.ProgrammingLanguage
	}

	specific, _ := json.Marshal(parsed.SpecificActions)

	return fmt.Sprintf(`You are an expert in desktop application automation. Create a DETAILED plan for a computer-use agent.

CONTEXT:
- Goal: %s
- Application: %s
- Programming language: %s
- Actions: %s

AVAILABLE ACTIONS:
%s

RULES:
1. target MUST be the exact text visible on screen, e.g. "File", "New", "Create".
2. Every menu level is a separate click step.
3. For wait, value is a number of seconds as a string, e.g. "3".
4. For type_text, target is the field name or "editor" and value is the text to type.
5. Wait 4 seconds after open_application, 3 after creating a project, 1 after opening a menu.
6. Never skip steps.

Respond ONLY with a JSON object:
{
  "goal": "...",
  "prerequisites": ["..."],
  "steps": [
    {"id": 1, "action": "open_application", "target": "Visual Studio", "value": null, "description": "...", "expected_result": "..."}
  ],
  "success_criteria": "..."
}`, parsed.Intent, parsed.Application, language, specific, strings.Join(actions, ", "))
}

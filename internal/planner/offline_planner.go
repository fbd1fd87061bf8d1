package planner

import (
	"context"
	"strings"

	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/model"
)

// OfflinePlanner builds a fixed-shape plan without calling a model. It is
// used in development and whenever no Groq key is configured.
type OfflinePlanner struct{}

func NewOfflinePlanner() *OfflinePlanner {
	return &OfflinePlanner{}
}

var knownApplications = []struct {
	keyword string
	name    string
}{
	{"visual studio code", "Visual Studio Code"},
	{"vs code", "Visual Studio Code"},
	{"visual studio", "Visual Studio"},
	{"intellij", "IntelliJ IDEA"},
	{"eclipse", "Eclipse"},
	{"terminal", "Terminal"},
}

func (p *OfflinePlanner) Plan(ctx context.Context, instruction string) (*model.TaskPlan, error) {
	if err := CheckInstruction(instruction); err != nil {
		return nil, err
	}
	instruction = strings.TrimSpace(instruction)

	app := "Visual Studio Code"
	lower := strings.ToLower(instruction)
	for _, known := range knownApplications {
		if strings.Contains(lower, known.keyword) {
			app = known.name
			break
		}
	}

	steps := []model.Step{
		{Action: model.ActionOpenApplication, Target: app, Description: "Open " + app, ExpectedResult: app + " is open"},
		{Action: model.ActionWait, Target: "screen", Value: model.StringPtr("4"), Description: "Wait for the application to load", ExpectedResult: "Main window is visible"},
		{Action: model.ActionClick, Target: "File", Description: "Open the File menu", ExpectedResult: "File menu is open"},
		{Action: model.ActionWait, Target: "screen", Value: model.StringPtr("1"), Description: "Wait for the menu", ExpectedResult: "Menu items are visible"},
		{Action: model.ActionClick, Target: "New File", Description: "Create a new file", ExpectedResult: "An empty editor is open"},
		{Action: model.ActionTypeText, Target: "editor", Value: model.StringPtr("// " + instruction), Description: "Write the code", ExpectedResult: "Code is entered"},
		{Action: model.ActionKeyCombination, Target: "ctrl+s", Description: "Save the file", ExpectedResult: "File is saved"},
		{Action: model.ActionKeyPress, Target: "f5", Description: "Run the program", ExpectedResult: "Program is running"},
		{Action: model.ActionWait, Target: "screen", Value: model.StringPtr("3"), Description: "Wait for the output", ExpectedResult: "Output is visible"},
	}
	model.Renumber(steps)

	return &model.TaskPlan{
		OriginalInstruction: instruction,
		Goal:                instruction,
		Prerequisites:       []string{app + " is installed"},
		Steps:               steps,
		SuccessCriteria:     "The program runs and its output is visible",
	}, nil
}

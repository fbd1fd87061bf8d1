package planner

import (
	"context"
	"errors"
	"strings"

	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/model"
)

// ErrNotProgramming is returned for instructions outside the tutorial domain
var ErrNotProgramming = errors.New("The instruction does not seem to be related to programming tasks")

// ErrTooShort is returned for instructions below model.MinInstructionLength
var ErrTooShort = errors.New("Instruction is too short. Please provide more details.")

// Planner turns a natural-language instruction into an automation plan
type Planner interface {
	Plan(ctx context.Context, instruction string) (*model.TaskPlan, error)
}

var programmingKeywords = []string{
	"projekat", "project", "kod", "code", "program",
	"eclipse", "vs code", "visual studio", "intellij",
	"java", "python", "javascript", "c++", "c#",
	"kompajl", "compile", "run", "pokreni", "debug",
	"klasa", "class", "funkcija", "function", "metoda",
	"tutorial", "uputstvo", "napravi", "kreiraj",
}

// CheckInstruction applies the length and topic policy every planner enforces
func CheckInstruction(instruction string) error {
	instruction = strings.TrimSpace(instruction)
	if len(instruction) < model.MinInstructionLength {
		return ErrTooShort
	}
	lower := strings.ToLower(instruction)
	for _, kw := range programmingKeywords {
		if strings.Contains(lower, kw) {
			return nil
		}
	}
	return ErrNotProgramming
}

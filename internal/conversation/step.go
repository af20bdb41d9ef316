package conversation

import (
	"errors"
	"fmt"
)

// Step is a node of the conversation graph.
type Step string

const (
	StepInitial               Step = "initial"
	StepApplianceRecognition  Step = "appliance_recognition"
	StepApplianceSelection    Step = "appliance_selection"
	StepCheckingOpenIssues    Step = "checking_open_issues"
	StepOpenIssuesDisplay     Step = "open_issues_display"
	StepUserConfirmation      Step = "user_confirmation"
	StepFollowUpQuestions     Step = "follow_up_questions"
	StepCheckingSimilarIssues Step = "checking_similar_issues"
	StepMatchingSolutions     Step = "matching_solutions"
	StepSolutionPresentation  Step = "solution_presentation"
	StepSolutionTesting       Step = "solution_testing"
	StepSolutionFeedback      Step = "solution_feedback"
	StepAISolutionGeneration  Step = "ai_solution_generation"
	StepAISolutionTesting     Step = "ai_solution_testing"
	StepTechnicianAssignment  Step = "technician_assignment"
	StepCompleted             Step = "completed"
)

// ErrIllegalTransition means a transition would leave the graph.
var ErrIllegalTransition = errors.New("illegal step transition")

var graph = map[Step][]Step{
	StepInitial:               {StepApplianceRecognition},
	StepApplianceRecognition:  {StepApplianceSelection},
	StepApplianceSelection:    {StepApplianceSelection, StepCheckingOpenIssues},
	StepCheckingOpenIssues:    {StepOpenIssuesDisplay, StepFollowUpQuestions},
	StepOpenIssuesDisplay:     {StepUserConfirmation},
	StepUserConfirmation:      {StepUserConfirmation, StepFollowUpQuestions, StepSolutionPresentation},
	StepFollowUpQuestions:     {StepFollowUpQuestions, StepCheckingSimilarIssues},
	StepCheckingSimilarIssues: {StepSolutionPresentation, StepMatchingSolutions},
	StepMatchingSolutions:     {StepSolutionPresentation, StepAISolutionGeneration},
	StepAISolutionGeneration:  {StepSolutionPresentation},
	StepSolutionPresentation:  {StepSolutionTesting, StepTechnicianAssignment},
	StepSolutionTesting:       {StepSolutionTesting, StepSolutionFeedback, StepTechnicianAssignment},
	StepSolutionFeedback: {
		StepCompleted, StepSolutionPresentation, StepCheckingSimilarIssues, StepMatchingSolutions,
		StepAISolutionGeneration, StepAISolutionTesting, StepTechnicianAssignment,
	},
	StepAISolutionTesting:    {StepCompleted},
	StepTechnicianAssignment: {StepTechnicianAssignment, StepCompleted},
	StepCompleted:            nil,
}

// Steps returns every step in graph order.
func Steps() []Step {
	return []Step{
		StepInitial, StepApplianceRecognition, StepApplianceSelection, StepCheckingOpenIssues,
		StepOpenIssuesDisplay, StepUserConfirmation, StepFollowUpQuestions, StepCheckingSimilarIssues,
		StepMatchingSolutions, StepSolutionPresentation, StepSolutionTesting, StepSolutionFeedback,
		StepAISolutionGeneration, StepAISolutionTesting, StepTechnicianAssignment, StepCompleted,
	}
}

// Valid reports whether s is a known step.
func (s Step) Valid() bool {
	_, ok := graph[s]
	return ok
}

// Terminal reports whether no step follows s.
func (s Step) Terminal() bool {
	return s == StepCompleted
}

// CanTransition reports whether to follows from directly.
func CanTransition(from, to Step) bool {
	for _, next := range graph[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidWalk checks that history starts at initial and only follows edges.
func ValidWalk(history []Step) error {
	if len(history) == 0 {
		return errors.New("empty history")
	}
	if history[0] != StepInitial {
		return fmt.Errorf("history starts at %q", history[0])
	}
	for i := 1; i < len(history); i++ {
		if !CanTransition(history[i-1], history[i]) {
			return fmt.Errorf("%w: %s -> %s at %d", ErrIllegalTransition, history[i-1], history[i], i)
		}
	}
	return nil
}

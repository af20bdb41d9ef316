// Package ai is the capability boundary to the language-model backend.
//
// The pipeline asks five narrow questions (rank, diagnose, extract, enhance,
// categorize) through Adapter. Every call is a single stateless request;
// failures surface as ErrUnavailable and callers take their degraded path.
package ai

import (
	"context"
	"errors"
	"strings"
)

// ErrUnavailable means the backend timed out, failed or returned garbage.
var ErrUnavailable = errors.New("ai adapter unavailable")

// Candidate is an item to rank. Text must not identify a tenant.
type Candidate struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// EquipmentSummary describes the equipment a question is about.
type EquipmentSummary struct {
	Type         string `json:"type"`
	Manufacturer string `json:"manufacturer,omitempty"`
	Model        string `json:"model,omitempty"`
	Category     string `json:"category,omitempty"`
}

// String renders the summary for prompts, e.g. "oven, Rational iCombi Pro".
func (e EquipmentSummary) String() string {
	name := strings.TrimSpace(e.Manufacturer + " " + e.Model)
	switch {
	case e.Type == "":
		return name
	case name == "":
		return e.Type
	default:
		return e.Type + ", " + name
	}
}

// Diagnosis is the backend's answer to GenerateDiagnosis.
type Diagnosis struct {
	PossibleCauses     []string `json:"possible_causes"`
	SuggestedSolutions []string `json:"suggested_solutions"`
	EstimatedCost      string   `json:"estimated_cost"`
	PartsNeeded        []string `json:"parts_needed"`
	Confidence         int      `json:"diagnosis_confidence"`
}

// Adapter is the set of questions the pipeline may ask the backend.
type Adapter interface {
	// RankSimilarItems returns the ids of candidates similar to query, best first.
	RankSimilarItems(ctx context.Context, query string, candidates []Candidate) ([]string, error)
	GenerateDiagnosis(ctx context.Context, description string, eq EquipmentSummary) (*Diagnosis, error)
	// ExtractEquipmentType returns a short equipment phrase, or "" if none.
	ExtractEquipmentType(ctx context.Context, text string) (string, error)
	EnhanceDescription(ctx context.Context, text string, eq EquipmentSummary) (string, error)
	// Categorize returns one to three labels from the category vocabulary.
	Categorize(ctx context.Context, description, equipmentType string) ([]string, error)
}

// Unavailable is the Adapter for deployments without a backend. Every call
// fails immediately with ErrUnavailable.
type Unavailable struct{}

var _ Adapter = Unavailable{}

func (Unavailable) RankSimilarItems(context.Context, string, []Candidate) ([]string, error) {
	return nil, ErrUnavailable
}

func (Unavailable) GenerateDiagnosis(context.Context, string, EquipmentSummary) (*Diagnosis, error) {
	return nil, ErrUnavailable
}

func (Unavailable) ExtractEquipmentType(context.Context, string) (string, error) {
	return "", ErrUnavailable
}

func (Unavailable) EnhanceDescription(context.Context, string, EquipmentSummary) (string, error) {
	return "", ErrUnavailable
}

func (Unavailable) Categorize(context.Context, string, string) ([]string, error) {
	return nil, ErrUnavailable
}

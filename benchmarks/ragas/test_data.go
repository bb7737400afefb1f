// ABOUTME: Test scenario data structures for RAGAS benchmarks
// ABOUTME: Defines the built-in article corpus, conversation turns and ground truth for each test

package ragas

import (
	"fmt"

	"github.com/harper/ragchat/internal/models"
)

// TestScenario represents a complete RAGAS benchmark test
type TestScenario struct {
	ID          string
	Name        string
	Description string
	Turns       []ConversationTurn
	GroundTruth GroundTruth
}

// ConversationTurn represents a single question in a test conversation
type ConversationTurn struct {
	TurnNumber  int
	UserMessage string
	Attachment  *AttachmentSetup // Optional file sent with the question
}

// AttachmentSetup is an inline attachment for a turn
type AttachmentSetup struct {
	Kind     models.AttachmentKind
	Filename string
	Content  string
}

// GroundTruth defines expected outcomes for RAGAS evaluation
type GroundTruth struct {
	// Expected response for final query turn
	FinalQueryTurn      int
	ExpectedInResponse  []string // Strings that MUST appear in response
	ForbiddenInResponse []string // Strings that MUST NOT appear in response

	// Context retrieval expectations
	ExpectedContextItems []string // Text the resolved context or transcript should contain
}

// TestResult represents the outcome of a benchmark test
type TestResult struct {
	TestID             string         `json:"test_id"`
	TestName           string         `json:"test_name"`
	FaithfulnessScore  float64        `json:"faithfulness_score"`
	ContextRecallScore float64        `json:"context_recall_score"`
	OverallScore       float64        `json:"overall_score"`
	Status             string         `json:"status"` // "PASS" or "FAIL"
	Details            map[string]any `json:"details,omitempty"`
	ErrorMessage       string         `json:"error_message,omitempty"`
}

// refusals mark an answer that ignored the retrieved context
var refusals = []string{"I don't know", "no information"}

// BenchmarkCorpus is the small article set every scenario is answered from
func BenchmarkCorpus() []models.Document {
	return []models.Document{
		{
			Title:  "Helios Semiconductor opens Arizona fab",
			Source: "https://news.example.com/helios-fab",
			Text: "Helios Semiconductor opened a $12 billion chip fabrication plant in Phoenix, Arizona on Tuesday. " +
				"Chief executive Dana Whitfield said the plant will produce 3-nanometer processors for data centers " +
				"and employ about 2,000 people once it reaches full output next year.",
		},
		{
			Title:  "Voltra Motors bets on solid-state batteries",
			Source: "https://news.example.com/voltra-batteries",
			Text: "Voltra Motors will put solid-state batteries into its electric vehicles and delivery vans starting in 2027. " +
				"The company says the cells charge to 80 percent in twelve minutes and weigh a third less " +
				"than the lithium-ion packs they replace.",
		},
		{
			Title:  "Nordgrid expands grid storage in Texas",
			Source: "https://news.example.com/nordgrid-storage",
			Text: "Utility operator Nordgrid is building 900 megawatt-hours of grid storage outside Austin. " +
				"The iron-air cells can discharge for up to 100 hours, smoothing out wind power during " +
				"calm stretches in the Texas summer.",
		},
		{
			Title:  "Orion Foods recalls frozen meals",
			Source: "https://news.example.com/orion-recall",
			Text: "Orion Foods recalled 40,000 cases of frozen lasagna after customers reported plastic " +
				"fragments. The recall covers meals sold in nine states with best-by dates in March.",
		},
		{
			Title:  "Central bank holds rates steady",
			Source: "https://news.example.com/rates",
			Text: "The central bank held its benchmark interest rate at 4.25 percent, citing cooling inflation " +
				"and a labor market that has stayed resilient through the spring.",
		},
	}
}

const salesCSV = `region,quarter,revenue
West,Q1,420000
East,Q1,310000
South,Q1,150000
West,Q2,455000
East,Q2,298000
South,Q2,171000
`

// GetTestRetrieval returns the single-article retrieval scenario
func GetTestRetrieval() TestScenario {
	return TestScenario{
		ID:          "retrieval",
		Name:        "Single Article Retrieval",
		Description: "Answers a factual question found in one article",
		Turns: []ConversationTurn{
			{TurnNumber: 1, UserMessage: "Which company opened a chip plant in Arizona?"},
		},
		GroundTruth: GroundTruth{
			FinalQueryTurn:       1,
			ExpectedInResponse:   []string{"Helios"},
			ForbiddenInResponse:  refusals,
			ExpectedContextItems: []string{"Phoenix, Arizona", "Helios Semiconductor"},
		},
	}
}

// GetTestDiversity returns the multi-article scenario that needs diverse retrieval
func GetTestDiversity() TestScenario {
	return TestScenario{
		ID:          "diversity",
		Name:        "Multi Article Retrieval (MMR)",
		Description: "Answer needs two different articles in the context, not two chunks of one",
		Turns: []ConversationTurn{
			{TurnNumber: 1, UserMessage: "What is new in battery technology for vehicles and for grid storage?"},
		},
		GroundTruth: GroundTruth{
			FinalQueryTurn:       1,
			ExpectedInResponse:   []string{"Voltra", "Nordgrid"},
			ForbiddenInResponse:  refusals,
			ExpectedContextItems: []string{"solid-state", "iron-air"},
		},
	}
}

// GetTestFollowUp returns the scenario whose last question only makes sense with history
func GetTestFollowUp() TestScenario {
	return TestScenario{
		ID:          "followup",
		Name:        "Follow-up Question (Session Memory)",
		Description: "Second question refers back to the first through the chat history",
		Turns: []ConversationTurn{
			{TurnNumber: 1, UserMessage: "Who runs Helios Semiconductor?"},
			{TurnNumber: 2, UserMessage: "Where did that company open its new plant?"},
		},
		GroundTruth: GroundTruth{
			FinalQueryTurn:       2,
			ExpectedInResponse:   []string{"Arizona"},
			ForbiddenInResponse:  refusals,
			ExpectedContextItems: []string{"Who runs Helios Semiconductor?", "Phoenix"},
		},
	}
}

// GetTestCSV returns the tabular attachment scenario
func GetTestCSV() TestScenario {
	return TestScenario{
		ID:          "csv",
		Name:        "CSV Attachment",
		Description: "Answers from an attached CSV profile instead of the index",
		Turns: []ConversationTurn{
			{
				TurnNumber:  1,
				UserMessage: "Which region had the highest revenue?",
				Attachment:  &AttachmentSetup{Kind: models.AttachmentCSV, Filename: "sales.csv", Content: salesCSV},
			},
		},
		GroundTruth: GroundTruth{
			FinalQueryTurn:       1,
			ExpectedInResponse:   []string{"West"},
			ForbiddenInResponse:  refusals,
			ExpectedContextItems: []string{"region", "revenue", "max=455000"},
		},
	}
}

// GetAllTests returns all benchmark test scenarios
func GetAllTests() []TestScenario {
	return []TestScenario{
		GetTestRetrieval(),
		GetTestDiversity(),
		GetTestFollowUp(),
		GetTestCSV(),
	}
}

// GetTest returns the scenario with the given id
func GetTest(id string) (TestScenario, error) {
	for _, s := range GetAllTests() {
		if s.ID == id {
			return s, nil
		}
	}
	return TestScenario{}, fmt.Errorf("unknown test ID: %s (valid options: retrieval, diversity, followup, csv)", id)
}

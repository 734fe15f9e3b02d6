package models

import "fmt"

// Action binds a user-facing button to the instruction sent to the model.
type Action struct {
	Key         string `json:"key"`
	Label       string `json:"label"`
	Instruction string `json:"instruction"`
	Heading     string `json:"heading"`
	ItemLabel   string `json:"item_label"`
}

// Actions lists the fixed instructions offered once a document is uploaded.
var Actions = []Action{
	{
		Key:         "generate-ideas",
		Label:       "Generate Ideas for User Stories",
		Instruction: "Generate ideas for user stories.",
		Heading:     "User Story Ideas:",
		ItemLabel:   "Idea",
	},
	{
		Key:         "explain-benefits",
		Label:       "Explain Customer Benefits",
		Instruction: "What are the main benefits of this project for the customer?",
		Heading:     "Customer Benefits:",
		ItemLabel:   "Response",
	},
	{
		Key:         "estimate-effort",
		Label:       "Estimate Effort and Identify Risks",
		Instruction: "What are the main tasks required to complete this project?",
		Heading:     "Effort Estimate and Risks:",
		ItemLabel:   "Response",
	},
	{
		Key:         "create-plan",
		Label:       "Create Project Plan",
		Instruction: "Create a project plan based on the document's content.",
		Heading:     "Project Plan:",
		ItemLabel:   "Response",
	},
}

// LookupAction finds a fixed action by key.
func LookupAction(key string) (Action, bool) {
	for _, a := range Actions {
		if a.Key == key {
			return a, true
		}
	}
	return Action{}, false
}

// CustomAction wraps a free-form prompt typed by the user.
func CustomAction(prompt string) Action {
	return Action{
		Key:         "custom",
		Label:       "Generate Response",
		Instruction: prompt,
		Heading:     "Responses:",
		ItemLabel:   "Response",
	}
}

// ItemTitle numbers a response for display, starting at 1.
func (a Action) ItemTitle(index int) string {
	return fmt.Sprintf("%s %d:", a.ItemLabel, index+1)
}

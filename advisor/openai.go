// Copyright 2026 Fredrick Odondi
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const defaultModel = openai.GPT4oMini

const systemPrompt = `You negotiate schedule conflicts on behalf of one working group.
Given the conflict and the other parties' positions, respond with ONLY a JSON object:
{"action": "reschedule"|"cancel"|"yield"|"hold", "new_time": "RFC3339 or empty", "rationale": "...", "confidence": 0.0-1.0}
Prefer the least disruptive concrete action. "yield" means you accept the other parties' proposal.`

// OpenAIAdvisor is the production Advisor backed by the OpenAI chat
// completion API.
type OpenAIAdvisor struct {
	client *openai.Client
	model  string
}

func NewOpenAIAdvisor(apiKey, model string) *OpenAIAdvisor {
	if model == "" {
		model = defaultModel
	}
	return &OpenAIAdvisor{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

type proposalPayload struct {
	Action     string  `json:"action"`
	NewTime    string  `json:"new_time"`
	Rationale  string  `json:"rationale"`
	Confidence float64 `json:"confidence"`
}

func (a *OpenAIAdvisor) Propose(ctx context.Context, req Request) (Proposal, error) {
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       a.model,
		Temperature: 0.2,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildPrompt(req),
			},
		},
	})
	if err != nil {
		return Proposal{}, &Error{Party: req.Party, Err: err}
	}
	if len(resp.Choices) == 0 {
		return Proposal{}, &Error{Party: req.Party, Err: fmt.Errorf("no choices in response")}
	}
	return parseProposal(req.Party, resp.Choices[0].Message.Content)
}

func buildPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You represent party %q.\n", req.Party)
	fmt.Fprintf(&b, "Conflict (severity %s): %s\n", req.Severity, req.Description)
	fmt.Fprintf(&b, "Your position: %s\n", req.Position.Statement)
	for _, pos := range req.OtherPositions {
		fmt.Fprintf(&b, "Position of %s: %s\n", pos.Party, pos.Statement)
	}
	if req.Round > 1 {
		fmt.Fprintf(&b, "Round %d. Latest proposals from the other parties:\n", req.Round)
		for _, p := range req.OtherProposals {
			newTime := ""
			if p.NewStart != nil {
				newTime = p.NewStart.UTC().Format(time.RFC3339)
			}
			fmt.Fprintf(&b, "- %s proposes %s %s: %s\n", p.Party, p.Action, newTime, p.Rationale)
		}
	}
	if len(req.Constraints) > 0 {
		b.WriteString("Hard constraints:\n")
		for _, c := range req.Constraints {
			fmt.Fprintf(&b, "- %s\n", c)
		}
	}
	return b.String()
}

func parseProposal(party, content string) (Proposal, error) {
	content = strings.TrimSpace(content)
	// Models occasionally wrap the object in a markdown fence
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var payload proposalPayload
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return Proposal{}, &Error{
			Party: party,
			Err:   fmt.Errorf("unparseable proposal: %w", err),
		}
	}
	action := Action(strings.ToLower(strings.TrimSpace(payload.Action)))
	switch action {
	case ActionReschedule, ActionCancel, ActionYield, ActionHold:
	default:
		return Proposal{}, &Error{
			Party: party,
			Err:   fmt.Errorf("unknown proposed action %q", payload.Action),
		}
	}
	p := Proposal{
		Party:      party,
		Action:     action,
		Rationale:  payload.Rationale,
		Confidence: payload.Confidence,
	}
	if action == ActionReschedule {
		if payload.NewTime == "" {
			return Proposal{}, &Error{
				Party: party,
				Err:   fmt.Errorf("reschedule proposal missing new_time"),
			}
		}
		t, err := time.Parse(time.RFC3339, payload.NewTime)
		if err != nil {
			return Proposal{}, &Error{
				Party: party,
				Err:   fmt.Errorf("invalid new_time %q: %w", payload.NewTime, err),
			}
		}
		t = t.UTC()
		p.NewStart = &t
	}
	return p, nil
}

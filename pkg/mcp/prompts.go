package mcp

import "encoding/json"

type promptEntry struct {
	desc     promptDescription
	messages []promptMessage
}

func buildPrompts() []promptEntry {
	return []promptEntry{
		{
			desc: promptDescription{
				Name:        "talk_to_pio",
				Title:       "Talk to Pio",
				Description: "Persona for conversational control of the bioreactor fleet.",
			},
			messages: []promptMessage{
				{
					Role: "user",
					Content: contentBlock{
						Type: "text",
						Text: talkToPioText,
					},
				},
			},
		},
	}
}

func (s *Server) handlePromptsList() promptsListResult {
	descs := make([]promptDescription, 0, len(s.prompts))
	for _, p := range s.prompts {
		descs = append(descs, p.desc)
	}
	return promptsListResult{Prompts: descs}
}

func (s *Server) handlePromptsGet(params json.RawMessage) (any, *rpcError) {
	var p promptsGetParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: "invalid prompts/get params: " + err.Error()}
	}

	for _, entry := range s.prompts {
		if entry.desc.Name != p.Name {
			continue
		}
		return promptsGetResult{
			Description: entry.desc.Description,
			Messages:    entry.messages,
		}, nil
	}
	return nil, &rpcError{Code: codeInvalidParams, Message: "unknown prompt: " + p.Name}
}

const talkToPioText = `You are Pio, the operator's assistant for a Pioreactor bioreactor cluster.

Ground every answer in the live system: read pioreactor://overview before
acting, and pioreactor://job_schemas before changing any job setting so you
know the valid parameter names and ranges. Address every operation with the
exact worker, job, and experiment names from the listings; never invent
names.

Confirm with the operator before starting or stopping jobs. Report backend
failures plainly, including the error code, and say whether retrying makes
sense. When a request is ambiguous about which worker or experiment it
targets, ask instead of guessing.`

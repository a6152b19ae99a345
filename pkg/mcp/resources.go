package mcp

import (
	"context"
	"encoding/json"
	"fmt"
)

// Resource URIs exposed by the bridge.
const (
	uriExperiments = "pioreactor://experiments"
	uriWorkers     = "pioreactor://workers"
	uriJobSchemas  = "pioreactor://job_schemas"
	uriOverview    = "pioreactor://overview"
	uriSystemGuide = "pioreactor://system_guide"
)

const (
	mimeJSON     = "application/json"
	mimeMarkdown = "text/markdown"
)

type resourceEntry struct {
	desc resourceDescription
	read func(ctx context.Context) (string, error)
}

// buildResources assembles the resource catalog. Listings are fetched fresh
// on every read; failed sub-fetches appear as failure markers inside the
// snapshot JSON rather than aborting the read.
func (s *Server) buildResources() []resourceEntry {
	return []resourceEntry{
		{
			desc: resourceDescription{
				URI:         uriExperiments,
				Name:        "Experiments",
				Description: "Experiments known to the cluster, in backend order.",
				MIMEType:    mimeJSON,
			},
			read: func(ctx context.Context) (string, error) {
				return encodeSnapshot(s.aggregator.Experiments(ctx))
			},
		},
		{
			desc: resourceDescription{
				URI:         uriWorkers,
				Name:        "Workers",
				Description: "Worker units in the cluster, filtered by the configured unit glob.",
				MIMEType:    mimeJSON,
			},
			read: func(ctx context.Context) (string, error) {
				return encodeSnapshot(s.aggregator.Workers(ctx))
			},
		},
		{
			desc: resourceDescription{
				URI:         uriJobSchemas,
				Name:        "Job schemas",
				Description: "Settings, types, and ranges for the jobs the bridge can drive. Local data; never hits the backend.",
				MIMEType:    mimeJSON,
			},
			read: func(_ context.Context) (string, error) {
				return encodeSnapshot(s.aggregator.JobSchemas())
			},
		},
		{
			desc: resourceDescription{
				URI:         uriOverview,
				Name:        "System overview",
				Description: "Combined experiments, workers, and job schemas in one fetch. Sub-fetches fail independently.",
				MIMEType:    mimeJSON,
			},
			read: func(ctx context.Context) (string, error) {
				return encodeSnapshot(s.aggregator.Overview(ctx))
			},
		},
		{
			desc: resourceDescription{
				URI:         uriSystemGuide,
				Name:        "System guide",
				Description: "How to drive the bioreactor fleet through this bridge: tools, resources, and conventions.",
				MIMEType:    mimeMarkdown,
			},
			read: func(_ context.Context) (string, error) {
				return systemGuideText, nil
			},
		},
	}
}

func (s *Server) handleResourcesList() resourcesListResult {
	descs := make([]resourceDescription, 0, len(s.resources))
	for _, r := range s.resources {
		descs = append(descs, r.desc)
	}
	return resourcesListResult{Resources: descs}
}

func (s *Server) handleResourcesRead(ctx context.Context, params json.RawMessage) (any, *rpcError) {
	var p resourcesReadParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: "invalid resources/read params: " + err.Error()}
	}

	for _, r := range s.resources {
		if r.desc.URI != p.URI {
			continue
		}
		text, err := r.read(ctx)
		if err != nil {
			return nil, &rpcError{Code: codeInternalError, Message: "reading resource: " + err.Error()}
		}
		return resourcesReadResult{
			Contents: []resourceContent{{URI: r.desc.URI, MIMEType: r.desc.MIMEType, Text: text}},
		}, nil
	}
	return nil, &rpcError{Code: codeInvalidParams, Message: "unknown resource: " + p.URI}
}

func encodeSnapshot(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding snapshot: %w", err)
	}
	return string(data), nil
}

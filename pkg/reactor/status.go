package reactor

import (
	"context"
	"encoding/json"

	"github.com/core-tools/hsu-reactor/pkg/errors"
)

// StatusSummary provides a high-level overview of the running reactor
type StatusSummary struct {
	State       ReactorState    `json:"state"`
	Port        int             `json:"port"`
	MetricsAddr string          `json:"metrics_addr,omitempty"`
	Actions     []ActionSummary `json:"actions"`
}

// ActionSummary provides a summary of one configured action
type ActionSummary struct {
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	Target  string `json:"target,omitempty"`
	Timeout string `json:"timeout,omitempty"`
}

func (r *Reactor) GetStatusSummary() StatusSummary {
	summary := StatusSummary{
		State:   r.GetState(),
		Port:    r.options.Port,
		Actions: make([]ActionSummary, 0),
	}
	if r.metricsAddr != nil {
		summary.MetricsAddr = r.metricsAddr.String()
	}

	for _, name := range r.dispatcher.Names() {
		action, _ := r.dispatcher.Lookup(name)

		actionSummary := ActionSummary{
			Name: action.Name,
			Kind: string(action.Kind),
		}
		if action.Timeout > 0 {
			actionSummary.Timeout = action.Timeout.String()
		}

		// Add type-specific information
		switch {
		case action.Unit != "":
			actionSummary.Target = action.Unit
		case action.Log != nil:
			actionSummary.Target = action.Log.Path
		case action.Metric != nil:
			actionSummary.Target = action.Metric.Address()
		}

		summary.Actions = append(summary.Actions, actionSummary)
	}

	return summary
}

// Status renders the status summary as JSON
func (r *Reactor) Status(ctx context.Context) (string, error) {
	data, err := json.Marshal(r.GetStatusSummary())
	if err != nil {
		return "", errors.NewInternalError("failed to encode status", err)
	}
	return string(data), nil
}

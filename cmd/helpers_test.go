package main

import (
	"encoding/json"

	app "github.com/okian/worthrank/internal/app"
	"github.com/okian/worthrank/pkg/metrics"
)

func appSubmit(score float64) app.SubmitInput {
	return app.SubmitInput{
		FormData:  json.RawMessage(`{"city":"tier1"}`),
		Score:     score,
		ClientKey: "198.51.100.20",
	}
}

// gaugeValue reads a gauge from the service registry, or -1 when absent.
func gaugeValue(name string) float64 {
	families, err := metrics.GetRegistry().Gather()
	if err != nil {
		return -1
	}
	for _, f := range families {
		if f.GetName() == name && len(f.GetMetric()) > 0 {
			return f.GetMetric()[0].GetGauge().GetValue()
		}
	}
	return -1
}

package main

import (
	"testing"

	json "github.com/KevinWang15/go-json5"
)

func parseTable(t *testing.T, src string) map[string]interface{} {
	t.Helper()
	var table map[string]interface{}
	if err := json.Unmarshal([]byte(src), &table); err != nil {
		t.Fatalf("bad test fixture: %v", err)
	}
	return table
}

func TestValidateFillsDefaults(t *testing.T) {
	table := parseTable(t, `{
		vrot_mps: 1500.0,
		linewidth_mps: 350.0,
		velocity_span_mps: 8000.0,
	}`)
	var p runParams
	msg, ok := validateJSONFileAndFillParams(table, &p)
	if !ok {
		t.Fatalf("minimal parameter file rejected: %s", msg)
	}
	if p.VrotMps != 1500.0 || p.LinewidthMps != 350.0 || p.VelocitySpanMps != 8000.0 {
		t.Fatalf("required fields not filled: %+v", p)
	}
	if p.NSpectra != 16 || p.NChannels != 201 || p.Method != "both" {
		t.Fatalf("defaults not applied: %+v", p)
	}
	if p.Seed != 42 || p.ResampleFactor != 1.0 {
		t.Fatalf("defaults not applied: %+v", p)
	}
}

func TestValidateRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		src  string
	}{
		{"missing vrot", `{linewidth_mps: 350.0, velocity_span_mps: 8000.0}`},
		{"negative vrot", `{vrot_mps: -1.0, linewidth_mps: 350.0, velocity_span_mps: 8000.0}`},
		{"vrot wrong type", `{vrot_mps: "fast", linewidth_mps: 350.0, velocity_span_mps: 8000.0}`},
		{"missing linewidth", `{vrot_mps: 1500.0, velocity_span_mps: 8000.0}`},
		{"zero span", `{vrot_mps: 1500.0, linewidth_mps: 350.0, velocity_span_mps: 0.0}`},
		{"bad method", `{vrot_mps: 1500.0, linewidth_mps: 350.0, velocity_span_mps: 8000.0, method: "mcmc"}`},
		{"too few channels", `{vrot_mps: 1500.0, linewidth_mps: 350.0, velocity_span_mps: 8000.0, n_channels: 4}`},
		{"title wrong type", `{title: 7, vrot_mps: 1500.0, linewidth_mps: 350.0, velocity_span_mps: 8000.0}`},
	}
	for _, tc := range cases {
		table := parseTable(t, tc.src)
		var p runParams
		if msg, ok := validateJSONFileAndFillParams(table, &p); ok {
			t.Errorf("%s: accepted (%s)", tc.name, msg)
		}
	}
}

func TestSynthesizeShapes(t *testing.T) {
	p := runParams{
		VrotMps:         1500.0,
		VlsrMps:         100.0,
		LinewidthMps:    350.0,
		PeakIntensity:   10.0,
		NSpectra:        8,
		NChannels:       101,
		VelocitySpanMps: 8000.0,
		Seed:            1,
	}
	spectra, theta, velax := synthesize(p)
	if len(spectra) != 8 || len(theta) != 8 || len(velax) != 101 {
		t.Fatalf("shapes: %d spectra, %d angles, %d channels", len(spectra), len(theta), len(velax))
	}
	if velax[0] != -4000.0 || velax[len(velax)-1] != 4000.0 {
		t.Fatalf("velocity axis span: [%f, %f]", velax[0], velax[len(velax)-1])
	}
	for i, row := range spectra {
		if len(row) != 101 {
			t.Fatalf("spectrum %d has %d channels", i, len(row))
		}
	}
}

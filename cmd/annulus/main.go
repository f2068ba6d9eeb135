// Command annulus demonstrates the rotation-velocity estimators on a
// synthetic annulus described by a JSON5 parameter file: Gaussian line
// profiles centered at vlsr + vrot*cos(theta) with optional noise, run
// through both the width-minimization and Gaussian-Process estimators.
package main

import (
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	json "github.com/KevinWang15/go-json5"

	"github.com/disk-kinematics/annulus"
)

type runParams struct {
	Title           string
	VrotMps         float64
	VlsrMps         float64
	LinewidthMps    float64
	PeakIntensity   float64
	NoiseRms        float64
	NSpectra        int
	NChannels       int
	VelocitySpanMps float64
	Seed            int64
	Method          string // "width", "gp" or "both"
	ResampleFactor  float64
	GPWalkers       int
	GPBurnin        int
	GPSteps         int
	OutputFolder    string
}

func main() {
	programStart := time.Now()

	args := os.Args
	if len(args) != 2 {
		fmt.Println("\n\tWrong number of arguments.\n\tUsage: annulus <parameter-file>")
		os.Exit(1)
	}
	path := args[1]

	// Read the Json5 (or Json) parameter file
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Println(fmt.Errorf("\n\tAttempt to read input file %q failed: %w", path, err))
		os.Exit(2)
	}

	// Parse json(5) data into a generic container
	var jsonTable map[string]interface{}
	err = json.Unmarshal(data, &jsonTable)
	if err != nil {
		fmt.Println(fmt.Errorf("\n\tFormat error in file %q: %w", path, err))
		os.Exit(3)
	}

	var params runParams
	msg, ok := validateJSONFileAndFillParams(jsonTable, &params)
	if !ok {
		fmt.Println(msg)
		os.Exit(4)
	}

	if params.OutputFolder != "" {
		if err := os.MkdirAll(params.OutputFolder, 0o755); err != nil {
			fmt.Println(fmt.Errorf("\n\tCould not create output folder %q: %w", params.OutputFolder, err))
			os.Exit(5)
		}
	}

	if params.Title != "" {
		fmt.Printf("\n%s\n", params.Title)
	}
	fmt.Printf("\nSynthesizing %d spectra of %d channels, vrot = %.1f m/s\n",
		params.NSpectra, params.NChannels, params.VrotMps)

	spectra, theta, velax := synthesize(params)

	ens, err := annulus.New(spectra, theta, velax)
	if err != nil {
		fmt.Println(fmt.Errorf("\n\tCould not build the spectrum ensemble: %w", err))
		os.Exit(6)
	}

	if params.OutputFolder != "" {
		if err := ens.PlotSpectra(filepath.Join(params.OutputFolder, "spectra.png")); err != nil {
			fmt.Println(fmt.Errorf("\n\tCould not save spectra plot: %w", err))
		}
	}

	vrotGuess, vlsrGuess, err := ens.GuessParameters(true, true, annulus.CentroidQuadratic)
	if err != nil {
		fmt.Println(fmt.Errorf("\n\tParameter guess failed: %w", err))
		os.Exit(7)
	}
	fmt.Printf("Quick guess: vrot = %.1f m/s, vlsr = %.1f m/s\n", vrotGuess, vlsrGuess)

	if params.Method == "width" || params.Method == "both" {
		start := time.Now()
		vrot := ens.VrotFromWidth(vrotGuess, params.ResampleFactor)
		if math.IsNaN(vrot) {
			fmt.Println("Width minimization did not converge")
		} else {
			fmt.Printf("Width minimization: vrot = %.1f m/s  (%.2fs)\n",
				vrot, time.Since(start).Seconds())
			if params.OutputFolder != "" {
				riverPath := filepath.Join(params.OutputFolder, "river.png")
				if err := ens.PlotRiver(vrot, riverPath); err != nil {
					fmt.Println(fmt.Errorf("\n\tCould not save river plot: %w", err))
				}
			}
		}
	}

	if params.Method == "gp" || params.Method == "both" {
		start := time.Now()
		cfg := annulus.DefaultGPConfig()
		cfg.Vref = vrotGuess
		cfg.Walkers = params.GPWalkers
		cfg.Burnin = params.GPBurnin
		cfg.Steps = params.GPSteps
		cfg.Seed = params.Seed
		if params.OutputFolder != "" {
			cfg.WalkerPlots = filepath.Join(params.OutputFolder, "walkers")
		}
		pct, err := ens.VrotFromGP(cfg)
		if err != nil {
			fmt.Println(fmt.Errorf("\n\tGP estimate failed: %w", err))
			os.Exit(8)
		}
		fmt.Printf("GP posterior: vrot = %.1f m/s  (+%.1f / -%.1f)  (%.2fs)\n",
			pct[0][1], pct[0][2]-pct[0][1], pct[0][1]-pct[0][0],
			time.Since(start).Seconds())
	}

	fmt.Printf("\nDone in %.2f seconds\n", time.Since(programStart).Seconds())
}

// synthesize builds the synthetic observation: one Gaussian line per angle,
// centered at vlsr + vrot*cos(theta), with optional white noise.
func synthesize(p runParams) (spectra [][]float64, theta, velax []float64) {
	rng := rand.New(rand.NewSource(p.Seed))

	velax = make([]float64, p.NChannels)
	half := p.VelocitySpanMps / 2.0
	dv := p.VelocitySpanMps / float64(p.NChannels-1)
	for j := range velax {
		velax[j] = -half + float64(j)*dv
	}

	theta = make([]float64, p.NSpectra)
	spectra = make([][]float64, p.NSpectra)
	for i := range theta {
		theta[i] = 2.0 * math.Pi * float64(i) / float64(p.NSpectra)
		center := p.VlsrMps + p.VrotMps*math.Cos(theta[i])
		row := make([]float64, p.NChannels)
		for j, v := range velax {
			row[j] = annulus.Gaussian(v, center, p.LinewidthMps, p.PeakIntensity)
			if p.NoiseRms > 0 {
				row[j] += p.NoiseRms * rng.NormFloat64()
			}
		}
		spectra[i] = row
	}
	return spectra, theta, velax
}

func getLeafValue(jsonTable map[string]interface{}, path ...string) (interface{}, bool) {
	var cur interface{} = jsonTable
	for _, p := range path {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func floatField(jsonTable map[string]interface{}, name string, dst *float64, required bool) (string, bool) {
	v, ok := getLeafValue(jsonTable, name)
	if !ok {
		if required {
			return name + ": not found", false
		}
		return "", true
	}
	f, ok := v.(float64)
	if !ok {
		return name + ": is not a float64", false
	}
	*dst = f
	return "", true
}

func intField(jsonTable map[string]interface{}, name string, dst *int, required bool) (string, bool) {
	v, ok := getLeafValue(jsonTable, name)
	if !ok {
		if required {
			return name + ": not found", false
		}
		return "", true
	}
	f, ok := v.(float64)
	if !ok {
		return name + ": is not a float64", false
	}
	*dst = int(f)
	return "", true
}

func validateJSONFileAndFillParams(jsonTable map[string]interface{}, p *runParams) (string, bool) {
	msg := "No problem found in json file" // Initialize msg to presumed success.

	// Defaults for the optional fields.
	p.VlsrMps = 0.0
	p.PeakIntensity = 10.0
	p.NoiseRms = 0.0
	p.NSpectra = 16
	p.NChannels = 201
	p.Seed = 42
	p.Method = "both"
	p.ResampleFactor = 1.0
	p.GPWalkers = 64
	p.GPBurnin = 300
	p.GPSteps = 300

	title, ok := getLeafValue(jsonTable, "title")
	if ok {
		p.Title, ok = title.(string)
		if !ok {
			return "title: is not a string", false
		}
	}

	if m, ok := floatField(jsonTable, "vrot_mps", &p.VrotMps, true); !ok {
		return m, false
	}
	if p.VrotMps <= 0 {
		return "vrot_mps: must be positive", false
	}
	if m, ok := floatField(jsonTable, "vlsr_mps", &p.VlsrMps, false); !ok {
		return m, false
	}
	if m, ok := floatField(jsonTable, "linewidth_mps", &p.LinewidthMps, true); !ok {
		return m, false
	}
	if p.LinewidthMps <= 0 {
		return "linewidth_mps: must be positive", false
	}
	if m, ok := floatField(jsonTable, "velocity_span_mps", &p.VelocitySpanMps, true); !ok {
		return m, false
	}
	if p.VelocitySpanMps <= 0 {
		return "velocity_span_mps: must be positive", false
	}
	if m, ok := floatField(jsonTable, "peak_intensity", &p.PeakIntensity, false); !ok {
		return m, false
	}
	if m, ok := floatField(jsonTable, "noise_rms", &p.NoiseRms, false); !ok {
		return m, false
	}
	if m, ok := floatField(jsonTable, "resample_factor", &p.ResampleFactor, false); !ok {
		return m, false
	}
	if m, ok := intField(jsonTable, "n_spectra", &p.NSpectra, false); !ok {
		return m, false
	}
	if p.NSpectra < 1 {
		return "n_spectra: must be at least 1", false
	}
	if m, ok := intField(jsonTable, "n_channels", &p.NChannels, false); !ok {
		return m, false
	}
	if p.NChannels < 10 {
		return "n_channels: must be at least 10", false
	}
	if m, ok := intField(jsonTable, "gp_walkers", &p.GPWalkers, false); !ok {
		return m, false
	}
	if m, ok := intField(jsonTable, "gp_burnin", &p.GPBurnin, false); !ok {
		return m, false
	}
	if m, ok := intField(jsonTable, "gp_steps", &p.GPSteps, false); !ok {
		return m, false
	}

	var seed float64
	if m, ok := floatField(jsonTable, "seed", &seed, false); !ok {
		return m, false
	} else if seed != 0 {
		p.Seed = int64(seed)
	}

	method, ok := getLeafValue(jsonTable, "method")
	if ok {
		s, ok := method.(string)
		if !ok {
			return "method: is not a string", false
		}
		if s != "width" && s != "gp" && s != "both" {
			return "method: must be 'width', 'gp' or 'both'", false
		}
		p.Method = s
	}

	folder, ok := getLeafValue(jsonTable, "output_folder")
	if ok {
		p.OutputFolder, ok = folder.(string)
		if !ok {
			return "output_folder: is not a string", false
		}
	}

	return msg, true
}

/*
Copyright © 2018 the CarbSea authors.
This file is part of CarbSea.

CarbSea is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

CarbSea is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with CarbSea.  If not, see <http://www.gnu.org/licenses/>.
*/

package carbseautil

import (
	"fmt"
	"log"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/oceanmodel/carbsea"
	"github.com/oceanmodel/carbsea/science/airsea"
	"github.com/oceanmodel/carbsea/science/bio"
	"github.com/spf13/cobra"
)

// ScenarioToken is the part of the OutputFile and LogFile paths that is
// replaced by the scenario name when running scenarios.
const ScenarioToken = "[scenario]"

// A Scenario is a variation of the air-sea exchange settings to run the
// model with.
type Scenario struct {
	// Description is a free-form explanation of what the scenario
	// represents.
	Description string

	airsea.Parameters
}

// ReadScenarios reads scenario definitions from the TOML file at
// filename. Settings that a scenario doesn't specify are filled in
// from base.
func ReadScenarios(filename string, base airsea.Parameters) (map[string]Scenario, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("carbsea: opening scenario file: %v", err)
	}
	defer f.Close()

	var raw struct {
		Scenarios map[string]toml.Primitive
	}
	md, err := toml.DecodeReader(f, &raw)
	if err != nil {
		return nil, fmt.Errorf("carbsea: parsing scenario file %s: %v", filename, err)
	}
	if len(raw.Scenarios) == 0 {
		return nil, fmt.Errorf("carbsea: scenario file %s does not define any scenarios", filename)
	}

	scenarios := make(map[string]Scenario)
	for name, prim := range raw.Scenarios {
		s := Scenario{Parameters: base}
		if err := md.PrimitiveDecode(prim, &s); err != nil {
			return nil, fmt.Errorf("carbsea: parsing scenario %s: %v", name, err)
		}
		scenarios[name] = s
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("carbsea: unrecognized scenario settings: %v", undecoded)
	}
	return scenarios, nil
}

// RunScenarios runs the model to steady state once for each of the
// given scenarios, in scenario name order. The grid is created fresh
// for each scenario so that every run starts from the same initial
// tracer state. OutputFile and LogFile must contain ScenarioToken,
// which is replaced by the name of the scenario being run. The other
// arguments have the same meanings as in Run.
func RunScenarios(CobraCommand *cobra.Command, LogFile, OutputFile string, OutputAllLayers bool,
	OutputVariables map[string]string, OutputInterval float64, grid *carbsea.GridConfig,
	scenarios map[string]Scenario, mech *bio.Mechanism, NumIterations int, Timestep float64) error {

	if !strings.Contains(OutputFile, ScenarioToken) {
		return fmt.Errorf("carbsea: the OutputFile must contain the token '%s' when running scenarios", ScenarioToken)
	}

	names := make([]string, 0, len(scenarios))
	for name := range scenarios {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		s := scenarios[name]
		outputFile, err := checkOutputFile(strings.Replace(OutputFile, ScenarioToken, name, -1))
		if err != nil {
			return err
		}
		logFile := checkLogFile(strings.Replace(LogFile, ScenarioToken, name, -1), outputFile)

		log.Printf("Running scenario %s: %s\n", name, s.Description)
		err = Run(CobraCommand, logFile, outputFile, OutputAllLayers, OutputVariables,
			OutputInterval, grid, s.Parameters, nil, mech, "", true, NumIterations, Timestep)
		if err != nil {
			return fmt.Errorf("carbsea: scenario %s: %v", name, err)
		}
	}
	return nil
}

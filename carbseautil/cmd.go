/*
Copyright © 2017 the CarbSea authors.
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

// Package carbseautil provides the configuration and command-line
// interface of the CarbSea model.
package carbseautil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/lnashier/viper"
	"github.com/oceanmodel/carbsea"
	"github.com/oceanmodel/carbsea/science/bio"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	// Options are the configuration options available to CarbSea.
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "creategrid",
			usage: `
              creategrid specifies whether to create the model grid from the
              configuration file information before starting the simulation
              instead of reading a previously saved grid from GridDataFile.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags()},
		},
		{
			name: "biotic",
			usage: `
              biotic specifies whether to run with the export production
              mechanism turned on. If false, the tracers are only changed by
              air-sea gas exchange.`,
			shorthand:  "b",
			defaultVal: true,
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags(), scenarioCmd.Flags()},
		},
		{
			name: "GridDataFile",
			usage: `
              GridDataFile is the path to the location of the saved model grid
              and initial tracer state, or the location where it should be
              created by the grid command. It can contain environment variables.`,
			defaultVal: "${GOPATH}/src/github.com/oceanmodel/carbsea/cmd/carbsea/testdata/gridData.gob",
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags(), gridCmd.Flags()},
		},
		{
			name: "OutputFile",
			usage: `
              OutputFile is the path to the desired output NetCDF file location.
              It can contain environment variables. When running scenarios it
              must contain the token '[scenario]', which is replaced by the
              scenario name.`,
			defaultVal: "${GOPATH}/src/github.com/oceanmodel/carbsea/cmd/carbsea/testdata/output.nc",
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags(), scenarioCmd.Flags()},
		},
		{
			name: "LogFile",
			usage: `
              LogFile is the path to the desired logfile location. It can contain
              environment variables. If LogFile is left blank, the logfile will
              be saved in the same location as the OutputFile.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags(), scenarioCmd.Flags()},
		},
		{
			name: "OutputAllLayers",
			usage: `
              If OutputAllLayers is true, output data for all model layers.
              If false, only output the surface layer.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags(), scenarioCmd.Flags()},
		},
		{
			name: "OutputVariables",
			usage: `
              OutputVariables specifies which model variables should be included
              in the output file. It can include environment variables.`,
			defaultVal: map[string]string{
				"CO2Flux":   "CO2Flux",
				"PCO2Ocean": "PCO2Ocean",
			},
			flagsets: []*pflag.FlagSet{runCmd.PersistentFlags(), scenarioCmd.Flags()},
		},
		{
			name: "OutputInterval",
			usage: `
              OutputInterval is the simulation time [seconds] between output
              records. A record is also always written on the final iteration.
              If OutputInterval is 0, a record is written on every time step.`,
			defaultVal: 0.0,
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags(), scenarioCmd.Flags()},
		},
		{
			name: "NumIterations",
			usage: `
              NumIterations is the number of iterations to calculate. If < 1,
              convergence is automatically calculated.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{steadyCmd.Flags(), scenarioCmd.Flags()},
		},
		{
			name: "Timestep",
			usage: `
              Timestep is the simulation time step [seconds].`,
			defaultVal: 1800.0,
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags(), scenarioCmd.Flags()},
		},
		{
			name: "ForcingFile",
			usage: `
              ForcingFile is the path to a NetCDF file holding time series of
              the 10-meter wind speed ("U10") and the atmospheric CO₂ partial
              pressure ("pCO2atm"). If it is empty, the wind speed and
              atmospheric CO₂ are held constant at the values in the AirSea
              configuration. It can contain environment variables.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{steadyCmd.Flags()},
		},
		{
			name: "ScenarioFile",
			usage: `
              ScenarioFile is the path to a TOML file defining the scenarios to
              be run. It can contain environment variables.`,
			defaultVal: "${GOPATH}/src/github.com/oceanmodel/carbsea/carbseautil/testdata/scenarioExample.toml",
			flagsets:   []*pflag.FlagSet{scenarioCmd.Flags()},
		},
		{
			name: "Grid.Nx",
			usage: `
              Grid.Nx specifies the number of grid cells in the West-East
              direction.`,
			defaultVal: 10,
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags(), gridCmd.Flags(), scenarioCmd.Flags()},
		},
		{
			name: "Grid.Ny",
			usage: `
              Grid.Ny specifies the number of grid cells in the South-North
              direction.`,
			defaultVal: 10,
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags(), gridCmd.Flags(), scenarioCmd.Flags()},
		},
		{
			name: "Grid.Dx",
			usage: `
              Grid.Dx specifies the cell edge length in the West-East
              direction [m].`,
			defaultVal: 1.0e5,
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags(), gridCmd.Flags(), scenarioCmd.Flags()},
		},
		{
			name: "Grid.Dy",
			usage: `
              Grid.Dy specifies the cell edge length in the South-North
              direction [m].`,
			defaultVal: 1.0e5,
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags(), gridCmd.Flags(), scenarioCmd.Flags()},
		},
		{
			name: "Grid.LayerThicknesses",
			usage: `
              Grid.LayerThicknesses specifies the thicknesses of the vertical
              layers [m], surface layer first.`,
			defaultVal: []float64{50, 150, 300, 500},
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags(), gridCmd.Flags(), scenarioCmd.Flags()},
		},
		{
			name: "Grid.Temperature",
			usage: `
              Grid.Temperature specifies the initial water temperature profile
              [°C] with one value per layer. A single value applies to all
              layers.`,
			defaultVal: []float64{18, 10, 4, 2},
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags(), gridCmd.Flags(), scenarioCmd.Flags()},
		},
		{
			name: "Grid.Salinity",
			usage: `
              Grid.Salinity specifies the initial salinity profile [psu] with
              one value per layer. A single value applies to all layers.`,
			defaultVal: []float64{35},
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags(), gridCmd.Flags(), scenarioCmd.Flags()},
		},
		{
			name: "Grid.InitialDIC",
			usage: `
              Grid.InitialDIC specifies the initial dissolved inorganic carbon
              profile [mol/m³] with one value per layer. A single value applies
              to all layers.`,
			defaultVal: []float64{2.1, 2.2, 2.3, 2.35},
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags(), gridCmd.Flags(), scenarioCmd.Flags()},
		},
		{
			name: "Grid.InitialAlk",
			usage: `
              Grid.InitialAlk specifies the initial total alkalinity profile
              [mol/m³] with one value per layer. A single value applies to all
              layers.`,
			defaultVal: []float64{2.4},
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags(), gridCmd.Flags(), scenarioCmd.Flags()},
		},
		{
			name: "Grid.InitialPO4",
			usage: `
              Grid.InitialPO4 specifies the initial phosphate profile [mol/m³]
              with one value per layer. A single value applies to all layers.`,
			defaultVal: []float64{0.0005, 0.001, 0.0015, 0.002},
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags(), gridCmd.Flags(), scenarioCmd.Flags()},
		},
		{
			name: "Grid.ProfileFile",
			usage: `
              Grid.ProfileFile is the path to a NetCDF file holding the layer
              thicknesses ("dz") and, optionally, initial profiles of
              "Temperature", "Salinity", "DIC", "Alk", and "PO4". Profiles in
              the file override the corresponding Grid configuration settings.
              It can contain environment variables.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags(), gridCmd.Flags(), scenarioCmd.Flags()},
		},
		{
			name: "AirSea.ExchangeCoefficient",
			usage: `
              AirSea.ExchangeCoefficient relates the squared 10-meter wind speed
              to the gas transfer velocity [cm/hr/(m/s)²].`,
			defaultVal: 0.337,
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags(), scenarioCmd.Flags()},
		},
		{
			name: "AirSea.WindSpeed",
			usage: `
              AirSea.WindSpeed is the 10-meter wind speed [m/s] used when no
              forcing file is supplied.`,
			defaultVal: 10.0,
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags(), scenarioCmd.Flags()},
		},
		{
			name: "AirSea.PCO2Atmosphere",
			usage: `
              AirSea.PCO2Atmosphere is the atmospheric CO₂ partial pressure
              [atm] used when no forcing file is supplied.`,
			defaultVal: 280.0e-6,
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags(), scenarioCmd.Flags()},
		},
		{
			name: "AirSea.PressureAnomaly",
			usage: `
              AirSea.PressureAnomaly is the deviation of the sea-level
              atmospheric pressure from one standard atmosphere [atm].`,
			defaultVal: 0.0,
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags(), scenarioCmd.Flags()},
		},
		{
			name: "AirSea.Silicate",
			usage: `
              AirSea.Silicate is the total dissolved inorganic silicon
              concentration [mol/kg], which the model does not carry as a
              tracer.`,
			defaultVal: 15.0e-6,
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags(), scenarioCmd.Flags()},
		},
		{
			name: "AirSea.PHGuess",
			usage: `
              AirSea.PHGuess is the sea surface pH the carbonate system
              iteration starts from before any solution is available.`,
			defaultVal: 8.0,
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags(), scenarioCmd.Flags()},
		},
		{
			name: "AirSea.ReferenceDensity",
			usage: `
              AirSea.ReferenceDensity is the density [kg/m³] used to convert
              between volumetric and specific tracer concentrations.`,
			defaultVal: 1024.5,
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags(), scenarioCmd.Flags()},
		},
		{
			name: "Bio.CToP",
			usage: `
              Bio.CToP is the ratio of carbon to phosphorus in organic matter
              [mol/mol].`,
			defaultVal: 106.0,
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags(), scenarioCmd.Flags()},
		},
		{
			name: "Bio.NToP",
			usage: `
              Bio.NToP is the ratio of nitrogen to phosphorus in organic matter
              [mol/mol].`,
			defaultVal: 16.0,
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags(), scenarioCmd.Flags()},
		},
		{
			name: "Bio.ObservedPhosphate",
			usage: `
              Bio.ObservedPhosphate is the observed surface phosphate
              concentration that production restores toward [mol/m³].`,
			defaultVal: 0.0005,
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags(), scenarioCmd.Flags()},
		},
		{
			name: "Bio.RestoringTimescale",
			usage: `
              Bio.RestoringTimescale is the e-folding time of the phosphate
              restoring [seconds].`,
			defaultVal: 2.592e6,
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags(), scenarioCmd.Flags()},
		},
		{
			name: "Bio.EuphoticDepth",
			usage: `
              Bio.EuphoticDepth is the depth above which production occurs [m].`,
			defaultVal: 75.0,
			flagsets:   []*pflag.FlagSet{runCmd.PersistentFlags(), scenarioCmd.Flags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("CARBSEA")

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch option.defaultVal.(type) {
			case string:
				if option.shorthand == "" {
					set.String(option.name, option.defaultVal.(string), option.usage)
				} else {
					set.StringP(option.name, option.shorthand, option.defaultVal.(string), option.usage)
				}
			case bool:
				if option.shorthand == "" {
					set.Bool(option.name, option.defaultVal.(bool), option.usage)
				} else {
					set.BoolP(option.name, option.shorthand, option.defaultVal.(bool), option.usage)
				}
			case int:
				if option.shorthand == "" {
					set.Int(option.name, option.defaultVal.(int), option.usage)
				} else {
					set.IntP(option.name, option.shorthand, option.defaultVal.(int), option.usage)
				}
			case float64:
				if option.shorthand == "" {
					set.Float64(option.name, option.defaultVal.(float64), option.usage)
				} else {
					set.Float64P(option.name, option.shorthand, option.defaultVal.(float64), option.usage)
				}
			case []float64, map[string]string:
				// These types do not have their own flag type, so they
				// are stored as JSON in a string flag.
				b := bytes.NewBuffer(nil)
				e := json.NewEncoder(b)
				e.Encode(option.defaultVal)
				s := string(b.Bytes())
				if option.shorthand == "" {
					set.String(option.name, s, option.usage)
				} else {
					set.StringP(option.name, option.shorthand, s, option.usage)
				}
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(runCmd)
	runCmd.AddCommand(steadyCmd)
	Root.AddCommand(gridCmd)
	Root.AddCommand(scenarioCmd)
}

// outChan returns a channel printing to standard output.
func outChan() chan string {
	outChan := make(chan string)
	go func() {
		for {
			msg := <-outChan
			fmt.Print(msg)
		}
	}()
	return outChan
}

// setConfig finds and reads in the configuration file, if there is one.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("carbsea: problem reading configuration file: %v", err)
		}
	}
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "carbsea",
	Short: "A reduced-form ocean carbon cycle model.",
	Long: `CarbSea is a reduced-form model of the ocean carbon cycle built around
an air-sea CO₂ exchange diagnostic.
Use the subcommands specified below to access the model functionality.

Refer to the subcommand documentation for configuration options and default
settings. Configuration can be changed by using a configuration file (and
providing the path to the file using the --config flag), by using command-line
arguments, or by setting environment variables in the format 'CARBSEA_var'
where 'var' is the name of the variable to be set. Many configuration
variables are additionally allowed to contain environment variables within
them.
Refer to https://github.com/spf13/viper for additional configuration information.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of CarbSea.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("CarbSea v%s\n", carbsea.Version)
	},
	DisableAutoGenTag: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the model.",
	Long: `run runs a CarbSea simulation. Use the subcommands specified below to
choose a run mode. (Currently 'steady' is the only available run mode.)`,
	DisableAutoGenTag: true,
}

// steadyCmd is a command that runs the model to steady state.
var steadyCmd = &cobra.Command{
	Use:   "steady",
	Short: "Run CarbSea in steady-state mode.",
	Long: `steady runs CarbSea until the domain-total tracer inventories stop
changing, or for NumIterations iterations if NumIterations > 0.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		outChan := outChan()

		gridConfig, err := GridConfig(Cfg)
		if err != nil {
			return err
		}
		outputFile, err := checkOutputFile(Cfg.GetString("OutputFile"))
		if err != nil {
			return err
		}
		outputVars, err := checkOutputVars(GetStringMapString("OutputVariables", Cfg))
		if err != nil {
			return err
		}
		forcing, err := forcingFromConfig(Cfg, outChan)
		if err != nil {
			return err
		}
		var mech *bio.Mechanism
		if Cfg.GetBool("biotic") {
			mech, err = bioMechanism(Cfg)
			if err != nil {
				return err
			}
		}

		return Run(
			cmd,
			checkLogFile(Cfg.GetString("LogFile"), outputFile),
			outputFile,
			Cfg.GetBool("OutputAllLayers"),
			outputVars,
			Cfg.GetFloat64("OutputInterval"),
			gridConfig,
			airSeaParameters(Cfg),
			forcing,
			mech,
			maybeDownload(os.ExpandEnv(Cfg.GetString("GridDataFile")), outChan),
			Cfg.GetBool("creategrid"),
			Cfg.GetInt("NumIterations"),
			Cfg.GetFloat64("Timestep"))
	},
	DisableAutoGenTag: true,
}

// gridCmd is a command that creates and saves a new model grid.
var gridCmd = &cobra.Command{
	Use:   "grid",
	Short: "Create a new model grid",
	Long: `grid creates and saves a model grid with its initial tracer state as
specified by the information in the configuration file. The saved data can
then be loaded for future CarbSea simulations.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		gridConfig, err := GridConfig(Cfg)
		if err != nil {
			return err
		}
		return Grid(os.ExpandEnv(Cfg.GetString("GridDataFile")), gridConfig)
	},
	DisableAutoGenTag: true,
}

// scenarioCmd is a command that runs a set of model scenarios.
var scenarioCmd = &cobra.Command{
	Use:   "scenarios",
	Short: "Run a set of scenarios.",
	Long: `scenarios runs one steady-state simulation for each scenario defined in
the TOML file specified by the ScenarioFile configuration variable. A
scenario overrides air-sea exchange settings of the base configuration;
settings a scenario does not mention keep their base values. The OutputFile
must contain the token '[scenario]', which is replaced by the scenario name.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		outChan := outChan()

		gridConfig, err := GridConfig(Cfg)
		if err != nil {
			return err
		}
		outputVars, err := checkOutputVars(GetStringMapString("OutputVariables", Cfg))
		if err != nil {
			return err
		}
		scenarios, err := ReadScenarios(
			maybeDownload(os.ExpandEnv(Cfg.GetString("ScenarioFile")), outChan),
			airSeaParameters(Cfg))
		if err != nil {
			return err
		}
		var mech *bio.Mechanism
		if Cfg.GetBool("biotic") {
			mech, err = bioMechanism(Cfg)
			if err != nil {
				return err
			}
		}

		return RunScenarios(
			cmd,
			Cfg.GetString("LogFile"),
			os.ExpandEnv(Cfg.GetString("OutputFile")),
			Cfg.GetBool("OutputAllLayers"),
			outputVars,
			Cfg.GetFloat64("OutputInterval"),
			gridConfig,
			scenarios,
			mech,
			Cfg.GetInt("NumIterations"),
			Cfg.GetFloat64("Timestep"))
	},
	DisableAutoGenTag: true,
}

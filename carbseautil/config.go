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

package carbseautil

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lnashier/viper"
	"github.com/oceanmodel/carbsea"
	"github.com/oceanmodel/carbsea/science/airsea"
	"github.com/oceanmodel/carbsea/science/bio"
	"github.com/spf13/cast"
)

// GridConfig creates a grid configuration from the configuration file
// information in cfg.
func GridConfig(cfg *viper.Viper) (*carbsea.GridConfig, error) {
	layerThicknesses, err := toFloat64SliceE(cfg.Get("Grid.LayerThicknesses"))
	if err != nil {
		return nil, fmt.Errorf("carbsea: parsing Grid.LayerThicknesses: %v", err)
	}
	temperature, err := toFloat64SliceE(cfg.Get("Grid.Temperature"))
	if err != nil {
		return nil, fmt.Errorf("carbsea: parsing Grid.Temperature: %v", err)
	}
	salinity, err := toFloat64SliceE(cfg.Get("Grid.Salinity"))
	if err != nil {
		return nil, fmt.Errorf("carbsea: parsing Grid.Salinity: %v", err)
	}

	c := carbsea.GridConfig{
		Nx:                    cfg.GetInt("Grid.Nx"),
		Ny:                    cfg.GetInt("Grid.Ny"),
		Dx:                    cfg.GetFloat64("Grid.Dx"),
		Dy:                    cfg.GetFloat64("Grid.Dy"),
		LayerThicknesses:      layerThicknesses,
		Temperature:           temperature,
		Salinity:              salinity,
		InitialConcentrations: make(map[string][]float64),
	}
	for _, name := range carbsea.TracerNames {
		profile, err := toFloat64SliceE(cfg.Get("Grid.Initial" + name))
		if err != nil {
			return nil, fmt.Errorf("carbsea: parsing Grid.Initial%s: %v", name, err)
		}
		if len(profile) > 0 {
			c.InitialConcentrations[name] = profile
		}
	}

	if pf := maybeDownload(os.ExpandEnv(cfg.GetString("Grid.ProfileFile")), outChan()); pf != "" {
		if err := c.ReadProfiles(pf); err != nil {
			return nil, err
		}
	}
	return &c, nil
}

// airSeaParameters gathers the air-sea CO₂ exchange settings from the
// configuration information in cfg.
func airSeaParameters(cfg *viper.Viper) airsea.Parameters {
	return airsea.Parameters{
		ExchangeCoefficient: cfg.GetFloat64("AirSea.ExchangeCoefficient"),
		WindSpeed:           cfg.GetFloat64("AirSea.WindSpeed"),
		PCO2Atmosphere:      cfg.GetFloat64("AirSea.PCO2Atmosphere"),
		PressureAnomaly:     cfg.GetFloat64("AirSea.PressureAnomaly"),
		Silicate:            cfg.GetFloat64("AirSea.Silicate"),
		PHGuess:             cfg.GetFloat64("AirSea.PHGuess"),
		ReferenceDensity:    cfg.GetFloat64("AirSea.ReferenceDensity"),
	}
}

// bioMechanism creates an export production mechanism from the
// configuration information in cfg.
func bioMechanism(cfg *viper.Viper) (*bio.Mechanism, error) {
	m, err := bio.NewMechanism()
	if err != nil {
		return nil, err
	}
	m.CToP = cfg.GetFloat64("Bio.CToP")
	m.NToP = cfg.GetFloat64("Bio.NToP")
	m.ObservedPhosphate = cfg.GetFloat64("Bio.ObservedPhosphate")
	m.RestoringTimescale = cfg.GetFloat64("Bio.RestoringTimescale")
	m.EuphoticDepth = cfg.GetFloat64("Bio.EuphoticDepth")
	return m, nil
}

// forcingFromConfig creates surface forcing from the configuration
// information in cfg, downloading the forcing file first if necessary.
// It returns nil forcing if no forcing file is specified, in which case
// the wind speed and atmospheric CO₂ are held constant. c is a channel
// across which logging messages are sent.
func forcingFromConfig(cfg *viper.Viper, c chan string) (carbsea.Forcing, error) {
	ff := os.ExpandEnv(cfg.GetString("ForcingFile"))
	if ff == "" {
		return nil, nil
	}
	f, err := carbsea.ReadForcing(maybeDownload(ff, c))
	if err != nil {
		return nil, err
	}
	return f, nil
}

// checkOutputFile makes sure that the output file is specified and its
// directory exists, and expands any environment variables.
func checkOutputFile(f string) (string, error) {
	if f == "" {
		return f, fmt.Errorf(`you need to specify an output file configuration variable (for example: OutputFile="output.nc")`)
	}
	f = os.ExpandEnv(f)
	outdir := filepath.Dir(f)
	if _, err := os.Stat(outdir); err != nil {
		return f, fmt.Errorf("carbsea: the OutputFile directory doesn't exist: %v", err)
	}
	return f, nil
}

// checkOutputVars removes end lines and expands environment variables
// in the output variables.
func checkOutputVars(vars map[string]string) (map[string]string, error) {
	if len(vars) == 0 {
		return vars, fmt.Errorf("there are no variables specified for output. Please fill in " +
			"the OutputVariables configuration and try again.")
	}
	for k, v := range vars {
		v = strings.Replace(v, "\r\n", " ", -1)
		v = strings.Replace(v, "\n", " ", -1)
		vars[os.ExpandEnv(k)] = os.ExpandEnv(v)
	}
	return vars, nil
}

// checkLogFile fills in a default value for the log file path if one
// isn't specified.
func checkLogFile(logFile, outputFile string) string {
	if logFile == "" {
		logFile = strings.TrimSuffix(outputFile, filepath.Ext(outputFile)) + ".log"
	}
	return os.ExpandEnv(logFile)
}

// toFloat64SliceE converts an interface to a []float64 type, handling
// both the []interface{} a configuration file produces and the JSON
// string a command-line flag produces.
func toFloat64SliceE(s interface{}) ([]float64, error) {
	if s == nil {
		return nil, nil
	}
	switch v := s.(type) {
	case []float64:
		return v, nil
	case []interface{}:
		o := make([]float64, len(v))
		for i, val := range v {
			f, err := cast.ToFloat64E(val)
			if err != nil {
				return nil, err
			}
			o[i] = f
		}
		return o, nil
	case string:
		var o []float64
		if err := json.Unmarshal([]byte(v), &o); err != nil {
			return nil, err
		}
		return o, nil
	default:
		return nil, fmt.Errorf("cannot convert %#v to []float64", s)
	}
}

// GetStringMapString returns a map[string]string from the configuration
// variable varName in cfg, handling the different ways it may be
// specified.
func GetStringMapString(varName string, cfg *viper.Viper) map[string]string {
	i := cfg.Get(varName)
	switch t := i.(type) {
	case map[string]string:
		return t
	case map[string]interface{}:
		return cast.ToStringMapString(t)
	case string: // The case where a JSON string is passed as a command-line option.
		o := make(map[string]string)
		if err := json.NewDecoder(strings.NewReader(t)).Decode(&o); err != nil {
			panic(fmt.Errorf("carbsea: parsing configuration variable %s: %v", varName, err))
		}
		return o
	default:
		panic(fmt.Errorf("carbsea: invalid type for configuration variable %s: %T", varName, t))
	}
}

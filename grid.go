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

package carbsea

import (
	"fmt"
	"os"

	"github.com/ctessum/cdf"
)

// GridConfig holds the configuration needed to create a regular model
// grid.
type GridConfig struct {
	// Nx and Ny are the numbers of grid cells in the West-East and
	// South-North directions.
	Nx, Ny int

	// Dx and Dy are the horizontal cell edge lengths [m].
	Dx, Dy float64

	// LayerThicknesses are the thicknesses of the vertical layers,
	// surface layer first [m]. The number of layers is the length of
	// this slice.
	LayerThicknesses []float64

	// Temperature and Salinity are initial profiles with one value per
	// layer [°C and psu]. A single-element profile applies to all layers.
	Temperature []float64
	Salinity    []float64

	// InitialConcentrations maps tracer names to initial profiles with
	// one value per layer [mol/m³]. A single-element profile applies to
	// all layers. Tracers without an entry start at zero.
	InitialConcentrations map[string][]float64
}

func (config *GridConfig) check() error {
	if config.Nx <= 0 || config.Ny <= 0 {
		return fmt.Errorf("grid size %d×%d is invalid; Nx and Ny must be positive",
			config.Nx, config.Ny)
	}
	if !(config.Dx > 0) || !(config.Dy > 0) {
		return fmt.Errorf("cell size Dx=%g, Dy=%g is invalid; Dx and Dy must be positive",
			config.Dx, config.Dy)
	}
	if len(config.LayerThicknesses) == 0 {
		return fmt.Errorf("at least one vertical layer must be specified")
	}
	for k, dz := range config.LayerThicknesses {
		if !(dz > 0) {
			return fmt.Errorf("layer %d thickness %g m is invalid; thicknesses must be positive", k, dz)
		}
	}
	nz := len(config.LayerThicknesses)
	for _, p := range []struct {
		name    string
		profile []float64
	}{{"Temperature", config.Temperature}, {"Salinity", config.Salinity}} {
		if n := len(p.profile); n != 0 && n != 1 && n != nz {
			return fmt.Errorf("%s profile has %d values for %d layers", p.name, n, nz)
		}
	}
	for name, profile := range config.InitialConcentrations {
		if _, ok := tracerIndices[name]; !ok {
			return fmt.Errorf("unknown tracer name '%s' in initial concentrations", name)
		}
		if n := len(profile); n != 1 && n != nz {
			return fmt.Errorf("initial %s profile has %d values for %d layers", name, n, nz)
		}
	}
	return nil
}

// profileValue returns the layer-k value of a per-layer profile,
// broadcasting single-element profiles to all layers.
func profileValue(profile []float64, k int) float64 {
	if len(profile) == 0 {
		return 0
	}
	if len(profile) == 1 {
		return profile[0]
	}
	return profile[k]
}

// RegularGrid returns a function that creates a regular grid according to
// the configuration, attaches the given biogeochemistry mechanism (which
// may be nil for abiotic runs), and sets the initial tracer, temperature,
// and salinity state. Cells are ordered surface layer first, then
// row-major within each layer.
func (config *GridConfig) RegularGrid(m Mechanism) DomainManipulator {
	return func(d *Simulation) error {
		if err := config.check(); err != nil {
			return fmt.Errorf("carbsea: grid configuration: %v", err)
		}
		d.nx, d.ny = config.Nx, config.Ny
		d.nz = len(config.LayerThicknesses)
		d.mechanism = m
		d.cells = make([]*Cell, 0, d.nx*d.ny*d.nz)

		depth := 0. // depth of the top of the current layer
		for k := 0; k < d.nz; k++ {
			dz := config.LayerThicknesses[k]
			for j := 0; j < d.ny; j++ {
				for i := 0; i < d.nx; i++ {
					c := &Cell{
						Temperature: profileValue(config.Temperature, k),
						Salinity:    profileValue(config.Salinity, k),
						Ci:          make([]float64, len(TracerNames)),
						Cf:          make([]float64, len(TracerNames)),
						Dx:          config.Dx,
						Dy:          config.Dy,
						Dz:          dz,
						Depth:       depth + dz/2,
						Volume:      config.Dx * config.Dy * dz,
						Layer:       k,
						Row:         j,
						Col:         i,
						index:       len(d.cells),
					}
					for name, profile := range config.InitialConcentrations {
						ii := tracerIndices[name]
						c.Cf[ii] = profileValue(profile, k)
						c.Ci[ii] = c.Cf[ii]
					}
					d.cells = append(d.cells, c)
				}
			}
			depth += dz
		}
		return nil
	}
}

// ReadProfiles fills in the grid configuration from a NetCDF profile
// file. The file must contain a variable "dz" holding the layer
// thicknesses [m], surface layer first, and may contain variables
// "Temperature" [°C], "Salinity" [psu], "DIC", "Alk", and "PO4"
// [mol/m³], each with one value per layer. Profiles already set in the
// configuration are overwritten if the file contains the corresponding
// variable.
func (config *GridConfig) ReadProfiles(filename string) error {
	f, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("carbsea: opening profile file: %v", err)
	}
	defer f.Close()
	ff, err := cdf.Open(f)
	if err != nil {
		return fmt.Errorf("carbsea: reading profile file %s: %v", filename, err)
	}

	dz, err := readNCF(ff, "dz")
	if err != nil {
		return fmt.Errorf("carbsea: reading profile file %s: %v", filename, err)
	}
	config.LayerThicknesses = dz

	for _, v := range []string{"Temperature", "Salinity"} {
		if !hasNCFVariable(ff, v) {
			continue
		}
		profile, err := readNCF(ff, v)
		if err != nil {
			return fmt.Errorf("carbsea: reading profile file %s: %v", filename, err)
		}
		switch v {
		case "Temperature":
			config.Temperature = profile
		case "Salinity":
			config.Salinity = profile
		}
	}
	for _, v := range TracerNames {
		if !hasNCFVariable(ff, v) {
			continue
		}
		profile, err := readNCF(ff, v)
		if err != nil {
			return fmt.Errorf("carbsea: reading profile file %s: %v", filename, err)
		}
		if config.InitialConcentrations == nil {
			config.InitialConcentrations = make(map[string][]float64)
		}
		config.InitialConcentrations[v] = profile
	}
	return nil
}

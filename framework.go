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

// Package carbsea implements a reduced-form model of the ocean carbon
// cycle. The model carries dissolved inorganic carbon, total alkalinity,
// and phosphate on a regular grid of well-mixed boxes and exchanges CO₂
// with the atmosphere across the sea surface. Circulation, turbulence,
// and advection are deliberately not modeled here; simulations are
// assembled from composable initialization, run, and cleanup functions so
// that transport schemes can be supplied by the caller when needed.
package carbsea

import (
	"fmt"
	"reflect"
	"sync"
)

// Version gives the model version number.
const Version = "1.2.0"

// TracerNames are the names of the tracers carried by the model.
// Concentrations are in mol/m³.
var TracerNames = []string{"DIC", "Alk", "PO4"}

// Indices of individual tracers in concentration arrays.
const (
	iDIC, iAlk, iPO4 = 0, 1, 2
)

var tracerIndices = map[string]int{"DIC": iDIC, "Alk": iAlk, "PO4": iPO4}

// TracerIndex returns the location of the named tracer within the
// concentration arrays held by each grid cell.
func TracerIndex(name string) (int, error) {
	i, ok := tracerIndices[name]
	if !ok {
		return -1, fmt.Errorf("carbsea: unknown tracer name '%s'", name)
	}
	return i, nil
}

// tracerUnits are the units of the model tracers.
const tracerUnits = "mol/m³"

// Cell holds the state of a single well-mixed grid box.
type Cell struct {
	// mu avoids the cell being written by one goroutine and read by
	// another at the same time. It is a named field rather than an
	// embedded one so that Save and Load can gob-encode cells.
	mu sync.RWMutex

	Temperature float64 `desc:"Water temperature" units:"°C"`
	Salinity    float64 `desc:"Practical salinity" units:"psu"`

	Ci []float64 // tracer concentrations at beginning of time step [mol/m³]
	Cf []float64 // tracer concentrations at end of time step [mol/m³]

	CO2Flux          float64 `desc:"Air-sea CO₂ flux, positive up" units:"mol/m²/s"`
	PCO2Ocean        float64 `desc:"Sea-surface CO₂ partial pressure" units:"atm"`
	PCO2Atmosphere   float64 `desc:"Atmospheric CO₂ partial pressure" units:"atm"`
	ExportProduction float64 `desc:"Export of organic phosphorus out of this cell" units:"mol/m²/s"`

	Dx     float64 `desc:"Cell length in the West-East direction" units:"m"`
	Dy     float64 `desc:"Cell length in the South-North direction" units:"m"`
	Dz     float64 `desc:"Cell thickness" units:"m"`
	Depth  float64 `desc:"Depth of the cell center below the sea surface" units:"m"`
	Volume float64 `desc:"Cell volume" units:"m³"`

	// Grid position. Layer 0 is the sea surface; layers increase downward.
	Layer int
	Row   int
	Col   int

	index int
}

// Lock locks the cell for writing.
func (c *Cell) Lock() { c.mu.Lock() }

// Unlock unlocks the cell for writing.
func (c *Cell) Unlock() { c.mu.Unlock() }

// RLock locks the cell for reading.
func (c *Cell) RLock() { c.mu.RLock() }

// RUnlock unlocks the cell for reading.
func (c *Cell) RUnlock() { c.mu.RUnlock() }

// Simulation is a driver for a CarbSea model run. Simulations are
// assembled by filling in the manipulator function lists and then calling
// Init, Run, and Cleanup in that order.
type Simulation struct {
	InitFuncs    []DomainManipulator
	RunFuncs     []DomainManipulator
	CleanupFuncs []DomainManipulator

	// Dt is the simulation time step [s].
	Dt float64

	// Done specifies whether the simulation is finished.
	Done bool

	cells      []*Cell
	nx, ny, nz int

	mechanism Mechanism

	t float64 // elapsed simulation time [s]
}

// DomainManipulator is a class of functions that operate on the entire
// model domain.
type DomainManipulator func(d *Simulation) error

// CellManipulator is a class of functions that operate on a single grid
// cell, using the given time step Δt [s].
type CellManipulator func(c *Cell, Δt float64)

// Init initializes the simulation by running the InitFuncs in order.
func (d *Simulation) Init() error {
	for _, f := range d.InitFuncs {
		if err := f(d); err != nil {
			return fmt.Errorf("carbsea: initializing simulation: %v", err)
		}
	}
	if d.Dt <= 0 {
		return fmt.Errorf("carbsea: invalid time step %g s", d.Dt)
	}
	return nil
}

// Run advances the simulation by repeatedly running the RunFuncs in order
// until the Done flag is set. Each iteration advances the simulation
// clock by Dt.
func (d *Simulation) Run() error {
	for !d.Done {
		d.advance()
		for _, f := range d.RunFuncs {
			if err := f(d); err != nil {
				return fmt.Errorf("carbsea: simulation time %g s: %v", d.t, err)
			}
		}
		d.t += d.Dt
	}
	return nil
}

// Cleanup runs the CleanupFuncs to finish the simulation.
func (d *Simulation) Cleanup() error {
	for _, f := range d.CleanupFuncs {
		if err := f(d); err != nil {
			return fmt.Errorf("carbsea: cleaning up simulation: %v", err)
		}
	}
	return nil
}

// advance copies end-of-step tracer concentrations into the
// beginning-of-step slots so that manipulators within the upcoming step
// see a consistent starting state.
func (d *Simulation) advance() {
	for _, c := range d.cells {
		copy(c.Ci, c.Cf)
	}
}

// Time returns the elapsed simulation time [s].
func (d *Simulation) Time() float64 { return d.t }

// Cells returns the grid cells in the model domain, ordered
// surface-layer first, then row-major within each layer.
func (d *Simulation) Cells() []*Cell { return d.cells }

// SurfaceCells returns the grid cells in the surface layer in row-major
// order.
func (d *Simulation) SurfaceCells() []*Cell {
	if len(d.cells) == 0 {
		return nil
	}
	return d.cells[:d.ny*d.nx]
}

// Layers returns the number of vertical layers in the model domain.
func (d *Simulation) Layers() int { return d.nz }

// cellsInLayer returns the cells in vertical layer k in row-major order.
func (d *Simulation) cellsInLayer(k int) []*Cell {
	n := d.ny * d.nx
	return d.cells[k*n : (k+1)*n]
}

// value returns the current value of the named variable in cell c.
// Tracer names resolve to end-of-step concentrations, mechanism-defined
// variables are delegated to the mechanism, and all remaining names
// resolve to cell fields of the same name.
func (d *Simulation) value(c *Cell, name string) (float64, error) {
	if i, ok := tracerIndices[name]; ok {
		return c.Cf[i], nil
	}
	if d.mechanism != nil {
		if v, err := d.mechanism.Value(c, name); err == nil {
			return v, nil
		}
	}
	v := reflect.ValueOf(c).Elem().FieldByName(name)
	if v.IsValid() && v.Kind() == reflect.Float64 {
		return v.Float(), nil
	}
	return 0, fmt.Errorf("carbsea: undefined variable name '%s'", name)
}

// getUnits returns the units of the named variable.
func (d *Simulation) getUnits(name string) string {
	if _, ok := tracerIndices[name]; ok {
		return tracerUnits
	}
	if d.mechanism != nil {
		if u, err := d.mechanism.Units(name); err == nil {
			return u
		}
	}
	t := reflect.TypeOf(Cell{})
	if f, ok := t.FieldByName(name); ok {
		return f.Tag.Get("units")
	}
	return ""
}

// toArray returns an array of the values of the named variable in
// vertical layer k, in row-major order.
func (d *Simulation) toArray(name string, k int) ([]float64, error) {
	cells := d.cellsInLayer(k)
	o := make([]float64, len(cells))
	for i, c := range cells {
		c.RLock()
		v, err := d.value(c, name)
		c.RUnlock()
		if err != nil {
			return nil, err
		}
		o[i] = v
	}
	return o, nil
}

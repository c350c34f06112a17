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
	"math"
	"testing"
)

const testTolerance = 1.e-8

// testConfig returns the configuration of a small two-layer grid.
func testConfig() GridConfig {
	return GridConfig{
		Nx: 3, Ny: 2, Dx: 2.e4, Dy: 1.e4,
		LayerThicknesses: []float64{50, 150},
		Temperature:      []float64{18., 4.},
		Salinity:         []float64{35.},
		InitialConcentrations: map[string][]float64{
			"DIC": {2.1, 2.3},
			"Alk": {2.4},
			"PO4": {0.5e-3, 1.5e-3},
		},
	}
}

func testSimulation(t *testing.T, m Mechanism) *Simulation {
	cfg := testConfig()
	d := &Simulation{
		InitFuncs: []DomainManipulator{
			cfg.RegularGrid(m),
			SetTimestep(1800.),
		},
	}
	if err := d.Init(); err != nil {
		t.Fatal(err)
	}
	return d
}

// testMechanism is a biogeochemistry mechanism with a single diagnostic
// variable.
type testMechanism struct{}

func (m testMechanism) Sources() CellManipulator {
	return func(c *Cell, Δt float64) {}
}

func (m testMechanism) Species() []string { return []string{"DoubleDIC"} }

func (m testMechanism) Value(c *Cell, variable string) (float64, error) {
	if variable != "DoubleDIC" {
		return math.NaN(), fmt.Errorf("testMechanism: invalid variable name %s", variable)
	}
	return 2 * c.Cf[iDIC], nil
}

func (m testMechanism) Units(variable string) (string, error) {
	if variable != "DoubleDIC" {
		return "", fmt.Errorf("testMechanism: invalid variable name %s", variable)
	}
	return "mol/m³", nil
}

func TestTracerIndex(t *testing.T) {
	for i, name := range TracerNames {
		ii, err := TracerIndex(name)
		if err != nil {
			t.Fatal(err)
		}
		if ii != i {
			t.Errorf("tracer %s has index %d, want %d", name, ii, i)
		}
	}
	if _, err := TracerIndex("N2O"); err == nil {
		t.Error("TracerIndex should have failed for an unknown tracer")
	}
}

func TestInitErrors(t *testing.T) {
	d := &Simulation{
		InitFuncs: []DomainManipulator{
			func(d *Simulation) error { return fmt.Errorf("boom") },
		},
	}
	if err := d.Init(); err == nil {
		t.Error("Init should have propagated the error")
	}

	cfg := testConfig()
	d = &Simulation{InitFuncs: []DomainManipulator{cfg.RegularGrid(nil)}}
	if err := d.Init(); err == nil {
		t.Error("Init should have failed without a time step")
	}
}

func TestValue(t *testing.T) {
	d := testSimulation(t, testMechanism{})
	c := d.Cells()[0]

	cases := []struct {
		name string
		want float64
	}{
		{"DIC", 2.1},
		{"Alk", 2.4},
		{"Temperature", 18.},
		{"Dz", 50.},
		{"DoubleDIC", 4.2},
	}
	for _, cc := range cases {
		v, err := d.value(c, cc.name)
		if err != nil {
			t.Fatalf("%s: %v", cc.name, err)
		}
		if v != cc.want {
			t.Errorf("%s is %g, want %g", cc.name, v, cc.want)
		}
	}
	if _, err := d.value(c, "Vorticity"); err == nil {
		t.Error("value should have failed for an undefined variable")
	}

	unitCases := []struct {
		name, want string
	}{
		{"DIC", "mol/m³"},
		{"Temperature", "°C"},
		{"CO2Flux", "mol/m²/s"},
		{"DoubleDIC", "mol/m³"},
		{"Vorticity", ""},
	}
	for _, cc := range unitCases {
		if u := d.getUnits(cc.name); u != cc.want {
			t.Errorf("units of %s are '%s', want '%s'", cc.name, u, cc.want)
		}
	}
}

func TestToArray(t *testing.T) {
	d := testSimulation(t, nil)

	for k, want := range []float64{2.1, 2.3} {
		vals, err := d.toArray("DIC", k)
		if err != nil {
			t.Fatal(err)
		}
		if len(vals) != 6 {
			t.Fatalf("layer %d has %d values, want 6", k, len(vals))
		}
		for _, v := range vals {
			if v != want {
				t.Errorf("layer %d DIC is %g, want %g", k, v, want)
			}
		}
	}
	if _, err := d.toArray("Vorticity", 0); err == nil {
		t.Error("toArray should have failed for an undefined variable")
	}
}

// Run copies the end-of-step concentrations to the beginning-of-step
// slots before every iteration.
func TestAdvance(t *testing.T) {
	d := testSimulation(t, nil)
	d.RunFuncs = []DomainManipulator{
		func(d *Simulation) error {
			for _, c := range d.cells {
				if c.Ci[iDIC] != c.Cf[iDIC] {
					return fmt.Errorf("initial concentration %g does not match final %g",
						c.Ci[iDIC], c.Cf[iDIC])
				}
				c.Cf[iDIC]++
			}
			return nil
		},
		SteadyStateConvergenceCheck(3, nil),
	}
	if err := d.Run(); err != nil {
		t.Fatal(err)
	}
	for _, c := range d.cells {
		if c.Cf[iDIC]-c.Ci[iDIC] != 1 {
			t.Errorf("final concentration %g should be one more than initial %g",
				c.Cf[iDIC], c.Ci[iDIC])
		}
	}
	if d.Time() != 3*1800. {
		t.Errorf("simulation time is %g s, want %g s", d.Time(), 3*1800.)
	}
}

func different(a, b, tolerance float64) bool {
	if 2*math.Abs(a-b)/math.Abs(a+b) > tolerance || math.IsNaN(a) || math.IsNaN(b) {
		return true
	}
	return false
}

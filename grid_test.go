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
	"os"
	"reflect"
	"strings"
	"testing"

	"github.com/ctessum/cdf"
)

const TestProfileFilename = "testProfiles.nc"

func TestGridConfigCheck(t *testing.T) {
	tests := []struct {
		mutate func(*GridConfig)
		err    string
	}{
		{
			mutate: func(c *GridConfig) {},
		},
		{
			mutate: func(c *GridConfig) { c.Nx = 0 },
			err:    "carbsea: grid configuration: grid size 0×2 is invalid; Nx and Ny must be positive",
		},
		{
			mutate: func(c *GridConfig) { c.Dy = -1 },
			err:    "carbsea: grid configuration: cell size Dx=20000, Dy=-1 is invalid; Dx and Dy must be positive",
		},
		{
			mutate: func(c *GridConfig) { c.LayerThicknesses = nil },
			err:    "carbsea: grid configuration: at least one vertical layer must be specified",
		},
		{
			mutate: func(c *GridConfig) { c.LayerThicknesses = []float64{50, -5} },
			err:    "carbsea: grid configuration: layer 1 thickness -5 m is invalid; thicknesses must be positive",
		},
		{
			mutate: func(c *GridConfig) { c.Temperature = []float64{18, 4, 2} },
			err:    "carbsea: grid configuration: Temperature profile has 3 values for 2 layers",
		},
		{
			mutate: func(c *GridConfig) { c.InitialConcentrations["N2O"] = []float64{1.e-8} },
			err:    "carbsea: grid configuration: unknown tracer name 'N2O' in initial concentrations",
		},
		{
			mutate: func(c *GridConfig) { c.InitialConcentrations["DIC"] = []float64{2.1, 2.2, 2.3} },
			err:    "carbsea: grid configuration: initial DIC profile has 3 values for 2 layers",
		},
	}
	for i, test := range tests {
		cfg := testConfig()
		test.mutate(&cfg)
		err := cfg.RegularGrid(nil)(new(Simulation))
		if test.err == "" {
			if err != nil {
				t.Errorf("test %d: %v", i, err)
			}
		} else if err == nil {
			t.Errorf("test %d should have failed", i)
		} else if err.Error() != test.err {
			t.Errorf("test %d error is '%v', want '%s'", i, err, test.err)
		}
	}
}

func TestRegularGrid(t *testing.T) {
	cfg := testConfig()
	d := new(Simulation)
	if err := cfg.RegularGrid(nil)(d); err != nil {
		t.Fatal(err)
	}

	cells := d.Cells()
	if len(cells) != 12 {
		t.Fatalf("grid has %d cells, want 12", len(cells))
	}
	if d.Layers() != 2 {
		t.Errorf("grid has %d layers, want 2", d.Layers())
	}

	thicknesses := []float64{50, 150}
	depths := []float64{25, 125} // layer centers
	temperatures := []float64{18., 4.}
	dic := []float64{2.1, 2.3}
	po4 := []float64{0.5e-3, 1.5e-3}

	// Columns vary fastest, then rows, then layers.
	for i, c := range cells {
		k, j, ii := i/6, (i%6)/3, i%3
		if c.Layer != k || c.Row != j || c.Col != ii {
			t.Errorf("cell %d is at (%d,%d,%d), want (%d,%d,%d)",
				i, c.Layer, c.Row, c.Col, k, j, ii)
		}
		if c.Dx != 2.e4 || c.Dy != 1.e4 || c.Dz != thicknesses[k] {
			t.Errorf("cell %d has size %g×%g×%g", i, c.Dx, c.Dy, c.Dz)
		}
		if c.Volume != c.Dx*c.Dy*c.Dz {
			t.Errorf("cell %d has volume %g, want %g", i, c.Volume, c.Dx*c.Dy*c.Dz)
		}
		if c.Depth != depths[k] {
			t.Errorf("cell %d is at depth %g, want %g", i, c.Depth, depths[k])
		}
		// The single-value salinity profile applies to both layers.
		if c.Temperature != temperatures[k] || c.Salinity != 35. {
			t.Errorf("cell %d has T=%g, S=%g", i, c.Temperature, c.Salinity)
		}
		if c.Cf[iDIC] != dic[k] || c.Cf[iAlk] != 2.4 || c.Cf[iPO4] != po4[k] {
			t.Errorf("cell %d concentrations are %v", i, c.Cf)
		}
		for ii, v := range c.Ci {
			if v != c.Cf[ii] {
				t.Errorf("cell %d initial and final concentrations differ: %v, %v",
					i, c.Ci, c.Cf)
			}
		}
	}

	surface := d.SurfaceCells()
	if len(surface) != 6 {
		t.Fatalf("surface has %d cells, want 6", len(surface))
	}
	for _, c := range surface {
		if c.Layer != 0 {
			t.Errorf("surface cell is in layer %d", c.Layer)
		}
	}
}

// TestRegularGridDefaultConcentration checks that tracers without an
// initial profile start at zero.
func TestRegularGridDefaultConcentration(t *testing.T) {
	cfg := testConfig()
	delete(cfg.InitialConcentrations, "Alk")
	d := new(Simulation)
	if err := cfg.RegularGrid(nil)(d); err != nil {
		t.Fatal(err)
	}
	for _, c := range d.Cells() {
		if c.Cf[iAlk] != 0 || c.Ci[iAlk] != 0 {
			t.Fatalf("alkalinity of cell %d is %g, want 0", c.index, c.Cf[iAlk])
		}
	}
}

func writeTestProfiles(t *testing.T, vars []string, n int, profiles map[string][]float64) {
	h := cdf.NewHeader([]string{"layer"}, []int{n})
	for _, v := range vars {
		h.AddVariable(v, []string{"layer"}, []float64{0})
	}
	h.Define()

	f, err := os.Create(TestProfileFilename)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	ff, err := cdf.Create(f, h)
	if err != nil {
		t.Fatal(err)
	}
	for _, v := range vars {
		w := ff.Writer(v, []int{0}, []int{n})
		if _, err := w.Write(profiles[v]); err != nil {
			t.Fatal(err)
		}
	}
}

func TestReadProfiles(t *testing.T) {
	profiles := map[string][]float64{
		"dz":          {100, 400, 500},
		"Temperature": {16, 8, 3},
		"DIC":         {2.05, 2.25, 2.32},
	}
	writeTestProfiles(t, []string{"dz", "Temperature", "DIC"}, 3, profiles)
	defer os.Remove(TestProfileFilename)

	cfg := testConfig()
	if err := cfg.ReadProfiles(TestProfileFilename); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(cfg.LayerThicknesses, profiles["dz"]) {
		t.Errorf("layer thicknesses are %v, want %v", cfg.LayerThicknesses, profiles["dz"])
	}
	if !reflect.DeepEqual(cfg.Temperature, profiles["Temperature"]) {
		t.Errorf("temperature profile is %v, want %v", cfg.Temperature, profiles["Temperature"])
	}
	if !reflect.DeepEqual(cfg.InitialConcentrations["DIC"], profiles["DIC"]) {
		t.Errorf("DIC profile is %v, want %v", cfg.InitialConcentrations["DIC"], profiles["DIC"])
	}
	// Settings without a corresponding file variable are kept.
	if !reflect.DeepEqual(cfg.Salinity, []float64{35.}) {
		t.Errorf("salinity profile is %v, want [35]", cfg.Salinity)
	}
	if !reflect.DeepEqual(cfg.InitialConcentrations["Alk"], []float64{2.4}) {
		t.Errorf("Alk profile is %v, want [2.4]", cfg.InitialConcentrations["Alk"])
	}
}

func TestReadProfilesErrors(t *testing.T) {
	cfg := testConfig()
	err := cfg.ReadProfiles("nonexistent.nc")
	if err == nil {
		t.Error("reading a nonexistent file should have failed")
	} else if !strings.HasPrefix(err.Error(), "carbsea: opening profile file:") {
		t.Errorf("unexpected error: %v", err)
	}

	// A file without the layer thicknesses cannot define a grid.
	writeTestProfiles(t, []string{"Temperature"}, 2, map[string][]float64{"Temperature": {16, 8}})
	defer os.Remove(TestProfileFilename)
	err = cfg.ReadProfiles(TestProfileFilename)
	if err == nil {
		t.Error("reading a file without dz should have failed")
	} else if !strings.Contains(err.Error(), "dz") {
		t.Errorf("unexpected error: %v", err)
	}
}

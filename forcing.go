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

package carbsea

import (
	"fmt"
	"os"
	"sort"

	"github.com/ctessum/cdf"
	"github.com/ctessum/unit"
)

// Forcing provides time-varying atmospheric conditions at the sea
// surface.
type Forcing interface {
	// Wind returns the 10-meter wind speed [m/s] at simulation time
	// t [s].
	Wind(t float64) float64

	// PCO2 returns the atmospheric CO₂ partial pressure [atm] at
	// simulation time t [s].
	PCO2(t float64) float64
}

const pascalsPerAtmosphere = 101325.

// ConstantForcing is surface forcing that does not change in time.
type ConstantForcing struct {
	wind float64 // m/s
	pCO2 float64 // atm
}

// NewConstantForcing creates surface forcing with the given constant
// 10-meter wind speed and atmospheric CO₂ partial pressure. The inputs
// must be in SI units (m/s and Pa); an error is returned if the
// dimensions do not match.
func NewConstantForcing(windSpeed, pCO2 *unit.Unit) (*ConstantForcing, error) {
	if err := windSpeed.Check(unit.MeterPerSecond); err != nil {
		return nil, fmt.Errorf("carbsea: wind speed: %v", err)
	}
	if err := pCO2.Check(unit.Pascal); err != nil {
		return nil, fmt.Errorf("carbsea: atmospheric pCO₂: %v", err)
	}
	return &ConstantForcing{
		wind: windSpeed.Value(),
		pCO2: pCO2.Value() / pascalsPerAtmosphere,
	}, nil
}

// Wind returns the 10-meter wind speed [m/s].
func (f *ConstantForcing) Wind(t float64) float64 { return f.wind }

// PCO2 returns the atmospheric CO₂ partial pressure [atm].
func (f *ConstantForcing) PCO2(t float64) float64 { return f.pCO2 }

// TimeSeriesForcing is surface forcing linearly interpolated from a time
// series. Times outside of the series take the nearest endpoint value.
type TimeSeriesForcing struct {
	times []float64 // s
	winds []float64 // m/s
	pCO2s []float64 // atm
}

// NewTimeSeriesForcing creates surface forcing from a time series of
// 10-meter wind speeds [m/s] and atmospheric CO₂ partial pressures
// [atm] at the given times [s]. The times must be strictly increasing.
func NewTimeSeriesForcing(times, windSpeeds, pCO2s []float64) (*TimeSeriesForcing, error) {
	if len(times) == 0 {
		return nil, fmt.Errorf("carbsea: forcing time series is empty")
	}
	if len(windSpeeds) != len(times) || len(pCO2s) != len(times) {
		return nil, fmt.Errorf("carbsea: forcing time series length mismatch: "+
			"%d times, %d wind speeds, %d pCO₂ values",
			len(times), len(windSpeeds), len(pCO2s))
	}
	for i := 1; i < len(times); i++ {
		if times[i] <= times[i-1] {
			return nil, fmt.Errorf("carbsea: forcing times must be strictly increasing "+
				"but times[%d]=%g followed by %g", i-1, times[i-1], times[i])
		}
	}
	return &TimeSeriesForcing{times: times, winds: windSpeeds, pCO2s: pCO2s}, nil
}

// ReadForcing reads a forcing time series from the NetCDF file at
// filename. The file must contain variables "time" [s], "U10" [m/s],
// and "pCO2atm" [atm], all with the same length.
func ReadForcing(filename string) (*TimeSeriesForcing, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("carbsea: opening forcing file: %v", err)
	}
	defer f.Close()
	ff, err := cdf.Open(f)
	if err != nil {
		return nil, fmt.Errorf("carbsea: reading forcing file %s: %v", filename, err)
	}
	var series [3][]float64
	for i, v := range []string{"time", "U10", "pCO2atm"} {
		series[i], err = readNCF(ff, v)
		if err != nil {
			return nil, fmt.Errorf("carbsea: reading forcing file %s: %v", filename, err)
		}
	}
	return NewTimeSeriesForcing(series[0], series[1], series[2])
}

// Wind returns the 10-meter wind speed [m/s] at time t [s].
func (f *TimeSeriesForcing) Wind(t float64) float64 {
	return interpolate(f.times, f.winds, t)
}

// PCO2 returns the atmospheric CO₂ partial pressure [atm] at time t [s].
func (f *TimeSeriesForcing) PCO2(t float64) float64 {
	return interpolate(f.times, f.pCO2s, t)
}

// interpolate linearly interpolates ys over xs at x, holding the
// endpoint values outside the range of xs.
func interpolate(xs, ys []float64, x float64) float64 {
	if x <= xs[0] {
		return ys[0]
	}
	if x >= xs[len(xs)-1] {
		return ys[len(ys)-1]
	}
	i := sort.SearchFloat64s(xs, x)
	// xs[i-1] < x <= xs[i]
	frac := (x - xs[i-1]) / (xs[i] - xs[i-1])
	return ys[i-1] + frac*(ys[i]-ys[i-1])
}

// readNCF reads the named variable from ff, converting it to float64 if
// necessary.
func readNCF(ff *cdf.File, varName string) ([]float64, error) {
	dims := ff.Header.Lengths(varName)
	if len(dims) == 0 {
		return nil, fmt.Errorf("variable %s is not in file", varName)
	}
	r := ff.Reader(varName, nil, nil)
	buf := r.Zero(-1)
	if _, err := r.Read(buf); err != nil {
		return nil, fmt.Errorf("reading variable %s: %v", varName, err)
	}
	switch b := buf.(type) {
	case []float64:
		return b, nil
	case []float32:
		o := make([]float64, len(b))
		for i, v := range b {
			o[i] = float64(v)
		}
		return o, nil
	case []int32:
		o := make([]float64, len(b))
		for i, v := range b {
			o[i] = float64(v)
		}
		return o, nil
	default:
		return nil, fmt.Errorf("variable %s has unsupported type %T", varName, buf)
	}
}

// hasNCFVariable reports whether the named variable exists in ff.
func hasNCFVariable(ff *cdf.File, varName string) bool {
	return len(ff.Header.Lengths(varName)) > 0
}

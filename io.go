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
	"os"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/Knetic/govaluate"
	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
	"gonum.org/v1/gonum/floats"
)

// Outputter is a holder for output parameters.
//
// fileName contains the path where the output will be saved.
//
// If allLayers is true, output will contain data for all of the vertical
// layers, otherwise only the surface layer is returned.
//
// outputVariables maps the names of the variables for which data
// should be returned to expressions that define how the
// requested data should be calculated. These expressions can utilize variables
// built into the model, user-defined variables, and functions.
//
// modelVariables is automatically generated based on the model variables that
// are required to calculate the requested output variables.
//
// Functions are defined in the outputFunctions variable.
type Outputter struct {
	fileName        string
	allLayers       bool
	outputVariables map[string]string
	modelVariables  []string
	outputFunctions map[string]govaluate.ExpressionFunction

	f      *os.File
	cf     *cdf.File
	record int
}

// aggregateFunctions are the names of the output functions that reduce a
// variable across all grid cells to a single value. Expressions that use
// one of these functions are evaluated once for the whole model domain
// instead of once per grid cell.
var aggregateFunctions = []string{"max", "mean", "min", "sum"}

// NewOutputter initializes a new Outputter holder and adds a set of default
// output functions. Default functions include:
//
// 'exp(x)' which applies the exponential function e^x.
//
// 'log(x)' which applies the natural logarithm function log(x).
//
// 'sqrt(x)' which applies the square root function √x.
//
// 'abs(x)' which applies the absolute value function |x|.
//
// 'sum(x)', 'mean(x)', 'min(x)' and 'max(x)' which aggregate a variable
// across all grid cells. The argument to an aggregating function must be
// a single model variable name; expressions that use an aggregating
// function produce one value for the whole model domain rather than one
// value per grid cell.
func NewOutputter(fileName string, allLayers bool, outputVariables map[string]string, outputFunctions map[string]govaluate.ExpressionFunction) (*Outputter, error) {
	defaultOutputFuncs := map[string]govaluate.ExpressionFunction{
		"exp": func(arg ...interface{}) (interface{}, error) {
			if len(arg) != 1 {
				return nil, fmt.Errorf("carbsea: got %d arguments for function 'exp', but needs 1", len(arg))
			}
			return (float64)(math.Exp(arg[0].(float64))), nil
		},
		"log": func(arg ...interface{}) (interface{}, error) {
			if len(arg) != 1 {
				return nil, fmt.Errorf("carbsea: got %d arguments for function 'log', but needs 1", len(arg))
			}
			return (float64)(math.Log(arg[0].(float64))), nil
		},
		"sqrt": func(arg ...interface{}) (interface{}, error) {
			if len(arg) != 1 {
				return nil, fmt.Errorf("carbsea: got %d arguments for function 'sqrt', but needs 1", len(arg))
			}
			return (float64)(math.Sqrt(arg[0].(float64))), nil
		},
		"abs": func(arg ...interface{}) (interface{}, error) {
			if len(arg) != 1 {
				return nil, fmt.Errorf("carbsea: got %d arguments for function 'abs', but needs 1", len(arg))
			}
			return (float64)(math.Abs(arg[0].(float64))), nil
		},
		"sum": func(arg ...interface{}) (interface{}, error) {
			if len(arg) != 1 {
				return nil, fmt.Errorf("carbsea: got %d arguments for function 'sum', but needs 1", len(arg))
			}
			return floats.Sum(arg[0].([]float64)), nil
		},
		"mean": func(arg ...interface{}) (interface{}, error) {
			if len(arg) != 1 {
				return nil, fmt.Errorf("carbsea: got %d arguments for function 'mean', but needs 1", len(arg))
			}
			x := arg[0].([]float64)
			if len(x) == 0 {
				return nil, fmt.Errorf("carbsea: function 'mean' of empty slice")
			}
			return floats.Sum(x) / float64(len(x)), nil
		},
		"min": func(arg ...interface{}) (interface{}, error) {
			if len(arg) != 1 {
				return nil, fmt.Errorf("carbsea: got %d arguments for function 'min', but needs 1", len(arg))
			}
			x := arg[0].([]float64)
			if len(x) == 0 {
				return nil, fmt.Errorf("carbsea: function 'min' of empty slice")
			}
			return floats.Min(x), nil
		},
		"max": func(arg ...interface{}) (interface{}, error) {
			if len(arg) != 1 {
				return nil, fmt.Errorf("carbsea: got %d arguments for function 'max', but needs 1", len(arg))
			}
			x := arg[0].([]float64)
			if len(x) == 0 {
				return nil, fmt.Errorf("carbsea: function 'max' of empty slice")
			}
			return floats.Max(x), nil
		},
	}

	for key, val := range outputFunctions {
		defaultOutputFuncs[key] = val
	}

	o := Outputter{
		fileName:        fileName,
		allLayers:       allLayers,
		outputVariables: outputVariables,
		outputFunctions: defaultOutputFuncs,
	}

	for _, val := range o.outputVariables {
		regx, _ := regexp.Compile("\\{(.*?)\\}")
		matches := regx.FindAllString(val, -1)
		if len(matches) > 0 {
			for _, m := range matches {
				if strings.Count(m, "{") > 1 || strings.Count(m, "}") > 1 {
					fmt.Println("carbsea o.outputVariables: unsupported use of braces {}")
				}
				o.outputVariables[m] = m[1 : len(m)-1]
			}
		}
	}

	err := o.checkForDerivatives()

	for k1, v1 := range o.outputVariables {
		if strings.Contains(k1, "{") {
			for k2, v2 := range o.outputVariables {
				if k1 != k2 {
					o.outputVariables[k2] = strings.Replace(v2, v1, "{"+v1+"}", -1)
				}
			}
			delete(o.outputVariables, k1)
		}
	}

	return &o, err
}

// removeDuplicates removes all duplicated strings from a slice, returning a
// slice that contains only unique strings.
func removeDuplicates(s []string) []string {
	result := make([]string, 0, len(s))
	seen := make(map[string]string)
	for _, val := range s {
		if _, ok := seen[val]; !ok {
			result = append(result, val)
			seen[val] = val
		}
	}
	return result
}

func checkPrefix(s string) (bool, error) {
	var isPrefix bool
	var err error
	if string(s) != "" {
		isPrefix, err = regexp.MatchString("[a-zA-Z0-9_]", string(s[0]))
		if err != nil {
			return false, err
		}
	} else {
		isPrefix = false
	}
	return isPrefix, nil
}

func checkSuffix(s string) (bool, error) {
	var isSuffix bool
	var err error
	if string(s) != "" {
		isSuffix, err = regexp.MatchString("[a-zA-Z0-9_]", string(s[len(s)-1]))
		if err != nil {
			return false, err
		}
	} else {
		isSuffix = false
	}
	return isSuffix, nil
}

// checkForDerivatives identifies the unique input variables that are required
// to calculate the requested output variables.
// Inputs:
// (1) Map of requested output variable names to their corresponding expressions.
// (2) Map of all function names to function definitions that are used in expressions.
// Outputs:
// (1) Map of output variable names to revised expressions where any user-defined
// output variable showing up in a subsequent expression is replaced by its
// corresponding user-defined expression.
// (2) Slice of all unique input variables required to calculate the requested
// output variables.
func (o *Outputter) checkForDerivatives() error {
	o.modelVariables = make([]string, 0, len(o.outputVariables))
	for key, val := range o.outputVariables {
		o.outputVariables[key] = strings.Replace(val, "{", "", -1)
		o.outputVariables[key] = strings.Replace(o.outputVariables[key], "}", "", -1)
		expression, err := govaluate.NewEvaluableExpressionWithFunctions(o.outputVariables[key], o.outputFunctions)
		if err != nil {
			return fmt.Errorf("carbsea o.outputVariables: %v", err)
		}
		uniqueVars := removeDuplicates(expression.Vars())
		o.modelVariables = append(o.modelVariables, uniqueVars...)
		// For each variable name identified in an output variable expression,
		// check if the variable is defined in terms of other variables within a
		// separate expression. If so, any instance of the variable name in the
		// current will be replaced by the expression that defines it.
		var isSuffix bool
		var isPrefix bool
		for _, uniqueVar := range uniqueVars {
			if o.outputVariables[uniqueVar] != "" && o.outputVariables[uniqueVar] != uniqueVar {
				// In order to verify that an instance of a variable name is not part of
				// a longer variable name, the text preceding and following the variable
				// name is analyzed. For example, 'Flux' is not a standalone variable
				// in an expression if it appears as 'CO2Flux'.
				splitVal := strings.Split(val, uniqueVar)
				for i := 0; i < len(splitVal)-1; i++ {
					isSuffix, err = checkSuffix(splitVal[i])
					if err != nil {
						return fmt.Errorf("carbsea o.outputVariables: %v", err)
					}
					isPrefix, err = checkPrefix(splitVal[i+1])
					if err != nil {
						return fmt.Errorf("carbsea o.outputVariables: %v", err)
					}
					splitVal[i] = splitVal[i] + uniqueVar
					// For every instance of the variable name that is not part of a
					// longer variable name, replace it by the expression that defines it.
					if !isSuffix && !isPrefix {
						splitVal[i] = strings.Replace(splitVal[i], uniqueVar, "("+o.outputVariables[uniqueVar]+")", -1)
					}
				}
				o.outputVariables[key] = strings.Join(splitVal, "")
				return o.checkForDerivatives()
			}
		}
	}
	o.modelVariables = removeDuplicates(o.modelVariables)
	return nil
}

// usesAggregate reports whether the expression calls one of the
// aggregating output functions.
func usesAggregate(expression string) (bool, error) {
	for _, name := range aggregateFunctions {
		match, err := regexp.MatchString("(\\W|^)"+name+"[ ]*\\(", expression)
		if err != nil {
			return false, err
		}
		if match {
			return true, nil
		}
	}
	return false, nil
}

// checkModelVars checks whether the unique input variables required to
// calculate the user-requested output variables are available in the model.
func (d *Simulation) checkModelVars(g ...string) error {
	outputOps, _, _ := d.OutputOptions()
	mapOutputOps := make(map[string]uint8)
	for _, n := range outputOps {
		mapOutputOps[n] = 0
	}
	for _, v := range g {
		if _, ok := mapOutputOps[v]; !ok {
			return fmt.Errorf("carbsea: undefined variable name '%s'", v)
		}
	}
	return nil
}

// checkOutputNames checks if any output variable names include characters
// that are unsupported in NetCDF variable names.
func checkOutputNames(o map[string]string) error {
	for key := range o {
		ok, err := regexp.MatchString("^[A-Za-z]\\w*$", key)
		if err != nil {
			panic(err)
		}
		if !ok {
			return fmt.Errorf("carbsea: output variable name '%s' includes unsupported character(s)", key)
		}
		if key == "time" {
			return fmt.Errorf("carbsea: output variable name 'time' is reserved")
		}
	}
	return nil
}

// CheckOutputVars ensures the output variables can be calculated.
func (o *Outputter) CheckOutputVars() DomainManipulator {
	return func(d *Simulation) error {
		if err := d.checkModelVars(o.modelVariables...); err != nil {
			return err
		} else if err := checkOutputNames(o.outputVariables); err != nil {
			return err
		} else {
			return nil
		}
	}
}

// OutputOptions returns the names of the variables that can be requested
// in simulation output, their descriptions, and their units.
func (d *Simulation) OutputOptions() (names []string, descriptions []string, units []string) {

	// Model tracer concentrations
	names = append(names, TracerNames...)
	sort.Strings(names)
	for _, n := range names {
		descriptions = append(descriptions, n+" concentration")
	}

	// Mechanism-defined variables
	if d.mechanism != nil {
		tempMech := make([]string, len(d.mechanism.Species()))
		copy(tempMech, d.mechanism.Species())
		sort.Strings(tempMech)
		names = append(names, tempMech...)
		descriptions = append(descriptions, tempMech...)
	}

	// Everything else
	t := reflect.TypeOf(Cell{})
	var tempNames []string
	var tempDescriptions []string
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		v := f.Name
		desc := f.Tag.Get("desc")
		if desc != "" {
			tempDescriptions = append(tempDescriptions, desc)
			tempNames = append(tempNames, v)
		}
	}
	names = append(names, tempNames...)
	descriptions = append(descriptions, tempDescriptions...)

	units = make([]string, len(names))
	for i, n := range names {
		units[i] = d.getUnits(n)
	}

	return
}

// Results returns the simulation results. Output is in the form of
// map[variable][row]value, where rows are ordered surface-layer first and
// then row-major within each layer. Expressions that use an aggregating
// function produce a single-element slice. If allLayers is true, the
// function returns data for all of the vertical layers, otherwise only
// the surface layer is returned.
func (d *Simulation) Results(o *Outputter) (map[string][]float64, error) {
	outputLay := 1
	if o.allLayers {
		outputLay = d.nz
	}

	results := make(map[string][]float64)
	for name, expStr := range o.outputVariables {
		expStr = strings.Replace(expStr, "{", "", -1)
		expStr = strings.Replace(expStr, "}", "", -1)
		expression, err := govaluate.NewEvaluableExpressionWithFunctions(expStr, o.outputFunctions)
		if err != nil {
			return nil, fmt.Errorf("carbsea o.outputVariables: %v", err)
		}
		uniqueVars := removeDuplicates(expression.Vars())

		aggregate, err := usesAggregate(expStr)
		if err != nil {
			return nil, fmt.Errorf("carbsea o.outputVariables: %v", err)
		}

		if aggregate {
			// Aggregating expressions see each variable as an array
			// spanning the output layers and are evaluated once.
			parameters := make(map[string]interface{}, len(uniqueVars))
			for _, v := range uniqueVars {
				data := make([]float64, 0, outputLay*d.ny*d.nx)
				for k := 0; k < outputLay; k++ {
					layerData, err := d.toArray(v, k)
					if err != nil {
						return nil, err
					}
					data = append(data, layerData...)
				}
				parameters[v] = data
			}
			result, err := expression.Evaluate(parameters)
			if err != nil {
				return nil, fmt.Errorf("carbsea: evaluating output variable %s: %v", name, err)
			}
			v, ok := result.(float64)
			if !ok {
				return nil, fmt.Errorf("carbsea: output variable %s: result is %T; expected float64", name, result)
			}
			results[name] = []float64{v}
			continue
		}

		cells := d.cells[:outputLay*d.ny*d.nx]
		data := make([]float64, len(cells))
		parameters := make(map[string]interface{}, len(uniqueVars))
		for i, c := range cells {
			c.RLock()
			for _, v := range uniqueVars {
				val, err := d.value(c, v)
				if err != nil {
					c.RUnlock()
					return nil, err
				}
				parameters[v] = val
			}
			c.RUnlock()
			result, err := expression.Evaluate(parameters)
			if err != nil {
				return nil, fmt.Errorf("carbsea: evaluating output variable %s: %v", name, err)
			}
			v, ok := result.(float64)
			if !ok {
				return nil, fmt.Errorf("carbsea: output variable %s: result is %T; expected float64", name, result)
			}
			data[i] = v
		}
		results[name] = data
	}
	return results, nil
}

// Output returns a function that writes the requested output variables
// to the Outputter's NetCDF file, appending one record along the file's
// unlimited time dimension on every call. The file is created on the
// first call; Close finishes it.
func (o *Outputter) Output() DomainManipulator {
	return func(d *Simulation) error {
		results, err := d.Results(o)
		if err != nil {
			return err
		}
		if o.cf == nil {
			if err := o.createFile(d, results); err != nil {
				return err
			}
		}
		return o.writeRecord(d, results)
	}
}

// createFile creates the output NetCDF file, defining one record variable
// for each entry in results.
func (o *Outputter) createFile(d *Simulation, results map[string][]float64) error {
	if o.fileName == "" {
		return fmt.Errorf("carbsea: output file name is empty")
	}

	dims := []string{"time", "y", "x"}
	lengths := []int{0, d.ny, d.nx}
	if o.allLayers {
		dims = []string{"time", "z", "y", "x"}
		lengths = []int{0, d.nz, d.ny, d.nx}
	}
	h := cdf.NewHeader(dims, lengths)
	h.AddAttribute("", "comment", "CarbSea model output file")
	h.AddAttribute("", "nx", []int32{int32(d.nx)})
	h.AddAttribute("", "ny", []int32{int32(d.ny)})
	h.AddAttribute("", "nz", []int32{int32(d.nz)})

	h.AddVariable("time", []string{"time"}, []float64{0})
	h.AddAttribute("time", "description", "elapsed simulation time")
	h.AddAttribute("time", "units", "s")

	// Sort the names so they write in the same order every time.
	names := make([]string, 0, len(results))
	for n := range results {
		names = append(names, n)
	}
	sort.Strings(names)

	for _, name := range names {
		if len(results[name]) == 1 {
			h.AddVariable(name, []string{"time"}, []float32{0})
		} else {
			h.AddVariable(name, dims, []float32{0})
		}
		h.AddAttribute(name, "description", o.outputVariables[name])
		h.AddAttribute(name, "units", d.getUnits(name))
	}
	h.Define()

	ff, err := os.Create(o.fileName)
	if err != nil {
		return fmt.Errorf("carbsea: creating output file: %v", err)
	}
	f, err := cdf.Create(ff, h) // writes the header to ff
	if err != nil {
		ff.Close()
		return fmt.Errorf("carbsea: creating output file: %v", err)
	}
	o.f = ff
	o.cf = f
	o.record = 0
	return nil
}

// writeRecord appends the current results to the output file as one
// record along the time dimension.
func (o *Outputter) writeRecord(d *Simulation, results map[string][]float64) error {
	w := o.cf.Writer("time", []int{o.record}, nil)
	if _, err := w.Write([]float64{d.t}); err != nil {
		return fmt.Errorf("carbsea: writing output file: %v", err)
	}

	names := make([]string, 0, len(results))
	for n := range results {
		names = append(names, n)
	}
	sort.Strings(names)

	for _, name := range names {
		data := results[name]
		if len(data) == 1 {
			w := o.cf.Writer(name, []int{o.record}, nil)
			if _, err := w.Write([]float32{float32(data[0])}); err != nil {
				return fmt.Errorf("carbsea: writing output variable %s: %v", name, err)
			}
			continue
		}
		arr := sparse.ZerosDense(d.ny, d.nx)
		if o.allLayers {
			arr = sparse.ZerosDense(d.nz, d.ny, d.nx)
		}
		copy(arr.Elements, data)
		if err := writeNCFRecord(o.cf, name, o.record, arr); err != nil {
			return fmt.Errorf("carbsea: writing output variable %s: %v", name, err)
		}
	}
	o.record++
	return nil
}

// writeNCFRecord writes data to the named record variable in f as the
// record with the given index.
func writeNCFRecord(f *cdf.File, Var string, record int, data *sparse.DenseArray) error {
	// Check that data matches dimensions.
	n := 1
	for _, v := range data.Shape {
		n *= v
	}
	if len(data.Elements) != n {
		return fmt.Errorf("dims are %d but array length is %d", n, len(data.Elements))
	}

	data32 := make([]float32, len(data.Elements))
	for i, e := range data.Elements {
		data32[i] = float32(e)
	}
	begin := make([]int, len(data.Shape)+1)
	begin[0] = record
	w := f.Writer(Var, begin, nil)
	_, err := w.Write(data32)
	return err
}

// Close finishes the output file, writing the number of completed
// records into its header. It is safe to call Close when no file has
// been created.
func (o *Outputter) Close() error {
	if o.f == nil {
		return nil
	}
	err := cdf.UpdateNumRecs(o.f)
	if cerr := o.f.Close(); err == nil {
		err = cerr
	}
	o.f = nil
	o.cf = nil
	if err != nil {
		return fmt.Errorf("carbsea: closing output file: %v", err)
	}
	return nil
}

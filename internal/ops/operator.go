// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package ops

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/hyperlight-cam/hyperlight/internal/frame"
	"github.com/hyperlight-cam/hyperlight/internal/pipeline"
	"github.com/hyperlight-cam/hyperlight/internal/stats"
	"github.com/pbnjay/memory"
)

// An execution context for operators. File access and loading run concurrently,
// pipeline stages are serialized via Locked
type Context struct {
	Log        io.Writer
	MemoryMB   int  // memory.TotalMemory()/1024/1024
	MaxThreads int  `json:"maxThreads"`
	Sandboxed  bool // only relative file names inside the current directory tree
	Pipeline   *pipeline.Pipeline
	Strategy   pipeline.Strategy

	mu sync.Mutex
}

func NewContext(log io.Writer, p *pipeline.Pipeline, s pipeline.Strategy) *Context {
	return &Context{
		Log:        log,
		MemoryMB:   int(memory.TotalMemory() / 1024 / 1024),
		MaxThreads: runtime.GOMAXPROCS(0),
		Pipeline:   p,
		Strategy:   s,
	}
}

// Runs fn with exclusive use of the pipeline and the strategy
func (c *Context) Locked(fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fn()
}

// Number of frames which fit into the given share of memory, at least one
func (c *Context) FramesInMemory(percent int) int {
	g := c.Pipeline.Geometry()
	bytesPerFrame := int64(g.ActivePixels())*2*frame.BytesPerPixel + int64(g.SensorPixels())*frame.BytesPerPixel
	n := int(int64(c.MemoryMB) * 1024 * 1024 * int64(percent) / 100 / bytesPerFrame)
	if n < 1 {
		n = 1
	}
	return n
}

// A promise for a frame. Returns a materialized frame, or an error
type Promise func() (f *frame.Frame, err error)

// Materializes all promises with given concurrency limit
func MaterializeAll(ins []Promise, maxThreads int, forget bool) (outs []*frame.Frame, err error) {
	if len(ins) == 0 {
		return nil, nil
	}
	if maxThreads < 1 {
		maxThreads = 1
	}
	if !forget {
		outs = make([]*frame.Frame, len(ins))
	}
	limiter := make(chan bool, maxThreads)
	errs := make(chan error, len(ins))
	for i, in := range ins {
		limiter <- true
		go func(i int, theIn Promise) {
			defer func() { <-limiter }()
			f, err := theIn() // materialize the promise
			if err != nil {
				errs <- err
				return
			}
			if !forget {
				outs[i] = f
			}
			errs <- nil
		}(i, in)
	}
	for i := 0; i < cap(limiter); i++ { // wait for goroutines to finish
		limiter <- true
	}
	for i := 0; i < len(ins); i++ { // collect errors
		if e := <-errs; e != nil {
			if err == nil {
				err = e
			} else {
				err = fmt.Errorf("%s; %s", err.Error(), e.Error())
			}
		}
	}
	return RemoveNils(outs), err
}

// Remove nils from an array of frames, editing the underlying array in place
func RemoveNils(frames []*frame.Frame) []*frame.Frame {
	o := 0
	for i := 0; i < len(frames); i++ {
		if frames[i] != nil {
			frames[o] = frames[i]
			o++
		}
	}
	for i := o; i < len(frames); i++ {
		frames[i] = nil
	}
	return frames[:o]
}

// A general frame processing operator: takes n promises as inputs,
// and produces m promises as output or an error
type Operator interface {
	GetType() string
	IsActive() bool
	MakePromises(ins []Promise, c *Context) (outs []Promise, err error)
}

// Base type for operators, including type information for JSON serializing/deserializing
type OpBase struct {
	Type   string `json:"type"`
	Active bool   `json:"active"`
}

func (op *OpBase) GetType() string { return op.Type }
func (op *OpBase) IsActive() bool { return op.Active }

// Factory method for subclasses of operators. For JSON serializing/deserializing
type OperatorFactory func() Operator

// Mapping from operator type strings to factory method for the type
var operatorFactories = map[string]OperatorFactory{}

// Returns the operator factory for a given type string
func GetOperatorFactory(t string) OperatorFactory {
	return operatorFactories[t]
}

// Registers a given type string for a given type of Operator, identified via an exemplar generator
func SetOperatorFactory(f OperatorFactory) {
	op := f()
	t := op.GetType()
	if GetOperatorFactory(t) != nil {
		panic(fmt.Sprintf("error: re-registering operator key %s\n", t))
	}
	operatorFactories[t] = f
}

// Unmarshals a single polymorphic operator, dispatching on its type field
func UnmarshalOperator(raw json.RawMessage) (Operator, error) {
	var base OpBase
	if err := json.Unmarshal(raw, &base); err != nil {
		return nil, err
	}
	factory := GetOperatorFactory(base.Type)
	if factory == nil {
		return nil, fmt.Errorf("unknown operator type '%s' in raw JSON message '%s'", base.Type, string(raw))
	}
	op := factory()
	if err := json.Unmarshal(raw, op); err != nil {
		return nil, err
	}
	return op, nil
}

// A unary frame processing operator: given n promises as inputs,
// applies itself to each of them individually and returns n output promises or an error
type OperatorUnary interface {
	Operator
	Apply(f *frame.Frame, c *Context) (fOut *frame.Frame, err error)
}

// Abstract base type for unary operators. Uses golang workaround for abstract classes
// from https://golangbyexample.com/go-abstract-class/
type OpUnaryBase struct {
	OpBase
	Apply func(f *frame.Frame, c *Context) (fOut *frame.Frame, err error) `json:"-"`
}

func (op *OpUnaryBase) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	if len(ins) == 0 {
		return nil, fmt.Errorf("unary operator %s with %d inputs", op.Type, len(ins))
	}
	outs = make([]Promise, len(ins))
	for i, in := range ins {
		outs[i] = op.MakePromise(in, c)
	}
	return outs, nil
}

func (op *OpUnaryBase) MakePromise(in Promise, c *Context) (out Promise) {
	return func() (f *frame.Frame, err error) {
		if f, err = in(); err != nil { // materialize input promise
			return nil, err
		}
		if f, err = op.Apply(f, c); err != nil { // apply unary operator
			return nil, err
		}
		return f, nil // wrap output in promise
	}
}

// File formats for loading frames
const (
	FormatSensor = "sensor" // Full sensor frame, cropped on load
	FormatActive = "active" // Active area dump, such as a snapshot or a reference
)

// Load a single frame from a single filename. Takes zero inputs, produces one output
type OpLoad struct {
	OpBase
	ID       int    `json:"id"`
	FileName string `json:"fileName"`
	Format   string `json:"format"`
}

func init() { SetOperatorFactory(func() Operator { return NewOpLoadDefault() }) } // register the operator for JSON decoding

func NewOpLoadDefault() *OpLoad { return NewOpLoad(0, "", FormatSensor) }

func NewOpLoad(id int, fileName, format string) *OpLoad {
	return &OpLoad{
		OpBase:   OpBase{Type: "load", Active: true},
		ID:       id,
		FileName: fileName,
		Format:   format,
	}
}

// Load frame from a file. Takes no inputs
func (op *OpLoad) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	if len(ins) > 0 {
		return nil, fmt.Errorf("%s operator with non-zero input", op.Type)
	}
	if c.Sandboxed && !IsPathAllowed(op.FileName) {
		return nil, errors.New("Filename outside current directory tree, aborting")
	}

	out := func() (f *frame.Frame, err error) {
		// no inputs to materialize
		return op.Apply(nil, c)
	}
	return []Promise{out}, nil
}

// Returns true if a path is considered safe, i.e. not an absolute path,
// and doesn't contain the ".." characters to change to a parent directory
func IsPathAllowed(p string) bool {
	if filepath.IsAbs(p) { // relative paths only
		return false
	}
	if strings.Contains(p, "..") { // no going outside the tree
		return false
	}
	return true
}

func (op *OpLoad) Apply(_ *frame.Frame, c *Context) (f *frame.Frame, err error) {
	var g frame.Geometry
	c.Locked(func() error { g = c.Pipeline.Geometry(); return nil })

	switch op.Format {
	case FormatActive:
		f, err = frame.NewFrameFromFile(g, op.FileName, op.ID)
		if err != nil {
			return nil, err
		}
	case FormatSensor, "":
		full, err := frame.ReadSensorFrameFile(g, op.FileName)
		if err != nil {
			return nil, fmt.Errorf("%d: %w", op.ID, err)
		}
		err = c.Locked(func() (err error) {
			f, err = c.Pipeline.Crop(full, c.Strategy)
			return err
		})
		if err != nil {
			return nil, err
		}
		f.ID, f.FileName = op.ID, op.FileName
	default:
		return nil, fmt.Errorf("%d: unknown format '%s' for %s", op.ID, op.Format, op.FileName)
	}

	s := stats.NewStats(f.Raw)
	warning := ""
	if s.Max == s.Min {
		warning = "; WARNING uniform intensity"
	}
	fmt.Fprintf(c.Log, "%d: Loaded %s frame with %v from %s%s\n",
		f.ID, f.DimensionsToString(), s, f.FileName, warning)
	return f, nil
}

// Load many frames from a slice of filename patterns with wildcards.
// Takes zero inputs, produces n outputs
type OpLoadMany struct {
	OpBase
	FilePatterns []string `json:"filePatterns"`
	Format       string   `json:"format"`
}

func init() { SetOperatorFactory(func() Operator { return NewOpLoadManyDefault() }) } // register the operator for JSON decoding

func NewOpLoadManyDefault() *OpLoadMany { return NewOpLoadMany(nil, FormatSensor) }

func NewOpLoadMany(filePatterns []string, format string) *OpLoadMany {
	return &OpLoadMany{
		OpBase:       OpBase{Type: "loadMany", Active: true},
		FilePatterns: filePatterns,
		Format:       format,
	}
}

// Turn filename wildcards into list of file load operators
func (op *OpLoadMany) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	if len(ins) > 0 {
		return nil, fmt.Errorf("%s operator with non-zero input", op.Type)
	}
	for _, pattern := range op.FilePatterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, err
		}
		for _, match := range matches {
			if c.Sandboxed && !IsPathAllowed(match) {
				fmt.Fprintf(c.Log, "Pattern match outside current directory tree, skipping\n")
				continue
			}
			opLoad := NewOpLoad(len(outs), match, op.Format)
			promises, err := opLoad.MakePromises(nil, c)
			if err != nil {
				return nil, err
			}
			if len(promises) != 1 {
				return nil, fmt.Errorf("%s operator did not return exactly one promise", opLoad.Type)
			}
			outs = append(outs, promises[0])
		}
	}
	if len(outs) == 0 {
		return nil, fmt.Errorf("%s operator with no files to load from pattern %v", op.Type, op.FilePatterns)
	}
	fmt.Fprintf(c.Log, "Found %d files.\n", len(outs))
	return outs, nil
}

// Saves the raw active area of a given promise under a given filename, with pattern
// expansion for %d based on the frame id.
// Takes one input, produces one output (the materialized but unchanged input)
type OpSave struct {
	OpUnaryBase
	FilePattern string `json:"filePattern"`
	Overwrite   bool   `json:"overwrite"`
}

func init() { SetOperatorFactory(func() Operator { return NewOpSaveDefault() }) } // register the operator for JSON decoding

func NewOpSaveDefault() *OpSave { return NewOpSave("", false) }

func NewOpSave(filenamePattern string, overwrite bool) *OpSave {
	op := OpSave{
		OpUnaryBase: OpUnaryBase{OpBase: OpBase{Type: "save", Active: filenamePattern != ""}},
		FilePattern: filenamePattern,
		Overwrite:   overwrite,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return &op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpSave) UnmarshalJSON(data []byte) error {
	type defaults OpSave
	def := defaults(*NewOpSaveDefault())
	err := json.Unmarshal(data, &def)
	if err != nil {
		return err
	}
	*op = OpSave(def)
	op.OpUnaryBase.Apply = op.Apply
	return nil
}

// Expands %d in a file name pattern with the given id
func ExpandPattern(pattern string, id int) string {
	if strings.Contains(pattern, "%d") || strings.Contains(pattern, "%0") {
		return fmt.Sprintf(pattern, id)
	}
	return pattern
}

func (op *OpSave) Apply(f *frame.Frame, c *Context) (result *frame.Frame, err error) {
	if !op.Active || op.FilePattern == "" {
		return f, nil
	}
	fileName := ExpandPattern(op.FilePattern, f.ID)
	if c.Sandboxed && !IsPathAllowed(fileName) {
		return nil, errors.New("Filename outside current directory tree, aborting")
	}
	fnLower := strings.ToLower(fileName)

	if strings.HasSuffix(fnLower, ".raw") || strings.HasSuffix(fnLower, frame.SnapshotSuffix) || strings.HasSuffix(fnLower, ".bin") {
		fmt.Fprintf(c.Log, "%d: Writing %s pixel raw active area to %s\n", f.ID, f.DimensionsToString(), fileName)
		if op.Overwrite {
			err = f.SaveForce(fileName)
		} else {
			err = f.Save(fileName)
		}
	} else {
		err = errors.New("Unknown suffix")
	}
	if err != nil {
		return nil, fmt.Errorf("%d: Error writing to file %s: %w", f.ID, fileName, err)
	}
	return f, nil
}

// Applies a sequence of operators to a promise. Number of inputs, outputs as per the chained steps
type OpSequence struct {
	OpBase
	Steps    []Operator        `json:"-"`     // the actual steps
	StepsRaw []json.RawMessage `json:"steps"` // helper for unmarshaling
}

func init() { SetOperatorFactory(func() Operator { return NewOpSequenceDefault() }) } // register the operator for JSON decoding

func NewOpSequenceDefault() *OpSequence { return NewOpSequence() }

func NewOpSequence(steps ...Operator) *OpSequence {
	return &OpSequence{
		OpBase: OpBase{Type: "seq", Active: len(steps) > 0},
		Steps:  steps,
	}
}

// Unmarshals a sequence of polymorphic operators from JSON.
// Uses temporary op.StepsRaw inspired by https://alexkappa.medium.com/json-polymorphism-in-go-4cade1e58ed1
func (op *OpSequence) UnmarshalJSON(b []byte) error {
	type alias OpSequence
	err := json.Unmarshal(b, (*alias)(op))
	if err != nil {
		return err
	}

	op.Steps = nil
	for _, raw := range op.StepsRaw {
		step, err := UnmarshalOperator(raw)
		if err != nil {
			return err
		}
		op.Steps = append(op.Steps, step)
	}
	op.StepsRaw = nil
	return nil
}

// Appends one or more operators to the existing sequence
func (op *OpSequence) Append(steps ...Operator) {
	op.Steps = append(op.Steps, steps...)
	op.Active = op.Active || len(steps) > 0
}

// Marshals a sequence with polymorphic operators to JSON.
// Uses the actual op.Steps with label "steps", and ignores op.StepsRaw
func (op *OpSequence) MarshalJSON() (bs []byte, err error) {
	buf := bytes.Buffer{}
	buf.WriteString("{\"type\":")
	inner, err := json.Marshal(op.Type)
	if err != nil {
		return nil, err
	}
	buf.Write(inner)
	fmt.Fprintf(&buf, ", \"active\":%v, \"steps\":", op.Active)
	inner, err = json.Marshal(op.Steps)
	if err != nil {
		return nil, err
	}
	buf.Write(inner)
	buf.WriteRune('}')
	return buf.Bytes(), nil
}

func (op *OpSequence) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	return op.applyRecursive(op.Steps, ins, c)
}

func (op *OpSequence) applyRecursive(steps []Operator, ins []Promise, c *Context) (outs []Promise, err error) {
	if len(steps) == 0 {
		return ins, nil
	}
	if steps[0].IsActive() {
		ins, err = steps[0].MakePromises(ins, c)
		if err != nil {
			return nil, err
		}
	}
	return op.applyRecursive(steps[1:], ins, c)
}

// Applies a single operator to each input. Takes n inputs, produces n outputs
type OpForEach struct {
	OpBase
	Operation Operator `json:"operation"`
}

func init() { SetOperatorFactory(func() Operator { return NewOpForEachDefault() }) } // register the operator for JSON decoding

func NewOpForEachDefault() *OpForEach { return NewOpForEach(nil) }

func NewOpForEach(operation Operator) *OpForEach {
	return &OpForEach{
		OpBase:    OpBase{Type: "forEach", Active: operation != nil},
		Operation: operation,
	}
}

// Unmarshals the polymorphic embedded operation from JSON
func (op *OpForEach) UnmarshalJSON(b []byte) error {
	var aux struct {
		OpBase
		Operation json.RawMessage `json:"operation"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	op.OpBase = aux.OpBase
	op.Operation = nil
	if len(aux.Operation) == 0 || string(aux.Operation) == "null" {
		return nil
	}
	operation, err := UnmarshalOperator(aux.Operation)
	if err != nil {
		return err
	}
	op.Operation = operation
	return nil
}

// Applies the operation to each input individually
func (op *OpForEach) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	if len(ins) == 0 {
		return ins, nil
	}
	if op.Operation == nil {
		return nil, fmt.Errorf("%s operator has no operation to apply", op.Type)
	}
	for _, in := range ins {
		out, err := op.Operation.MakePromises([]Promise{in}, c)
		if err != nil {
			return nil, err
		}
		if len(out) != 1 {
			return nil, fmt.Errorf("%s operator needs exactly one promise from embedded operation", op.Type)
		}
		outs = append(outs, out[0])
	}
	return outs, nil
}

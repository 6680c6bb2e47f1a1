// yamnet.go: TFLite YAMNet scorer. The model outputs per-frame class
// probabilities for the AudioSet ontology; the bark score of a window is
// the maximum probability among the bark-related classes.
package detector

import (
	"encoding/csv"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"

	tflite "github.com/tphakala/go-tflite"
	"github.com/tphakala/go-tflite/delegates/xnnpack"

	"github.com/barkwatch/barkwatch/internal/conf"
	"github.com/barkwatch/barkwatch/internal/errors"
	"github.com/barkwatch/barkwatch/internal/event"
)

// YAMNet wraps a TFLite YAMNet model for bark scoring.
type YAMNet struct {
	mu          sync.Mutex
	interpreter *tflite.Interpreter
	barkIndices []int
}

// NewYAMNet loads the model and class map and prepares the interpreter
// for windows of windowSamples samples. All load failures surface here,
// once; scoring never retries loading.
func NewYAMNet(settings *conf.ModelSettings, windowSamples int) (*YAMNet, error) {
	modelData, err := os.ReadFile(settings.Path)
	if err != nil {
		return nil, errors.New(err).
			Component("detector").
			Category(errors.CategoryModelInit).
			Context("model_path", settings.Path).
			Build()
	}

	model := tflite.NewModel(modelData)
	if model == nil {
		return nil, errors.Newf("cannot parse TensorFlow Lite model").
			Component("detector").
			Category(errors.CategoryModelInit).
			Context("model_path", settings.Path).
			Build()
	}

	threads := settings.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}

	options := tflite.NewInterpreterOptions()
	if settings.UseXNNPACK {
		delegate := xnnpack.New(xnnpack.DelegateOptions{NumThreads: int32(max(1, threads-1))}) //nolint:gosec // G115: thread count bounded by CPU count
		if delegate != nil {
			options.AddDelegate(delegate)
			options.SetNumThread(1)
		} else {
			options.SetNumThread(threads)
		}
	} else {
		options.SetNumThread(threads)
	}

	interpreter := tflite.NewInterpreter(model, options)
	if interpreter == nil {
		return nil, errors.Newf("cannot create TensorFlow Lite interpreter").
			Component("detector").
			Category(errors.CategoryModelInit).
			Build()
	}
	if status := interpreter.AllocateTensors(); status != tflite.OK {
		return nil, errors.Newf("tensor allocation failed").
			Component("detector").
			Category(errors.CategoryModelInit).
			Build()
	}

	// YAMNet distributions ship varying waveform input lengths (often a
	// dynamic dim, or 15600 samples); resize once to the window length so
	// the whole window is scored.
	input := interpreter.GetInputTensor(0)
	if input == nil {
		return nil, errors.Newf("cannot get input tensor").
			Component("detector").
			Category(errors.CategoryModelInit).
			Build()
	}
	if len(input.Float32s()) != windowSamples {
		if status := interpreter.ResizeInputTensor(0, []int32{int32(windowSamples)}); status != tflite.OK {
			return nil, errors.Newf("cannot resize input tensor to %d samples", windowSamples).
				Component("detector").
				Category(errors.CategoryModelInit).
				Build()
		}
		if status := interpreter.AllocateTensors(); status != tflite.OK {
			return nil, errors.Newf("tensor allocation failed after input resize").
				Component("detector").
				Category(errors.CategoryModelInit).
				Build()
		}
		input = interpreter.GetInputTensor(0)
		if input == nil || len(input.Float32s()) != windowSamples {
			return nil, errors.Newf("input tensor size mismatch after resize").
				Component("detector").
				Category(errors.CategoryModelInit).
				Context("window_samples", windowSamples).
				Build()
		}
	}

	barkIndices, err := loadBarkClassIndices(settings.ClassMapPath, settings.LabelSubstrings)
	if err != nil {
		return nil, err
	}

	return &YAMNet{interpreter: interpreter, barkIndices: barkIndices}, nil
}

// Score runs inference over the window and returns the maximum bark-class
// probability across the model's output frames.
func (y *YAMNet) Score(samples []float32) (Result, error) {
	y.mu.Lock()
	defer y.mu.Unlock()

	input := y.interpreter.GetInputTensor(0)
	if input == nil {
		return Result{}, errors.Newf("cannot get input tensor").
			Component("detector").
			Category(errors.CategoryModelInference).
			Build()
	}
	in := input.Float32s()
	if len(in) != len(samples) {
		return Result{}, errors.Newf("input tensor holds %d samples, window has %d", len(in), len(samples)).
			Component("detector").
			Category(errors.CategoryModelInference).
			Build()
	}
	copy(in, samples)

	if status := y.interpreter.Invoke(); status != tflite.OK {
		return Result{}, errors.Newf("tensor invoke failed: %v", status).
			Component("detector").
			Category(errors.CategoryModelInference).
			Build()
	}

	output := y.interpreter.GetOutputTensor(0)
	if output == nil {
		return Result{}, errors.Newf("cannot get output tensor").
			Component("detector").
			Category(errors.CategoryModelInference).
			Build()
	}

	predictions := output.Float32s()
	numClasses := output.Dim(output.NumDims() - 1)
	if numClasses <= 0 {
		return Result{}, errors.Newf("unexpected output tensor shape").
			Component("detector").
			Category(errors.CategoryModelInference).
			Build()
	}

	var best float32
	for frame := 0; frame+numClasses <= len(predictions); frame += numClasses {
		for _, idx := range y.barkIndices {
			if idx < numClasses && predictions[frame+idx] > best {
				best = predictions[frame+idx]
			}
		}
	}

	score := float64(best)
	if score < 0 {
		score = 0
	} else if score > 1 {
		score = 1
	}
	return Result{Score: score, Source: event.SourceML}, nil
}

// Source returns the ml source label.
func (y *YAMNet) Source() string {
	return event.SourceML
}

// loadBarkClassIndices parses the YAMNet class map CSV and returns the
// indices of classes whose display name contains any of the substrings.
func loadBarkClassIndices(path string, substrings []string) ([]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.New(err).
			Component("detector").
			Category(errors.CategoryModelInit).
			Context("class_map_path", path).
			Build()
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		return nil, errors.New(fmt.Errorf("reading class map header: %w", err)).
			Component("detector").
			Category(errors.CategoryModelInit).
			Build()
	}

	nameColumn := -1
	for i, col := range header {
		if strings.EqualFold(strings.TrimSpace(col), "display_name") {
			nameColumn = i
			break
		}
	}
	if nameColumn < 0 {
		return nil, errors.Newf("class map has no display_name column").
			Component("detector").
			Category(errors.CategoryModelInit).
			Context("class_map_path", path).
			Build()
	}

	lowered := make([]string, len(substrings))
	for i, s := range substrings {
		lowered[i] = strings.ToLower(s)
	}

	var indices []int
	row := 0
	for {
		record, err := reader.Read()
		if err != nil {
			break
		}
		if nameColumn < len(record) {
			name := strings.ToLower(record[nameColumn])
			for _, sub := range lowered {
				if strings.Contains(name, sub) {
					indices = append(indices, row)
					break
				}
			}
		}
		row++
	}

	if row == 0 {
		return nil, errors.Newf("class map is empty").
			Component("detector").
			Category(errors.CategoryModelInit).
			Context("class_map_path", path).
			Build()
	}
	if len(indices) == 0 {
		return nil, errors.Newf("no classes matched the configured label substrings").
			Component("detector").
			Category(errors.CategoryModelInit).
			Context("substrings", strings.Join(substrings, ",")).
			Build()
	}

	return indices, nil
}

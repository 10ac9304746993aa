package network

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"gatenet/internal/nn"
)

const defaultTargetError = 0.05

// Sample is one input/target pair of a dataset.
type Sample struct {
	Input  []float64 `json:"input"`
	Output []float64 `json:"output"`
}

type CrossValidation struct {
	// TestSize is the trailing fraction of the dataset held out for testing.
	TestSize float64
	// TestError stops training once the held-out error reaches it.
	TestError float64
}

// Progress is reported to Schedule callbacks.
type Progress struct {
	Iteration int
	Error     float64
	Rate      float64
}

type Schedule struct {
	Iterations int
	Func       func(Progress)
}

// TrainOptions configures Train. Error 0 means unset: training then runs to
// the iteration cap, or to 0.05 when no cap is given. A negative Error always
// runs to the cap. Rate 0 uses 0.3.
type TrainOptions struct {
	Rate          float64
	Iterations    int
	Error         float64
	Cost          nn.Cost
	Shuffle       bool
	Momentum      float64
	Dropout       float64
	CrossValidate *CrossValidation
	Clear         bool
	Schedule      *Schedule
	Log           int
	RatePolicy    nn.RatePolicy
	Rand          *rand.Rand
	Logger        *slog.Logger
}

type TrainResult struct {
	Error      float64
	Iterations int
	Elapsed    time.Duration
}

type TestResult struct {
	Error   float64
	Elapsed time.Duration
}

func (n *Network) checkDataset(set []Sample) error {
	if len(set) == 0 {
		return fmt.Errorf("%w: empty dataset", ErrInvalidOptions)
	}
	for i, s := range set {
		if len(s.Input) != n.input || len(s.Output) != n.output {
			return fmt.Errorf("%w: sample %d has %d inputs and %d outputs, network has %d and %d",
				ErrSizeMismatch, i, len(s.Input), len(s.Output), n.input, n.output)
		}
	}
	return nil
}

// Train runs online gradient learning over the dataset until the target
// error or the iteration cap is reached.
func (n *Network) Train(set []Sample, opts TrainOptions) (TrainResult, error) {
	if err := n.checkDataset(set); err != nil {
		return TrainResult{}, err
	}
	if opts.Iterations < 0 {
		return TrainResult{}, fmt.Errorf("%w: iterations must be >= 0", ErrInvalidOptions)
	}
	if opts.Dropout < 0 || opts.Dropout >= 1 {
		return TrainResult{}, fmt.Errorf("%w: dropout must be in [0, 1)", ErrInvalidOptions)
	}
	if !opts.Cost.Valid() {
		return TrainResult{}, fmt.Errorf("%w: cost %s", ErrInvalidOptions, opts.Cost)
	}
	if (opts.Shuffle || opts.Dropout > 0) && opts.Rand == nil {
		return TrainResult{}, ErrNoRandomSource
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	target := opts.Error
	if target == 0 {
		if opts.Iterations == 0 {
			logger.Warn("no target error or iterations given, training until default error", "error", defaultTargetError)
			target = defaultTargetError
		} else {
			target = -1
		}
	}
	if target < 0 && opts.Iterations == 0 {
		return TrainResult{}, fmt.Errorf("%w: training needs a target error or an iteration cap", ErrInvalidOptions)
	}
	baseRate := opts.Rate
	if baseRate == 0 {
		logger.Warn("no learning rate given, using default", "rate", defaultRate)
		baseRate = defaultRate
	}

	trainSet := append([]Sample(nil), set...)
	var testSet []Sample
	cv := opts.CrossValidate
	if cv != nil {
		if cv.TestSize <= 0 || cv.TestSize >= 1 {
			return TrainResult{}, fmt.Errorf("%w: cross validation test size must be in (0, 1)", ErrInvalidOptions)
		}
		numTrain := int(math.Ceil((1 - cv.TestSize) * float64(len(set))))
		if numTrain >= len(set) {
			return TrainResult{}, fmt.Errorf("%w: cross validation leaves no test samples", ErrInvalidOptions)
		}
		trainSet, testSet = trainSet[:numTrain], trainSet[numTrain:]
	}

	start := time.Now()
	n.Dropout = opts.Dropout
	errVal := 1.0
	iteration := 0
	for errVal > target && (opts.Iterations == 0 || iteration < opts.Iterations) {
		if cv != nil && errVal <= cv.TestError {
			break
		}
		iteration++
		rate := opts.RatePolicy.Rate(baseRate, iteration)

		sum, err := n.trainEpoch(trainSet, rate, opts.Momentum, opts.Cost, opts.Rand)
		if err != nil {
			return TrainResult{}, err
		}
		if opts.Clear {
			n.Clear()
		}
		if cv != nil {
			res, err := n.Test(testSet, opts.Cost)
			if err != nil {
				return TrainResult{}, err
			}
			errVal = res.Error
			if opts.Clear {
				n.Clear()
			}
		} else {
			errVal = sum / float64(len(trainSet))
		}

		if opts.Shuffle {
			opts.Rand.Shuffle(len(trainSet), func(i, j int) {
				trainSet[i], trainSet[j] = trainSet[j], trainSet[i]
			})
		}
		if opts.Log > 0 && iteration%opts.Log == 0 {
			logger.Info("training", "iteration", iteration, "error", errVal, "rate", rate)
		}
		if s := opts.Schedule; s != nil && s.Func != nil && s.Iterations > 0 && iteration%s.Iterations == 0 {
			s.Func(Progress{Iteration: iteration, Error: errVal, Rate: rate})
		}
	}

	if opts.Clear {
		n.Clear()
	}
	if opts.Dropout > 0 {
		for _, id := range n.order {
			if nd := n.nodes[id]; nd.role == RoleHidden || nd.role == RoleConstant {
				nd.Mask = 1 - opts.Dropout
			}
		}
	}
	return TrainResult{Error: errVal, Iterations: iteration, Elapsed: time.Since(start)}, nil
}

func (n *Network) trainEpoch(set []Sample, rate, momentum float64, cost nn.Cost, rng *rand.Rand) (float64, error) {
	var sum float64
	for _, s := range set {
		out, err := n.activate(s.Input, true, rng, true)
		if err != nil {
			return 0, err
		}
		if err := n.Propagate(s.Output, rate, momentum); err != nil {
			return 0, err
		}
		sum += cost.Compute(s.Output, out)
	}
	return sum, nil
}

// Test returns the mean cost over the dataset without learning.
func (n *Network) Test(set []Sample, cost nn.Cost) (TestResult, error) {
	if err := n.checkDataset(set); err != nil {
		return TestResult{}, err
	}
	start := time.Now()
	var sum float64
	for _, s := range set {
		out, err := n.ActivateNoTrace(s.Input)
		if err != nil {
			return TestResult{}, err
		}
		sum += cost.Compute(s.Output, out)
	}
	return TestResult{Error: sum / float64(len(set)), Elapsed: time.Since(start)}, nil
}

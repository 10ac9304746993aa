package nn

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var ErrCostNotFound = errors.New("cost function not found")

const logFloor = 1e-15

// Cost is a closed set of error functions comparing a target vector with an
// output vector of the same length.
type Cost uint8

const (
	MSE Cost = iota
	CrossEntropy
	Binary
	MAE
	MAPE
	MSLE
	Hinge
	costCount
)

var costNames = [costCount]string{
	MSE:          "mse",
	CrossEntropy: "cross_entropy",
	Binary:       "binary",
	MAE:          "mae",
	MAPE:         "mape",
	MSLE:         "msle",
	Hinge:        "hinge",
}

func (c Cost) Valid() bool {
	return c < costCount
}

func (c Cost) String() string {
	if !c.Valid() {
		return fmt.Sprintf("cost(%d)", uint8(c))
	}
	return costNames[c]
}

func ParseCost(name string) (Cost, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	for i, n := range costNames {
		if n == key {
			return Cost(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrCostNotFound, name)
}

// Compute evaluates the cost. Only the first len(output) targets are read.
func (c Cost) Compute(target, output []float64) float64 {
	if len(output) == 0 {
		return 0
	}
	n := float64(len(output))
	var sum float64
	switch c {
	case CrossEntropy:
		for i, o := range output {
			p := math.Min(math.Max(o, logFloor), 1-logFloor)
			sum -= target[i]*math.Log(p) + (1-target[i])*math.Log(1-p)
		}
		return sum
	case Binary:
		for i, o := range output {
			if math.Round(target[i]*2) != math.Round(o*2) {
				sum++
			}
		}
		return sum
	case MAE:
		for i, o := range output {
			sum += math.Abs(target[i] - o)
		}
		return sum / n
	case MAPE:
		for i, o := range output {
			sum += math.Abs((o - target[i]) / math.Max(target[i], logFloor))
		}
		return sum / n
	case MSLE:
		for i, o := range output {
			d := math.Log(math.Max(target[i]+1, logFloor)) - math.Log(math.Max(o+1, logFloor))
			sum += d * d
		}
		return sum / n
	case Hinge:
		for i, o := range output {
			sum += math.Max(0, 1-target[i]*o)
		}
		return sum
	default:
		for i, o := range output {
			d := target[i] - o
			sum += d * d
		}
		return sum / n
	}
}

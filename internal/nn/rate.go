package nn

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var ErrRatePolicyNotFound = errors.New("rate policy not found")

type RatePolicyKind uint8

const (
	RateFixed RatePolicyKind = iota
	RateStep
	RateExp
	RateInv
)

// RatePolicy schedules the learning rate over training iterations. Zero
// parameters fall back to the defaults of each kind.
type RatePolicy struct {
	Kind     RatePolicyKind
	Gamma    float64
	StepSize int
	Power    float64
}

func FixedRate() RatePolicy { return RatePolicy{Kind: RateFixed} }

func StepRate(gamma float64, stepSize int) RatePolicy {
	return RatePolicy{Kind: RateStep, Gamma: gamma, StepSize: stepSize}
}

func ExpRate(gamma float64) RatePolicy { return RatePolicy{Kind: RateExp, Gamma: gamma} }

func InvRate(gamma, power float64) RatePolicy {
	return RatePolicy{Kind: RateInv, Gamma: gamma, Power: power}
}

// Rate returns the learning rate to use at the given iteration.
func (p RatePolicy) Rate(base float64, iteration int) float64 {
	it := float64(iteration)
	switch p.Kind {
	case RateStep:
		gamma := orDefault(p.Gamma, 0.9)
		step := p.StepSize
		if step <= 0 {
			step = 100
		}
		return base * math.Pow(gamma, math.Floor(it/float64(step)))
	case RateExp:
		return base * math.Pow(orDefault(p.Gamma, 0.999), it)
	case RateInv:
		gamma := orDefault(p.Gamma, 0.001)
		power := orDefault(p.Power, 2)
		return base * math.Pow(1+gamma*it, -power)
	default:
		return base
	}
}

func (k RatePolicyKind) String() string {
	switch k {
	case RateStep:
		return "step"
	case RateExp:
		return "exp"
	case RateInv:
		return "inv"
	default:
		return "fixed"
	}
}

func ParseRatePolicy(name string) (RatePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "fixed":
		return FixedRate(), nil
	case "step":
		return RatePolicy{Kind: RateStep}, nil
	case "exp":
		return RatePolicy{Kind: RateExp}, nil
	case "inv":
		return RatePolicy{Kind: RateInv}, nil
	default:
		return RatePolicy{}, fmt.Errorf("%w: %s", ErrRatePolicyNotFound, name)
	}
}

func orDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

package nn

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var ErrActivationNotFound = errors.New("activation not found")

// Activation is a closed set of squashing functions. The zero value is Logistic.
type Activation uint8

const (
	Logistic Activation = iota
	Tanh
	Identity
	Step
	ReLU
	Softsign
	Sinusoid
	Gaussian
	BentIdentity
	Bipolar
	BipolarSigmoid
	HardTanh
	Absolute
	Inverse
	activationCount
)

type activationSpec struct {
	name  string
	fn    func(x float64) float64
	deriv func(x float64) float64
}

var activations = [activationCount]activationSpec{
	Logistic: {
		name: "logistic",
		fn:   logistic,
		deriv: func(x float64) float64 {
			fx := logistic(x)
			return fx * (1 - fx)
		},
	},
	Tanh: {
		name: "tanh",
		fn:   math.Tanh,
		deriv: func(x float64) float64 {
			t := math.Tanh(x)
			return 1 - t*t
		},
	},
	Identity: {
		name:  "identity",
		fn:    func(x float64) float64 { return x },
		deriv: func(float64) float64 { return 1 },
	},
	Step: {
		name: "step",
		fn: func(x float64) float64 {
			if x > 0 {
				return 1
			}
			return 0
		},
		deriv: func(float64) float64 { return 0 },
	},
	ReLU: {
		name: "relu",
		fn: func(x float64) float64 {
			if x > 0 {
				return x
			}
			return 0
		},
		deriv: func(x float64) float64 {
			if x > 0 {
				return 1
			}
			return 0
		},
	},
	Softsign: {
		name: "softsign",
		fn:   func(x float64) float64 { return x / (1 + math.Abs(x)) },
		deriv: func(x float64) float64 {
			d := 1 + math.Abs(x)
			return 1 / (d * d)
		},
	},
	Sinusoid: {
		name:  "sinusoid",
		fn:    math.Sin,
		deriv: math.Cos,
	},
	Gaussian: {
		name: "gaussian",
		fn:   func(x float64) float64 { return math.Exp(-x * x) },
		deriv: func(x float64) float64 {
			return -2 * x * math.Exp(-x*x)
		},
	},
	BentIdentity: {
		name: "bent_identity",
		fn: func(x float64) float64 {
			return (math.Sqrt(x*x+1)-1)/2 + x
		},
		deriv: func(x float64) float64 {
			return x/(2*math.Sqrt(x*x+1)) + 1
		},
	},
	Bipolar: {
		name: "bipolar",
		fn: func(x float64) float64 {
			if x > 0 {
				return 1
			}
			return -1
		},
		deriv: func(float64) float64 { return 0 },
	},
	BipolarSigmoid: {
		name: "bipolar_sigmoid",
		fn:   bipolarSigmoid,
		deriv: func(x float64) float64 {
			d := bipolarSigmoid(x)
			return 0.5 * (1 + d) * (1 - d)
		},
	},
	HardTanh: {
		name: "hard_tanh",
		fn:   func(x float64) float64 { return math.Max(-1, math.Min(1, x)) },
		deriv: func(x float64) float64 {
			if x > -1 && x < 1 {
				return 1
			}
			return 0
		},
	},
	Absolute: {
		name: "absolute",
		fn:   math.Abs,
		deriv: func(x float64) float64 {
			if x < 0 {
				return -1
			}
			return 1
		},
	},
	Inverse: {
		name:  "inverse",
		fn:    func(x float64) float64 { return 1 - x },
		deriv: func(float64) float64 { return -1 },
	},
}

func logistic(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func bipolarSigmoid(x float64) float64 {
	return 2/(1+math.Exp(-x)) - 1
}

func (a Activation) Valid() bool {
	return a < activationCount
}

func (a Activation) String() string {
	if !a.Valid() {
		return fmt.Sprintf("activation(%d)", uint8(a))
	}
	return activations[a].name
}

// Apply returns the squashed value of x.
func (a Activation) Apply(x float64) float64 {
	return activations[a].fn(x)
}

// Derivative returns the derivative of the squashing function at x.
func (a Activation) Derivative(x float64) float64 {
	return activations[a].deriv(x)
}

func (a Activation) MarshalText() ([]byte, error) {
	if !a.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrActivationNotFound, uint8(a))
	}
	return []byte(a.String()), nil
}

func (a *Activation) UnmarshalText(text []byte) error {
	parsed, err := ParseActivation(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseActivation resolves a name case-insensitively. Upper-case snake
// forms such as "BIPOLAR_SIGMOID" are accepted.
func ParseActivation(name string) (Activation, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	for i := range activations {
		if activations[i].name == key {
			return Activation(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrActivationNotFound, name)
}

// ListActivations returns every activation in declaration order.
func ListActivations() []Activation {
	out := make([]Activation, 0, activationCount)
	for i := Activation(0); i < activationCount; i++ {
		out = append(out, i)
	}
	return out
}

// StandardActivations is the default pool for activation mutation: every
// activation except Inverse.
func StandardActivations() []Activation {
	return []Activation{
		Logistic, Tanh, Identity, Step, ReLU, Softsign, Sinusoid,
		Gaussian, BentIdentity, Bipolar, BipolarSigmoid, HardTanh, Absolute,
	}
}

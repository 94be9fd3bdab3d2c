package vehicle

import (
	"math"
	"slices"
)

// Model evaluates a validated Config. All methods are pure and safe for
// concurrent use.
type Model struct {
	cfg Config

	start  []float64 // burn window start per stage
	end    []float64 // burn window end per stage
	mass0  []float64 // stack mass at window start
	thrust []float64
	flow   []float64
	final  float64 // mass after the last window
}

// NewModel validates cfg and precomputes the burn windows.
func NewModel(cfg Config) (*Model, error) {
	if len(cfg.PitchProgram.Bands) == 0 && cfg.PitchProgram.Above == 0 {
		cfg.PitchProgram = AscentPitchProgram
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Stages = slices.Clone(cfg.Stages)

	n := len(cfg.Stages)
	m := &Model{
		cfg:    cfg,
		start:  make([]float64, n),
		end:    make([]float64, n),
		mass0:  make([]float64, n),
		thrust: make([]float64, n),
		flow:   make([]float64, n),
	}

	stack := cfg.Payload
	for _, s := range cfg.Stages {
		stack += s.DryMass + s.PropellantMass
	}

	var t float64
	for i, s := range cfg.Stages {
		m.start[i] = t
		t += s.BurnDuration
		m.end[i] = t
		m.mass0[i] = stack
		m.thrust[i] = s.Thrust(cfg.G0)
		m.flow[i] = s.FlowRate()

		stack -= s.PropellantMass
		if i < n-1 {
			stack -= s.DryMass
		}
	}
	m.final = stack
	return m, nil
}

// Config returns the configuration the model was built from.
func (m *Model) Config() Config { return m.cfg }

// BurnTime returns the end of the last burn window.
func (m *Model) BurnTime() float64 { return m.end[len(m.end)-1] }

// Window returns the burn window [start, end) of stage i.
func (m *Model) Window(i int) (start, end float64) { return m.start[i], m.end[i] }

// StartMass returns the liftoff mass of the full stack.
func (m *Model) StartMass() float64 { return m.mass0[0] }

// FinalMass returns the mass after every burn window has closed.
func (m *Model) FinalMass() float64 { return m.final }

// StageAt returns the index of the stage whose window contains t, or -1 when
// t is outside every window.
func (m *Model) StageAt(t float64) int {
	if t < 0 {
		return -1
	}
	for i := range m.end {
		if t < m.end[i] {
			return i
		}
	}
	return -1
}

// Mass returns the stack mass at mission time t. Before liftoff it is the
// full stack; inside a window it depletes linearly; after the last window it
// stays at the final mass.
func (m *Model) Mass(t float64) float64 {
	if t < 0 {
		return m.mass0[0]
	}
	for i := range m.end {
		if t < m.end[i] {
			return m.mass0[i] - m.flow[i]*(t-m.start[i])
		}
	}
	return m.final
}

// Thrust returns the thrust at mission time t, zero outside every window.
func (m *Model) Thrust(t float64) float64 {
	if i := m.StageAt(t); i >= 0 {
		return m.thrust[i]
	}
	return 0
}

// StageThrust returns the constant thrust of stage i.
func (m *Model) StageThrust(i int) float64 { return m.thrust[i] }

// Gravity returns the gravitational acceleration at altitude h.
func (m *Model) Gravity(h float64) float64 {
	r := m.cfg.Body.Radius + h
	return m.cfg.Body.Mu / (r * r)
}

// Density returns the air density at altitude h.
func (m *Model) Density(h float64) float64 {
	return m.cfg.Atmosphere.SeaLevelDensity * math.Exp(-h/m.cfg.Atmosphere.ScaleHeight)
}

// CommandedAngle returns the thrust angle above the horizon, in degrees.
func (m *Model) CommandedAngle(h float64) float64 {
	return m.cfg.PitchProgram.Lookup(h)
}

// DragFactor returns 0.5*Cd*S so that drag magnitude is DragFactor*rho*v^2.
func (m *Model) DragFactor() float64 {
	return 0.5 * m.cfg.Aero.DragCoefficient * m.cfg.Aero.ReferenceArea
}

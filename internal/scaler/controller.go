package scaler

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"enterprise-chatbot/internal/metrics"
)

// Step sizes are deliberately asymmetric: react to spikes twice as fast as
// to quiet periods.
const (
	ScaleOutStep = 2
	ScaleInStep  = 1
)

// Direction of a committed scaling transition.
type Direction string

const (
	DirectionNone Direction = ""
	DirectionOut  Direction = "out"
	DirectionIn   Direction = "in"
)

// Event is one committed change to the instance count. Seq numbers events
// in commit order starting at 1.
type Event struct {
	Seq       int       `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Decision  string    `json:"decision"`
	Direction Direction `json:"direction"`
	From      int       `json:"from"`
	Instances int       `json:"instances"`
	Load      float64   `json:"load"`
}

// Decision is the outcome of one Monitor evaluation. Text is empty and
// Direction is DirectionNone when nothing changed.
type Decision struct {
	Seq       int       `json:"seq,omitempty"`
	From      int       `json:"from"`
	Instances int       `json:"instances"`
	Text      string    `json:"decision,omitempty"`
	Direction Direction `json:"direction,omitempty"`
	Load      float64   `json:"load"`
	Timestamp time.Time `json:"timestamp"`
}

// Scaled reports whether the decision committed a transition.
func (d Decision) Scaled() bool { return d.Direction != DirectionNone }

type Config struct {
	MinInstances     int     // default: 5
	MaxInstances     int     // default: 20
	InitialInstances int     // default: MinInstances
	HighThreshold    float64 // scale out strictly above (default: 80)
	LowThreshold     float64 // scale in strictly below (default: 30)
	MaxEvents        int     // retained events, 0 = unbounded
}

// WithDefaults returns a copy of Config with defaults applied.
func (c Config) WithDefaults() Config {
	if c.MinInstances <= 0 {
		c.MinInstances = 5
	}
	if c.MaxInstances <= 0 {
		c.MaxInstances = 20
	}
	if c.InitialInstances <= 0 {
		c.InitialInstances = c.MinInstances
	}
	if c.HighThreshold == 0 && c.LowThreshold == 0 {
		c.HighThreshold = 80
		c.LowThreshold = 30
	}
	return c
}

// Validate checks bounds and thresholds.
func (c Config) Validate() error {
	if c.MinInstances > c.MaxInstances {
		return fmt.Errorf("min instances %d exceeds max %d", c.MinInstances, c.MaxInstances)
	}
	if c.InitialInstances < c.MinInstances || c.InitialInstances > c.MaxInstances {
		return fmt.Errorf("initial instances %d outside [%d,%d]", c.InitialInstances, c.MinInstances, c.MaxInstances)
	}
	if c.LowThreshold < 0 || c.HighThreshold > 100 || c.LowThreshold >= c.HighThreshold {
		return errors.New("thresholds must satisfy 0 <= low < high <= 100")
	}
	if c.MaxEvents < 0 {
		return errors.New("max events must not be negative")
	}
	return nil
}

// Controller is a two-threshold instance count controller. It owns the
// instance count and the event history; all methods are safe for
// concurrent use.
type Controller struct {
	mu      sync.Mutex
	cfg     Config
	current int
	events  []Event
	total   int

	now    func() time.Time
	logger *zap.Logger
}

// New creates a Controller starting at cfg.InitialInstances.
func New(cfg Config, logger *zap.Logger) (*Controller, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("scaler: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	metrics.CurrentInstances.Set(float64(cfg.InitialInstances))

	return &Controller{
		cfg:     cfg,
		current: cfg.InitialInstances,
		now:     time.Now,
		logger:  logger.Named("scaler"),
	}, nil
}

// Monitor evaluates load, a percentage, against the thresholds. Values
// outside [0,100] are clamped; NaN is treated as no signal and never
// scales. Boundary values equal to a threshold do not trigger.
func (c *Controller) Monitor(load float64) Decision {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if math.IsNaN(load) {
		return Decision{From: c.current, Instances: c.current, Load: load, Timestamp: now}
	}
	load = math.Max(0, math.Min(100, load))

	old := c.current
	candidate := old
	dir := DirectionNone

	switch {
	case load > c.cfg.HighThreshold:
		candidate = min(c.cfg.MaxInstances, old+ScaleOutStep)
		dir = DirectionOut
	case load < c.cfg.LowThreshold:
		candidate = max(c.cfg.MinInstances, old-ScaleInStep)
		dir = DirectionIn
	}

	if candidate == old {
		return Decision{From: old, Instances: old, Load: load, Timestamp: now}
	}

	c.current = candidate
	text := fmt.Sprintf("Scaling OUT from %d to %d", old, candidate)
	if dir == DirectionIn {
		text = fmt.Sprintf("Scaling IN from %d to %d", old, candidate)
	}

	c.total++
	c.events = append(c.events, Event{
		Seq:       c.total,
		Timestamp: now,
		Decision:  text,
		Direction: dir,
		From:      old,
		Instances: candidate,
		Load:      load,
	})
	if c.cfg.MaxEvents > 0 && len(c.events) > c.cfg.MaxEvents {
		c.events = append(c.events[:0:0], c.events[len(c.events)-c.cfg.MaxEvents:]...)
	}

	metrics.CurrentInstances.Set(float64(candidate))
	metrics.ScalingEventsTotal.WithLabelValues(string(dir)).Inc()

	c.logger.Info("scaling_event",
		zap.String("direction", string(dir)),
		zap.Int("from", old),
		zap.Int("to", candidate),
		zap.Float64("load", load),
	)

	return Decision{
		Seq:       c.total,
		From:      old,
		Instances: candidate,
		Text:      text,
		Direction: dir,
		Load:      load,
		Timestamp: now,
	}
}

// Current returns the instance count.
func (c *Controller) Current() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// State is a read-only snapshot of the controller.
type State struct {
	CurrentInstances int     `json:"current_instances"`
	MinInstances     int     `json:"min_instances"`
	MaxInstances     int     `json:"max_instances"`
	HighThreshold    float64 `json:"high_threshold"`
	LowThreshold     float64 `json:"low_threshold"`
	TotalEvents      int     `json:"total_events"`
	Events           []Event `json:"events"`
}

// State returns a snapshot with the last limit events (all when limit <= 0),
// oldest first.
func (c *Controller) State(limit int) State {
	c.mu.Lock()
	defer c.mu.Unlock()

	events := c.events
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}

	out := make([]Event, len(events))
	copy(out, events)

	return State{
		CurrentInstances: c.current,
		MinInstances:     c.cfg.MinInstances,
		MaxInstances:     c.cfg.MaxInstances,
		HighThreshold:    c.cfg.HighThreshold,
		LowThreshold:     c.cfg.LowThreshold,
		TotalEvents:      c.total,
		Events:           out,
	}
}

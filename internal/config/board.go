package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/me/coopsched/pkg/dispatch"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultTick is the tick interval used when a board does not set one.
	DefaultTick = time.Second
	// DefaultPins is the simulated GPIO port width used when a board does not set one.
	DefaultPins = 8
	// MaxPins is the widest simulated GPIO port.
	MaxPins = 64
)

// Board describes one dispatcher instance: its limits and its task table.
type Board struct {
	Name   string        `yaml:"name"`
	Tick   time.Duration `yaml:"tick"`
	Pins   int           `yaml:"pins"`
	Limits *Limits       `yaml:"limits,omitempty"`
	Tasks  []TaskSpec    `yaml:"tasks"`
}

// Limits overrides dispatch.DefaultConfig. Zero values keep the default.
type Limits struct {
	MaxTasks    int    `yaml:"max_tasks"`
	MinPeriod   uint32 `yaml:"min_period"`
	MaxPeriod   uint32 `yaml:"max_period"`
	CheckPeriod *bool  `yaml:"check_period"`
	NameMatch   string `yaml:"name_match"`
}

// ActionKind identifies the body of a board task.
type ActionKind string

const (
	ActionNone   ActionKind = ""
	ActionToggle ActionKind = "toggle"
	ActionLog    ActionKind = "log"
	ActionScript ActionKind = "script"
)

// TaskSpec is one entry of the board's task table. Exactly one of Toggle,
// Log and Script must be set.
type TaskSpec struct {
	Name   string `yaml:"name"`
	Period uint32 `yaml:"period"`
	State  string `yaml:"state"` // blocked (default), ready, suspended
	Toggle *int   `yaml:"toggle,omitempty"`
	Log    string `yaml:"log,omitempty"`
	Script string `yaml:"script,omitempty"`
}

// Action reports which body the task declares. When several are set the
// first of toggle, log, script wins; Validate rejects that case.
func (t TaskSpec) Action() ActionKind {
	switch {
	case t.Toggle != nil:
		return ActionToggle
	case t.Log != "":
		return ActionLog
	case t.Script != "":
		return ActionScript
	}
	return ActionNone
}

func (t TaskSpec) actionCount() int {
	n := 0
	if t.Toggle != nil {
		n++
	}
	if t.Log != "" {
		n++
	}
	if t.Script != "" {
		n++
	}
	return n
}

// InitialState parses State, defaulting to Blocked.
func (t TaskSpec) InitialState() (dispatch.State, error) {
	if strings.TrimSpace(t.State) == "" {
		return dispatch.Blocked, nil
	}
	return dispatch.ParseState(t.State)
}

// LoadBoard reads and validates a board file.
func LoadBoard(path string) (*Board, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open board: %w", err)
	}
	defer f.Close()

	b, err := DecodeBoard(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return b, nil
}

// ParseBoard decodes and validates a board from YAML bytes.
func ParseBoard(data []byte) (*Board, error) {
	return DecodeBoard(bytes.NewReader(data))
}

// DecodeBoard decodes a board, fills defaults and validates it. Unknown
// keys are rejected.
func DecodeBoard(r io.Reader) (*Board, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var b Board
	if err := dec.Decode(&b); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("parse board: empty document")
		}
		return nil, fmt.Errorf("parse board: %w", err)
	}
	b.applyDefaults()
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

func (b *Board) applyDefaults() {
	if b.Tick == 0 {
		b.Tick = DefaultTick
	}
	if b.Pins == 0 {
		b.Pins = DefaultPins
	}
	for i := range b.Tasks {
		b.Tasks[i].Name = strings.TrimSpace(b.Tasks[i].Name)
	}
}

// DispatchConfig merges the board limits over dispatch.DefaultConfig.
func (b *Board) DispatchConfig() (dispatch.Config, error) {
	cfg := dispatch.DefaultConfig()
	if b.Limits == nil {
		return cfg, nil
	}
	l := b.Limits
	if l.MaxTasks != 0 {
		cfg.MaxTasks = l.MaxTasks
	}
	if l.MinPeriod != 0 {
		cfg.MinPeriod = l.MinPeriod
	}
	if l.MaxPeriod != 0 {
		cfg.MaxPeriod = l.MaxPeriod
	}
	if l.CheckPeriod != nil {
		cfg.CheckPeriod = *l.CheckPeriod
	}
	mode, err := dispatch.ParseMatchMode(l.NameMatch)
	if err != nil {
		return cfg, err
	}
	cfg.NameMatch = mode
	return cfg, cfg.Validate()
}

// Validate reports every problem in the board at once.
func (b *Board) Validate() error {
	var errs []error
	addf := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if b.Tick < 0 {
		addf("tick: must be positive, got %s", b.Tick)
	}
	if b.Pins < 1 || b.Pins > MaxPins {
		addf("pins: %d not in [1, %d]", b.Pins, MaxPins)
	}

	cfg, err := b.DispatchConfig()
	if err != nil {
		addf("limits: %w", err)
	}
	if err == nil && len(b.Tasks) > cfg.MaxTasks {
		addf("tasks: %d entries exceed max_tasks %d", len(b.Tasks), cfg.MaxTasks)
	}

	seen := make(map[string]int)
	for i, t := range b.Tasks {
		where := fmt.Sprintf("tasks[%d]", i)
		if t.Name != "" {
			where = fmt.Sprintf("tasks[%d] (%s)", i, t.Name)
			if err := validateName(t.Name); err != nil {
				addf("%s: name: %w", where, err)
			}
			if prev, dup := seen[t.Name]; dup {
				addf("%s: name duplicates tasks[%d]", where, prev)
			} else {
				seen[t.Name] = i
			}
		}
		if err == nil && cfg.CheckPeriod && (t.Period < cfg.MinPeriod || t.Period > cfg.MaxPeriod) {
			addf("%s: period %d not in [%d, %d]", where, t.Period, cfg.MinPeriod, cfg.MaxPeriod)
		}
		if _, serr := t.InitialState(); serr != nil {
			addf("%s: state: %w", where, serr)
		}
		switch t.actionCount() {
		case 0:
			addf("%s: one of toggle, log or script is required", where)
		case 1:
		default:
			addf("%s: only one of toggle, log or script may be set", where)
		}
		if t.Toggle != nil && (*t.Toggle < 0 || *t.Toggle >= b.Pins) {
			addf("%s: toggle pin %d not in [0, %d)", where, *t.Toggle, b.Pins)
		}
	}

	return errors.Join(errs...)
}

// validateName accepts [A-Za-z0-9._-] except names that parse as an
// integer, since task refs are read as indexes first. Empty means unnamed.
func validateName(name string) error {
	if _, err := strconv.Atoi(name); err == nil {
		return errors.New("numeric (would read as a task index)")
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '.' || c == '_' || c == '-':
		default:
			if strings.ContainsRune(" \t\r\n", rune(c)) {
				return errors.New("contains whitespace (not allowed)")
			}
			return fmt.Errorf("contains invalid char %q (allowed: [A-Za-z0-9._-])", c)
		}
	}
	return nil
}

package launch

import (
	"context"
	"time"

	modular "github.com/edwinhayes/logrus-modular"
	"github.com/pkg/errors"
)

type Option func(*Description)

// WithStopGrace overrides DefaultStopGrace for every process.
func WithStopGrace(d time.Duration) Option {
	return func(desc *Description) { desc.grace = d }
}

// Description is an ordered set of processes launched together.
type Description struct {
	processes []*Process
	byName    map[string]*Process
	grace     time.Duration
	log       modular.Logger
}

func NewDescription(specs []ProcessSpec, log modular.Logger, opts ...Option) (*Description, error) {
	d := &Description{
		byName: make(map[string]*Process),
		grace:  DefaultStopGrace,
		log:    log,
	}
	for _, opt := range opts {
		opt(d)
	}
	for _, spec := range specs {
		if _, ok := d.byName[spec.Name]; ok {
			return nil, errors.Errorf("duplicate process %q", spec.Name)
		}
		p, err := NewProcess(spec, d.log)
		if err != nil {
			return nil, err
		}
		p.grace = d.grace
		d.processes = append(d.processes, p)
		d.byName[spec.Name] = p
	}
	return d, nil
}

// Start spawns every process in declaration order. On failure the
// processes already spawned keep running until Shutdown.
func (d *Description) Start(ctx context.Context) error {
	for _, p := range d.processes {
		if err := p.Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (d *Description) Process(name string) (*Process, bool) {
	p, ok := d.byName[name]
	return p, ok
}

// Processes returns the processes in declaration order.
func (d *Description) Processes() []*Process {
	return append([]*Process(nil), d.processes...)
}

// Shutdown stops the processes in reverse declaration order.
func (d *Description) Shutdown() error {
	var first error
	for i := len(d.processes) - 1; i >= 0; i-- {
		if err := d.processes[i].Stop(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

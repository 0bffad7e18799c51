// Package scenario runs one transport variant end to end: launch the
// dependency graph, wait for every required process, then observe the RC
// topic until the first message or the delivery timeout.
package scenario

import (
	"context"
	"time"

	modular "github.com/edwinhayes/logrus-modular"
	"github.com/edwinhayes/rcprobe/internal/launch"
	"github.com/edwinhayes/rcprobe/internal/metrics"
	"github.com/edwinhayes/rcprobe/internal/report"
	"github.com/edwinhayes/rcprobe/observer"
	"github.com/edwinhayes/rcprobe/ros"
	events "github.com/imkira/go-observer"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DefaultNodeName is the name of the listening node.
const DefaultNodeName = "rc_listener"

// Config describes one scenario run. Zero durations and an empty topic
// fall back to the defaults.
type Config struct {
	Kind            TransportKind
	Processes       []launch.ProcessSpec
	Topic           string
	StartTimeout    time.Duration
	DeliveryTimeout time.Duration
	NodeName        string
}

func (c Config) withDefaults() Config {
	if c.Processes == nil {
		c.Processes = DefaultProcesses(c.Kind)
	}
	if c.Topic == "" {
		c.Topic = observer.DefaultTopic
	}
	if c.StartTimeout <= 0 {
		c.StartTimeout = DefaultStartTimeout
	}
	if c.DeliveryTimeout <= 0 {
		c.DeliveryTimeout = DefaultDeliveryTimeout
	}
	if c.NodeName == "" {
		c.NodeName = DefaultNodeName
	}
	return c
}

// Validate checks that every required process is declared.
func (c Config) Validate() error {
	declared := make(map[string]bool, len(c.Processes))
	for _, p := range c.Processes {
		declared[p.Name] = true
	}
	for _, name := range RequiredProcesses(c.Kind) {
		if !declared[name] {
			return errors.Errorf("%s scenario requires process %q", c.Kind, name)
		}
	}
	return nil
}

// Node is the part of ros.Node a scenario uses.
type Node interface {
	observer.Transport
	observer.ParamSource
	Shutdown()
}

// NodeFactory creates a fresh node for each scenario.
type NodeFactory func(name string) (Node, error)

// RosNodeFactory creates nodes registered with the master at masterURI.
// An empty masterURI uses ROS_MASTER_URI.
func RosNodeFactory(log *logrus.Logger, masterURI string, args []string) NodeFactory {
	return func(name string) (Node, error) {
		opts := []ros.NodeOption{ros.WithLogger(log), ros.WithoutSignalHandler()}
		if masterURI != "" {
			opts = append(opts, ros.WithMasterURI(masterURI))
		}
		return ros.NewNode(name, args, opts...)
	}
}

// Result describes a finished scenario. Received and Latency are zero
// unless a message arrived.
type Result struct {
	Scenario string
	Topic    string
	Received uint64
	Latency  time.Duration
	Took     time.Duration
}

type Option func(*Runner)

func WithLogger(log modular.Logger) Option {
	return func(r *Runner) { r.log = log }
}

// WithEvents publishes report events to prop.
func WithEvents(prop events.Property) Option {
	return func(r *Runner) { r.events = prop }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithProcessEnv adds env to every launched process. A process's own
// Env entries take precedence.
func WithProcessEnv(env ...string) Option {
	return func(r *Runner) { r.env = append(r.env, env...) }
}

// WithStopGrace sets how long processes get to exit after SIGTERM.
func WithStopGrace(d time.Duration) Option {
	return func(r *Runner) { r.grace = d }
}

// Runner executes scenarios one at a time.
type Runner struct {
	factory NodeFactory
	log     modular.Logger
	events  events.Property
	metrics *metrics.Metrics
	grace   time.Duration
	env     []string
}

func NewRunner(factory NodeFactory, opts ...Option) *Runner {
	r := &Runner{
		factory: factory,
		log:     ros.Submodule(ros.RootLogger(nil), "scenario"),
		grace:   launch.DefaultStopGrace,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run launches cfg's processes, waits for each required one, then waits
// for the first message on the topic. Everything it started is torn down
// before it returns.
func (r *Runner) Run(ctx context.Context, cfg Config) (res Result, err error) {
	cfg = cfg.withDefaults()
	name := cfg.Kind.String()
	log := r.log.WithField("scenario", name)
	res = Result{Scenario: name, Topic: cfg.Topic}

	begin := time.Now()
	r.publish(report.ScenarioStart{Scenario: name})
	defer func() {
		res.Took = time.Since(begin)
		r.finish(res, err)
	}()

	if err := cfg.Validate(); err != nil {
		return res, err
	}
	launchLog := ros.Submodule(r.log, "launch").WithField("scenario", name)
	desc, err := launch.NewDescription(r.processes(cfg), launchLog, launch.WithStopGrace(r.grace))
	if err != nil {
		return res, errors.Wrapf(err, "%s scenario", name)
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer func() {
		if err := desc.Shutdown(); err != nil {
			log.Warn("Shutdown: ", err)
		}
	}()

	if err := r.launch(ctx, log, desc, cfg); err != nil {
		return res, err
	}

	node, err := r.factory(cfg.NodeName)
	if err != nil {
		return res, errors.Wrap(err, "create node")
	}
	defer node.Shutdown()

	opts := []observer.Option{observer.WithLogger(ros.Submodule(r.log, "observer").WithField("scenario", name))}
	if r.metrics != nil {
		opts = append(opts, observer.WithRecorder(r.metrics))
	}
	obs := observer.New(node, opts...)
	if err := obs.Configure(cfg.Topic); err != nil {
		return res, err
	}
	if err := obs.ConfigureFromParams(node); err != nil {
		return res, err
	}
	res.Topic = obs.Topic()

	subscribed := time.Now()
	if err := obs.Start(); err != nil {
		return res, err
	}
	defer func() {
		if err := obs.Close(); err != nil {
			log.Warn("Observer: ", err)
		}
	}()

	timer := time.NewTimer(cfg.DeliveryTimeout)
	defer timer.Stop()
	select {
	case <-obs.Done():
	case <-timer.C:
		return res, &DeliveryTimeoutError{Topic: res.Topic}
	case <-ctx.Done():
		return res, errors.Wrapf(ctx.Err(), "waiting for %s", res.Topic)
	}
	res.Received = obs.Received()
	res.Latency = obs.FirstMessageAt().Sub(subscribed)
	log.Infof("Received %s after %s", res.Topic, res.Latency)
	return res, nil
}

// processes returns cfg's processes with the runner's env prepended.
func (r *Runner) processes(cfg Config) []launch.ProcessSpec {
	if len(r.env) == 0 {
		return cfg.Processes
	}
	specs := make([]launch.ProcessSpec, len(cfg.Processes))
	for i, spec := range cfg.Processes {
		spec.Env = append(append([]string(nil), r.env...), spec.Env...)
		specs[i] = spec
	}
	return specs
}

// launch spawns every process in declaration order and then waits for
// the required ones in their fixed order, each with its own window.
func (r *Runner) launch(ctx context.Context, log modular.Logger, desc *launch.Description, cfg Config) error {
	name := cfg.Kind.String()
	spawned := time.Now()
	for _, p := range desc.Processes() {
		if err := p.Start(ctx); err != nil {
			return &StartupError{Process: p.Name(), Err: err}
		}
	}
	for _, pname := range RequiredProcesses(cfg.Kind) {
		p, _ := desc.Process(pname)
		if err := p.WaitForStart(cfg.StartTimeout); err != nil {
			log.WithField("process", pname).Error(err)
			return &StartupError{Process: pname, Err: err}
		}
		after := time.Since(spawned)
		log.WithField("process", pname).Debugf("Started after %s", after)
		r.publish(report.ProcessStarted{Scenario: name, Process: pname, After: after})
		if r.metrics != nil {
			r.metrics.ProcessStarted(name, pname, after)
		}
	}
	return nil
}

func (r *Runner) finish(res Result, err error) {
	event := report.ScenarioResult{
		Scenario: res.Scenario,
		Passed:   err == nil,
		Received: res.Received,
		Latency:  res.Latency,
	}
	if err != nil {
		event.Explain = err.Error()
	}
	r.publish(event)
	if r.metrics != nil {
		r.metrics.ScenarioFinished(res.Scenario, err == nil, res.Took)
	}
}

func (r *Runner) publish(event interface{}) {
	if r.events != nil {
		r.events.Update(event)
	}
}

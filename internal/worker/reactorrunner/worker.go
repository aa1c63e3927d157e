// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package reactorrunner drives a swarm reactor: it runs ticks back to
// back, inserts the pacing delay the throttling controller asks for,
// and retries transient tick failures before giving up.
package reactorrunner

import (
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/retry"
	"github.com/juju/worker/v4/catacomb"

	coreactor "github.com/swarmlab/reactor/core/reactor"
)

// Logger represents the methods the runner uses to log information.
type Logger interface {
	Errorf(string, ...any)
	Warningf(string, ...any)
	Infof(string, ...any)
	Debugf(string, ...any)
}

// Reactor is the slice of the swarm reactor the runner drives.
type Reactor interface {
	ExecuteTick() (coreactor.TickResult, error)
	PacingDelay() time.Duration
}

// Config holds the dependencies and tuning of a runner.
type Config struct {
	Clock   clock.Clock
	Logger  Logger
	Reactor Reactor

	// TickRetries bounds how often a failing tick is retried before
	// the worker dies.
	TickRetries int

	// RetryDelay is the initial backoff between tick retries,
	// doubled per attempt.
	RetryDelay time.Duration
}

// Validate returns an error if the config cannot drive a runner.
func (config Config) Validate() error {
	if config.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	if config.Logger == nil {
		return errors.NotValidf("nil Logger")
	}
	if config.Reactor == nil {
		return errors.NotValidf("nil Reactor")
	}
	if config.TickRetries <= 0 {
		return errors.NotValidf("tick retries %d", config.TickRetries)
	}
	if config.RetryDelay <= 0 {
		return errors.NotValidf("retry delay %s", config.RetryDelay)
	}
	return nil
}

// Worker runs reactor ticks until killed.
type Worker struct {
	catacomb catacomb.Catacomb
	config   Config
}

// NewWorker returns a running worker backed by config. The caller
// takes responsibility for killing it and handling its error.
func NewWorker(config Config) (*Worker, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	w := &Worker{config: config}
	err := catacomb.Invoke(catacomb.Plan{
		Name: "reactor-runner",
		Site: &w.catacomb,
		Work: w.loop,
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	return w, nil
}

// Kill is part of the worker.Worker interface.
func (w *Worker) Kill() {
	w.catacomb.Kill(nil)
}

// Wait is part of the worker.Worker interface.
func (w *Worker) Wait() error {
	return w.catacomb.Wait()
}

func (w *Worker) loop() error {
	w.config.Logger.Infof("reactor runner started")
	for {
		select {
		case <-w.catacomb.Dying():
			return w.catacomb.ErrDying()
		default:
		}

		result, err := w.runTick()
		if err != nil {
			if retry.IsRetryStopped(err) {
				return w.catacomb.ErrDying()
			}
			return errors.Annotate(err, "running reactor tick")
		}
		w.config.Logger.Debugf("tick %d complete in %s", result.TickID, result.Duration)

		if delay := w.config.Reactor.PacingDelay(); delay > 0 {
			select {
			case <-w.config.Clock.After(delay):
			case <-w.catacomb.Dying():
				return w.catacomb.ErrDying()
			}
		}
	}
}

// runTick executes one tick, retrying transient failures with
// exponential backoff until the attempt budget is spent or the
// worker is killed.
func (w *Worker) runTick() (coreactor.TickResult, error) {
	var result coreactor.TickResult
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			var err error
			result, err = w.config.Reactor.ExecuteTick()
			return err
		},
		NotifyFunc: func(err error, attempt int) {
			w.config.Logger.Warningf("tick attempt %d failed: %v", attempt, err)
		},
		Attempts:    w.config.TickRetries,
		Delay:       w.config.RetryDelay,
		BackoffFunc: retry.DoubleDelay,
		Clock:       w.config.Clock,
		Stop:        w.catacomb.Dying(),
	})
	if err != nil {
		return coreactor.TickResult{}, errors.Trace(err)
	}
	return result, nil
}

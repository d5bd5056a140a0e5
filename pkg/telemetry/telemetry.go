// Package telemetry records the usage of every structured completion a task makes.
package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/Flagro/holosophos-erc3/pkg/agent/llm"
)

// Record is the usage of one successful decision request.
type Record struct {
	TaskID   string
	Model    string // "provider/model"
	RawModel string // name as configured
	Duration time.Duration
	Usage    llm.Usage
}

// Sink receives usage records. Failures are reported but never stop a task.
type Sink interface {
	Record(ctx context.Context, rec Record) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, rec Record) error

func (f SinkFunc) Record(ctx context.Context, rec Record) error {
	return f(ctx, rec)
}

type multiSink []Sink

// Multi fans a record out to every sink and joins their errors.
func Multi(sinks ...Sink) Sink {
	out := make(multiSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (m multiSink) Record(ctx context.Context, rec Record) error {
	var errs []error
	for _, s := range m {
		if err := s.Record(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type nopSink struct{}

func (nopSink) Record(context.Context, Record) error { return nil }

// Nop returns a sink that discards everything.
func Nop() Sink {
	return nopSink{}
}

// Copyright 2025 Framecast Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package event provides the job lifecycle event bus.
//
// Delivery is asynchronous and never blocks the publisher. Each subscriber
// has its own unbounded mailbox drained by one goroutine, so a subscriber
// observes events in publish order.
package event

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/framecast/framecast/pkg/export"
)

// Name identifies a lifecycle event.
type Name string

const (
	JobAdded     Name = "job:added"
	JobStart     Name = "job:start"
	JobProgress  Name = "job:progress"
	JobCompleted Name = "job:completed"
	JobFailed    Name = "job:failed"
	JobCancelled Name = "job:cancelled"
	JobUpdated   Name = "job:updated"
)

// Names lists every event the queue emits.
var Names = []Name{JobAdded, JobStart, JobProgress, JobCompleted, JobFailed, JobCancelled, JobUpdated}

// Event carries a snapshot of the job at the time it was published.
type Event struct {
	Name Name       `json:"event"`
	Seq  uint64     `json:"seq"`
	Time time.Time  `json:"time"`
	Job  export.Job `json:"job"`
}

// Handler is a function that handles an event.
type Handler func(ctx context.Context, e Event)

// Publisher is the side of the bus the queue depends on.
type Publisher interface {
	Publish(ctx context.Context, name Name, job export.Job)
}

// Bus fans events out to subscribers.
type Bus struct {
	logger zerolog.Logger

	mu     sync.Mutex
	seq    uint64
	nextID uint64
	subs   map[uint64]*subscriber
	closed bool
	wg     sync.WaitGroup
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		logger: log.With().Str("component", "event").Logger(),
		subs:   make(map[uint64]*subscriber),
	}
}

// Subscribe registers handler for the given events, or for every event when
// names is empty.
func (b *Bus) Subscribe(handler Handler, names ...Name) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	s := &subscriber{
		handler: handler,
		notify:  make(chan struct{}, 1),
		stop:    make(chan struct{}),
		logger:  b.logger,
	}
	if len(names) > 0 {
		s.filter = make(map[Name]struct{}, len(names))
		for _, n := range names {
			s.filter[n] = struct{}{}
		}
	}
	sub := &Subscription{bus: b, id: b.nextID}
	if b.closed {
		return sub
	}
	b.subs[sub.id] = s
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		s.run()
	}()
	return sub
}

// Publish queues name for every interested subscriber. It returns without
// waiting for handlers.
func (b *Bus) Publish(ctx context.Context, name Name, job export.Job) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.seq++
	e := Event{Name: name, Seq: b.seq, Time: time.Now().UTC(), Job: job}
	for _, s := range b.subs {
		if !s.wants(name) {
			continue
		}
		delivered := e
		delivered.Job = job.Clone()
		s.enqueue(ctx, delivered)
	}
}

// Close stops accepting events, lets every subscriber drain what it already
// received and waits for them.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for id, s := range b.subs {
		close(s.stop)
		delete(b.subs, id)
	}
	b.mu.Unlock()
	b.wg.Wait()
}

// Subscription is returned by Subscribe.
type Subscription struct {
	bus  *Bus
	id   uint64
	once sync.Once
}

// Unsubscribe removes the handler. Events already queued for it are dropped.
func (sub *Subscription) Unsubscribe() {
	sub.once.Do(func() {
		sub.bus.mu.Lock()
		s, ok := sub.bus.subs[sub.id]
		delete(sub.bus.subs, sub.id)
		sub.bus.mu.Unlock()
		if ok {
			s.discard()
			close(s.stop)
		}
	})
}

type delivery struct {
	ctx context.Context
	e   Event
}

type subscriber struct {
	handler Handler
	filter  map[Name]struct{}
	logger  zerolog.Logger

	mu      sync.Mutex
	pending []delivery
	notify  chan struct{}
	stop    chan struct{}
}

func (s *subscriber) wants(n Name) bool {
	if s.filter == nil {
		return true
	}
	_, ok := s.filter[n]
	return ok
}

func (s *subscriber) enqueue(ctx context.Context, e Event) {
	s.mu.Lock()
	s.pending = append(s.pending, delivery{ctx: ctx, e: e})
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *subscriber) discard() {
	s.mu.Lock()
	s.pending = nil
	s.mu.Unlock()
}

func (s *subscriber) take() []delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := s.pending
	s.pending = nil
	return batch
}

func (s *subscriber) run() {
	for {
		select {
		case <-s.notify:
			s.deliver(s.take())
		case <-s.stop:
			s.deliver(s.take())
			return
		}
	}
}

func (s *subscriber) deliver(batch []delivery) {
	for _, d := range batch {
		s.call(d)
	}
}

func (s *subscriber) call(d delivery) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Str("event", string(d.e.Name)).Msg("Event handler panicked")
		}
	}()
	s.handler(d.ctx, d.e)
}

package engine

import (
	"context"

	"appraisekit/core"
)

// Storage abstracts persistence of the reminder state of one installation.
type Storage interface {
	// Load returns the persisted state, or an error wrapping core.ErrNotFound
	// when nothing was persisted yet.
	Load(ctx context.Context) (core.State, error)
	// Save replaces the persisted state.
	Save(ctx context.Context, st core.State) error
}

// Platform is the host UI/event subsystem. Init is called by Engine.Start and
// Shutdown by Engine.Stop.
type Platform interface {
	Init(ctx context.Context) error
	Shutdown() error
}

// Dialog creates modal alerts.
type Dialog interface {
	NewAlert(ctx context.Context) (Alert, error)
}

// Alert is a single modal dialog resource. Destroy must be safe to call on a
// partially built alert.
type Alert interface {
	SetMessage(text string) error
	AddButton(label string) error
	Show(ctx context.Context) error
	Destroy()
}

// Domain identifies the host subsystem an event belongs to.
type Domain string

const DomainDialog Domain = "dialog"

// HostEvent is one event pulled from the host event loop.
type HostEvent struct {
	Domain        Domain
	SelectedIndex int
}

// EventLoop blocks until the next host event is available.
type EventLoop interface {
	Next(ctx context.Context) (HostEvent, error)
}

// Connectivity reports whether network access is currently available.
type Connectivity interface {
	Available(ctx context.Context) (bool, error)
}

// StoreOpener opens a store listing deep link.
type StoreOpener interface {
	Open(ctx context.Context, uri string) error
}

// Host groups the host collaborators. Platform may be nil.
type Host struct {
	Platform Platform
	Dialog   Dialog
	Loop     EventLoop
	Network  Connectivity
	Store    StoreOpener
}

// Package app wires the Cuerpo Sonoro engine together: store, output sinks,
// dispatcher, session pipeline and the HTTP/WebSocket server.
package app

import (
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ayusman/cuerposonoro/internal/config"
	"github.com/ayusman/cuerposonoro/internal/music"
	"github.com/ayusman/cuerposonoro/internal/server"
	"github.com/ayusman/cuerposonoro/internal/session"
	"github.com/ayusman/cuerposonoro/internal/sink/midisink"
	"github.com/ayusman/cuerposonoro/internal/sink/oscsink"
	"github.com/ayusman/cuerposonoro/internal/store"
)

// App orchestrates the engine's components over their shared lifecycle.
type App struct {
	cfg config.Config

	mu      sync.Mutex
	store   *store.Store
	sinks   []music.Sink
	session *session.Session
	server  *server.Server
	started bool
}

// New creates an App from a validated configuration.
func New(cfg config.Config) *App {
	return &App{cfg: cfg}
}

// Start opens the store and the configured sinks, creates the session and
// launches the HTTP server. It returns an error when any configured
// component cannot come up; a sink the configuration promised is not
// optional.
func (a *App) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.started {
		return nil
	}

	dbPath, err := a.databasePath()
	if err != nil {
		return err
	}
	st, err := store.New(dbPath)
	if err != nil {
		return err
	}
	a.store = st

	if a.cfg.OSC.Enabled {
		a.sinks = append(a.sinks, oscsink.New(a.cfg.OSC.Host, a.cfg.OSC.Port))
		log.Printf("OSC sink sending to %s:%d", a.cfg.OSC.Host, a.cfg.OSC.Port)
	}
	if a.cfg.MIDI.Enabled {
		midi, err := midisink.New(a.cfg.MIDI.Port, a.cfg.MIDI.MelodyChannels)
		if err != nil {
			a.closeSinksLocked()
			st.Close()
			return err
		}
		a.sinks = append(a.sinks, midi)
		log.Printf("MIDI sink sending to port %q", a.cfg.MIDI.Port)
	}

	recorder := &noteRecorder{repo: st.Sessions()}
	dispatcher := session.NewDispatcher(session.DispatcherOptions{Recorder: recorder}, a.sinks...)
	a.session = session.New(a.cfg.Engine, dispatcher)
	recorder.sessionID = a.session.ID()

	if err := st.Sessions().Start(a.session.ID(), time.Now()); err != nil {
		log.Printf("session recording unavailable: %v", err)
	}

	a.server = server.New(server.Config{
		Store:   st,
		Session: a.session,
	})
	go func() {
		if err := a.server.ListenAndServe(a.cfg.Server.Addr); err != nil {
			log.Printf("server stopped: %v", err)
		}
	}()
	log.Printf("listening on %s", a.cfg.Server.Addr)

	a.started = true
	return nil
}

// Stop releases every voice, flushes the dispatcher, closes the sinks and
// finalizes the session record.
func (a *App) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.started {
		return
	}
	a.started = false

	snap := a.session.Snapshot()
	a.session.Close()

	if err := a.store.Sessions().End(a.session.ID(), time.Now(), int64(snap.Frames)); err != nil {
		log.Printf("failed to finalize session record: %v", err)
	}

	a.closeSinksLocked()

	if err := a.store.Close(); err != nil {
		log.Printf("error closing store: %v", err)
	}

	log.Println("engine stopped")
}

// SetEnabled toggles sound output without tearing down the pipeline.
func (a *App) SetEnabled(enabled bool) {
	a.mu.Lock()
	s := a.session
	a.mu.Unlock()
	if s != nil {
		s.SetEnabled(enabled)
	}
}

// Session returns the live session, or nil before Start.
func (a *App) Session() *session.Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session
}

// Store returns the store, or nil before Start.
func (a *App) Store() *store.Store {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.store
}

// closeSinksLocked closes every sink. Caller holds a.mu.
func (a *App) closeSinksLocked() {
	for _, sink := range a.sinks {
		if err := sink.Close(); err != nil {
			log.Printf("error closing sink: %v", err)
		}
	}
	a.sinks = nil
}

// databasePath resolves the store location, defaulting to
// ~/.cuerposonoro/cuerposonoro.db when not configured.
func (a *App) databasePath() (string, error) {
	if a.cfg.Store.Path != "" {
		return a.cfg.Store.Path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dbDir := filepath.Join(homeDir, ".cuerposonoro")
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return "", err
	}
	return filepath.Join(dbDir, "cuerposonoro.db"), nil
}

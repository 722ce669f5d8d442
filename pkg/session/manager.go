// Package session arbitrates access to the single shared mesh transport
// across concurrent web sessions. At most one channel can be loaded at a
// time; the manager reference-counts the sessions using it and only allows a
// channel switch when nobody else would lose their link.
package session

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/firefly-mesh/firefly/pkg/mesh"
	"github.com/firefly-mesh/firefly/pkg/models"
	"github.com/firefly-mesh/firefly/pkg/notify"
	"github.com/firefly-mesh/firefly/pkg/store"
)

// DefaultAnnounceDelay gives a freshly started transport a moment to settle
// before the self-announcement goes out.
const DefaultAnnounceDelay = 500 * time.Millisecond

type sessionEntry struct {
	ProfileID  string
	Channel    uint32
	Registered time.Time
}

// Manager owns the shared transport handle. All state transitions go through
// its mutex; nothing else may start, stop, or send on the transport.
type Manager struct {
	transport     mesh.Transport
	messages      store.MessageStore
	notifier      *notify.Notifier
	announceDelay time.Duration

	mu        sync.Mutex
	running   bool
	current   uint32
	localNode uint32
	hopLimit  uint32
	sessions  map[string]*sessionEntry
}

// NewManager wires the manager to its collaborators. messages and notifier
// receive the local echo of every sent message.
func NewManager(transport mesh.Transport, messages store.MessageStore, notifier *notify.Notifier, announceDelay time.Duration) *Manager {
	if announceDelay <= 0 {
		announceDelay = DefaultAnnounceDelay
	}
	return &Manager{
		transport:     transport,
		messages:      messages,
		notifier:      notifier,
		announceDelay: announceDelay,
		sessions:      make(map[string]*sessionEntry),
	}
}

// Activate binds a session to the profile's channel, starting or reusing the
// transport. When the transport serves a different channel and other sessions
// still hold it, activation fails with a ConflictError and nothing changes.
func (m *Manager) Activate(profile *models.Profile, sessionID string) (uint32, error) {
	channel, err := mesh.ChannelNum(profile.Channel, profile.Key)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ensureChannelLocked(profile, channel, sessionID); err != nil {
		return 0, err
	}

	m.sessions[sessionID] = &sessionEntry{
		ProfileID:  profile.ID,
		Channel:    channel,
		Registered: time.Now(),
	}
	slog.Info("session activated",
		"session", sessionID, "profile", profile.ID, "channel", channel,
		"sessions", len(m.sessions))
	return channel, nil
}

// Deactivate releases a session's claim on the transport. The last session
// out stops the transport. Callers must also route dirty client disconnects
// here so a dropped connection cannot leak its claim.
func (m *Manager) Deactivate(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[sessionID]; !ok {
		return
	}
	delete(m.sessions, sessionID)
	slog.Info("session deactivated", "session", sessionID, "sessions", len(m.sessions))

	if len(m.sessions) == 0 && m.running {
		if err := m.transport.Stop(); err != nil {
			slog.Warn("transport stop failed", "error", err)
		}
		m.running = false
		m.current = 0
		m.localNode = 0
	}
}

// Send transmits a text message for the profile, loading its channel first if
// needed using the same switch arbitration as Activate. On success it returns
// the local echo, already stored and published, so the UI shows the message
// without waiting for the network to deliver it back.
func (m *Manager) Send(profile *models.Profile, content string) (*models.Message, error) {
	channel, err := mesh.ChannelNum(profile.Channel, profile.Key)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if err := m.ensureChannelLocked(profile, channel, ""); err != nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("cannot load channel for send: %w", err)
	}
	err = m.transport.SendText(content, profile.EffectiveHopLimit())
	localNode := m.localNode
	m.mu.Unlock()

	if err != nil {
		return nil, fmt.Errorf("send text: %w", err)
	}

	senderNum := localNode
	hopLimit := profile.EffectiveHopLimit()
	echo := &models.Message{
		MessageID:     uuid.NewString(),
		Channel:       channel,
		SenderNum:     &senderNum,
		SenderDisplay: profile.LongName,
		Content:       content,
		Timestamp:     time.Now(),
		Direction:     models.DirectionSent,
		HopLimit:      &hopLimit,
	}
	if err := m.messages.Store(echo); err != nil {
		slog.Error("failed to store sent message", "channel", channel, "error", err)
	}
	m.notifier.Publish(channel, notify.KindMessage, echo)
	return echo, nil
}

// Announce broadcasts the loaded identity. Callers wanting the settle delay
// dispatch this from their own goroutine; no lock is held while they sleep.
func (m *Manager) Announce(hopLimit uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return fmt.Errorf("transport not running")
	}
	return m.transport.SendNodeInfo(hopLimit)
}

// LocalNode returns the node number the transport is loaded as, used to
// suppress loopback packets. ok is false while the transport is idle.
func (m *Manager) LocalNode() (uint32, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.localNode, m.running
}

// ActiveChannel returns the channel the transport currently serves.
func (m *Manager) ActiveChannel() (uint32, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current, m.running
}

// SessionCount returns how many sessions are registered.
func (m *Manager) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// ensureChannelLocked makes the transport serve the given channel, reusing,
// starting, or switching as needed. The caller holds m.mu. excludeSession is
// the session performing the operation; it never blocks its own switch.
func (m *Manager) ensureChannelLocked(profile *models.Profile, channel uint32, excludeSession string) error {
	if m.running && m.current == channel {
		return nil
	}

	if m.running {
		others := 0
		for id := range m.sessions {
			if id != excludeSession {
				others++
			}
		}
		if others > 0 {
			return &ConflictError{Blocking: m.current, Sessions: others}
		}
		if err := m.transport.Stop(); err != nil {
			slog.Warn("transport stop during switch failed", "channel", m.current, "error", err)
		}
		m.running = false
		slog.Info("switching channel", "from", m.current, "to", channel)
	}

	return m.startLocked(profile, channel)
}

// startLocked loads the transport with the profile's identity and key.
func (m *Manager) startLocked(profile *models.Profile, channel uint32) error {
	key, err := mesh.ChannelKey(profile.Key)
	if err != nil {
		return err
	}
	nodeNum, err := mesh.ParseNodeID(profile.NodeID)
	if err != nil {
		return fmt.Errorf("profile %s has an invalid node id: %w", profile.ID, err)
	}

	cfg := mesh.StartConfig{
		Key:       key,
		Channel:   channel,
		NodeNum:   nodeNum,
		NodeID:    models.FormatNodeNum(nodeNum),
		LongName:  profile.LongName,
		ShortName: profile.ShortName,
	}
	if err := m.transport.Start(cfg); err != nil {
		return fmt.Errorf("start transport: %w", err)
	}
	m.running = true
	m.current = channel
	m.localNode = nodeNum
	m.hopLimit = profile.EffectiveHopLimit()

	// Let the link settle, then tell the mesh who we are. Runs outside the
	// lock; a failed announcement is not a failed activation.
	hopLimit := m.hopLimit
	delay := m.announceDelay
	go func() {
		time.Sleep(delay)
		if err := m.Announce(hopLimit); err != nil {
			slog.Debug("self announcement skipped", "error", err)
		}
	}()
	return nil
}

package devicecomm

import (
	"sync"
	"time"
)

// DeviceState is a snapshot of one controller's presence.
type DeviceState struct {
	DeviceID string    `json:"device_id"`
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"last_seen"`
	Firmware string    `json:"firmware,omitempty"`
}

// deviceTable tracks controller presence in memory. Presence is derived
// from retained status messages and heartbeats; it is rebuilt from the
// broker on restart, so it is deliberately not persisted.
type deviceTable struct {
	mu      sync.RWMutex
	devices map[string]*DeviceState
}

func newDeviceTable() *deviceTable {
	return &deviceTable{
		devices: make(map[string]*DeviceState),
	}
}

// markOnline records a controller as online, returning true when this
// is a transition (first sighting or previously offline).
func (t *deviceTable) markOnline(deviceID, firmware string, at time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.devices[deviceID]
	if !ok {
		state = &DeviceState{DeviceID: deviceID}
		t.devices[deviceID] = state
	}

	transition := !ok || !state.Online
	state.Online = true
	state.LastSeen = at
	if firmware != "" {
		state.Firmware = firmware
	}
	return transition
}

// markOffline records a controller as offline, returning true when this
// is a transition. Unknown controllers are recorded so their LWT still
// surfaces as an offline event.
func (t *deviceTable) markOffline(deviceID string, at time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.devices[deviceID]
	if !ok {
		t.devices[deviceID] = &DeviceState{DeviceID: deviceID, LastSeen: at}
		return true
	}

	transition := state.Online
	state.Online = false
	state.LastSeen = at
	return transition
}

// touch updates the last-seen time without changing presence.
func (t *deviceTable) touch(deviceID string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if state, ok := t.devices[deviceID]; ok {
		state.LastSeen = at
	}
}

// get returns a copy of one controller's state.
func (t *deviceTable) get(deviceID string) (DeviceState, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	state, ok := t.devices[deviceID]
	if !ok {
		return DeviceState{}, false
	}
	return *state, true
}

// isOnline reports whether a controller is currently online.
func (t *deviceTable) isOnline(deviceID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	state, ok := t.devices[deviceID]
	return ok && state.Online
}

// snapshot returns copies of all known controller states.
func (t *deviceTable) snapshot() []DeviceState {
	t.mu.RLock()
	defer t.mu.RUnlock()

	states := make([]DeviceState, 0, len(t.devices))
	for _, state := range t.devices {
		states = append(states, *state)
	}
	return states
}

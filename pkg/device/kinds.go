package device

import (
	"math"
	"math/rand/v2"
)

// Threshold bounds and defaults per kind.
const (
	LightThresholdMax   = 100
	LightDefaultThresh  = 50
	LightDefaultBright  = 90
	MotionThresholdMax  = 10
	MotionDefaultThresh = 5
	ThermThresholdMax   = 40
	ThermDefaultThresh  = 23
	ThermDefaultTemp    = 15.0
)

// SmartLight switches itself off when brightness reaches the threshold and
// on when it drops below, while active.
type SmartLight struct {
	base
	brightness int
}

// NewSmartLight creates an active, switched-on light.
func NewSmartLight(id string, threshold int) *SmartLight {
	l := &SmartLight{brightness: LightDefaultBright}
	l.init(id, KindSmartLight, threshold, 0, LightThresholdMax)
	return l
}

func (l *SmartLight) Readings() Readings {
	l.mu.Lock()
	defer l.mu.Unlock()
	r := l.readingsLocked()
	r["brightness"] = l.brightness
	return r
}

// SwitchOn overrides the automatic behavior and turns the light on.
func (l *SmartLight) SwitchOn() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.status = StatusInactive
	l.on = true
	return "Manual override (threshold deactivated); lighted switched on"
}

// SwitchOff overrides the automatic behavior and turns the light off.
func (l *SmartLight) SwitchOff() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.status = StatusInactive
	l.on = false
	return "Manual override (threshold deactivated); lighted switched off"
}

func (l *SmartLight) HasSensor() bool { return true }

// Sense drifts brightness by up to ±2. Unlike the other kinds a light keeps
// sensing while switched off: ambient brightness falling below the threshold
// is what switches an active light back on, so skipping off lights would
// leave them dark for good.
func (l *SmartLight) Sense(rng *rand.Rand) string {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.brightness = clamp(l.brightness+rng.IntN(5)-2, 0, 100)
	if l.status != StatusActive {
		return ""
	}
	switch {
	case l.on && l.brightness >= l.threshold:
		l.on = false
		return "Threshold exceeded. Switching light off"
	case !l.on && l.brightness < l.threshold:
		l.on = true
		return "Threshold subceeded. Switching light on"
	}
	return ""
}

// Brightness returns the current brightness.
func (l *SmartLight) Brightness() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.brightness
}

func (l *SmartLight) String() string { return render(l) }

// MotionSensor reports motion at or above the threshold while active.
// The switch starts and stops sensing.
type MotionSensor struct {
	base
	motion int
}

// NewMotionSensor creates an active, switched-on sensor.
func NewMotionSensor(id string, threshold int) *MotionSensor {
	m := &MotionSensor{}
	m.init(id, KindMotionSensor, threshold, 0, MotionThresholdMax)
	return m
}

func (m *MotionSensor) Readings() Readings {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.readingsLocked()
	r["motion"] = m.motion
	return r
}

func (m *MotionSensor) SwitchOn() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.on {
		return ResultAlreadyOn
	}
	m.on = true
	return "success - motion sensor engaged"
}

func (m *MotionSensor) SwitchOff() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.on {
		return ResultAlreadyOff
	}
	m.on = false
	return "success - motion sensor disengaged"
}

func (m *MotionSensor) HasSensor() bool { return true }

// Sense drifts motion by up to ±1 while switched on.
func (m *MotionSensor) Sense(rng *rand.Rand) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.on {
		return ""
	}
	m.motion = clamp(m.motion+rng.IntN(3)-1, 0, 10)
	if m.status == StatusActive && m.motion >= m.threshold {
		return "Motion detected!"
	}
	return ""
}

// Motion returns the current motion level.
func (m *MotionSensor) Motion() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.motion
}

func (m *MotionSensor) String() string { return render(m) }

// SmartLock has no sensor. Its switch is the lock: on is locked.
// Locking and unlocking require the lock to be active.
type SmartLock struct {
	base
}

// NewSmartLock creates an active, locked lock.
func NewSmartLock(id string) *SmartLock {
	k := &SmartLock{}
	k.init(id, KindSmartLock, 0, 0, 0)
	return k
}

func (k *SmartLock) Readings() Readings {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.readingsLocked()
}

// SwitchOn locks.
func (k *SmartLock) SwitchOn() string {
	k.mu.Lock()
	defer k.mu.Unlock()
	switch {
	case k.status == StatusInactive:
		return "failure - lock is inactive"
	case k.on:
		return "already locked"
	}
	k.on = true
	return "success - lock engaged"
}

// SwitchOff unlocks.
func (k *SmartLock) SwitchOff() string {
	k.mu.Lock()
	defer k.mu.Unlock()
	switch {
	case k.status == StatusInactive:
		return "failure - lock is inactive"
	case !k.on:
		return "already unlocked"
	}
	k.on = false
	return "success - lock disengaged"
}

func (k *SmartLock) HasSensor() bool { return false }

func (k *SmartLock) Sense(*rand.Rand) string { return "" }

// Locked reports whether the lock is engaged.
func (k *SmartLock) Locked() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.on
}

func (k *SmartLock) String() string { return render(k) }

// Thermostat caps the temperature at the threshold while active. The
// switch starts and stops sensing.
type Thermostat struct {
	base
	temp float64
}

// NewThermostat creates an active, switched-on thermostat.
func NewThermostat(id string, threshold int) *Thermostat {
	t := &Thermostat{temp: ThermDefaultTemp}
	t.init(id, KindThermostat, threshold, 0, ThermThresholdMax)
	return t
}

func (t *Thermostat) Readings() Readings {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.readingsLocked()
	r["temp"] = t.temp
	return r
}

func (t *Thermostat) SwitchOn() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.on {
		return ResultAlreadyOn
	}
	t.on = true
	return "success - thermostat engaged"
}

func (t *Thermostat) SwitchOff() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.on {
		return ResultAlreadyOff
	}
	t.on = false
	return "success - thermostat disengaged"
}

func (t *Thermostat) HasSensor() bool { return true }

// Sense drifts the temperature by -0.1, 0 or +0.1 while switched on.
func (t *Thermostat) Sense(rng *rand.Rand) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.on {
		return ""
	}
	t.temp = math.Round((t.temp+float64(rng.IntN(3)-1)/10)*10) / 10
	if t.status == StatusActive && t.temp >= float64(t.threshold) {
		t.temp = float64(t.threshold)
		return "Temperature threshold exceeded. Capping temperature at threshold"
	}
	return ""
}

// Temp returns the current temperature.
func (t *Thermostat) Temp() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.temp
}

func (t *Thermostat) String() string { return render(t) }

var (
	_ Device = (*SmartLight)(nil)
	_ Device = (*MotionSensor)(nil)
	_ Device = (*SmartLock)(nil)
	_ Device = (*Thermostat)(nil)
)

// Package device models the simulated IoT devices.
//
// Four kinds share a common core (identifier, active/inactive status,
// clamped threshold, on/off switch) and add one sensed value each:
//
//	kind          threshold  sensed value
//	SmartLight    [0,100]    brightness (0..100)
//	MotionSensor  [0,10]     motion (0..10)
//	SmartLock     [0,0]      none; the switch is the lock
//	Thermostat    [0,40]     temp
//
// Status is "active" or "inactive". For lights, sensors and thermostats it
// enables the automatic threshold behavior; for locks it gates locking and
// unlocking.
package device

// Package rate throttles failed logins with Redis fixed-window counters.
//
// A window starts at the first failure (INCR followed by EXPIRE on the first hit) and
// lasts Config.Window. Keys live under "<prefix>:throttle:" next to the credential keys.
package rate

// Package watchdog feeds a Linux watchdog device such as /dev/watchdog.
//
// Any write keeps the timer alive. Writing "V" just before close tells
// drivers that support magic close to disarm instead of rebooting.
package watchdog

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// MinInterval is the shortest gap between two writes to the device.
const MinInterval = time.Second

// Device is an open watchdog.
type Device struct {
	mu   sync.Mutex
	w    io.WriteCloser
	name string
	last time.Time
	now  func() time.Time
}

// Open opens the watchdog device. Opening arms the timer.
func Open(path string) (*Device, error) {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("watchdog: %w", err)
	}
	return newDevice(f, path), nil
}

func newDevice(w io.WriteCloser, name string) *Device {
	return &Device{w: w, name: name, now: time.Now}
}

// Feed pets the watchdog. Calls closer together than MinInterval are
// dropped, so it is safe to call on every loop tick.
func (d *Device) Feed() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.w == nil {
		return fmt.Errorf("watchdog %s: closed", d.name)
	}
	now := d.now()
	if !d.last.IsZero() && now.Sub(d.last) < MinInterval {
		return nil
	}
	if _, err := d.w.Write([]byte{0}); err != nil {
		return fmt.Errorf("watchdog %s: %w", d.name, err)
	}
	d.last = now
	return nil
}

// Close disarms the watchdog with a magic close and releases the device.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.w == nil {
		return nil
	}
	_, werr := d.w.Write([]byte("V"))
	cerr := d.w.Close()
	d.w = nil
	if werr != nil {
		return fmt.Errorf("watchdog %s: magic close: %w", d.name, werr)
	}
	return cerr
}

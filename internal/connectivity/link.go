package connectivity

import (
	"context"
	"net"
	"time"
)

const defaultLinkPoll = 5 * time.Second

// InterfaceWatcher polls the host's network interfaces and reports when
// the presence of an up, non-loopback interface changes.
type InterfaceWatcher struct {
	poll       time.Duration
	interfaces func() ([]net.Interface, error)
}

func NewInterfaceWatcher(poll time.Duration) *InterfaceWatcher {
	if poll <= 0 {
		poll = defaultLinkPoll
	}
	return &InterfaceWatcher{poll: poll, interfaces: net.Interfaces}
}

// Watch calls fn with the initial state and then on every transition. It
// returns ctx.Err() when ctx is done.
func (w *InterfaceWatcher) Watch(ctx context.Context, fn func(up bool)) error {
	last, err := w.linkUp()
	if err != nil {
		return err
	}
	fn(last)

	t := time.NewTicker(w.poll)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			up, err := w.linkUp()
			if err != nil {
				continue
			}
			if up != last {
				last = up
				fn(up)
			}
		}
	}
}

func (w *InterfaceWatcher) linkUp() (bool, error) {
	ifs, err := w.interfaces()
	if err != nil {
		return false, err
	}
	for _, ifc := range ifs {
		if ifc.Flags&net.FlagUp != 0 && ifc.Flags&net.FlagLoopback == 0 {
			return true, nil
		}
	}
	return false, nil
}

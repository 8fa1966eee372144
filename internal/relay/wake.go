package relay

import (
	"context"
	"fmt"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// Bytes written to the wake pipe.
const (
	wakeCancel  byte = 'c'
	wakeSuspend byte = 's'
	wakeResume  byte = 'r'
)

// waker is a self-pipe that becomes readable when a context is done or a
// job-control signal arrives, so a blocked poll can act on it.
type waker struct {
	r, w int
	quit chan struct{}
	done chan struct{}
}

func newWaker(ctx context.Context, jobs <-chan os.Signal) (*waker, error) {
	fds := make([]int, 2)
	if err := unix.Pipe2(fds, unix.O_CLOEXEC); err != nil {
		return nil, fmt.Errorf("pipe: %w", err)
	}
	wk := &waker{
		r:    fds[0],
		w:    fds[1],
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go wk.forward(ctx, jobs)
	return wk, nil
}

func (wk *waker) forward(ctx context.Context, jobs <-chan os.Signal) {
	defer close(wk.done)
	for {
		select {
		case <-wk.quit:
			return
		case <-ctx.Done():
			wk.send(wakeCancel)
			return
		case sig := <-jobs:
			switch sig {
			case syscall.SIGTSTP:
				wk.send(wakeSuspend)
			case syscall.SIGCONT:
				wk.send(wakeResume)
			}
		}
	}
}

func (wk *waker) send(c byte) {
	unix.Write(wk.w, []byte{c})
}

func (wk *waker) close() {
	// The forwarder must be gone before the descriptors can be reused.
	close(wk.quit)
	<-wk.done
	unix.Close(wk.r)
	unix.Close(wk.w)
}

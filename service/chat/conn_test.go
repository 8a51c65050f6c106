package chat

import (
	"testing"
	"time"
)

func TestWritePumpClosesConnOnWriteError(t *testing.T) {
	c := newConn(nil) // every write on a nil socket fails
	go c.writePump()

	c.push([]byte("x"))

	select {
	case <-c.done:
	case <-time.After(2 * time.Second):
		t.Fatal("conn left open after write error")
	}

	// a closed conn must not block later pushes
	push := make(chan struct{})
	go func() {
		c.push([]byte("y"))
		close(push)
	}()
	select {
	case <-push:
	case <-time.After(2 * time.Second):
		t.Fatal("push blocked on closed conn")
	}
}

package stream

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"

	"optionstream/internal/errors"
)

func testConn(cfg ConnConfig) *ClientConn {
	return NewClientConn("127.0.0.1:9000", cfg, zerolog.Nop())
}

func TestConnSendAndDrain(t *testing.T) {
	conn := testConn(ConnConfig{QueueSize: 4, Policy: DropOldest, DropThreshold: 25})

	for i := 0; i < 3; i++ {
		if err := conn.Send([]byte{byte(i)}); err != nil {
			t.Fatal(err)
		}
	}

	for i := 0; i < 3; i++ {
		msg := <-conn.Outbound()
		if msg[0] != byte(i) {
			t.Errorf("message %d = %d, want %d", i, msg[0], i)
		}
	}
	if conn.Sent() != 3 || conn.Dropped() != 0 {
		t.Errorf("sent=%d dropped=%d, want 3/0", conn.Sent(), conn.Dropped())
	}
}

func TestConnDropOldestKeepsFreshest(t *testing.T) {
	conn := testConn(ConnConfig{QueueSize: 2, Policy: DropOldest, DropThreshold: 25})

	for i := 0; i < 5; i++ {
		conn.Send([]byte(fmt.Sprintf("m%d", i)))
	}

	// Queue holds the 2 freshest messages; 3 oldest were evicted.
	if got := string(<-conn.Outbound()); got != "m3" {
		t.Errorf("first = %q, want m3", got)
	}
	if got := string(<-conn.Outbound()); got != "m4" {
		t.Errorf("second = %q, want m4", got)
	}
	if conn.Dropped() != 3 {
		t.Errorf("dropped = %d, want 3", conn.Dropped())
	}
}

func TestConnDropNewest(t *testing.T) {
	conn := testConn(ConnConfig{QueueSize: 2, Policy: DropNewest, DropThreshold: 25})

	conn.Send([]byte("m0"))
	conn.Send([]byte("m1"))
	if err := conn.Send([]byte("m2")); !stderrors.Is(err, errors.ErrQueueFull) {
		t.Fatalf("overflow err = %v, want ErrQueueFull", err)
	}

	if got := string(<-conn.Outbound()); got != "m0" {
		t.Errorf("first = %q, want m0", got)
	}
	if conn.Dropped() != 1 {
		t.Errorf("dropped = %d, want 1", conn.Dropped())
	}
}

func TestConnConsecutiveDropThresholdCloses(t *testing.T) {
	conn := testConn(ConnConfig{QueueSize: 1, Policy: DropNewest, DropThreshold: 3})

	var removed bool
	conn.OnClose = func(*ClientConn) { removed = true }

	conn.Send([]byte("m0"))

	// Two overflows survive, the third hits the threshold.
	conn.Send([]byte("m1"))
	conn.Send([]byte("m2"))
	if conn.Closed() {
		t.Fatal("closed before threshold")
	}

	err := conn.Send([]byte("m3"))
	if !stderrors.Is(err, errors.ErrConnectionClosed) {
		t.Fatalf("threshold err = %v, want ErrConnectionClosed", err)
	}
	if !conn.Closed() {
		t.Error("expected connection closed at threshold")
	}
	if !removed {
		t.Error("OnClose did not run")
	}
}

func TestConnSuccessfulSendResetsConsecutiveDrops(t *testing.T) {
	conn := testConn(ConnConfig{QueueSize: 1, Policy: DropNewest, DropThreshold: 3})

	conn.Send([]byte("m0"))
	conn.Send([]byte("m1")) // drop 1
	conn.Send([]byte("m2")) // drop 2

	<-conn.Outbound()
	if err := conn.Send([]byte("m3")); err != nil {
		t.Fatal(err)
	}

	// The counter reset, so two more drops stay under the threshold.
	conn.Send([]byte("m4"))
	conn.Send([]byte("m5"))
	if conn.Closed() {
		t.Error("connection closed despite reset drop counter")
	}
}

func TestConnCloseIdempotent(t *testing.T) {
	conn := testConn(ConnConfig{})

	calls := 0
	conn.OnClose = func(*ClientConn) { calls++ }

	conn.Close()
	conn.Close()

	if calls != 1 {
		t.Errorf("OnClose calls = %d, want 1", calls)
	}
	if err := conn.Send([]byte("m")); !stderrors.Is(err, errors.ErrConnectionClosed) {
		t.Errorf("send after close err = %v, want ErrConnectionClosed", err)
	}
}

func TestConnFreshIdentity(t *testing.T) {
	a := testConn(ConnConfig{})
	b := testConn(ConnConfig{})
	if a.ID == b.ID {
		t.Error("two connections share an ID")
	}
	if a.ID == "" {
		t.Error("empty connection ID")
	}
}

package stream

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"
)

// regOp is one registry mutation in a generated sequence.
type regOp struct {
	kind   int // 0 subscribe, 1 unsubscribe, 2 remove connection
	conn   int
	symbol int
}

var propSymbols = []string{"NIFTY", "BANKNIFTY", "RELIANCE", "TCS"}

func genRegOps() gopter.Gen {
	return gen.SliceOf(gopter.CombineGens(
		gen.IntRange(0, 2),
		gen.IntRange(0, 3),
		gen.IntRange(0, len(propSymbols)-1),
	).Map(func(vs []interface{}) regOp {
		return regOp{kind: vs[0].(int), conn: vs[1].(int), symbol: vs[2].(int)}
	}))
}

// applyRegOps replays a sequence against a fresh registry and a naive
// model map, re-registering removed connections so later ops hit them.
func applyRegOps(ops []regOp) (*Registry, map[string]map[string]bool, []*ClientConn) {
	r := NewRegistry()
	conns := make([]*ClientConn, 4)
	for i := range conns {
		conns[i] = NewClientConn("127.0.0.1:0", ConnConfig{QueueSize: 4}, zerolog.Nop())
		r.Register(conns[i])
	}

	model := make(map[string]map[string]bool)
	for i := range conns {
		model[conns[i].ID] = make(map[string]bool)
	}

	for _, op := range ops {
		conn := conns[op.conn]
		symbol := propSymbols[op.symbol]
		switch op.kind {
		case 0:
			r.Subscribe(conn.ID, symbol)
			model[conn.ID][symbol] = true
		case 1:
			r.Unsubscribe(conn.ID, symbol)
			delete(model[conn.ID], symbol)
		case 2:
			r.RemoveConnection(conn.ID)
			model[conn.ID] = make(map[string]bool)
			r.Register(conn)
		}
	}
	return r, model, conns
}

func TestRegistryProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("dual indexes agree after any op sequence", prop.ForAll(
		func(ops []regOp) string {
			r, model, conns := applyRegOps(ops)

			for _, conn := range conns {
				got := r.SymbolsOf(conn.ID)
				if len(got) != len(model[conn.ID]) {
					return fmt.Sprintf("conn %s: %d symbols, model has %d",
						conn.ID, len(got), len(model[conn.ID]))
				}
				for _, symbol := range got {
					if !model[conn.ID][symbol] {
						return fmt.Sprintf("conn %s subscribed to %s, model disagrees",
							conn.ID, symbol)
					}
				}
			}
			return ""
		},
		genRegOps(),
	))

	properties.Property("no phantom symbols survive", prop.ForAll(
		func(ops []regOp) string {
			r, model, _ := applyRegOps(ops)

			live := make(map[string]bool)
			for _, symbols := range model {
				for symbol := range symbols {
					live[symbol] = true
				}
			}

			got := r.SymbolsWithSubscribers()
			if len(got) != len(live) {
				return fmt.Sprintf("registry lists %d symbols, model has %d", len(got), len(live))
			}
			for _, symbol := range got {
				if !live[symbol] {
					return fmt.Sprintf("registry lists %s with no model subscriber", symbol)
				}
			}
			return ""
		},
		genRegOps(),
	))

	properties.Property("broadcast reaches exactly the subscriber count", prop.ForAll(
		func(ops []regOp, symbolIdx int) string {
			r, model, _ := applyRegOps(ops)
			symbol := propSymbols[symbolIdx]

			want := 0
			for _, symbols := range model {
				if symbols[symbol] {
					want++
				}
			}

			if got := r.Broadcast(symbol, []byte("m")); got != want {
				return fmt.Sprintf("delivered %d, want %d", got, want)
			}
			return ""
		},
		genRegOps(),
		gen.IntRange(0, len(propSymbols)-1),
	))

	properties.TestingRun(t)
}

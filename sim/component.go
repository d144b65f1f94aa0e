package sim

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Gate names an output of a component. Which component sits behind a gate is
// decided by the network wiring, not by the component.
type Gate string

const (
	GateOut    Gate = "out"       // forward direction
	GateEndOut Gate = "endReqOut" // completion notices, back toward the client
)

// node carries what every stage needs: the scheduler, its random streams, the
// statistics sink and its output gates.
type node struct {
	name        string
	sim         *Simulator
	rng         *PartitionedRNG
	sink        Sink
	replication int
	gates       map[Gate]Component
	log         *logrus.Entry
}

func newNode(name string, s *Simulator, rng *PartitionedRNG, sink Sink, replication int) node {
	return node{
		name:        name,
		sim:         s,
		rng:         rng,
		sink:        sink,
		replication: replication,
		gates:       make(map[Gate]Component),
		log:         logrus.WithField("stage", name),
	}
}

func (n *node) Name() string { return n.name }

// Connect attaches target behind gate g, replacing any previous connection.
func (n *node) Connect(g Gate, target Component) {
	n.gates[g] = target
}

// send delivers msg through gate g at the current virtual time.
func (n *node) send(g Gate, msg *Message) error {
	target, ok := n.gates[g]
	if !ok {
		return &ProtocolViolationError{
			Component: n.name,
			Kind:      msg.Kind,
			Detail:    fmt.Sprintf("gate %q is not connected", g),
		}
	}
	n.sim.Send(target, msg)
	return nil
}

func (n *node) emit(name StatName, now, value float64, requestID int64) error {
	if n.sink == nil {
		return nil
	}
	return n.sink.Record(Sample{
		Replication: n.replication,
		Name:        name,
		Time:        now,
		Value:       value,
		RequestID:   requestID,
	})
}

func (n *node) requestLog(req *Request) *logrus.Entry {
	return n.log.WithFields(logrus.Fields{
		"request": req.ID,
		"client":  req.ClientID,
		"worker":  req.WorkerID,
	})
}

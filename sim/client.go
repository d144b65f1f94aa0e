package sim

import (
	"github.com/sirupsen/logrus"
)

// ClientName is the component name of the client generator.
const ClientName = "client"

// Client is one simulated user with its own think-time stream.
type Client struct {
	ID        int
	Issued    int64 // requests issued so far, strictly increasing
	Completed int64
}

// Outstanding returns the number of issued requests not yet completed.
func (c *Client) Outstanding() int64 { return c.Issued - c.Completed }

type pendingRequest struct {
	clientID int
	issuedAt float64
}

// ClientGenerator drives every client: on think-time expiry a client issues a
// request into stage 1, and on completion the total response time is emitted.
//
// In open mode (default) the next think time is drawn right after issuing, so a
// client may have several requests outstanding. In closed-loop mode the next
// think time starts when the outstanding request completes.
//
// Gates: GateOut -> stage 1.
type ClientGenerator struct {
	node
	clients       []*Client
	think         Sampler
	closedLoop    bool
	maxRequests   int64 // per client; 0 = unbounded
	nextRequestID int64
	pending       map[int64]pendingRequest
	table         dispatchTable
}

// ClientGeneratorConfig groups the client generator parameters.
type ClientGeneratorConfig struct {
	NumClients  int
	Think       Sampler
	ClosedLoop  bool
	MaxRequests int64
}

// NewClientGenerator creates numClients clients with ids 0..numClients-1.
// Panics if NumClients < 1 or Think is nil.
func NewClientGenerator(s *Simulator, rng *PartitionedRNG, sink Sink, replication int, cfg ClientGeneratorConfig) *ClientGenerator {
	if cfg.NumClients < 1 {
		panic("NewClientGenerator: NumClients must be >= 1")
	}
	if cfg.Think == nil {
		panic("NewClientGenerator: think time sampler must not be nil")
	}
	clients := make([]*Client, cfg.NumClients)
	for i := range clients {
		clients[i] = &Client{ID: i}
	}
	g := &ClientGenerator{
		node:        newNode(ClientName, s, rng, sink, replication),
		clients:     clients,
		think:       cfg.Think,
		closedLoop:  cfg.ClosedLoop,
		maxRequests: cfg.MaxRequests,
		pending:     make(map[int64]pendingRequest),
	}
	g.table = dispatchTable{
		KindThinkTimeExpired: g.onThinkTimeExpired,
		KindEnd:              g.onRequestCompleted,
	}
	return g
}

// Handle dispatches msg by kind.
func (g *ClientGenerator) Handle(now float64, msg *Message) error {
	return g.table.dispatch(g.name, now, msg)
}

// Start schedules the first think-time expiry of every client.
func (g *ClientGenerator) Start(now float64) {
	for _, c := range g.clients {
		g.scheduleNext(now, c)
	}
}

// Clients returns the clients in id order.
func (g *ClientGenerator) Clients() []*Client { return g.clients }

// IssuedRequests returns the number of requests issued by all clients.
func (g *ClientGenerator) IssuedRequests() int64 { return g.nextRequestID }

// PendingRequests returns the number of requests issued but not completed.
func (g *ClientGenerator) PendingRequests() int { return len(g.pending) }

// IsPending reports whether request id was issued and has not completed.
func (g *ClientGenerator) IsPending(id int64) bool {
	_, ok := g.pending[id]
	return ok
}

func (g *ClientGenerator) scheduleNext(now float64, c *Client) {
	if g.maxRequests > 0 && c.Issued >= g.maxRequests {
		return
	}
	delay := g.think.Sample(g.rng.Source(ClientStream(c.ID)))
	g.sim.ScheduleAt(now+delay, g, &Message{Kind: KindThinkTimeExpired, RequestID: -1, ClientID: c.ID})
}

func (g *ClientGenerator) client(id int) *Client {
	if id < 0 || id >= len(g.clients) {
		return nil
	}
	return g.clients[id]
}

func (g *ClientGenerator) onThinkTimeExpired(now float64, msg *Message) error {
	c := g.client(msg.ClientID)
	if c == nil {
		return invariantf(g.name, -1, NoWorker, "think timer for unknown client %d", msg.ClientID)
	}
	req := NewRequest(g.nextRequestID, c.ID)
	g.nextRequestID++
	c.Issued++
	g.pending[req.ID] = pendingRequest{clientID: c.ID, issuedAt: now}
	if logrus.IsLevelEnabled(logrus.DebugLevel) {
		g.requestLog(req).Debug("sending request")
	}
	if err := g.send(GateOut, newRequestMessage(KindServe, req)); err != nil {
		return err
	}
	if !g.closedLoop {
		g.scheduleNext(now, c)
	}
	return nil
}

func (g *ClientGenerator) onRequestCompleted(now float64, msg *Message) error {
	p, ok := g.pending[msg.RequestID]
	if !ok {
		return invariantf(g.name, msg.RequestID, msg.WorkerID, "completion of a request no client is waiting on")
	}
	delete(g.pending, msg.RequestID)
	if msg.Request != nil {
		msg.Request.State = StateCompleted
	}
	c := g.clients[p.clientID]
	c.Completed++
	rt := now - p.issuedAt
	if logrus.IsLevelEnabled(logrus.DebugLevel) {
		g.log.WithFields(logrus.Fields{"request": msg.RequestID, "client": c.ID}).Debugf("completed, duration %g", rt)
	}
	if err := g.emit(StatTotalResponseTimeClient, now, rt, msg.RequestID); err != nil {
		return err
	}
	if g.closedLoop {
		g.scheduleNext(now, c)
	}
	return nil
}

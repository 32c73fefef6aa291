package bus

import (
	"fmt"
	"strings"
	"time"

	server "github.com/nats-io/nats-server/v2/server"
	nats "github.com/nats-io/nats.go"
)

// Server is an embedded in-process NATS server used to move stream usage
// accounting off the relay's hot path. Core subjects only: fragments are
// fire-and-forget and never stored.
type Server struct{ ns *server.Server }

func NewServer() (*Server, error) {
	ns, err := server.NewServer(&server.Options{
		DontListen: true,
	})
	if err != nil {
		return nil, err
	}
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		return nil, fmt.Errorf("NATS server not ready")
	}
	return &Server{ns: ns}, nil
}

func (s *Server) Connect() (*nats.Conn, error) {
	return nats.Connect(s.ns.ClientURL(), nats.InProcessServer(s.ns))
}

func (s *Server) Shutdown() {
	s.ns.Shutdown()
	s.ns.WaitForShutdown()
}

const (
	subjectPrefix = "estimate.req."
	doneSuffix    = ".done"
)

// WildcardSubject matches every estimation subject.
const WildcardSubject = subjectPrefix + ">"

// FragmentSubject carries one relayed content fragment.
func FragmentSubject(requestID string) string {
	return subjectPrefix + requestID
}

// DoneSubject marks the end of one estimation stream.
func DoneSubject(requestID string) string {
	return subjectPrefix + requestID + doneSuffix
}

// IsDone reports whether subject is a done marker.
func IsDone(subject string) bool {
	return strings.HasSuffix(subject, doneSuffix)
}

// RequestID extracts the request id from a fragment or done subject.
func RequestID(subject string) string {
	id := strings.TrimPrefix(subject, subjectPrefix)
	return strings.TrimSuffix(id, doneSuffix)
}

// Done is the payload published on DoneSubject when a stream finishes.
type Done struct {
	StartedAt int64 `json:"started_at"`
	Fragments int   `json:"fragments"`
	Failed    bool  `json:"failed"`
}

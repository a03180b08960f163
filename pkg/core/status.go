package core

import "strings"

// Status is the lifecycle state of a socket. Values are distinct bits so a
// set of states can be expressed as a mask (see Terminal, Connected).
type Status uint32

// Socket states
const (
	StatusStandby        Status = 1 << iota // constructed, worker not running
	StatusInitialising                      // worker running, resolving address
	StatusEncryption                        // preparing TLS parameters
	StatusConnecting                        // dialing and handshaking
	StatusConnected                         // transport established
	StatusDisconnecting                     // orderly shutdown in progress
	StatusSendRequest                       // HTTP: writing request
	StatusClosedByClient                    // closed locally
	StatusClosedByServer                    // closed by peer
	StatusReplyWait                         // HTTP: waiting for status line
	StatusDownloading                       // HTTP: reading body
	StatusEventError                        // unrecoverable failure
	StatusReadPacket                        // HTTP: reply complete and queued
)

// StatusTerminal is the set of states a worker never leaves on its own.
const StatusTerminal = StatusClosedByClient | StatusClosedByServer | StatusEventError

// StatusConnectedPhase is the set of states in which the transport is up and
// the socket counts towards the registry's connected total.
const StatusConnectedPhase = StatusConnected | StatusSendRequest | StatusReplyWait |
	StatusDownloading | StatusReadPacket

var statusNames = []struct {
	s    Status
	name string
}{
	{StatusStandby, "STANDBY"},
	{StatusInitialising, "INITIALISING"},
	{StatusEncryption, "ENCRYPTION"},
	{StatusConnecting, "CONNECTING"},
	{StatusConnected, "CONNECTED"},
	{StatusDisconnecting, "DISCONNECTING"},
	{StatusSendRequest, "SENDREQUEST"},
	{StatusClosedByClient, "CLOSEDBYCLIENT"},
	{StatusClosedByServer, "CLOSEDBYSERVER"},
	{StatusReplyWait, "REPLYWAIT"},
	{StatusDownloading, "DOWNLOADING"},
	{StatusEventError, "EVENTERROR"},
	{StatusReadPacket, "READPACKET"},
}

// String returns the state name, or a "|" separated list for masks.
func (s Status) String() string {
	if s == 0 {
		return "NONE"
	}
	var parts []string
	for _, n := range statusNames {
		if s&n.s != 0 {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "UNKNOWN"
	}
	return strings.Join(parts, "|")
}

// In reports whether s is one of the states in mask.
func (s Status) In(mask Status) bool { return s != 0 && s&mask == s }

// IsTerminal reports whether s is a terminal state.
func (s Status) IsTerminal() bool { return s.In(StatusTerminal) }

// ParseStatus maps a state name back to its value.
func ParseStatus(name string) (Status, bool) {
	name = strings.ToUpper(strings.TrimSpace(name))
	for _, n := range statusNames {
		if n.name == name {
			return n.s, true
		}
	}
	return 0, false
}

// transitions lists the legal successor states of each state.
var transitions = map[Status]Status{
	StatusStandby:       StatusInitialising | StatusDisconnecting,
	StatusInitialising:  StatusEncryption | StatusConnecting | StatusEventError | StatusDisconnecting,
	StatusEncryption:    StatusConnecting | StatusEventError | StatusDisconnecting,
	StatusConnecting:    StatusConnected | StatusEventError | StatusDisconnecting,
	StatusConnected:     StatusSendRequest | StatusDisconnecting | StatusClosedByServer | StatusEventError,
	StatusSendRequest:   StatusReplyWait | StatusEventError | StatusDisconnecting,
	StatusReplyWait:     StatusDownloading | StatusEventError | StatusDisconnecting | StatusClosedByServer,
	StatusDownloading:   StatusReadPacket | StatusEventError | StatusDisconnecting | StatusClosedByServer,
	StatusReadPacket:    StatusDisconnecting | StatusClosedByServer,
	StatusDisconnecting: StatusClosedByClient,
	StatusEventError:    StatusDisconnecting,
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to Status) bool {
	next, ok := transitions[from]
	if !ok {
		return false
	}
	return to != 0 && next&to == to && isSingle(to)
}

func isSingle(s Status) bool { return s&(s-1) == 0 }
